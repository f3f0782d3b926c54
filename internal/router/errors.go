package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/keshon/chatkernel/pkg/cmd"
)

var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrCooldownActive   = errors.New("cooldown active")
	ErrCommandExecution = errors.New("command execution failed")
	ErrRejected         = errors.New("dispatch rejected")
)

// NotFoundError is returned when no command or alias matches.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("command %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrCommandNotFound }

func (e *NotFoundError) ErrorKind() cmd.Kind { return cmd.KindNotFound }

// CooldownError is returned while the invoker's cooldown for a command runs.
type CooldownError struct {
	Command    string
	Invoker    string
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("command %q on cooldown for %s, retry in %s", e.Command, e.Invoker, e.RetryAfter)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

func (e *CooldownError) ErrorKind() cmd.Kind { return cmd.KindRateLimited }

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (e *CooldownError) RetryAfterSeconds() int {
	s := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second > 0 {
		s++
	}
	return s
}

// UserMessage implements cmd.Presentable.
func (e *CooldownError) UserMessage() string {
	return fmt.Sprintf("Slow down! You can use this command again in %ds.", e.RetryAfterSeconds())
}

// ExecutionError wraps a failed or panicked handler.
type ExecutionError struct {
	Command string
	Invoker string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command %q failed for %s: %v", e.Command, e.Invoker, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

func (e *ExecutionError) Is(target error) bool { return target == ErrCommandExecution }

// ErrorKind reports the kind of the handler's own failure.
func (e *ExecutionError) ErrorKind() cmd.Kind { return cmd.KindOf(e.Cause) }

// RejectedError is returned when a before-dispatch hook aborted.
type RejectedError struct {
	Name string
	Hook string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("dispatch of %q rejected by hook %q", e.Name, e.Hook)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func (e *RejectedError) ErrorKind() cmd.Kind { return cmd.KindRejected }

// PanicError is the cause recorded for a handler that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
