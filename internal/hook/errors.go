package hook

import (
	"errors"
	"fmt"

	"github.com/keshon/chatkernel/pkg/cmd"
)

var (
	// ErrAbort is returned by a hook to stop the pipeline and reject the
	// dispatch.
	ErrAbort = errors.New("hook aborted pipeline")

	// ErrInvalidHook is returned for descriptors missing a name, event or func.
	ErrInvalidHook = errors.New("invalid hook")
)

// DuplicateNameError reports a hook name already used for the same event.
// It matches cmd.ErrDuplicateName so callers can treat command and hook
// collisions alike.
type DuplicateNameError struct {
	Event string
	Name  string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("hook %q already registered for event %q", e.Name, e.Event)
}

func (e *DuplicateNameError) Is(target error) bool { return target == cmd.ErrDuplicateName }

// PanicError is what a panicking hook is reported as.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hook panicked: %v", e.Value)
}
