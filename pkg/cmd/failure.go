package cmd

import (
	"errors"
	"fmt"
)

// Kind classifies a failed dispatch for the presentation layer.
type Kind int

const (
	// KindInternal is an unexpected failure. The user should see a generic
	// message; operators see the cause through alerts.
	KindInternal Kind = iota
	// KindUsage means the invoker called the command wrongly.
	KindUsage
	// KindForbidden means the invoker may not run the command here.
	KindForbidden
	// KindUnavailable means a dependency of the command is down.
	KindUnavailable
	// KindNotFound means no command matched.
	KindNotFound
	// KindRateLimited means a cooldown is active.
	KindRateLimited
	// KindRejected means a hook refused the dispatch.
	KindRejected
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindUsage:
		return "usage"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Failure is the explicit error result of a handler: a kind the
// presentation layer can switch on and a message fit for the user.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

// Fail returns a Failure of the given kind.
func Fail(kind Kind, message string) error {
	return &Failure{Kind: kind, Message: message}
}

// Failf returns a Failure with a formatted message.
func Failf(kind Kind, format string, args ...any) error {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FailWith returns a Failure that keeps cause for operators.
func FailWith(kind Kind, message string, cause error) error {
	return &Failure{Kind: kind, Message: message, Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// UserMessage implements Presentable.
func (f *Failure) UserMessage() string { return f.Message }

// ErrorKind implements Classified.
func (f *Failure) ErrorKind() Kind { return f.Kind }

// Classified is implemented by errors that know their Kind. Router errors
// implement it so adapters only need KindOf.
type Classified interface {
	error
	ErrorKind() Kind
}

// Presentable is implemented by errors carrying a user-facing message.
type Presentable interface {
	error
	UserMessage() string
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	return KindInternal
}

// UserMessage returns the first user-facing message in err's chain, or
// fallback.
func UserMessage(err error, fallback string) string {
	var p Presentable
	if errors.As(err, &p) {
		if msg := p.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
