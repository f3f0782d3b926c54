package cmd

import (
	"context"
	"time"
)

// Unwrappable is implemented by wrapped commands so callers can reach the
// underlying command (e.g. to type-assert to an optional interface).
type Unwrappable interface {
	Command
	Unwrap() Command
}

// Wrapped wraps a command with a custom Run. Used by middleware. The inner
// command is exposed via Unwrap().
type Wrapped struct {
	Inner   Command
	RunFunc HandlerFunc
}

// Name delegates to the inner command.
func (w *Wrapped) Name() string { return w.Inner.Name() }

// Description delegates to the inner command.
func (w *Wrapped) Description() string { return w.Inner.Description() }

// Aliases delegates to the inner command.
func (w *Wrapped) Aliases() []string { return w.Inner.Aliases() }

// Category delegates to the inner command.
func (w *Wrapped) Category() Category { return w.Inner.Category() }

// Cooldown delegates to the inner command.
func (w *Wrapped) Cooldown() time.Duration { return w.Inner.Cooldown() }

// Run runs the wrapper's RunFunc.
func (w *Wrapped) Run(ctx context.Context, c *Context) error {
	if w.RunFunc != nil {
		return w.RunFunc(ctx, c)
	}
	return w.Inner.Run(ctx, c)
}

// Unwrap returns the inner command.
func (w *Wrapped) Unwrap() Command { return w.Inner }

// Wrap returns a command that runs run instead of c.Run, delegating the
// metadata to c. The returned command implements Unwrappable.
func Wrap(c Command, run HandlerFunc) Command {
	return &Wrapped{Inner: c, RunFunc: run}
}

// Root unwraps a command until the underlying command is not Unwrappable.
func Root(c Command) Command {
	for {
		if u, ok := c.(Unwrappable); ok {
			c = u.Unwrap()
		} else {
			return c
		}
	}
}
