package cmd

import "context"

// Middleware wraps a command (e.g. access checks, argument validation).
// The wrapped type remains Command.
type Middleware func(Command) Command

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// GroupOnly refuses to run the command outside group conversations.
func GroupOnly() Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Context) error {
			if !inv.IsGroup {
				return Fail(KindForbidden, "This command only works in group chats.")
			}
			return c.Run(ctx, inv)
		})
	}
}

// AdminOnly refuses to run the command for invokers the adapter did not
// flag as admins.
func AdminOnly() Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Context) error {
			if !inv.IsAdmin {
				return Fail(KindForbidden, "You need to be an admin to use this command.")
			}
			return c.Run(ctx, inv)
		})
	}
}

// MinArgs refuses to run the command with fewer than n arguments and shows
// usage instead.
func MinArgs(n int, usage string) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Context) error {
			if len(inv.Args) < n {
				return Failf(KindUsage, "Usage: %s", usage)
			}
			return c.Run(ctx, inv)
		})
	}
}
