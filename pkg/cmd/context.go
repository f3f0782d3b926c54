package cmd

import (
	"context"
	"errors"
	"sync"

	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/rs/zerolog"
)

// ErrNoReplier is returned by Context.Reply when the adapter supplied no
// reply capability.
var ErrNoReplier = errors.New("context has no reply capability")

// Replier sends a message back to the conversation an event came from.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// ReplyFunc adapts a function to Replier.
type ReplyFunc func(ctx context.Context, text string) error

// Reply implements Replier.
func (f ReplyFunc) Reply(ctx context.Context, text string) error { return f(ctx, text) }

// Context carries everything one dispatch needs. Adapters fill the identity,
// flags and Replier; the router fills Command, Cache, Log and, before the
// after-dispatch hooks run, Err. A Context lives for one dispatch and is
// never persisted.
type Context struct {
	InvokerID   string
	InvokerName string
	ChatID      string
	Source      string // adapter name, e.g. "discord"
	Text        string
	Args        []string

	// IsGroup and IsAdmin are decided by the adapter, not by the runtime.
	IsGroup bool
	IsAdmin bool

	Replier Replier
	Cache   *cache.Cache
	Log     *zerolog.Logger

	// Command is the requested name while before-dispatch hooks run and the
	// resolved primary name afterwards.
	Command string
	// Err is the handler's outcome as seen by after-dispatch hooks.
	Err error

	values sync.Map
}

// Reply sends text through the adapter's reply capability.
func (c *Context) Reply(ctx context.Context, text string) error {
	if c.Replier == nil {
		return ErrNoReplier
	}
	return c.Replier.Reply(ctx, text)
}

// Logger returns the dispatch logger, or a no-op logger.
func (c *Context) Logger() *zerolog.Logger {
	if c.Log == nil {
		l := zerolog.Nop()
		return &l
	}
	return c.Log
}

// Set stores a value visible to later hooks and the handler of the same
// dispatch.
func (c *Context) Set(key string, value any) {
	c.values.Store(key, value)
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	return c.values.Load(key)
}

// Arg returns the i-th argument or an empty string.
func (c *Context) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
