// Package router dispatches one inbound event to at most one command.
//
// A dispatch runs the before-dispatch hooks, resolves the command, checks
// the invoker's cooldown, runs the handler and then the after-dispatch
// hooks. It never panics: every failure comes back as an error the
// presentation layer can classify with cmd.KindOf.
package router

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/cooldown"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/rs/zerolog"
)

// Recorder receives the outcome of every dispatch.
type Recorder interface {
	RecordDispatch(command string, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(string, time.Duration, error) {}

// Router ties the registry, hooks and cooldowns together.
type Router struct {
	registry *cmd.Registry
	hooks    *hook.Pipeline
	cooldown *cooldown.Tracker
	cache    *cache.Cache
	alerts   alert.Sink
	metrics  Recorder
	log      zerolog.Logger
	mws      []cmd.Middleware
	now      func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithCache sets the cache handed to handlers through the Context.
func WithCache(c *cache.Cache) Option {
	return func(r *Router) { r.cache = c }
}

// WithAlerts sets where recoverable failures are reported.
func WithAlerts(s alert.Sink) Option {
	return func(r *Router) {
		if s != nil {
			r.alerts = s
		}
	}
}

// WithRecorder sets the dispatch metrics recorder.
func WithRecorder(m Recorder) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithMiddleware wraps every resolved command before it runs. The first
// middleware is the outermost.
func WithMiddleware(mws ...cmd.Middleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a router.
func New(registry *cmd.Registry, hooks *hook.Pipeline, tracker *cooldown.Tracker, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		hooks:    hooks,
		cooldown: tracker,
		alerts:   alert.Discard,
		metrics:  nopRecorder{},
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry commands are resolved from.
func (r *Router) Registry() *cmd.Registry { return r.registry }

// Dispatch routes name with c. A nil c is replaced by an empty Context.
func (r *Router) Dispatch(ctx context.Context, name string, c *cmd.Context) (err error) {
	if c == nil {
		c = &cmd.Context{}
	}
	if c.Cache == nil {
		c.Cache = r.cache
	}
	log := r.log.With().Str("command", name).Str("invoker", c.InvokerID).Logger()
	c.Log = &log

	start := r.now()
	resolved := ""
	c.Command = cmd.Normalize(name)
	defer func() {
		r.metrics.RecordDispatch(resolved, r.now().Sub(start), err)
	}()

	if res := r.hooks.Run(ctx, hook.EventBeforeDispatch, c); res.Aborted {
		log.Debug().Str("hook", res.AbortedBy).Msg("dispatch rejected")
		rerr := &RejectedError{Name: name, Hook: res.AbortedBy}
		md := r.metadata(c.Command, c)
		md["hook"] = res.AbortedBy
		r.alerts.Send(alert.Alert{
			Type:     alert.TypeInfo,
			Title:    "Dispatch rejected",
			Message:  rerr.Error(),
			Metadata: md,
		})
		return rerr
	}

	command, ok := r.registry.Resolve(name)
	if !ok {
		r.alerts.Send(alert.Alert{
			Type:     alert.TypeInfo,
			Title:    "Command not found",
			Message:  "no command or alias matches " + name,
			Metadata: r.metadata(name, c),
		})
		return &NotFoundError{Name: name}
	}
	resolved = cmd.Normalize(command.Name())
	c.Command = resolved

	decision, cdErr := r.cooldown.TryAcquire(resolved, c.InvokerID, command.Cooldown())
	if cdErr != nil {
		// Only a bad key can fail here; run rather than lock the command out.
		log.Warn().Err(cdErr).Msg("cooldown check failed")
	} else if !decision.Allowed {
		cerr := &CooldownError{Command: resolved, Invoker: c.InvokerID, RetryAfter: decision.RetryAfter}
		r.alerts.Send(alert.Alert{
			Type:     alert.TypeInfo,
			Title:    "Cooldown active",
			Message:  cerr.Error(),
			Metadata: r.metadata(resolved, c),
		})
		return cerr
	}

	runErr := r.invoke(ctx, cmd.Apply(command, r.mws...), c)
	c.Err = runErr
	if cdErr == nil && refunds(runErr) {
		r.cooldown.Reset(resolved, c.InvokerID)
	}
	r.hooks.Run(ctx, hook.EventAfterDispatch, c)

	if runErr == nil {
		return nil
	}
	return r.fail(resolved, c, runErr)
}

// refunds reports whether a failure gives the cooldown back: usage and
// permission failures do.
func refunds(err error) bool {
	if err == nil {
		return false
	}
	switch cmd.KindOf(err) {
	case cmd.KindUsage, cmd.KindForbidden:
		return true
	}
	return false
}

func (r *Router) invoke(ctx context.Context, command cmd.Command, c *cmd.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return command.Run(ctx, c)
}

func (r *Router) fail(command string, c *cmd.Context, cause error) error {
	execErr := &ExecutionError{Command: command, Invoker: c.InvokerID, Cause: cause}
	kind := cmd.KindOf(cause)

	typ := alert.TypeError
	level := zerolog.ErrorLevel
	var stack []byte
	if pe, ok := cause.(*PanicError); ok {
		typ = alert.TypeCritical
		stack = pe.Stack
	} else if kind == cmd.KindUsage || kind == cmd.KindForbidden {
		// The invoker's mistake, not the runtime's.
		typ = alert.TypeInfo
		level = zerolog.DebugLevel
	}
	evt := c.Logger().WithLevel(level).Err(cause).Str("kind", kind.String())
	if stack != nil {
		evt = evt.Bytes("stack", stack)
	}
	evt.Msg("command failed")

	md := r.metadata(command, c)
	md["kind"] = kind.String()
	r.alerts.Send(alert.Alert{
		Type:     typ,
		Title:    "Command failed",
		Message:  cause.Error(),
		Metadata: md,
	})
	return execErr
}

func (r *Router) metadata(command string, c *cmd.Context) map[string]string {
	md := map[string]string{
		"command": command,
		"invoker": c.InvokerID,
	}
	if c.ChatID != "" {
		md["chat"] = c.ChatID
	}
	if c.Source != "" {
		md["source"] = c.Source
	}
	return md
}
