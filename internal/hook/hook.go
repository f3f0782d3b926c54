// Package hook runs named, prioritized callbacks around dispatches.
//
// Hooks of one event run sequentially in ascending priority; ties keep
// registration order. A failing hook is reported and skipped, only ErrAbort
// stops the pipeline.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/pkg/cmd"
)

// Events raised by the router.
const (
	EventBeforeDispatch = "before-dispatch"
	EventAfterDispatch  = "after-dispatch"
)

// Func is a hook body. Returning ErrAbort, or an error wrapping it, stops
// the pipeline.
type Func func(ctx context.Context, c *cmd.Context) error

// Descriptor describes one hook.
type Descriptor struct {
	Name     string
	Event    string
	Priority int // lower runs first
	Func     Func
}

// Result is the outcome of one pipeline run.
type Result struct {
	Ran       []string // hook names in the order they ran
	Aborted   bool
	AbortedBy string
	Errors    []error // failures of hooks that did not abort
}

type entry struct {
	d   Descriptor
	seq uint64
}

// Pipeline holds hooks per event. It is safe for concurrent use.
type Pipeline struct {
	mu     sync.RWMutex
	events map[string][]entry
	seq    uint64
	alerts alert.Sink
}

// New returns an empty pipeline reporting hook failures to sink.
func New(sink alert.Sink) *Pipeline {
	if sink == nil {
		sink = alert.Discard
	}
	return &Pipeline{
		events: make(map[string][]entry),
		alerts: sink,
	}
}

// Register adds a hook. Names are unique per event.
func (p *Pipeline) Register(d Descriptor) error {
	if d.Name == "" || d.Event == "" || d.Func == nil {
		return fmt.Errorf("%w: name, event and func are required", ErrInvalidHook)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.events[d.Event] {
		if e.d.Name == d.Name {
			return &DuplicateNameError{Event: d.Event, Name: d.Name}
		}
	}
	p.seq++
	list := append(p.events[d.Event], entry{d: d, seq: p.seq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].d.Priority != list[j].d.Priority {
			return list[i].d.Priority < list[j].d.Priority
		}
		return list[i].seq < list[j].seq
	})
	p.events[d.Event] = list
	return nil
}

// Check reports whether every descriptor could be registered right now.
func (p *Pipeline) Check(ds ...Descriptor) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	batch := make(map[string]bool)
	for _, d := range ds {
		if d.Name == "" || d.Event == "" || d.Func == nil {
			return fmt.Errorf("%w: name, event and func are required", ErrInvalidHook)
		}
		for _, e := range p.events[d.Event] {
			if e.d.Name == d.Name {
				return &DuplicateNameError{Event: d.Event, Name: d.Name}
			}
		}
		key := d.Event + "\x00" + d.Name
		if batch[key] {
			return &DuplicateNameError{Event: d.Event, Name: d.Name}
		}
		batch[key] = true
	}
	return nil
}

// Unregister removes a hook. Removing an unknown hook is a no-op.
func (p *Pipeline) Unregister(event, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.events[event]
	for i, e := range list {
		if e.d.Name == name {
			out := make([]entry, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			if len(out) == 0 {
				delete(p.events, event)
			} else {
				p.events[event] = out
			}
			return true
		}
	}
	return false
}

// List returns the hooks of event in execution order.
func (p *Pipeline) List(event string) []Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := p.events[event]
	out := make([]Descriptor, len(list))
	for i, e := range list {
		out[i] = e.d
	}
	return out
}

// Events returns every event that has at least one hook, sorted.
func (p *Pipeline) Events() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.events))
	for ev := range p.events {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}

// Run executes the hooks of event against c. The hook list is captured at
// the start, so hooks registered or removed meanwhile do not affect this run.
func (p *Pipeline) Run(ctx context.Context, event string, c *cmd.Context) Result {
	var res Result
	for _, d := range p.List(event) {
		err := p.call(ctx, d, c)
		res.Ran = append(res.Ran, d.Name)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAbort) {
			res.Aborted = true
			res.AbortedBy = d.Name
			return res
		}
		res.Errors = append(res.Errors, fmt.Errorf("hook %s/%s: %w", event, d.Name, err))
		p.report(d, c, err)
	}
	return res
}

func (p *Pipeline) call(ctx context.Context, d Descriptor, c *cmd.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return d.Func(ctx, c)
}

func (p *Pipeline) report(d Descriptor, c *cmd.Context, err error) {
	md := map[string]string{
		"hook":     d.Name,
		"event":    d.Event,
		"priority": strconv.Itoa(d.Priority),
	}
	if c != nil {
		if c.Command != "" {
			md["command"] = c.Command
		}
		if c.InvokerID != "" {
			md["invoker"] = c.InvokerID
		}
	}
	p.alerts.Send(alert.Alert{
		Type:     alert.TypeWarning,
		Title:    "Hook failed",
		Message:  err.Error(),
		Metadata: md,
	})
}
