package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recorder) Send(a alert.Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func TestRunOrdersByPriorityAndIsolatesErrors(t *testing.T) {
	sink := &recorder{}
	p := New(sink)

	var order []int
	for _, prio := range []int{3, 1, 2} {
		prio := prio
		require.NoError(t, p.Register(Descriptor{
			Name:     fmt.Sprintf("h%d", prio),
			Event:    EventBeforeDispatch,
			Priority: prio,
			Func: func(context.Context, *cmd.Context) error {
				order = append(order, prio)
				if prio == 1 {
					return errors.New("validation backend down")
				}
				return nil
			},
		}))
	}

	res := p.Run(context.Background(), EventBeforeDispatch, &cmd.Context{Command: "ping", InvokerID: "u1"})
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, []string{"h1", "h2", "h3"}, res.Ran)
	assert.False(t, res.Aborted)
	require.Len(t, res.Errors, 1)

	require.Len(t, sink.alerts, 1)
	a := sink.alerts[0]
	assert.Equal(t, alert.TypeWarning, a.Type)
	assert.Equal(t, "h1", a.Metadata["hook"])
	assert.Equal(t, EventBeforeDispatch, a.Metadata["event"])
	assert.Equal(t, "ping", a.Metadata["command"])
	assert.Equal(t, "u1", a.Metadata["invoker"])
}

func TestTiesKeepRegistrationOrder(t *testing.T) {
	p := New(nil)
	noop := func(context.Context, *cmd.Context) error { return nil }
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, p.Register(Descriptor{Name: name, Event: "e", Func: noop}))
	}
	require.NoError(t, p.Register(Descriptor{Name: "first", Event: "e", Priority: -1, Func: noop}))

	var names []string
	for _, d := range p.List("e") {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"first", "b", "a", "c"}, names)
}

func TestAbortStopsPipeline(t *testing.T) {
	sink := &recorder{}
	p := New(sink)
	ranLast := false
	require.NoError(t, p.Register(Descriptor{Name: "gate", Event: "e", Priority: 1, Func: func(context.Context, *cmd.Context) error {
		return fmt.Errorf("banned user: %w", ErrAbort)
	}}))
	require.NoError(t, p.Register(Descriptor{Name: "log", Event: "e", Priority: 2, Func: func(context.Context, *cmd.Context) error {
		ranLast = true
		return nil
	}}))

	res := p.Run(context.Background(), "e", &cmd.Context{})
	assert.True(t, res.Aborted)
	assert.Equal(t, "gate", res.AbortedBy)
	assert.False(t, ranLast)
	assert.Empty(t, sink.alerts)
}

func TestPanickingHookIsReported(t *testing.T) {
	sink := &recorder{}
	p := New(sink)
	after := false
	require.NoError(t, p.Register(Descriptor{Name: "bad", Event: "e", Func: func(context.Context, *cmd.Context) error {
		panic("nil map")
	}}))
	require.NoError(t, p.Register(Descriptor{Name: "good", Event: "e", Priority: 1, Func: func(context.Context, *cmd.Context) error {
		after = true
		return nil
	}}))

	res := p.Run(context.Background(), "e", nil)
	assert.True(t, after)
	require.Len(t, res.Errors, 1)
	var pe *PanicError
	assert.ErrorAs(t, res.Errors[0], &pe)
	assert.Len(t, sink.alerts, 1)
}

func TestHooksShareContextValues(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Register(Descriptor{Name: "validate", Event: "e", Priority: 1, Func: func(_ context.Context, c *cmd.Context) error {
		c.Set("validated", true)
		return nil
	}}))
	var seen any
	require.NoError(t, p.Register(Descriptor{Name: "log", Event: "e", Priority: 2, Func: func(_ context.Context, c *cmd.Context) error {
		seen, _ = c.Get("validated")
		return nil
	}}))

	p.Run(context.Background(), "e", &cmd.Context{})
	assert.Equal(t, true, seen)
}

func TestDuplicateAndUnregister(t *testing.T) {
	p := New(nil)
	noop := func(context.Context, *cmd.Context) error { return nil }
	d := Descriptor{Name: "log", Event: EventAfterDispatch, Func: noop}
	require.NoError(t, p.Register(d))

	err := p.Register(d)
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, cmd.ErrDuplicateName)
	assert.Error(t, p.Check(d))

	require.NoError(t, p.Register(Descriptor{Name: "log", Event: EventBeforeDispatch, Func: noop}))
	assert.Equal(t, []string{EventAfterDispatch, EventBeforeDispatch}, p.Events())

	assert.True(t, p.Unregister(EventAfterDispatch, "log"))
	assert.False(t, p.Unregister(EventAfterDispatch, "log"))
	assert.False(t, p.Unregister("nope", "log"))
	assert.Empty(t, p.List(EventAfterDispatch))

	assert.ErrorIs(t, p.Register(Descriptor{Name: "x", Event: "e"}), ErrInvalidHook)
}

func TestCheckCatchesDuplicatesWithinBatch(t *testing.T) {
	p := New(nil)
	noop := func(context.Context, *cmd.Context) error { return nil }
	err := p.Check(
		Descriptor{Name: "a", Event: "e", Func: noop},
		Descriptor{Name: "a", Event: "e", Func: noop},
	)
	assert.ErrorIs(t, err, cmd.ErrDuplicateName)
	assert.NoError(t, p.Check(
		Descriptor{Name: "a", Event: "e", Func: noop},
		Descriptor{Name: "a", Event: "f", Func: noop},
	))
}
