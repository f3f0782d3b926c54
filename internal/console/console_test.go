package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/keshon/chatkernel/internal/router"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	seen []*cmd.Context
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, name string, c *cmd.Context) error {
	f.seen = append(f.seen, c)
	switch name {
	case "ping":
		return c.Reply(ctx, "Pong!")
	case "roll":
		return &router.ExecutionError{Command: "roll", Cause: cmd.Fail(cmd.KindUsage, "Usage: roll NdM")}
	default:
		return &router.NotFoundError{Name: name}
	}
}

func TestRunDispatchesLines(t *testing.T) {
	var out bytes.Buffer
	d := &fakeDispatcher{}
	c := New(strings.NewReader("!ping\n\nroll\nnope a b\nquit\nping\n"), &out, d, WithPrefix("!"))

	require.NoError(t, c.Run(context.Background()))

	got := out.String()
	assert.Contains(t, got, "Pong!\n")
	assert.Contains(t, got, "Usage: roll NdM\n")
	assert.Contains(t, got, `unknown command "nope"`)
	require.Len(t, d.seen, 3)
	assert.Equal(t, []string{"a", "b"}, d.seen[2].Args)
	assert.Equal(t, "console", d.seen[0].Source)
	assert.True(t, d.seen[0].IsAdmin)
}

func TestRunStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	d := &fakeDispatcher{}
	require.NoError(t, New(strings.NewReader("ping"), &out, d, WithUser("guest", false)).Run(context.Background()))
	require.Len(t, d.seen, 1)
	assert.False(t, d.seen[0].IsAdmin)
	assert.Equal(t, "guest", d.seen[0].InvokerID)
}
