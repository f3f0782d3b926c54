package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOrderFirstIsOutermost(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Context) error {
				trace = append(trace, name)
				return c.Run(ctx, inv)
			})
		}
	}
	base := New(Descriptor{Name: "x", Handler: func(context.Context, *Context) error {
		trace = append(trace, "run")
		return nil
	}})

	c := Apply(base, tag("outer"), tag("inner"))
	require.NoError(t, c.Run(context.Background(), &Context{}))
	assert.Equal(t, []string{"outer", "inner", "run"}, trace)
	assert.Equal(t, base, Root(c))
	assert.Equal(t, "x", c.Name())
}

func TestGroupOnly(t *testing.T) {
	ran := false
	c := Apply(New(Descriptor{Name: "x", Handler: func(context.Context, *Context) error {
		ran = true
		return nil
	}}), GroupOnly())

	err := c.Run(context.Background(), &Context{IsGroup: false})
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.False(t, ran)

	require.NoError(t, c.Run(context.Background(), &Context{IsGroup: true}))
	assert.True(t, ran)
}

func TestAdminOnly(t *testing.T) {
	c := Apply(New(Descriptor{Name: "x"}), AdminOnly())
	assert.Equal(t, KindForbidden, KindOf(c.Run(context.Background(), &Context{})))
	assert.NoError(t, c.Run(context.Background(), &Context{IsAdmin: true}))
}

func TestMinArgs(t *testing.T) {
	c := Apply(New(Descriptor{Name: "x"}), MinArgs(1, "!x <city>"))
	err := c.Run(context.Background(), &Context{})
	assert.Equal(t, KindUsage, KindOf(err))
	assert.Equal(t, "Usage: !x <city>", UserMessage(err, ""))
	assert.NoError(t, c.Run(context.Background(), &Context{Args: []string{"oslo"}}))
}

func TestKindOfAndUserMessage(t *testing.T) {
	cause := errors.New("db down")
	err := FailWith(KindUnavailable, "Try again later.", cause)
	wrapped := errors.Join(errors.New("outer"), err)

	assert.Equal(t, KindUnavailable, KindOf(wrapped))
	assert.Equal(t, "Try again later.", UserMessage(wrapped, "oops"))
	assert.ErrorIs(t, err, cause)

	plain := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "oops", UserMessage(plain, "oops"))
}

func TestContextReplyAndValues(t *testing.T) {
	c := &Context{}
	assert.ErrorIs(t, c.Reply(context.Background(), "hi"), ErrNoReplier)

	var got string
	c.Replier = ReplyFunc(func(_ context.Context, text string) error {
		got = text
		return nil
	})
	require.NoError(t, c.Reply(context.Background(), "hi"))
	assert.Equal(t, "hi", got)

	c.Set("validated", true)
	v, ok := c.Get("validated")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.Equal(t, "", c.Arg(3))
	assert.NotNil(t, c.Logger())
}
