package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string, aliases ...string) Command {
	return New(Descriptor{Name: name, Aliases: aliases, Description: name + " command"})
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("Ping", "P", "pong")))

	for _, name := range []string{"ping", "PING", " p ", "Pong"} {
		c, ok := r.Resolve(name)
		require.True(t, ok, name)
		assert.Equal(t, "Ping", c.Name())
	}
	_, ok := r.Resolve("nope")
	assert.False(t, ok)
}

func TestPrimaryNameWinsOverAlias(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("help", "h")))
	require.NoError(t, r.Register("", named("hi")))

	c, ok := r.Resolve("hi")
	require.True(t, ok)
	assert.Equal(t, "hi", c.Name())
}

func TestOverlappingAliasFailsAndLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("weather", "w")))
	before := r.All()

	err := r.Register("games", named("wordle", "W"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)

	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "w", dup.Name)
	assert.Equal(t, "weather", dup.Existing)

	assert.Equal(t, before, r.All())
	_, ok := r.Resolve("wordle")
	assert.False(t, ok)
}

func TestAliasCollidingWithPrimaryName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("roll")))

	err := r.Register("dice", named("dice", "roll"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	r := NewRegistry()
	err := r.Register("p", named("a", "x"), named("b", "x"))
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 0, r.Len())
}

func TestCheckDoesNotRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Check(named("a")))
	assert.Equal(t, 0, r.Len())
}

func TestInvalidCommand(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register("", nil), ErrInvalidCommand)
	assert.ErrorIs(t, r.Register("", named("  ")), ErrInvalidCommand)
}

func TestUnregisterOwner(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("help")))
	require.NoError(t, r.Register("games", named("roll", "r"), named("dice")))

	owner, ok := r.Owner("roll")
	require.True(t, ok)
	assert.Equal(t, "games", owner)

	removed := r.UnregisterOwner("games")
	assert.Equal(t, []string{"dice", "roll"}, removed)
	assert.Equal(t, 1, r.Len())
	_, ok = r.Resolve("r")
	assert.False(t, ok)

	// aliases are free again
	require.NoError(t, r.Register("other", named("rand", "r")))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("ping", "p")))
	assert.True(t, r.Unregister("PING"))
	assert.False(t, r.Unregister("ping"))
	_, ok := r.Resolve("p")
	assert.False(t, ok)
}

func TestAllSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("", named("b"), named("c"), named("a")))

	var got []string
	for _, c := range r.All() {
		got = append(got, c.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDescriptorDefaults(t *testing.T) {
	c := New(Descriptor{Name: "x"})
	assert.Equal(t, CategoryGeneral, c.Category())
	assert.NoError(t, c.Run(context.Background(), &Context{}))
}

func TestParse(t *testing.T) {
	name, args, ok := Parse("!", "  !roll 2d6 fast ")
	require.True(t, ok)
	assert.Equal(t, "roll", name)
	assert.Equal(t, []string{"2d6", "fast"}, args)

	_, _, ok = Parse("!", "roll")
	assert.False(t, ok)
	_, _, ok = Parse("!", "!")
	assert.False(t, ok)
}
