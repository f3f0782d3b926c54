// Package cmd provides a transport-agnostic command core: a command is something
// with a name, aliases, a category, an optional cooldown and Run(ctx, *Context).
// How events reach it (Discord, console, HTTP) is defined by adapters; how it is
// routed is defined by the router.
package cmd

import (
	"context"
	"strings"
	"time"
)

// Category groups commands for help output and access policies.
type Category string

const (
	CategoryAdmin   Category = "admin"
	CategoryUtils   Category = "utils"
	CategoryAI      Category = "ai"
	CategoryOwner   Category = "owner"
	CategoryGeneral Category = "general"
	CategoryGame    Category = "game"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryGeneral,
	CategoryUtils,
	CategoryGame,
	CategoryAI,
	CategoryAdmin,
	CategoryOwner,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Command is the universal contract. Statically defined commands and
// plugin-provided commands implement the same interface and are treated
// identically by the router.
type Command interface {
	Name() string
	Description() string
	Aliases() []string
	Category() Category
	// Cooldown is the minimum interval between two runs by the same invoker.
	// Zero disables the cooldown.
	Cooldown() time.Duration
	Run(ctx context.Context, c *Context) error
}

// HandlerFunc is the body of a command.
type HandlerFunc func(ctx context.Context, c *Context) error

// Descriptor is the literal form of a command, for commands that do not need
// their own type.
type Descriptor struct {
	Name        string
	Description string
	Aliases     []string
	Category    Category
	Cooldown    time.Duration
	Handler     HandlerFunc
}

// New returns a Command backed by d.
func New(d Descriptor) Command {
	if d.Category == "" {
		d.Category = CategoryGeneral
	}
	d.Aliases = append([]string(nil), d.Aliases...)
	return &literal{d: d}
}

type literal struct {
	d Descriptor
}

func (c *literal) Name() string            { return c.d.Name }
func (c *literal) Description() string     { return c.d.Description }
func (c *literal) Aliases() []string       { return append([]string(nil), c.d.Aliases...) }
func (c *literal) Category() Category      { return c.d.Category }
func (c *literal) Cooldown() time.Duration { return c.d.Cooldown }

func (c *literal) Run(ctx context.Context, inv *Context) error {
	if c.d.Handler == nil {
		return nil
	}
	return c.d.Handler(ctx, inv)
}

// Normalize lower-cases and trims a command name or alias.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Parse splits "<prefix><name> args..." into a name and its arguments.
// It returns ok=false when text does not start with prefix or has no name.
func Parse(prefix, text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix != "" {
		if !strings.HasPrefix(text, prefix) {
			return "", nil, false
		}
		text = strings.TrimPrefix(text, prefix)
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	return parts[0], parts[1:], true
}
