// Package plugin manages bundles of commands and hooks that can be loaded,
// unloaded and reloaded while the bot runs.
//
// Plugins are linked into the binary and announce themselves to a Catalog
// from init(); which of them are loaded, and in what order, is decided at
// runtime. A plugin that fails to initialize registers nothing.
package plugin

import (
	"context"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/internal/monitor"
	"github.com/keshon/chatkernel/internal/storage"
	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/keshon/chatkernel/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Plugin is a self-contained bundle of commands and hooks.
type Plugin interface {
	Name() string
	Version() string
	// Dependencies lists plugins that must be active before this one loads.
	Dependencies() []string
	Commands() []cmd.Command
	Hooks() []hook.Descriptor
	// Initialize runs before anything is registered. An error leaves the
	// plugin Failed with nothing registered.
	Initialize(ctx context.Context) error
	// Destroy runs on unload after the plugin's commands and hooks are gone.
	Destroy(ctx context.Context) error
}

// Env is what a Source may capture from the running kernel.
type Env struct {
	Cache   *cache.Cache
	Alerts  *alert.Service
	Monitor *monitor.Monitor
	Storage *storage.Storage // nil when nothing is persisted
	Jobs    *jobmgr.Manager
	Plugins *Manager
	Prefix  string
	Log     zerolog.Logger

	// Registry is read-only for plugins; they register through Commands.
	Registry *cmd.Registry
}

// Source builds a fresh plugin instance. Reload calls it again.
type Source func(env Env) Plugin

// Bundle is the literal form of a plugin. Nil funcs are no-ops.
type Bundle struct {
	ID        string
	Ver       string
	Requires  []string
	Cmds      []cmd.Command
	HookList  []hook.Descriptor
	OnInit    func(ctx context.Context) error
	OnDestroy func(ctx context.Context) error
}

func (b *Bundle) Name() string             { return b.ID }
func (b *Bundle) Version() string          { return b.Ver }
func (b *Bundle) Dependencies() []string   { return b.Requires }
func (b *Bundle) Commands() []cmd.Command  { return b.Cmds }
func (b *Bundle) Hooks() []hook.Descriptor { return b.HookList }

func (b *Bundle) Initialize(ctx context.Context) error {
	if b.OnInit == nil {
		return nil
	}
	return b.OnInit(ctx)
}

func (b *Bundle) Destroy(ctx context.Context) error {
	if b.OnDestroy == nil {
		return nil
	}
	return b.OnDestroy(ctx)
}
