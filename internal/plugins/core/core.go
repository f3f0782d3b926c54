// Package core is the built-in operator plugin: ping, help and the admin
// commands for alerts, plugins, stats, category toggles and history.
package core

import (
	"context"
	"time"

	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/keshon/chatkernel/pkg/cmd"
)

const (
	Name    = "core"
	Version = "1.0.0"
)

func init() {
	plugin.Register(Name, New)
}

// New builds the plugin. It is a plugin.Source.
func New(env plugin.Env) plugin.Plugin {
	c := &core{env: env}
	return &plugin.Bundle{
		ID:  Name,
		Ver: Version,
		Cmds: []cmd.Command{
			cmd.New(cmd.Descriptor{
				Name:        "ping",
				Description: "Check that the bot is alive",
				Category:    cmd.CategoryUtils,
				Cooldown:    5 * time.Second,
				Handler:     c.ping,
			}),
			cmd.New(cmd.Descriptor{
				Name:        "help",
				Description: "List commands, or describe one",
				Aliases:     []string{"commands", "h"},
				Category:    cmd.CategoryGeneral,
				Handler:     c.help,
			}),
			cmd.Apply(cmd.New(cmd.Descriptor{
				Name:        "alerts",
				Description: "Show, acknowledge or clear operator alerts",
				Category:    cmd.CategoryAdmin,
				Handler:     c.alerts,
			}), cmd.AdminOnly()),
			cmd.Apply(cmd.New(cmd.Descriptor{
				Name:        "plugins",
				Description: "List, load, unload or reload plugins",
				Category:    cmd.CategoryAdmin,
				Handler:     c.plugins,
			}), cmd.AdminOnly()),
			cmd.Apply(cmd.New(cmd.Descriptor{
				Name:        "stats",
				Description: "Show runtime metrics",
				Aliases:     []string{"status"},
				Category:    cmd.CategoryAdmin,
				Cooldown:    2 * time.Second,
				Handler:     c.stats,
			}), cmd.AdminOnly()),
			cmd.Apply(cmd.New(cmd.Descriptor{
				Name:        "toggle",
				Description: "Enable or disable a command category in this chat",
				Category:    cmd.CategoryAdmin,
				Handler:     c.toggle,
			}), cmd.AdminOnly(), cmd.GroupOnly(), cmd.MinArgs(2, "toggle <enable|disable> <category>")),
			cmd.Apply(cmd.New(cmd.Descriptor{
				Name:        "history",
				Description: "Show recent commands in this chat",
				Aliases:     []string{"log"},
				Category:    cmd.CategoryAdmin,
				Handler:     c.history,
			}), cmd.AdminOnly()),
		},
	}
}

type core struct {
	env plugin.Env
}

func (c *core) ping(ctx context.Context, inv *cmd.Context) error {
	return inv.Reply(ctx, "🏓 Pong!")
}
