package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/chatkernel/pkg/cmd"
)

func (c *core) help(ctx context.Context, inv *cmd.Context) error {
	if name := inv.Arg(0); name != "" {
		command, ok := c.env.Registry.Resolve(name)
		if !ok {
			return cmd.Failf(cmd.KindUsage, "No command named %q. Try %shelp.", name, c.env.Prefix)
		}
		return inv.Reply(ctx, c.describe(command))
	}
	return inv.Reply(ctx, c.overview(inv.IsAdmin))
}

// overview groups commands by category in display order. Admin and owner
// commands are shown to admins only.
func (c *core) overview(admin bool) string {
	byCategory := make(map[cmd.Category][]cmd.Command)
	for _, command := range c.env.Registry.All() {
		cat := command.Category()
		if !admin && (cat == cmd.CategoryAdmin || cat == cmd.CategoryOwner) {
			continue
		}
		byCategory[cat] = append(byCategory[cat], command)
	}

	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, cat := range orderedCategories(byCategory) {
		fmt.Fprintf(&sb, "\n__%s__\n", cat)
		for _, command := range byCategory[cat] {
			fmt.Fprintf(&sb, "`%s%s` %s\n", c.env.Prefix, command.Name(), command.Description())
		}
	}
	fmt.Fprintf(&sb, "\nUse `%shelp <command>` for details.", c.env.Prefix)
	return sb.String()
}

func orderedCategories(m map[cmd.Category][]cmd.Command) []cmd.Category {
	weight := make(map[cmd.Category]int, len(cmd.Categories))
	for i, cat := range cmd.Categories {
		weight[cat] = i
	}
	out := make([]cmd.Category, 0, len(m))
	for cat := range m {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, oki := weight[out[i]]
		wj, okj := weight[out[j]]
		switch {
		case oki && okj:
			return wi < wj
		case oki != okj:
			return oki
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func (c *core) describe(command cmd.Command) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s%s** (%s)\n%s\n", c.env.Prefix, command.Name(), command.Category(), command.Description())
	if aliases := command.Aliases(); len(aliases) > 0 {
		fmt.Fprintf(&sb, "Aliases: %s\n", strings.Join(aliases, ", "))
	}
	if cd := command.Cooldown(); cd > 0 {
		fmt.Fprintf(&sb, "Cooldown: %s\n", cd)
	}
	if owner, ok := c.env.Registry.Owner(command.Name()); ok && owner != "" {
		fmt.Fprintf(&sb, "Plugin: %s\n", owner)
	}
	return strings.TrimRight(sb.String(), "\n")
}
