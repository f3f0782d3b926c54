package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/keshon/chatkernel/pkg/cmd"
)

const listLimit = 10

func (c *core) alerts(ctx context.Context, inv *cmd.Context) error {
	svc := c.env.Alerts
	if svc == nil {
		return cmd.Fail(cmd.KindUnavailable, "Alerts are not available.")
	}

	switch inv.Arg(0) {
	case "ack":
		id := inv.Arg(1)
		if id == "" {
			return cmd.Fail(cmd.KindUsage, "Usage: alerts ack <id>")
		}
		if err := svc.Acknowledge(id); errors.Is(err, alert.ErrNotFound) {
			return cmd.Failf(cmd.KindUsage, "No alert with id %s.", id)
		}
		return inv.Reply(ctx, "Acknowledged "+id+".")
	case "clear":
		svc.Clear()
		return inv.Reply(ctx, "Alerts cleared.")
	case "", "list":
	default:
		return cmd.Fail(cmd.KindUsage, "Usage: alerts [list|ack <id>|clear]")
	}

	list := svc.Alerts(listLimit)
	if len(list) == 0 {
		return inv.Reply(ctx, "No alerts. ✨")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d unacknowledged**\n", svc.Unacknowledged())
	for _, a := range list {
		mark := " "
		if a.Acknowledged {
			mark = "✓"
		}
		fmt.Fprintf(&sb, "%s `%s` [%s] %s %s\n", mark, shortID(a.ID), a.Type, a.CreatedAt.Format(time.DateTime), a.Title)
	}
	return inv.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

// shortID keeps alert lines readable; ack needs the full id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (c *core) plugins(ctx context.Context, inv *cmd.Context) error {
	m := c.env.Plugins
	action, name := inv.Arg(0), strings.ToLower(inv.Arg(1))

	if action == "" || action == "list" {
		return inv.Reply(ctx, c.pluginTable())
	}
	if name == "" {
		return cmd.Fail(cmd.KindUsage, "Usage: plugins [list|load|unload|reload] <name>")
	}
	if name == Name && action != "load" {
		return cmd.Failf(cmd.KindUsage, "The %s plugin cannot %s itself.", Name, action)
	}

	var err error
	switch action {
	case "load":
		_, err = m.LoadByName(ctx, name)
	case "unload":
		err = m.Unload(ctx, name)
	case "reload":
		err = m.Reload(ctx, name)
	default:
		return cmd.Fail(cmd.KindUsage, "Usage: plugins [list|load|unload|reload] <name>")
	}
	if err != nil {
		return pluginFailure(err)
	}
	d, _ := m.Get(name)
	return inv.Reply(ctx, fmt.Sprintf("Plugin %s is now %s.", name, d.State))
}

func pluginFailure(err error) error {
	switch {
	case errors.Is(err, plugin.ErrNotFound),
		errors.Is(err, plugin.ErrAlreadyLoaded),
		errors.Is(err, plugin.ErrNotActive),
		errors.Is(err, plugin.ErrHasDependents),
		errors.Is(err, plugin.ErrUnmetDeps),
		errors.Is(err, cmd.ErrDuplicateName):
		return cmd.FailWith(cmd.KindUsage, err.Error(), err)
	}
	return cmd.FailWith(cmd.KindUnavailable, "The plugin failed to load; operators were alerted.", err)
}

func (c *core) pluginTable() string {
	list := c.env.Plugins.List()
	names := c.env.Plugins.Catalog().Names()
	known := make(map[string]bool, len(list))

	var sb strings.Builder
	sb.WriteString("**Plugins**\n")
	for _, d := range list {
		known[d.Name] = true
		fmt.Fprintf(&sb, "`%s` %s %s", d.Name, d.Version, d.State)
		if d.LastError != "" {
			fmt.Fprintf(&sb, " (%s)", d.LastError)
		}
		sb.WriteString("\n")
	}
	for _, n := range names {
		if !known[n] {
			fmt.Fprintf(&sb, "`%s` available\n", n)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *core) stats(ctx context.Context, inv *cmd.Context) error {
	if c.env.Monitor == nil {
		return cmd.Fail(cmd.KindUnavailable, "Metrics are not available.")
	}
	s := c.env.Monitor.Metrics()

	var sb strings.Builder
	sb.WriteString("**Runtime**\n")
	fmt.Fprintf(&sb, "Uptime: %s\n", s.Uptime.Round(time.Second))
	fmt.Fprintf(&sb, "Goroutines: %d\n", s.Goroutines)
	fmt.Fprintf(&sb, "Heap: %.1f MiB (%d objects, %d GC)\n", float64(s.HeapAlloc)/(1<<20), s.HeapObjects, s.NumGC)
	fmt.Fprintf(&sb, "Dispatches: %d (%d failed, avg %s)\n", s.Dispatches, s.DispatchErrors, s.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(&sb, "Cache: %d entries, %.0f%% hits\n", s.CacheEntries, s.CacheHitRate*100)
	if c.env.Plugins != nil {
		fmt.Fprintf(&sb, "Plugins: %s\n", strings.Join(c.env.Plugins.Active(), ", "))
	}
	if c.env.Jobs != nil {
		sb.WriteString(c.env.Jobs.Summary())
	}
	return inv.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

func (c *core) toggle(ctx context.Context, inv *cmd.Context) error {
	store := c.env.Storage
	if store == nil {
		return cmd.Fail(cmd.KindUnavailable, "Nothing is persisted, so categories cannot be toggled.")
	}
	category := cmd.Category(strings.ToLower(inv.Arg(1)))
	if !category.Valid() {
		return cmd.Failf(cmd.KindUsage, "Unknown category %q.", inv.Arg(1))
	}

	var err error
	switch inv.Arg(0) {
	case "disable":
		err = store.DisableCategory(inv.ChatID, category)
	case "enable":
		err = store.EnableCategory(inv.ChatID, category)
	default:
		return cmd.Fail(cmd.KindUsage, "Usage: toggle <enable|disable> <category>")
	}
	if err != nil {
		return cmd.FailWith(cmd.KindUsage, err.Error(), err)
	}
	return inv.Reply(ctx, fmt.Sprintf("Category %s %sd here.", category, inv.Arg(0)))
}

func (c *core) history(ctx context.Context, inv *cmd.Context) error {
	store := c.env.Storage
	if store == nil {
		return cmd.Fail(cmd.KindUnavailable, "Command history is not recorded.")
	}
	records, err := store.CommandHistory(inv.ChatID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return inv.Reply(ctx, "No commands recorded here yet.")
	}

	n := listLimit
	if v, err := strconv.Atoi(inv.Arg(0)); err == nil && v > 0 {
		n = v
	}
	if n > len(records) {
		n = len(records)
	}

	var sb strings.Builder
	for _, r := range records[len(records)-n:] {
		status := "ok"
		if r.Failed {
			status = "failed"
		}
		line := r.Command
		if r.Args != "" {
			line += " " + r.Args
		}
		fmt.Fprintf(&sb, "%s %s `%s` %s\n", r.Datetime.Format(time.DateTime), r.InvokerName, line, status)
	}
	return inv.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}
