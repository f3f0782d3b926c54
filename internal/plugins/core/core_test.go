package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/config"
	"github.com/keshon/chatkernel/internal/kernel"
	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/keshon/chatkernel/internal/router"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	k     *kernel.Kernel
	clock *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		CommandPrefix:      "!",
		StoragePath:        filepath.Join(dir, "store.json"),
		PluginManifest:     filepath.Join(dir, "plugins.yaml"),
		CacheSweepInterval: time.Minute,
		AlertLimit:         20,
		MetricsInterval:    time.Hour,
		MetricsHistory:     5,
		Workers:            1,
		QueueSize:          1,
	}
	cat := plugin.NewCatalog()
	require.NoError(t, cat.Add(Name, New))
	require.NoError(t, cat.Add("dice", func(plugin.Env) plugin.Plugin {
		return &plugin.Bundle{ID: "dice", Ver: "0.2.0", Cmds: []cmd.Command{
			cmd.New(cmd.Descriptor{Name: "roll", Description: "Roll dice", Category: cmd.CategoryGame}),
		}}
	}))

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	k, err := kernel.New(cfg, zerolog.Nop(), kernel.WithCatalog(cat), kernel.WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, k.Start(context.Background()))
	t.Cleanup(func() { _ = k.Stop(context.Background()) })
	return &harness{k: k, clock: clk}
}

type out struct{ lines []string }

func (o *out) Reply(_ context.Context, text string) error {
	o.lines = append(o.lines, text)
	return nil
}

func (o *out) last() string {
	if len(o.lines) == 0 {
		return ""
	}
	return o.lines[len(o.lines)-1]
}

func (h *harness) run(t *testing.T, admin bool, line string) (string, error) {
	t.Helper()
	name, args, ok := cmd.Parse("!", line)
	require.True(t, ok)
	o := &out{}
	err := h.k.Dispatch(context.Background(), name, &cmd.Context{
		InvokerID:   "u1",
		InvokerName: "keshon",
		ChatID:      "c1",
		IsGroup:     true,
		IsAdmin:     admin,
		Args:        args,
		Replier:     o,
	})
	return o.last(), err
}

func TestPingCooldown(t *testing.T) {
	h := newHarness(t)

	reply, err := h.run(t, false, "!ping")
	require.NoError(t, err)
	assert.Equal(t, "🏓 Pong!", reply)

	_, err = h.run(t, false, "!ping")
	var cd *router.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 5, cd.RetryAfterSeconds())

	h.clock.now = h.clock.now.Add(6 * time.Second)
	_, err = h.run(t, false, "!ping")
	assert.NoError(t, err)
}

func TestHelpHidesAdminCommands(t *testing.T) {
	h := newHarness(t)

	reply, err := h.run(t, false, "!help")
	require.NoError(t, err)
	assert.Contains(t, reply, "`!roll` Roll dice")
	assert.NotContains(t, reply, "!alerts")
	assert.Less(t, strings.Index(reply, "general"), strings.Index(reply, "game"))

	reply, err = h.run(t, true, "!h")
	require.NoError(t, err)
	assert.Contains(t, reply, "!alerts")

	reply, err = h.run(t, false, "!help roll")
	require.NoError(t, err)
	assert.Contains(t, reply, "Plugin: dice")

	_, err = h.run(t, false, "!help nope")
	assert.Equal(t, cmd.KindUsage, cmd.KindOf(err))
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, false, "!alerts")
	assert.Equal(t, cmd.KindForbidden, cmd.KindOf(err))
}

func TestAlertsCommand(t *testing.T) {
	h := newHarness(t)
	h.k.Alerts.Send(alert.Alert{Type: alert.TypeError, Title: "Disk almost full"})

	reply, err := h.run(t, true, "!alerts")
	require.NoError(t, err)
	assert.Contains(t, reply, "Disk almost full")

	id := h.k.Alerts.Alerts(1)[0].ID
	_, err = h.run(t, true, "!alerts ack "+id)
	require.NoError(t, err)
	assert.Zero(t, h.k.Alerts.Unacknowledged())

	_, err = h.run(t, true, "!alerts ack missing")
	assert.Equal(t, cmd.KindUsage, cmd.KindOf(err))
}

func TestPluginsCommand(t *testing.T) {
	h := newHarness(t)

	reply, err := h.run(t, true, "!plugins")
	require.NoError(t, err)
	assert.Contains(t, reply, "`dice` 0.2.0 active")

	reply, err = h.run(t, true, "!plugins unload dice")
	require.NoError(t, err)
	assert.Equal(t, "Plugin dice is now unloaded.", reply)
	_, ok := h.k.Registry.Resolve("roll")
	assert.False(t, ok)

	_, err = h.run(t, true, "!plugins reload core")
	assert.Equal(t, cmd.KindUsage, cmd.KindOf(err))

	reply, err = h.run(t, true, "!plugins load dice")
	require.NoError(t, err)
	assert.Equal(t, "Plugin dice is now active.", reply)
}

func TestToggleAndHistory(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, true, "!toggle disable game")
	require.NoError(t, err)
	_, err = h.run(t, false, "!roll")
	assert.ErrorIs(t, err, router.ErrRejected)

	_, err = h.run(t, true, "!toggle disable admin")
	assert.Equal(t, cmd.KindUsage, cmd.KindOf(err))
	_, err = h.run(t, true, "!toggle enable game")
	require.NoError(t, err)
	_, err = h.run(t, false, "!roll")
	require.NoError(t, err)

	reply, err := h.run(t, true, "!history")
	require.NoError(t, err)
	assert.Contains(t, reply, "`toggle disable game` ok")
	assert.Contains(t, reply, "`toggle disable admin` failed")
	assert.Contains(t, reply, "`roll` ok")
	assert.NotContains(t, reply, "`roll `")
}

func TestStatsCommand(t *testing.T) {
	h := newHarness(t)
	reply, err := h.run(t, true, "!stats")
	require.NoError(t, err)
	assert.Contains(t, reply, "Goroutines:")
	assert.Contains(t, reply, "Running jobs:")
}
