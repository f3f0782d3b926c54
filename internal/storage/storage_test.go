package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/internal/storage/datastore"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(datastore.DefaultConfig(filepath.Join(t.TempDir(), "store.json")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCommandHistoryKeepsNewest(t *testing.T) {
	s := newStorage(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < commandHistoryLimit+1; i++ {
		require.NoError(t, s.AppendCommand(CommandRecord{
			ChatID:   "c1",
			Command:  fmt.Sprintf("cmd%d", i),
			Datetime: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.AppendCommand(CommandRecord{ChatID: "c2", Command: "ping"}))

	got, err := s.CommandHistory("c1")
	require.NoError(t, err)
	require.Len(t, got, commandHistoryLimit)
	assert.Equal(t, "cmd1", got[0].Command)
	assert.Equal(t, fmt.Sprintf("cmd%d", commandHistoryLimit), got[len(got)-1].Command)

	other, err := s.CommandHistory("c2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	empty, err := s.CommandHistory("nowhere")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHistoryHookRecordsDispatch(t *testing.T) {
	s := newStorage(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := s.HistoryHook(func() time.Time { return now })
	assert.Equal(t, hook.EventAfterDispatch, h.Event)

	require.NoError(t, h.Func(context.Background(), &cmd.Context{
		ChatID:      "c1",
		InvokerID:   "u1",
		InvokerName: "keshon",
		Source:      "console",
		Command:     "roll",
		Args:        []string{"2d6", "+1"},
		Err:         errors.New("dice fell off the table"),
	}))

	got, err := s.CommandHistory("c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "roll", got[0].Command)
	assert.Equal(t, "2d6 +1", got[0].Args)
	assert.True(t, got[0].Failed)
	assert.Equal(t, "dice fell off the table", got[0].Error)
	assert.True(t, now.Equal(got[0].Datetime))
}

func TestCategoryToggle(t *testing.T) {
	s := newStorage(t)

	require.NoError(t, s.DisableCategory("c1", cmd.CategoryGame))
	require.NoError(t, s.DisableCategory("c1", cmd.CategoryGame))

	off, err := s.IsCategoryDisabled("c1", cmd.CategoryGame)
	require.NoError(t, err)
	assert.True(t, off)
	off, err = s.IsCategoryDisabled("c2", cmd.CategoryGame)
	require.NoError(t, err)
	assert.False(t, off)

	require.NoError(t, s.EnableCategory("c1", cmd.CategoryGame))
	off, err = s.IsCategoryDisabled("c1", cmd.CategoryGame)
	require.NoError(t, err)
	assert.False(t, off)

	assert.Error(t, s.DisableCategory("c1", cmd.CategoryAdmin))
	assert.Error(t, s.DisableCategory("c1", cmd.CategoryOwner))
}

func TestToggleHookAborts(t *testing.T) {
	s := newStorage(t)
	roll := cmd.New(cmd.Descriptor{Name: "roll", Category: cmd.CategoryGame})
	resolve := func(name string) (cmd.Command, bool) {
		if name == "roll" {
			return roll, true
		}
		return nil, false
	}
	h := s.ToggleHook(resolve)
	assert.Equal(t, hook.EventBeforeDispatch, h.Event)

	ctx := context.Background()
	assert.NoError(t, h.Func(ctx, &cmd.Context{ChatID: "c1", Command: "roll"}))

	require.NoError(t, s.DisableCategory("c1", cmd.CategoryGame))
	err := h.Func(ctx, &cmd.Context{ChatID: "c1", Command: "roll"})
	assert.ErrorIs(t, err, hook.ErrAbort)

	assert.NoError(t, h.Func(ctx, &cmd.Context{ChatID: "c2", Command: "roll"}))
	assert.NoError(t, h.Func(ctx, &cmd.Context{ChatID: "c1", Command: "unknown"}))
}

func TestAlertArchive(t *testing.T) {
	s := newStorage(t)
	var failures []error
	archive := s.ArchiveSubscriber(func(err error) { failures = append(failures, err) })

	archive(alert.Alert{ID: "info", Type: alert.TypeInfo, Title: "Command not found"})
	for i := 0; i < alertArchiveLimit+5; i++ {
		archive(alert.Alert{ID: fmt.Sprintf("a%d", i), Type: alert.TypeError, Title: "Handler failed"})
	}
	assert.Empty(t, failures)

	all, err := s.ArchivedAlerts(0)
	require.NoError(t, err)
	require.Len(t, all, alertArchiveLimit)
	assert.Equal(t, fmt.Sprintf("a%d", alertArchiveLimit+4), all[0].ID)
	assert.Equal(t, "a5", all[len(all)-1].ID)
	for _, a := range all {
		assert.NotEqual(t, alert.TypeInfo, a.Type)
	}

	recent, err := s.ArchivedAlerts(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, fmt.Sprintf("a%d", alertArchiveLimit+2), recent[2].ID)
}
