package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/pkg/cmd"
)

// HistoryHook records every handled command in its chat's history.
func (s *Storage) HistoryHook(now func() time.Time) hook.Descriptor {
	if now == nil {
		now = time.Now
	}
	return hook.Descriptor{
		Name:     "storage-history",
		Event:    hook.EventAfterDispatch,
		Priority: 100,
		Func: func(_ context.Context, c *cmd.Context) error {
			rec := CommandRecord{
				ChatID:      c.ChatID,
				InvokerID:   c.InvokerID,
				InvokerName: c.InvokerName,
				Source:      c.Source,
				Command:     c.Command,
				Args:        strings.Join(c.Args, " "),
				Failed:      c.Err != nil,
				Datetime:    now(),
			}
			if c.Err != nil {
				rec.Error = c.Err.Error()
			}
			return s.AppendCommand(rec)
		},
	}
}

// ToggleHook rejects commands whose category is disabled in the chat.
// resolve maps the requested name to its command.
func (s *Storage) ToggleHook(resolve func(name string) (cmd.Command, bool)) hook.Descriptor {
	return hook.Descriptor{
		Name:     "storage-category-toggle",
		Event:    hook.EventBeforeDispatch,
		Priority: -100,
		Func: func(_ context.Context, c *cmd.Context) error {
			command, ok := resolve(c.Command)
			if !ok {
				return nil
			}
			off, err := s.IsCategoryDisabled(c.ChatID, command.Category())
			if err != nil {
				return err
			}
			if off {
				return fmt.Errorf("category %s disabled in chat %s: %w", command.Category(), c.ChatID, hook.ErrAbort)
			}
			return nil
		},
	}
}

// ArchiveSubscriber returns an alert push listener that archives every
// alert of at least warning severity.
func (s *Storage) ArchiveSubscriber(onErr func(error)) func(alert.Alert) {
	return func(a alert.Alert) {
		if a.Type == alert.TypeInfo {
			return
		}
		if err := s.ArchiveAlert(a); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
