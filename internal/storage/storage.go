// Package storage keeps the little state the bot persists: per-chat command
// history, per-chat disabled command categories and an archive of alerts.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/storage/datastore"
	"github.com/keshon/chatkernel/pkg/cmd"
)

const (
	commandHistoryLimit = 20
	alertArchiveLimit   = 200
	alertsKey           = "alerts"
)

type Storage struct {
	ds *datastore.DataStore
	mu sync.Mutex // serializes read-modify-write of records
}

// CommandRecord is one dispatched command as seen by the after-dispatch
// hook.
type CommandRecord struct {
	ChatID      string    `json:"chat_id"`
	InvokerID   string    `json:"invoker_id"`
	InvokerName string    `json:"invoker_name"`
	Source      string    `json:"source"`
	Command     string    `json:"command"`
	Args        string    `json:"args"`
	Failed      bool      `json:"failed"`
	Error       string    `json:"error,omitempty"`
	Datetime    time.Time `json:"datetime"`
}

type chatRecord struct {
	History  []CommandRecord `json:"cmd_history"`
	Disabled []cmd.Category  `json:"disabled_categories"`
}

// Open opens the datastore described by cfg.
func Open(cfg datastore.Config) (*Storage, error) {
	ds, err := datastore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// Run saves to disk periodically until ctx is done.
func (s *Storage) Run(ctx context.Context) error {
	return s.ds.Run(ctx)
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Stats exposes datastore counters.
func (s *Storage) Stats() map[string]any {
	return s.ds.Stats()
}

func chatKey(chatID string) string {
	if chatID == "" {
		chatID = "direct"
	}
	return "chat:" + chatID
}

// chat must be called with s.mu held.
func (s *Storage) chat(chatID string) (*chatRecord, error) {
	var rec chatRecord
	if _, err := s.ds.Get(chatKey(chatID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AppendCommand adds rec to its chat's history, keeping the newest entries.
func (s *Storage) AppendCommand(rec CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.chat(rec.ChatID)
	if err != nil {
		return err
	}
	chat.History = append(chat.History, rec)
	if over := len(chat.History) - commandHistoryLimit; over > 0 {
		chat.History = chat.History[over:]
	}
	return s.ds.Put(chatKey(rec.ChatID), chat)
}

// CommandHistory returns a chat's recent commands, oldest first.
func (s *Storage) CommandHistory(chatID string) ([]CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.chat(chatID)
	if err != nil {
		return nil, err
	}
	return chat.History, nil
}

// DisableCategory turns off every command of category in a chat.
func (s *Storage) DisableCategory(chatID string, category cmd.Category) error {
	if category == cmd.CategoryAdmin || category == cmd.CategoryOwner {
		return fmt.Errorf("category %q cannot be disabled", category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.chat(chatID)
	if err != nil {
		return err
	}
	for _, c := range chat.Disabled {
		if c == category {
			return nil
		}
	}
	chat.Disabled = append(chat.Disabled, category)
	return s.ds.Put(chatKey(chatID), chat)
}

// EnableCategory undoes DisableCategory.
func (s *Storage) EnableCategory(chatID string, category cmd.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.chat(chatID)
	if err != nil {
		return err
	}
	kept := chat.Disabled[:0]
	for _, c := range chat.Disabled {
		if c != category {
			kept = append(kept, c)
		}
	}
	chat.Disabled = kept
	return s.ds.Put(chatKey(chatID), chat)
}

// IsCategoryDisabled reports whether category is off in a chat.
func (s *Storage) IsCategoryDisabled(chatID string, category cmd.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.chat(chatID)
	if err != nil {
		return false, err
	}
	for _, c := range chat.Disabled {
		if c == category {
			return true, nil
		}
	}
	return false, nil
}

// ArchiveAlert appends a to the alert archive.
func (s *Storage) ArchiveAlert(a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []alert.Alert
	if _, err := s.ds.Get(alertsKey, &list); err != nil {
		return err
	}
	list = append(list, a)
	if over := len(list) - alertArchiveLimit; over > 0 {
		list = list[over:]
	}
	return s.ds.Put(alertsKey, list)
}

// ArchivedAlerts returns up to limit archived alerts, newest first.
func (s *Storage) ArchivedAlerts(limit int) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []alert.Alert
	if _, err := s.ds.Get(alertsKey, &list); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]alert.Alert, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
