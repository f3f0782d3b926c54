package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/pkg/retrylimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasAdministrator(t *testing.T) {
	guild := &discordgo.Guild{
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "admins", Permissions: discordgo.PermissionAdministrator},
			{ID: "members", Permissions: discordgo.PermissionSendMessages},
		},
	}
	assert.True(t, hasAdministrator(guild, "owner", nil))
	assert.True(t, hasAdministrator(guild, "u1", []string{"members", "admins"}))
	assert.False(t, hasAdministrator(guild, "u2", []string{"members"}))

	assert.True(t, isDeveloper("dev", "dev"))
	assert.False(t, isDeveloper("", ""))
}

func TestEventFromDirectMessage(t *testing.T) {
	b := &Bot{cfg: Config{Prefix: "!", DeveloperID: "dev"}, log: zerolog.Nop()}

	_, ok := b.event(nil, &discordgo.Message{Content: "hello there", Author: &discordgo.User{ID: "u1"}})
	assert.False(t, ok)

	ev, ok := b.event(nil, &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   "!Roll 2d6 +1",
		Author:    &discordgo.User{ID: "dev", Username: "keshon"},
	})
	require.True(t, ok)
	assert.Equal(t, "Roll", ev.Command)
	assert.Equal(t, []string{"2d6", "+1"}, ev.Context.Args)
	assert.Equal(t, "c1", ev.Context.ChatID)
	assert.Equal(t, "discord", ev.Context.Source)
	assert.False(t, ev.Context.IsGroup)
	assert.True(t, ev.Context.IsAdmin)
}

func TestIgnoredAuthorsAcrossReconnects(t *testing.T) {
	b := &Bot{log: zerolog.Nop()}

	assert.True(t, b.ignored(nil))
	assert.True(t, b.ignored(&discordgo.User{ID: "other", Bot: true}))
	assert.False(t, b.ignored(&discordgo.User{ID: "self"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "self", Username: "kernel"}})
		}()
		go func() {
			defer wg.Done()
			_ = b.ignored(&discordgo.User{ID: "u1"})
		}()
	}
	wg.Wait()

	assert.True(t, b.ignored(&discordgo.User{ID: "self"}))
	assert.False(t, b.ignored(&discordgo.User{ID: "u1"}))
}

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}, ResponseBody: []byte("{}")}
}

func TestClassify(t *testing.T) {
	assert.True(t, retrylimit.Throttling(classify(restError(http.StatusTooManyRequests))))
	assert.True(t, retrylimit.Throttling(classify(restError(http.StatusBadGateway))))

	var fatal *retrylimit.FatalError
	assert.ErrorAs(t, classify(restError(http.StatusForbidden)), &fatal)

	plain := errors.New("dial tcp: timeout")
	assert.Same(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestFormat(t *testing.T) {
	msg := Format(alert.Alert{
		ID:       "a1",
		Type:     alert.TypeCritical,
		Title:    "Command failed",
		Message:  "boom",
		Metadata: map[string]string{"invoker": "u1", "command": "roll"},
	})
	assert.Contains(t, msg, "CRITICAL")
	assert.Less(t, strings.Index(msg, "`command`"), strings.Index(msg, "`invoker`"))

	long := Format(alert.Alert{ID: "a2", Type: alert.TypeError, Message: strings.Repeat("x", 3000)})
	assert.LessOrEqual(t, len(long), maxMessage)
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error
	sent  []string
}

func (f *fakeSender) send(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	f.sent = append(f.sent, channelID+":"+content)
	return nil
}

func (f *fakeSender) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.sent...)
}

func TestForwarderRetriesAndFilters(t *testing.T) {
	sender := &fakeSender{errs: []error{classify(restError(http.StatusTooManyRequests))}}
	f := NewForwarder(sender.send, "ops", alert.TypeWarning, zerolog.Nop())
	f.lim = nil
	f.retry.InitialDelay = time.Millisecond
	f.retry.ThrottleDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	f.Push(alert.Alert{ID: "skip", Type: alert.TypeInfo})
	f.Push(alert.Alert{ID: "keep", Type: alert.TypeError, Title: "Command failed"})

	assert.Eventually(t, func() bool {
		_, sent := sender.snapshot()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)
	calls, sent := sender.snapshot()
	assert.Equal(t, 2, calls)
	assert.True(t, strings.HasPrefix(sent[0], "ops:"))
	assert.Contains(t, sent[0], "keep")

	cancel()
	assert.NoError(t, <-done)
}

func TestForwarderGivesUpOnFatal(t *testing.T) {
	sender := &fakeSender{errs: []error{classify(restError(http.StatusForbidden))}}
	f := NewForwarder(sender.send, "ops", alert.TypeInfo, zerolog.Nop())
	f.lim = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	f.Push(alert.Alert{ID: "a", Type: alert.TypeInfo})
	f.Push(alert.Alert{ID: "b", Type: alert.TypeInfo})
	assert.Eventually(t, func() bool {
		calls, sent := sender.snapshot()
		return calls == 2 && len(sent) == 1
	}, time.Second, 5*time.Millisecond)
}
