package alert

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertsNewestFirst(t *testing.T) {
	s := NewService()
	for i := 0; i < 3; i++ {
		s.Send(Alert{Title: fmt.Sprintf("a%d", i)})
	}

	got := s.Alerts(2)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].Title)
	assert.Equal(t, "a1", got[1].Title)
	assert.Len(t, s.Alerts(0), 3)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, TypeInfo, got[0].Type)
}

func TestRetentionLimitEvictsOldest(t *testing.T) {
	s := NewService(WithLimit(2))
	s.Send(Alert{Title: "old"})
	s.Send(Alert{Title: "mid"})
	s.Send(Alert{Title: "new"})

	got := s.Alerts(0)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Title)
	assert.Equal(t, "mid", got[1].Title)
}

func TestAcknowledge(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s := NewService(WithClock(func() time.Time { return now }))
	s.Send(Alert{ID: "x", Type: TypeError, Title: "boom"})

	assert.Equal(t, 1, s.Unacknowledged())
	require.NoError(t, s.Acknowledge("x"))
	a, ok := s.Get("x")
	require.True(t, ok)
	assert.True(t, a.Acknowledged)
	assert.Equal(t, now, a.AcknowledgedAt)
	assert.Equal(t, 0, s.Unacknowledged())

	assert.ErrorIs(t, s.Acknowledge("missing"), ErrNotFound)
}

func TestClear(t *testing.T) {
	s := NewService()
	s.Send(Alert{Title: "a"})
	s.Clear()
	assert.Empty(t, s.Alerts(0))
}

func TestMetadataIsCopied(t *testing.T) {
	s := NewService()
	md := map[string]string{"command": "ping"}
	s.Send(Alert{Title: "a", Metadata: md})
	md["command"] = "changed"

	got := s.Alerts(1)[0]
	assert.Equal(t, "ping", got.Metadata["command"])
	got.Metadata["command"] = "mutated"
	assert.Equal(t, "ping", s.Alerts(1)[0].Metadata["command"])
}

func TestSubscribersReceivePushesWhileRunning(t *testing.T) {
	s := NewService()

	var mu sync.Mutex
	var got []string
	unsubscribe := s.Subscribe(func(a Alert) {
		mu.Lock()
		got = append(got, a.Title)
		mu.Unlock()
	})

	s.Send(Alert{Title: "before-start"})
	s.Start()
	s.Start()
	s.Send(Alert{Title: "one"})
	s.Send(Alert{Title: "two"})
	s.Stop()
	s.Stop()

	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, got)
	mu.Unlock()

	unsubscribe()
	s.Start()
	s.Send(Alert{Title: "three"})
	s.Stop()

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()
	assert.Len(t, s.Alerts(0), 4)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	s := NewService()
	var delivered bool
	s.Subscribe(func(Alert) { panic("bad subscriber") })
	s.Subscribe(func(Alert) { delivered = true })

	s.Start()
	s.Send(Alert{Title: "x"})
	s.Stop()

	assert.True(t, delivered)
}
