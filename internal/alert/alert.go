// Package alert collects operational signals raised by the runtime (hook
// failures, handler errors, plugin lifecycle problems) and hands them to
// whoever is interested: the log, admin commands polling Alerts, and push
// subscribers such as a chat channel forwarder.
//
// Alerts live in memory only; a bounded number of the most recent ones is
// kept. Anything that must outlive the process has to subscribe.
package alert

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when an alert ID is unknown.
var ErrNotFound = errors.New("alert not found")

// Type is the severity of an alert.
type Type string

const (
	TypeInfo     Type = "info"
	TypeWarning  Type = "warning"
	TypeError    Type = "error"
	TypeCritical Type = "critical"
)

// Alert is one operational signal.
type Alert struct {
	ID             string            `json:"id"`
	Type           Type              `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedAt time.Time         `json:"acknowledged_at,omitempty"`
}

// Sink is the narrow interface runtime components use to raise alerts.
type Sink interface {
	Send(a Alert)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Alert)

// Send implements Sink.
func (f SinkFunc) Send(a Alert) { f(a) }

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(Alert) {})

const (
	defaultLimit  = 500
	pushQueueSize = 64
)

// Service stores recent alerts and pushes new ones to subscribers.
// It is safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	alerts []Alert // oldest first
	limit  int
	log    zerolog.Logger
	now    func() time.Time

	subMu   sync.RWMutex
	subs    map[int]func(Alert)
	nextSub int

	runMu   sync.Mutex
	queue   chan Alert
	done    chan struct{}
	running bool
}

// Option configures a Service.
type Option func(*Service)

// WithLimit caps how many alerts are retained.
func WithLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLogger sets the logger every alert is written to.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a stopped service.
func NewService(opts ...Option) *Service {
	s := &Service{
		limit: defaultLimit,
		log:   zerolog.Nop(),
		now:   time.Now,
		subs:  make(map[int]func(Alert)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins pushing alerts to subscribers. Calling Start twice is a no-op.
func (s *Service) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.queue = make(chan Alert, pushQueueSize)
	s.done = make(chan struct{})
	s.running = true
	go s.pushLoop(s.queue, s.done)
}

// Stop delivers queued alerts and stops pushing. Alerts sent afterwards are
// still stored and logged.
func (s *Service) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	close(s.queue)
	done := s.done
	s.runMu.Unlock()

	<-done
}

// Running reports whether the push loop is active.
func (s *Service) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Send records a, writes it to the log and queues it for subscribers.
// ID and CreatedAt are filled in when empty.
func (s *Service) Send(a Alert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.Type == "" {
		a.Type = TypeInfo
	}
	a.Metadata = cloneMetadata(a.Metadata)

	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	if over := len(s.alerts) - s.limit; over > 0 {
		s.alerts = append([]Alert(nil), s.alerts[over:]...)
	}
	s.mu.Unlock()

	s.logAlert(a)

	s.runMu.Lock()
	if s.running {
		select {
		case s.queue <- a:
		default:
			s.log.Warn().Str("alert_id", a.ID).Msg("alert push queue full, dropping push")
		}
	}
	s.runMu.Unlock()
}

// Alerts returns up to limit alerts, most recent first. A limit of zero or
// less returns everything retained.
func (s *Service) Alerts(limit int) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		a := s.alerts[i]
		a.Metadata = cloneMetadata(a.Metadata)
		out = append(out, a)
	}
	return out
}

// Get returns one alert by ID.
func (s *Service) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ID == id {
			a.Metadata = cloneMetadata(a.Metadata)
			return a, true
		}
	}
	return Alert{}, false
}

// Acknowledge marks an alert as seen by an operator.
func (s *Service) Acknowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			if !s.alerts[i].Acknowledged {
				s.alerts[i].Acknowledged = true
				s.alerts[i].AcknowledgedAt = s.now()
			}
			return nil
		}
	}
	return ErrNotFound
}

// Unacknowledged returns how many retained alerts are not acknowledged.
func (s *Service) Unacknowledged() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

// Clear drops every retained alert.
func (s *Service) Clear() {
	s.mu.Lock()
	s.alerts = nil
	s.mu.Unlock()
}

// Subscribe registers fn to receive every alert sent while the service is
// running. The returned function removes the subscription.
func (s *Service) Subscribe(fn func(Alert)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) pushLoop(queue <-chan Alert, done chan<- struct{}) {
	defer close(done)
	for a := range queue {
		s.subMu.RLock()
		subs := make([]func(Alert), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
		s.subMu.RUnlock()

		for _, fn := range subs {
			s.deliver(fn, a)
		}
	}
}

func (s *Service) deliver(fn func(Alert), a Alert) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("alert_id", a.ID).Msg("alert subscriber panicked")
		}
	}()
	fn(a)
}

func (s *Service) logAlert(a Alert) {
	var evt *zerolog.Event
	switch a.Type {
	case TypeCritical, TypeError:
		evt = s.log.Error()
	case TypeWarning:
		evt = s.log.Warn()
	default:
		evt = s.log.Info()
	}
	evt = evt.Str("alert_id", a.ID).Str("type", string(a.Type)).Str("title", a.Title)
	for k, v := range a.Metadata {
		evt = evt.Str(k, v)
	}
	evt.Msg(a.Message)
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
