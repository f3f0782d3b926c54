// Package monitor samples process and dispatch metrics on an interval and
// keeps a bounded history of snapshots. The same figures are exported as
// Prometheus collectors.
package monitor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/rs/zerolog"
)

const (
	defaultInterval = 15 * time.Second
	defaultHistory  = 240
)

// Snapshot is one sample of runtime health.
type Snapshot struct {
	Timestamp      time.Time     `json:"timestamp"`
	Uptime         time.Duration `json:"uptime"`
	Goroutines     int           `json:"goroutines"`
	HeapAlloc      uint64        `json:"heap_alloc"`
	HeapObjects    uint64        `json:"heap_objects"`
	NumGC          uint32        `json:"num_gc"`
	Dispatches     uint64        `json:"dispatches"`
	DispatchErrors uint64        `json:"dispatch_errors"`
	AvgLatency     time.Duration `json:"avg_latency"`
	CacheEntries   int           `json:"cache_entries"`
	CacheHitRate   float64       `json:"cache_hit_rate"`
}

// CacheStats is the part of the cache the monitor reads.
type CacheStats interface {
	Stats() cache.Stats
}

// Monitor records dispatch outcomes and samples snapshots while running.
type Monitor struct {
	interval time.Duration
	cache    CacheStats
	log      zerolog.Logger
	now      func() time.Time
	started  time.Time

	dispatches atomic.Uint64
	errors     atomic.Uint64
	latencyNs  atomic.Int64

	mu      sync.Mutex
	history *ring

	runMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool

	metrics *collectors
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets how often snapshots are taken.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithHistory sets how many snapshots are kept.
func WithHistory(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.history = newRing(n)
		}
	}
}

// WithCache includes cache statistics in snapshots.
func WithCache(c CacheStats) Option {
	return func(m *Monitor) { m.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a stopped monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		interval: defaultInterval,
		log:      zerolog.Nop(),
		now:      time.Now,
		history:  newRing(defaultHistory),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	m.metrics = newCollectors(m)
	return m
}

// Start samples immediately and then every interval until Stop.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(m.stop, m.done)
}

// Stop ends sampling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.runMu.Unlock()

	<-done
}

// Running reports whether sampling is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.Sample()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s := m.Sample()
			m.log.Debug().
				Int("goroutines", s.Goroutines).
				Uint64("heap_alloc", s.HeapAlloc).
				Uint64("dispatches", s.Dispatches).
				Dur("avg_latency", s.AvgLatency).
				Msg("metrics sampled")
		}
	}
}

// RecordDispatch counts one finished dispatch.
func (m *Monitor) RecordDispatch(command string, d time.Duration, err error) {
	m.dispatches.Add(1)
	m.latencyNs.Add(int64(d))
	outcome := "ok"
	if err != nil {
		m.errors.Add(1)
		outcome = cmd.KindOf(err).String()
	}
	m.metrics.observe(command, outcome, d)
}

// Metrics returns a fresh snapshot without adding it to the history.
func (m *Monitor) Metrics() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := m.now()
	s := Snapshot{
		Timestamp:      now,
		Uptime:         now.Sub(m.started),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      ms.HeapAlloc,
		HeapObjects:    ms.HeapObjects,
		NumGC:          ms.NumGC,
		Dispatches:     m.dispatches.Load(),
		DispatchErrors: m.errors.Load(),
	}
	if s.Dispatches > 0 {
		s.AvgLatency = time.Duration(m.latencyNs.Load() / int64(s.Dispatches))
	}
	if m.cache != nil {
		st := m.cache.Stats()
		s.CacheEntries = st.Count
		s.CacheHitRate = st.HitRate
	}
	return s
}

// Sample takes a snapshot and appends it to the history.
func (m *Monitor) Sample() Snapshot {
	s := m.Metrics()
	m.mu.Lock()
	m.history.push(s)
	m.mu.Unlock()
	return s
}

// History returns up to limit of the most recent snapshots, oldest first.
// A limit of zero or less returns the whole history.
func (m *Monitor) History(limit int) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.last(limit)
}
