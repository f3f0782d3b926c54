// Package cache provides the expiring key/value store shared by command
// handlers, the cooldown tracker and anything else in the runtime that needs
// short-lived state.
//
// There is a single flat keyspace; callers build composite keys themselves
// (e.g. "weather:<city>"). Values are stored by reference and are never
// cloned, so a value returned by Get may be shared with other callers.
//
// Expiration is enforced twice: Get, Has, Keys and friends never return an
// entry past its deadline, and Run sweeps expired entries in the background.
// Correctness never depends on the sweep having run.
//
// Typical usage:
//
//	c := cache.New(cache.WithDefaultTTL(5 * time.Minute))
//	go c.Run(ctx)
//
//	_ = c.Set("weather:oslo", forecast, time.Minute)
//	if v, ok := c.Get("weather:oslo"); ok {
//	    // ...
//	}
package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const (
	// DefaultExpiration selects the cache's configured default TTL.
	DefaultExpiration time.Duration = 0

	// NoExpiration stores an entry that never expires.
	NoExpiration time.Duration = -1

	defaultSweepInterval = 30 * time.Second
)

type entry struct {
	value     any
	expiresAt time.Time // zero => never
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (e *entry) remaining(now time.Time) time.Duration {
	if e.expiresAt.IsZero() {
		return NoExpiration
	}
	if d := e.expiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Count   int     `json:"count"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is an expiring key/value store. It is safe for concurrent use.
type Cache struct {
	items         cmap.ConcurrentMap[string, *entry]
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64

	mu        sync.RWMutex
	listeners []Listener
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL sets the TTL used when Set is called without one.
// Zero or NoExpiration means entries never expire by default.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) { c.defaultTTL = d }
}

// WithSweepInterval sets how often Run purges expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(c *Cache) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		items:         cmap.New[*entry](),
		defaultTTL:    NoExpiration,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultTTL == 0 {
		c.defaultTTL = NoExpiration
	}
	return c
}

// deadline turns an optional ttl argument into an absolute expiry.
func (c *Cache) deadline(op, key string, ttl []time.Duration, now time.Time) (time.Time, error) {
	d := DefaultExpiration
	if len(ttl) > 0 {
		d = ttl[0]
	}
	if d == DefaultExpiration {
		d = c.defaultTTL
	}
	switch {
	case d == NoExpiration:
		return time.Time{}, nil
	case d < 0:
		return time.Time{}, &OperationError{Op: op, Key: key, Err: ErrInvalidTTL}
	}
	return now.Add(d), nil
}

// Set stores value under key. The optional ttl overrides the default TTL;
// pass NoExpiration to keep the entry until it is deleted or flushed.
func (c *Cache) Set(key string, value any, ttl ...time.Duration) error {
	if key == "" {
		return &OperationError{Op: "set", Err: ErrEmptyKey}
	}
	now := c.now()
	exp, err := c.deadline("set", key, ttl, now)
	if err != nil {
		return err
	}
	c.items.Set(key, &entry{value: value, expiresAt: exp})
	c.emit(Event{Type: EventSet, Key: key})
	return nil
}

// SetIfAbsent stores value only if key holds no live entry. The check and
// the write happen under the same shard lock. When the key is taken it
// reports false together with the remaining TTL of the existing entry
// (NoExpiration if that entry never expires).
func (c *Cache) SetIfAbsent(key string, value any, ttl time.Duration) (bool, time.Duration, error) {
	if key == "" {
		return false, 0, &OperationError{Op: "set-if-absent", Err: ErrEmptyKey}
	}
	now := c.now()
	exp, err := c.deadline("set-if-absent", key, []time.Duration{ttl}, now)
	if err != nil {
		return false, 0, err
	}

	fresh := &entry{value: value, expiresAt: exp}
	replacedExpired := false
	res := c.items.Upsert(key, fresh, func(exist bool, cur *entry, next *entry) *entry {
		if exist && !cur.expired(now) {
			return cur
		}
		replacedExpired = exist
		return next
	})

	if res != fresh {
		return false, res.remaining(now), nil
	}
	if replacedExpired {
		c.emit(Event{Type: EventExpired, Key: key})
	}
	c.emit(Event{Type: EventSet, Key: key})
	return true, fresh.remaining(now), nil
}

// SetMany stores every pair with the same ttl. The ttl is validated before
// anything is written.
func (c *Cache) SetMany(values map[string]any, ttl ...time.Duration) error {
	now := c.now()
	exp, err := c.deadline("set-many", "", ttl, now)
	if err != nil {
		return err
	}
	for key := range values {
		if key == "" {
			return &OperationError{Op: "set-many", Err: ErrEmptyKey}
		}
	}
	for key, value := range values {
		c.items.Set(key, &entry{value: value, expiresAt: exp})
		c.emit(Event{Type: EventSet, Key: key})
	}
	return nil
}

// Get returns the live value for key. Absent and expired keys count as a
// miss, live keys as a hit.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.lookup(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// GetMany returns the live values among keys. Each key counts as one hit or
// one miss.
func (c *Cache) GetMany(keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := c.Get(key); ok {
			out[key] = v
		}
	}
	return out
}

// Has reports whether key holds a live entry. It does not touch hit/miss
// counters.
func (c *Cache) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// TTL returns the remaining lifetime of key, or NoExpiration for entries
// that never expire.
func (c *Cache) TTL(key string) (time.Duration, bool) {
	now := c.now()
	e, ok := c.lookupAt(key, now)
	if !ok {
		return 0, false
	}
	return e.remaining(now), true
}

// Delete removes key and reports whether a live entry was removed.
func (c *Cache) Delete(key string) bool {
	now := c.now()
	live := false
	removed := c.items.RemoveCb(key, func(_ string, cur *entry, exists bool) bool {
		if !exists {
			return false
		}
		live = !cur.expired(now)
		return true
	})
	if !removed {
		return false
	}
	if !live {
		c.emit(Event{Type: EventExpired, Key: key})
		return false
	}
	c.emit(Event{Type: EventDelete, Key: key})
	return true
}

// Flush removes every entry. Hit and miss counters are kept.
func (c *Cache) Flush() {
	c.items.Clear()
	c.emit(Event{Type: EventFlush})
}

// Keys returns the live keys in lexical order.
func (c *Cache) Keys() []string {
	now := c.now()
	keys := make([]string, 0, c.items.Count())
	for item := range c.items.IterBuffered() {
		if !item.Val.expired(now) {
			keys = append(keys, item.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats returns the live entry count and the hit/miss counters.
func (c *Cache) Stats() Stats {
	now := c.now()
	count := 0
	for item := range c.items.IterBuffered() {
		if !item.Val.expired(now) {
			count++
		}
	}
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Count: count, Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Sweep purges every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for item := range c.items.IterBuffered() {
		if item.Val.expired(now) && c.expire(item.Key, item.Val) {
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every sweep interval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) lookup(key string) (*entry, bool) {
	return c.lookupAt(key, c.now())
}

func (c *Cache) lookupAt(key string, now time.Time) (*entry, bool) {
	e, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		c.expire(key, e)
		return nil, false
	}
	return e, true
}

// expire removes key only if it still holds e, so a concurrent Set is never
// thrown away.
func (c *Cache) expire(key string, e *entry) bool {
	removed := c.items.RemoveCb(key, func(_ string, cur *entry, exists bool) bool {
		return exists && cur == e
	})
	if removed {
		c.emit(Event{Type: EventExpired, Key: key})
	}
	return removed
}
