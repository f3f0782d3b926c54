// Package cooldown limits how often one invoker may run one command. The
// state lives in the shared cache, so a cooldown ends exactly when its cache
// entry expires.
package cooldown

import (
	"fmt"
	"math"
	"time"

	"github.com/keshon/chatkernel/pkg/cache"
)

// Decision is the outcome of TryAcquire.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Tracker gates command runs per (command, invoker).
type Tracker struct {
	cache *cache.Cache
	now   func() time.Time
}

// New returns a tracker storing its records in c.
func New(c *cache.Cache, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{cache: c, now: now}
}

// Key returns the cache key of a cooldown record.
func Key(command, invoker string) string {
	return fmt.Sprintf("cooldown:%s:%s", command, invoker)
}

// TryAcquire starts a cooldown for (command, invoker) unless one is active.
// A zero cooldown is always allowed and writes nothing. Two concurrent
// calls for the same pair never both succeed.
func (t *Tracker) TryAcquire(command, invoker string, cooldown time.Duration) (Decision, error) {
	if cooldown <= 0 {
		return Decision{Allowed: true}, nil
	}
	stored, left, err := t.cache.SetIfAbsent(Key(command, invoker), t.now(), cooldown)
	if err != nil {
		return Decision{}, err
	}
	if stored {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: left}, nil
}

// Remaining returns how long the cooldown for (command, invoker) still runs.
func (t *Tracker) Remaining(command, invoker string) time.Duration {
	left, ok := t.cache.TTL(Key(command, invoker))
	if !ok || left < 0 {
		return 0
	}
	return left
}

// Reset clears an active cooldown.
func (t *Tracker) Reset(command, invoker string) bool {
	return t.cache.Delete(Key(command, invoker))
}
