// Package retrylimit combines an adaptive rate limiter with retry and
// exponential backoff for outbound calls such as pushing alerts to a chat
// channel.
//
//	lim := retrylimit.NewAdaptiveLimiter(2, 0.5, 5, 0.5, 0.5)
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultConfig(), func(ctx context.Context) error {
//	    return send(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrAttemptsExhausted is returned when every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// AdaptiveLimiter is a rate limit that speeds up after successes and slows
// down after throttling or server errors.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	min, max  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	calm      time.Duration
	lastError time.Time
	now       func() time.Time
}

// NewAdaptiveLimiter returns a limiter starting at initial requests per
// second and staying within [min, max]. stepUp is added after a success,
// stepDown multiplies the rate after a failure.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min <= 0 {
		min = 0.1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		min:      min,
		max:      max,
		stepUp:   stepUp,
		stepDown: stepDown,
		calm:     10 * time.Second,
		now:      time.Now,
	}
}

// Wait blocks until a request may be made or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate, unless a failure happened recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > a.calm {
		a.set(a.limiter.Limit() + a.stepUp)
	}
}

// Throttled lowers the rate.
func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = a.now()
	a.set(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// Limit returns the current requests per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	if l > a.max {
		l = a.max
	} else if l < a.min {
		l = a.min
	}
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burstFor(l))
	}
}

func burstFor(l rate.Limit) int {
	if l < 1 {
		return 1
	}
	return int(l)
}

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// FatalError stops retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Classifier reports whether err means the remote side wants us to slow
// down.
type Classifier func(error) bool

// Throttling treats 429 and 5xx status errors as throttling.
func Throttling(err error) bool {
	code, ok := statusOf(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500 && code < 600)
}

// Config controls Do.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ThrottleDelay is the fixed pause after a 429.
	ThrottleDelay time.Duration
	Multiplier    float64
	Jitter        bool
	Classify      Classifier
	Log           zerolog.Logger
}

// DefaultConfig returns a config suited to chat API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		ThrottleDelay: time.Second,
		Multiplier:    2,
		Jitter:        true,
		Classify:      Throttling,
		Log:           zerolog.Nop(),
	}
}

// Do calls fn until it succeeds, returns a FatalError, ctx ends or the
// attempts run out. lim may be nil.
func Do(ctx context.Context, lim *AdaptiveLimiter, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Classify == nil {
		cfg.Classify = Throttling
	}

	delay := cfg.InitialDelay
	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Log.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal.Err
		}
		last = err

		throttled := cfg.Classify(err)
		if throttled && lim != nil {
			lim.Throttled()
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if code, ok := statusOf(err); ok && code == http.StatusTooManyRequests {
			wait = cfg.ThrottleDelay
		} else if cfg.Jitter {
			wait = jitter(delay)
		}
		cfg.Log.Warn().Err(err).Int("attempt", attempt).Bool("throttled", throttled).Dur("wait", wait).Msg("call failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, last)
}

// jitter adds up to 25% to d.
func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}

func statusOf(err error) (int, bool) {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode(), true
	}
	return 0, false
}
