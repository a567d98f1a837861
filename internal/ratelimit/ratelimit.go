// Package ratelimit provides the concurrency fabric shared across external
// service calls: a sliding-window RPS limiter, per-service concurrency caps,
// jittered retry with backoff, and the batch-wide unhealthy flag.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
)

// Window is a sliding-window RPS limiter: at most N acquires are allowed in
// any rolling one-second interval. Unlike a token bucket, it never lets a
// burst spend ahead of the window; Acquire blocks until the oldest
// timestamp in the window has aged past one second.
type Window struct {
	mu        sync.Mutex
	rps       int
	timestamps []time.Time
	now       func() time.Time
}

// NewWindow builds a Window admitting at most rps acquires per second.
// rps<=0 disables limiting (Acquire always returns immediately).
func NewWindow(rps int) *Window {
	return &Window{rps: rps, timestamps: make([]time.Time, 0, rps), now: time.Now}
}

// Acquire blocks, if necessary, until admitting one more call keeps the
// window within its RPS budget, then records the call.
func (w *Window) Acquire(ctx context.Context) error {
	if w.rps <= 0 {
		return nil
	}
	for {
		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.timestamps) < w.rps {
			w.timestamps = append(w.timestamps, now)
			w.mu.Unlock()
			return nil
		}
		oldest := w.timestamps[0]
		w.mu.Unlock()
		wait := oldest.Add(time.Second).Sub(now)
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(w.timestamps) && w.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = w.timestamps[i:]
	}
}

// Caps bundles the two per-service concurrency semaphores and the search
// RPS window described in spec §5.
type Caps struct {
	Search *semaphore.Weighted
	LLM    *semaphore.Weighted
	SearchRPS *Window
}

// NewCaps builds Caps from the default or configured limits.
func NewCaps(searchConcurrency, llmConcurrency, searchRPS int) *Caps {
	return &Caps{
		Search:    semaphore.NewWeighted(int64(searchConcurrency)),
		LLM:       semaphore.NewWeighted(int64(llmConcurrency)),
		SearchRPS: NewWindow(searchRPS),
	}
}

// AcquireSearch blocks until both the RPS window and the search semaphore
// admit one more call, returning a release func to call when the call
// completes.
func (c *Caps) AcquireSearch(ctx context.Context) (func(), error) {
	if err := c.SearchRPS.Acquire(ctx); err != nil {
		return nil, err
	}
	if err := c.Search.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.Search.Release(1) }, nil
}

// AcquireLLM blocks until the LLM concurrency semaphore admits one more
// call, returning a release func.
func (c *Caps) AcquireLLM(ctx context.Context) (func(), error) {
	if err := c.LLM.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.LLM.Release(1) }, nil
}

// RetryableStatus reports whether an HTTP status code is in the retry set
// {429, 500, 502, 503, 504}. Any other 4xx is not retried.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ErrNonRetryable wraps a terminal error a retry loop should not retry,
// e.g. a 4xx other than 429.
var ErrNonRetryable = errors.New("ratelimit: non-retryable error")

// RetryConfig mirrors spec §5's retry policy: up to MaxRetries retries
// after the first attempt, delay BackoffBase^(attempt-1) + uniform(0.05, 0.35)s.
type RetryConfig struct {
	MaxRetries int
	BackoffBase float64
}

// DefaultRetryConfig matches MAX_RETRIES=4, BACKOFF_BASE=1.6.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 4, BackoffBase: 1.6}
}

// jitteredBackoff implements backoff.BackOff with spec §5's exact delay
// shape: BACKOFF_BASE^(attempt-1) + uniform(0.05, 0.35)s.
type jitteredBackoff struct {
	base    float64
	attempt int
}

func (j *jitteredBackoff) NextBackOff() time.Duration {
	j.attempt++
	exp := 1.0
	for i := 1; i < j.attempt; i++ {
		exp *= j.base
	}
	jitter := 0.05 + rand.Float64()*0.30
	return time.Duration((exp + jitter) * float64(time.Second))
}

func (j *jitteredBackoff) Reset() { j.attempt = 0 }

// Do runs fn up to cfg.MaxRetries+1 times (one initial attempt plus
// retries), sleeping the jittered exponential delay between attempts while
// fn returns a retryable error. fn must return an error wrapping
// ErrNonRetryable (or any error that is not judged retryable by isRetryable)
// to stop immediately without further attempts.
func Do(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(&jitteredBackoff{base: cfg.BackoffBase}, uint64(cfg.MaxRetries)), ctx)

	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNonRetryable) || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, b)
	if permErr, ok := err.(*backoff.PermanentError); ok {
		return permErr.Err
	}
	return err
}

// Unhealthy is a single-writer, many-reader flag with a cancellation
// signal: once Set is called, IsSet reports true for every subsequent
// reader and Done's channel is closed so outstanding work can abort at
// its next suspension point.
type Unhealthy struct {
	once   sync.Once
	ch     chan struct{}
	mu     sync.Mutex
	reason error
}

// NewUnhealthy builds an unset Unhealthy flag.
func NewUnhealthy() *Unhealthy {
	return &Unhealthy{ch: make(chan struct{})}
}

// Set marks the flag unhealthy (idempotent) and records the triggering
// reason from the first call.
func (u *Unhealthy) Set(reason error) {
	u.once.Do(func() {
		u.mu.Lock()
		u.reason = reason
		u.mu.Unlock()
		close(u.ch)
	})
}

// IsSet reports whether Set has been called.
func (u *Unhealthy) IsSet() bool {
	select {
	case <-u.ch:
		return true
	default:
		return false
	}
}

// Reason returns the error passed to the first Set call, or nil.
func (u *Unhealthy) Reason() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reason
}

// Done returns a channel closed when the flag becomes unhealthy, suitable
// for use in a select alongside ctx.Done().
func (u *Unhealthy) Done() <-chan struct{} {
	return u.ch
}

// NewLLMBreaker builds a gobreaker-backed circuit breaker for a named
// external service: once 3 consecutive calls fail it trips open and sets
// the shared Unhealthy flag, so a single transient error doesn't abort the
// batch but sustained infrastructure failure does.
func NewLLMBreaker(name string, unhealthy *Unhealthy) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				unhealthy.Set(fmt.Errorf("ratelimit: %s circuit breaker opened after repeated failures", name))
			}
		},
	})
}
