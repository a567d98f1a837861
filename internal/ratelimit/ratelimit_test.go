package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWindow_AdmitsUpToRPSWithoutBlocking(t *testing.T) {
	w := NewWindow(3)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := w.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected first RPS acquires to be immediate")
	}
}

func TestWindow_ZeroDisablesLimiting(t *testing.T) {
	w := NewWindow(0)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := w.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestWindow_BlocksPastRPSUntilWindowAges(t *testing.T) {
	w := NewWindow(1)
	w.now = func() time.Time { return time.Unix(0, 0) }
	ctx := context.Background()
	if err := w.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = w.Acquire(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second acquire should have blocked with a frozen clock")
	case <-time.After(50 * time.Millisecond):
	}

	w.mu.Lock()
	w.now = func() time.Time { return time.Unix(2, 0) }
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("second acquire never unblocked after window aged out")
	}
}

func TestDo_RetriesRetryableThenSucceeds(t *testing.T) {
	var calls int32
	cfg := RetryConfig{MaxRetries: 4, BackoffBase: 1.0}
	err := Do(context.Background(), cfg, func(error) bool { return true }, func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsImmediatelyOnNonRetryable(t *testing.T) {
	var calls int32
	cfg := DefaultRetryConfig()
	err := Do(context.Background(), cfg, func(error) bool { return false }, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsMaxRetries(t *testing.T) {
	var calls int32
	cfg := RetryConfig{MaxRetries: 2, BackoffBase: 1.0}
	err := Do(context.Background(), cfg, func(error) bool { return true }, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 calls, got %d", calls)
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, s := range []int{429, 500, 502, 503, 504} {
		if !RetryableStatus(s) {
			t.Fatalf("expected %d to be retryable", s)
		}
	}
	for _, s := range []int{400, 401, 403, 404} {
		if RetryableStatus(s) {
			t.Fatalf("expected %d to not be retryable", s)
		}
	}
}

func TestNewLLMBreaker_TripsUnhealthyAfterConsecutiveFailures(t *testing.T) {
	u := NewUnhealthy()
	cb := NewLLMBreaker("test-service", u)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		if err != boom {
			t.Fatalf("call %d: expected underlying error to propagate, got %v", i, err)
		}
	}
	if !u.IsSet() {
		t.Fatalf("expected breaker to trip Unhealthy after 3 consecutive failures")
	}
}

func TestNewLLMBreaker_SingleFailureDoesNotTripUnhealthy(t *testing.T) {
	u := NewUnhealthy()
	cb := NewLLMBreaker("test-service", u)

	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("transient") })
	if u.IsSet() {
		t.Fatalf("expected a single failure to leave the breaker closed")
	}
}

func TestUnhealthy_SetIsIdempotentAndBroadcasts(t *testing.T) {
	u := NewUnhealthy()
	if u.IsSet() {
		t.Fatalf("expected initially healthy")
	}
	first := errors.New("llm preflight failed")
	u.Set(first)
	u.Set(errors.New("second call ignored"))
	if !u.IsSet() {
		t.Fatalf("expected unhealthy after Set")
	}
	if u.Reason() != first {
		t.Fatalf("expected first reason to stick, got %v", u.Reason())
	}
	select {
	case <-u.Done():
	default:
		t.Fatalf("expected Done channel closed")
	}
}
