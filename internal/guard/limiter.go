// Package guard wraps outbound provider calls with a sliding-window rate
// limiter, a three-state circuit breaker, and bounded retries. State is
// per-process, in-memory, and self-pruning.
package guard

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowLimiter allows at most maxCalls within a trailing window.
// Stale timestamps are evicted on each check to bound memory.
type SlidingWindowLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	maxCalls int
	calls    []time.Time
	now      func() time.Time // injectable clock for tests
}

// NewSlidingWindowLimiter creates a limiter for maxCalls per window.
func NewSlidingWindowLimiter(maxCalls int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		window:   window,
		maxCalls: maxCalls,
		now:      time.Now,
	}
}

// Allow reports whether another call may proceed right now, and records it
// if so.
func (l *SlidingWindowLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.calls) >= l.maxCalls {
		return false
	}
	l.calls = append(l.calls, now)
	return true
}

// Wait blocks until a call slot is available or the context is done.
// Implemented as an explicit bounded loop, not recursion.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryAfter()):
		}
	}
}

// retryAfter returns how long until the oldest recorded call leaves the window.
func (l *SlidingWindowLimiter) retryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.calls) == 0 {
		return 10 * time.Millisecond
	}
	wait := l.window - l.now().Sub(l.calls[0])
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait
}

// evict drops timestamps older than the window. Caller holds the lock.
func (l *SlidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(l.calls); i++ {
		if l.calls[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
