package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_AllowAndEvict(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewSlidingWindowLimiter(2, time.Second)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "third call within window should be rejected")

	// Advance past the window: stale timestamps evicted, calls allowed again
	now = now.Add(1100 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.Len(t, l.calls, 1, "evict should drop stale timestamps")
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewCircuitBreaker(3, 30*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}

	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "open breaker should reject calls")
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewCircuitBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())

	// Cooldown elapses independent of request volume
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow(), "breaker should allow a probe after cooldown")
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Successful probe closes
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewCircuitBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, BreakerHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestGuard_RetriesTransientThenSucceeds(t *testing.T) {
	g := New(WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGuard_PermanentErrorNotRetried(t *testing.T) {
	g := New(WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	calls := 0
	wantErr := errors.New("malformed payload")
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return Permanent(wantErr)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestGuard_AttemptsExhausted(t *testing.T) {
	g := New(WithMaxRetries(2), WithRetryDelay(time.Millisecond))

	calls := 0
	err := g.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "attempts exhausted")
}

func TestGuard_ContextCancelledDuringBackoff(t *testing.T) {
	g := New(WithMaxRetries(5), WithRetryDelay(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := g.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
