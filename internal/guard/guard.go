package guard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Default configuration values.
const (
	DefaultMaxCalls    = 20
	DefaultWindow      = 1 * time.Second
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Guard.Do will not retry it (4xx-class and
// malformed-data failures).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Guard combines rate limiting, circuit breaking, and bounded retries with
// exponential backoff and jitter for one upstream dependency.
type Guard struct {
	limiter     *SlidingWindowLimiter
	breaker     *CircuitBreaker
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// Option configures a Guard.
type Option func(*Guard)

// WithRateLimit sets the sliding-window rate limit.
func WithRateLimit(maxCalls int, window time.Duration) Option {
	return func(g *Guard) {
		g.limiter = NewSlidingWindowLimiter(maxCalls, window)
	}
}

// WithBreaker sets the circuit breaker thresholds.
func WithBreaker(maxFailures int, cooldown time.Duration) Option {
	return func(g *Guard) {
		g.breaker = NewCircuitBreaker(maxFailures, cooldown)
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(g *Guard) {
		g.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Guard) {
		g.retryDelay = d
	}
}

// New creates a Guard with defaults, overridden by opts.
func New(opts ...Option) *Guard {
	g := &Guard{
		limiter:     NewSlidingWindowLimiter(DefaultMaxCalls, DefaultWindow),
		breaker:     NewCircuitBreaker(DefaultMaxFailures, DefaultCooldown),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker exposes the breaker state for observability.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Do executes fn under the limiter and breaker, retrying transient
// failures with exponential backoff and jitter up to the bounded attempt
// count. Permanent errors and context cancellation end retries immediately.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := g.retryDelay
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			// Full jitter on the backoff delay
			jittered := time.Duration(rand.Int63n(int64(delay) + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			delay = time.Duration(float64(delay) * g.backoffMult)
			if delay > g.maxDelay {
				delay = g.maxDelay
			}
		}

		if !g.breaker.Allow() {
			lastErr = fmt.Errorf("%s: %w", op, ErrBreakerOpen)
			continue
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		if IsPermanent(err) {
			// Client-side failure, not an upstream health problem
			return fmt.Errorf("%s: %w", op, err)
		}

		g.breaker.RecordFailure()
		lastErr = err
	}

	return fmt.Errorf("%s: attempts exhausted: %w", op, lastErr)
}
