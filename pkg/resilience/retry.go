package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry executes the function with automatic retries, sleeping between
// attempts per cfg.BackoffFunc when set and exponential backoff otherwise.
func Retry(ctx context.Context, cfg RetryConfig, fn Executor) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return err != nil }
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		// Check context before each attempt
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Execute
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		// Check if we should retry
		if !cfg.RetryIf(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		var sleepDuration time.Duration
		if cfg.BackoffFunc != nil {
			sleepDuration = cfg.BackoffFunc(attempt + 1)
		} else {
			sleepDuration = ExponentialBackoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff, cfg.Jitter)
		}

		// Sleep with context cancellation support
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepDuration):
		}
	}

	return lastErr
}

// RetryWithCircuitBreaker combines retry and circuit breaker.
func RetryWithCircuitBreaker(ctx context.Context, cb *CircuitBreaker, retryCfg RetryConfig, fn Executor) error {
	return Retry(ctx, retryCfg, func(ctx context.Context) error {
		return cb.Execute(ctx, fn)
	})
}

// ExponentialBackoff calculates the exponential backoff duration for the
// given (0-indexed) attempt. The interval settings are held in a
// cenkalti/backoff/v5 ExponentialBackOff; the doubling and the cap are
// computed by the loop below.
func ExponentialBackoff(attempt int, base time.Duration, max time.Duration, jitter float64) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2.0
	b.RandomizationFactor = 0

	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if d > b.MaxInterval {
			d = b.MaxInterval
			break
		}
	}

	if jitter > 0 {
		d = time.Duration(float64(d) * (1.0 + (rand.Float64()*2-1)*jitter))
	}
	if d > max {
		return max
	}
	return d
}

// LinearBackoff returns a BackoffFunc that waits base*attempt before each
// retry (the wait before attempt N is base*N), with no cap or jitter. Used
// instead of ExponentialBackoff where a strictly linear retry cadence is
// required.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// WithTimeout wraps a function with a timeout.
func WithTimeout(timeout time.Duration, fn Executor) Executor {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx)
	}
}
