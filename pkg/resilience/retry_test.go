package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/resilience"
	"github.com/stretchr/testify/assert"
)

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	cfg := resilience.RetryConfig{
		MaxAttempts: 3,
		BackoffFunc: resilience.LinearBackoff(time.Millisecond),
		RetryIf:     func(err error) bool { return err != nil },
	}
	boom := errors.New("boom")

	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsRetryIf(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid argument")
	cfg := resilience.RetryConfig{
		MaxAttempts: 5,
		BackoffFunc: resilience.LinearBackoff(time.Millisecond),
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	}

	err := resilience.Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestLinearBackoffScalesWithAttempt(t *testing.T) {
	backoff := resilience.LinearBackoff(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, backoff(1))
	assert.Equal(t, 30*time.Millisecond, backoff(3))
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		t.Fatal("should not be called with an already-cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
