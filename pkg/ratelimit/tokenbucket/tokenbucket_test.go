package tokenbucket

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(capacity int64, refillPerSecond float64) (*Limiter, *memory.Storage) {
	store := memory.New()
	l := New(store, Config{Capacity: capacity, Window: time.Second, RefillRate: refillPerSecond}, metrics.NewNoop())
	return l, store
}

func TestTryAcquireDrainsThenRejectsOnEmptyBucket(t *testing.T) {
	l, _ := newLimiter(3, 1) // slow refill, won't replenish meaningfully within the test
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.TryAcquire(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok, "burst request %d should drain the full bucket", i+1)
	}

	ok, err := l.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "the bucket should be empty after draining capacity")
}

func TestTryAcquireRefillsOverTime(t *testing.T) {
	l, _ := newLimiter(1, 1000) // 1000 tokens/sec == 1/ms, fast enough to observe in a short sleep
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.TryAcquire(ctx, "user-2")
	require.NoError(t, err)
	require.False(t, ok, "bucket should be momentarily empty")

	time.Sleep(20 * time.Millisecond)

	ok, err = l.TryAcquire(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok, "bucket should have refilled after waiting")
}

func TestTryAcquireNRejectsRequestExceedingCapacityWithoutTouchingStorage(t *testing.T) {
	l, store := newLimiter(5, 1)
	ctx := context.Background()

	ok, err := l.TryAcquireN(ctx, "user-3", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	_, seen := store.TokenBucketSnapshot(l.bucketKey("user-3"))
	assert.False(t, seen, "a request that can never be satisfied must not mutate bucket state")
}

func TestTryAcquireNRejectsNonPositivePermits(t *testing.T) {
	l, _ := newLimiter(5, 1)
	ctx := context.Background()

	ok, err := l.TryAcquireN(ctx, "user-4", 0)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.GetCode(err))
}

func TestResetRefillsBucketToCapacity(t *testing.T) {
	l, _ := newLimiter(2, 1)
	ctx := context.Background()

	require.True(t, mustAcquire(t, l, ctx, "user-5"))
	require.True(t, mustAcquire(t, l, ctx, "user-5"))
	ok, err := l.TryAcquire(ctx, "user-5")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "user-5"))

	ok, err = l.TryAcquire(ctx, "user-5")
	require.NoError(t, err)
	assert.True(t, ok, "after reset the bucket should be full again")
}

func TestAvailablePermitsReportsRemainingTokens(t *testing.T) {
	l, _ := newLimiter(4, 1)
	ctx := context.Background()

	remaining, err := l.AvailablePermits(ctx, "user-6")
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining, "an untouched bucket reports full capacity")

	require.True(t, mustAcquire(t, l, ctx, "user-6"))

	remaining, err = l.AvailablePermits(ctx, "user-6")
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)
}

func mustAcquire(t *testing.T, l *Limiter, ctx context.Context, key string) bool {
	t.Helper()
	ok, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	return ok
}
