package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrAndExpireAccumulates(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	v, err := s.IncrAndExpire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrAndExpire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestIncrAndExpireResetsAfterTTL(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.IncrAndExpire(ctx, "k", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	v, err := s.IncrAndExpire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestGetAbsentIsZero(t *testing.T) {
	s := memory.New()
	v, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestCompareAndSetDetectsMismatch(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 5, time.Second))

	ok, err := s.CompareAndSet(ctx, "k", 4, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSet(ctx, "k", 5, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(10), v)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", 1, time.Second))
	require.NoError(t, s.Delete(ctx, "k"))

	v, _ := s.Get(ctx, "k")
	assert.Equal(t, int64(0), v)
}

func TestApplyTokenBucketSeedsFullOnFirstUse(t *testing.T) {
	s := memory.New()
	allowed, tokensAfter, err := s.ApplyTokenBucket(context.Background(), "tb", 50, 0.01, 50, 0, 2000)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, float64(0), tokensAfter)
}

func TestApplyTokenBucketDeniesWhenInsufficient(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	_, _, err := s.ApplyTokenBucket(ctx, "tb", 50, 0.01, 50, 0, 2000)
	require.NoError(t, err)

	allowed, _, err := s.ApplyTokenBucket(ctx, "tb", 50, 0.01, 1, 1, 2000)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAvailableIsAlwaysTrue(t *testing.T) {
	s := memory.New()
	assert.True(t, s.Available(context.Background()))
}
