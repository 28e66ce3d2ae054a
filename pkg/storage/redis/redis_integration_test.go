package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	storagepkg "github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
	redisstorage "github.com/chris-alexander-pop/ratelimitcore/pkg/storage/redis"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedisStorageAgainstRealContainer exercises the adapter against an
// actual Redis server. Skipped under -short since it needs Docker.
func TestRedisStorageAgainstRealContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	addr := strings.TrimPrefix(connStr, "redis://")
	host, port, ok := strings.Cut(addr, ":")
	require.True(t, ok)

	store, err := redisstorage.New(storagepkg.Config{
		Host:          host,
		Port:          port,
		PoolMax:       16,
		PoolIdleMin:   2,
		BorrowTimeout: 2 * time.Second,
		RetryAttempts: 3,
	}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.True(t, store.Available(ctx))

	v, err := store.IncrAndExpire(ctx, "it:counter", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = store.IncrAndExpire(ctx, "it:counter", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	ok2, err := store.CompareAndSet(ctx, "it:counter", 2, 10)
	require.NoError(t, err)
	require.True(t, ok2)

	got, err := store.Get(ctx, "it:counter")
	require.NoError(t, err)
	require.Equal(t, int64(10), got)

	allowed, tokensAfter, err := store.ApplyTokenBucket(ctx, "it:tb", 5, 0.01, 5, time.Now().UnixMilli(), 2000)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, float64(0), tokensAfter)
}
