// Package slidingwindow implements the sliding-window counter algorithm:
// two adjacent fixed buckets of width window, blended by a linear weight,
// approximating a true sliding log without the memory cost of one.
package slidingwindow

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/localcache"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
)

// Limiter is the sliding-window counter, built on a shared Storage and an
// optional local decision cache.
type Limiter struct {
	store      storage.Storage
	cache      *localcache.Cache
	cacheOn    bool
	maxPermits int64
	window     time.Duration
	keyPrefix  string
	sink       metrics.Sink
}

// Config mirrors the fields of this limiter that matter to its algorithm;
// pkg/ratelimit.New constructs one of these from its own Config.
type Config struct {
	MaxPermits        int64
	Window            time.Duration
	LocalCacheEnabled bool
	LocalCacheTTL     time.Duration
	KeyPrefix         string
}

// New constructs a sliding-window limiter. cfg is assumed already validated
// by the caller (pkg/ratelimit.Config.Validate).
func New(store storage.Storage, cfg Config, sink metrics.Sink) *Limiter {
	l := &Limiter{
		store:      store,
		cacheOn:    cfg.LocalCacheEnabled,
		maxPermits: cfg.MaxPermits,
		window:     cfg.Window,
		keyPrefix:  cfg.KeyPrefix,
		sink:       sink,
	}
	if cfg.LocalCacheEnabled {
		l.cache = localcache.New(localcache.Config{Size: 10_000, TTL: cfg.LocalCacheTTL})
	}
	return l
}

func (l *Limiter) windowStartMs(nowMs int64) int64 {
	windowMs := l.window.Milliseconds()
	return (nowMs / windowMs) * windowMs
}

func (l *Limiter) bucketKey(key string, windowStartMs int64) string {
	return "rl:" + l.keyPrefix + key + ":" + strconv.FormatInt(windowStartMs, 10)
}

// estimate computes the weighted two-bucket estimate for key at nowMs,
// returning the estimated count plus the current bucket's own key (the one
// a subsequent incr_and_expire would target).
func (l *Limiter) estimate(ctx context.Context, key string, nowMs int64) (estimated int64, currKey string, err error) {
	windowMs := l.window.Milliseconds()
	currStart := l.windowStartMs(nowMs)
	prevStart := currStart - windowMs

	currKey = l.bucketKey(key, currStart)
	prevKey := l.bucketKey(key, prevStart)

	currCount, err := l.store.Get(ctx, currKey)
	if err != nil {
		return 0, currKey, err
	}
	prevCount, err := l.store.Get(ctx, prevKey)
	if err != nil {
		return 0, currKey, err
	}

	percentInCurr := float64(nowMs%windowMs) / float64(windowMs)
	prevWeight := 1 - percentInCurr
	estimatedF := float64(prevCount)*prevWeight + float64(currCount)
	return int64(estimatedF), currKey, nil
}

func (l *Limiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	return l.TryAcquireN(ctx, key, 1)
}

func (l *Limiter) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, apperrors.New(apperrors.CodeInvalidArgument, "permits must be positive", nil)
	}

	nowMs := time.Now().UnixMilli()

	// Step 1: short-circuit on a known-saturated key.
	if l.cacheOn {
		if cached, ok := l.cache.Probe(key); ok && cached >= l.maxPermits {
			l.sink.IncrCacheHit(ctx, key)
			l.sink.IncrRejected(ctx, key)
			return false, nil
		}
	}

	// Step 2: weighted estimate from the two live buckets.
	estimated, currKey, err := l.estimate(ctx, key, nowMs)
	if err != nil {
		return false, err
	}

	// Step 3: reject without mutating storage if the estimate alone rules
	// the request out.
	if estimated+permits > l.maxPermits {
		if l.cacheOn {
			l.cache.Update(key, estimated)
		}
		l.sink.IncrRejected(ctx, key)
		return false, nil
	}

	// Step 4: commit the increment; the final comparison against the
	// authoritative new_count protects this caller even if a concurrent
	// instance raced us between steps 2 and 4.
	newCount, err := l.store.IncrAndExpire(ctx, currKey, l.window)
	if err != nil {
		return false, err
	}
	if l.cacheOn {
		l.cache.Update(key, newCount)
	}

	allowed := newCount <= l.maxPermits
	if allowed {
		l.sink.IncrAllowed(ctx, key)
	} else {
		l.sink.IncrRejected(ctx, key)
	}
	return allowed, nil
}

// AvailablePermits always performs a fresh read (no cache probe), since
// callers of this method expect current, not advisory, state.
func (l *Limiter) AvailablePermits(ctx context.Context, key string) (int64, error) {
	nowMs := time.Now().UnixMilli()
	estimated, _, err := l.estimate(ctx, key, nowMs)
	if err != nil {
		return 0, err
	}
	remaining := l.maxPermits - estimated
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	nowMs := time.Now().UnixMilli()
	windowMs := l.window.Milliseconds()
	currStart := l.windowStartMs(nowMs)
	prevStart := currStart - windowMs

	if err := l.store.Delete(ctx, l.bucketKey(key, currStart)); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, l.bucketKey(key, prevStart)); err != nil {
		return err
	}
	if l.cacheOn {
		l.cache.Invalidate(key)
	}
	return nil
}
