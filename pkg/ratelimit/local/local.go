// Package local provides single-instance, no-storage implementations of the
// same public contract pkg/ratelimit.Limiter exposes. They hold no
// cross-instance coherence whatsoever; they exist as a dependency-free
// baseline for tests and for deployments that genuinely run one process.
package local

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
)

// TokenBucket is an in-process token-bucket limiter: no storage round trip,
// no cross-instance coherence, guarded purely by an in-memory mutex.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket constructs a token bucket starting full.
func NewTokenBucket(capacity int64, refillRatePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRatePerSecond,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) TryAcquire(ctx context.Context, key string) (bool, error) {
	return tb.TryAcquireN(ctx, key, 1)
}

func (tb *TokenBucket) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, apperrors.New(apperrors.CodeInvalidArgument, "permits must be positive", nil)
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens < float64(permits) {
		return false, nil
	}
	tb.tokens -= float64(permits)
	return true, nil
}

func (tb *TokenBucket) AvailablePermits(ctx context.Context, key string) (int64, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return int64(tb.tokens), nil
}

func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
	return nil
}

// SlidingWindow is an in-process sliding-window limiter backed by a literal
// timestamp log rather than the distributed core's two-bucket
// approximation — exact, at the cost of O(limit) memory per key.
type SlidingWindow struct {
	mu       sync.Mutex
	requests []time.Time
	limit    int64
	window   time.Duration
}

// NewSlidingWindow constructs an empty sliding-window limiter.
func NewSlidingWindow(limit int64, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window}
}

func (sw *SlidingWindow) cleanupLocked() {
	threshold := time.Now().Add(-sw.window)
	valid := sw.requests[:0]
	for _, t := range sw.requests {
		if t.After(threshold) {
			valid = append(valid, t)
		}
	}
	sw.requests = valid
}

func (sw *SlidingWindow) TryAcquire(ctx context.Context, key string) (bool, error) {
	return sw.TryAcquireN(ctx, key, 1)
}

func (sw *SlidingWindow) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, apperrors.New(apperrors.CodeInvalidArgument, "permits must be positive", nil)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanupLocked()
	if int64(len(sw.requests))+permits > sw.limit {
		return false, nil
	}
	now := time.Now()
	for i := int64(0); i < permits; i++ {
		sw.requests = append(sw.requests, now)
	}
	return true, nil
}

func (sw *SlidingWindow) AvailablePermits(ctx context.Context, key string) (int64, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.cleanupLocked()
	remaining := sw.limit - int64(len(sw.requests))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = nil
	return nil
}

// Keyed fans a single-key Limiter factory out across many keys, each with
// its own independent limiter state, lazily created on first use.
type Keyed struct {
	mu       sync.RWMutex
	limiters map[string]perKeyLimiter
	factory  func() perKeyLimiter
}

// perKeyLimiter is the subset of pkg/ratelimit.Limiter that ignores its key
// argument (each instance already belongs to exactly one key).
type perKeyLimiter interface {
	TryAcquireN(ctx context.Context, key string, permits int64) (bool, error)
	AvailablePermits(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// NewKeyedTokenBucket builds a Keyed limiter that lazily allocates one
// TokenBucket per distinct key.
func NewKeyedTokenBucket(capacity int64, refillRatePerSecond float64) *Keyed {
	return &Keyed{
		limiters: make(map[string]perKeyLimiter),
		factory:  func() perKeyLimiter { return NewTokenBucket(capacity, refillRatePerSecond) },
	}
}

// NewKeyedSlidingWindow builds a Keyed limiter that lazily allocates one
// SlidingWindow per distinct key.
func NewKeyedSlidingWindow(limit int64, window time.Duration) *Keyed {
	return &Keyed{
		limiters: make(map[string]perKeyLimiter),
		factory:  func() perKeyLimiter { return NewSlidingWindow(limit, window) },
	}
}

func (k *Keyed) getOrCreate(key string) perKeyLimiter {
	k.mu.RLock()
	l, ok := k.limiters[key]
	k.mu.RUnlock()
	if ok {
		return l
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok = k.limiters[key]; ok {
		return l
	}
	l = k.factory()
	k.limiters[key] = l
	return l
}

func (k *Keyed) TryAcquire(ctx context.Context, key string) (bool, error) {
	return k.getOrCreate(key).TryAcquireN(ctx, key, 1)
}

func (k *Keyed) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	return k.getOrCreate(key).TryAcquireN(ctx, key, permits)
}

func (k *Keyed) AvailablePermits(ctx context.Context, key string) (int64, error) {
	return k.getOrCreate(key).AvailablePermits(ctx, key)
}

func (k *Keyed) Reset(ctx context.Context, key string) error {
	return k.getOrCreate(key).Reset(ctx, key)
}

// ratelimit.Limiter is satisfied structurally by every exported type here
// (TryAcquire/TryAcquireN/AvailablePermits/Reset); this package intentionally
// does not import pkg/ratelimit to avoid coupling the dependency-free
// baseline to the distributed core's package.
