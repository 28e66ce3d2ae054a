// Package memory is an in-process storage.Storage used by tests and local
// development. It has no cross-instance coherence and exists purely so the
// limiters can be exercised without a running Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
)

type entry struct {
	value     int64
	expiresAt time.Time
	hasTTL    bool
}

func (e entry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

type bucket struct {
	tokens     float64
	lastRefill int64
	expiresAt  time.Time
}

// Storage is a mutex-guarded map satisfying storage.Storage.
type Storage struct {
	mu      sync.Mutex
	items   map[string]entry
	buckets map[string]bucket
}

// New returns an empty in-process store.
func New() *Storage {
	return &Storage{items: make(map[string]entry), buckets: make(map[string]bucket)}
}

func (s *Storage) IncrAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	now := time.Now()
	if !ok || e.expired(now) {
		e = entry{}
	}
	e.value++
	e.expiresAt = now.Add(ttl)
	e.hasTTL = true
	s.items[key] = e
	return e.value, nil
}

func (s *Storage) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		return 0, nil
	}
	return e.value, nil
}

func (s *Storage) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = entry{value: value, expiresAt: time.Now().Add(ttl), hasTTL: ttl > 0}
	return nil
}

func (s *Storage) CompareAndSet(ctx context.Context, key string, expect, update int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.items[key]; ok && !e.expired(time.Now()) {
		current = e.value
	}
	if current != expect {
		return false, nil
	}
	e := s.items[key]
	e.value = update
	s.items[key] = e
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// EvalScript is not implemented generically (there is no embedded scripting
// engine here); callers that need the token-bucket atomic script against
// this store should use ApplyTokenBucket instead, which the tokenbucket
// package prefers when a Storage exposes it.
func (s *Storage) EvalScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error) {
	panic("memory.Storage does not support EvalScript; use ApplyTokenBucket")
}

// ApplyTokenBucket runs the same read-refill-compare-write procedure the
// Redis adapter executes via a Lua script, but natively in Go under the
// store's own mutex. It satisfies storage.TokenBucketStore.
func (s *Storage) ApplyTokenBucket(ctx context.Context, key string, capacity, refillRatePerMs, requested float64, nowMs, ttlMs int64) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	now := time.Now()
	if !ok || now.After(b.expiresAt) {
		b = bucket{tokens: capacity, lastRefill: nowMs}
	}

	elapsed := nowMs - b.lastRefill
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := b.tokens + float64(elapsed)*refillRatePerMs
	if tokens > capacity {
		tokens = capacity
	}

	allowed := tokens >= requested
	if allowed {
		tokens -= requested
	}

	s.buckets[key] = bucket{
		tokens:     tokens,
		lastRefill: nowMs,
		expiresAt:  now.Add(time.Duration(ttlMs) * time.Millisecond),
	}

	return allowed, tokens, nil
}

func (s *Storage) PeekTokens(ctx context.Context, key string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok || time.Now().After(b.expiresAt) {
		return 0, false, nil
	}
	return b.tokens, true, nil
}

// TokenBucketSnapshot returns the raw tokens field for key, for tests.
func (s *Storage) TokenBucketSnapshot(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	return b.tokens, ok
}

func (s *Storage) Available(ctx context.Context) bool {
	return true
}

// Snapshot returns the raw integer value stored for key, bypassing TTL
// checks, primarily for assertions in tests.
func (s *Storage) Snapshot(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	return e.value, ok
}

var _ storage.Storage = (*Storage)(nil)
var _ storage.TokenBucketStore = (*Storage)(nil)
