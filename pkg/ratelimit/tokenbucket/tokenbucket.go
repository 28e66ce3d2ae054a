// Package tokenbucket implements the classical token-bucket algorithm as a
// single atomic read-modify-write against the shared storage adapter. There
// is no local cache tier here: the state is cheap to read, and the refill
// math has no per-instance memory worth short-circuiting.
package tokenbucket

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
)

// tokenBucketScript mirrors storage/redis's script byte-for-byte in
// contract (five args, one key, {allowed, tokens_after}), used whenever the
// configured Storage does not implement storage.TokenBucketStore directly.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local data = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(data[1])
local last_refill = tonumber(data[2])
if tokens == nil then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('PEXPIRE', key, ttl_ms)

return {allowed, tostring(tokens)}
`

// Config mirrors the fields of pkg/ratelimit.Config this algorithm needs.
type Config struct {
	Capacity   int64
	Window     time.Duration
	RefillRate float64 // permits per second
	KeyPrefix  string
}

// Limiter is the token-bucket algorithm over a shared Storage.
type Limiter struct {
	store       storage.Storage
	capacity    float64
	refillPerMs float64
	ttl         time.Duration
	keyPrefix   string
	sink        metrics.Sink
}

// New constructs a token-bucket limiter. cfg is assumed already validated
// by the caller (pkg/ratelimit.Config.Validate).
func New(store storage.Storage, cfg Config, sink metrics.Sink) *Limiter {
	return &Limiter{
		store:       store,
		capacity:    float64(cfg.Capacity),
		refillPerMs: cfg.RefillRate / 1000.0,
		ttl:         2 * cfg.Window,
		keyPrefix:   cfg.KeyPrefix,
		sink:        sink,
	}
}

func (l *Limiter) bucketKey(key string) string {
	return "tb:" + l.keyPrefix + key
}

func (l *Limiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	return l.TryAcquireN(ctx, key, 1)
}

func (l *Limiter) TryAcquireN(ctx context.Context, key string, permits int64) (bool, error) {
	if permits <= 0 {
		return false, apperrors.New(apperrors.CodeInvalidArgument, "permits must be positive", nil)
	}
	if float64(permits) > l.capacity {
		// Infeasible regardless of bucket state; never touch storage.
		l.sink.IncrTokenBucketRejected(ctx, key)
		return false, nil
	}

	nowMs := time.Now().UnixMilli()
	ttlMs := l.ttl.Milliseconds()
	bucketKey := l.bucketKey(key)

	var allowed bool
	var err error

	if tbs, ok := l.store.(storage.TokenBucketStore); ok {
		allowed, _, err = tbs.ApplyTokenBucket(ctx, bucketKey, l.capacity, l.refillPerMs, float64(permits), nowMs, ttlMs)
	} else {
		var raw interface{}
		raw, err = l.store.EvalScript(ctx, tokenBucketScript, []string{bucketKey},
			[]interface{}{l.capacity, l.refillPerMs, float64(permits), nowMs, ttlMs})
		if err == nil {
			allowed, err = parseScriptResult(raw)
		}
	}
	if err != nil {
		return false, err
	}

	if allowed {
		l.sink.IncrTokenBucketAllowed(ctx, key)
	} else {
		l.sink.IncrTokenBucketRejected(ctx, key)
	}
	return allowed, nil
}

func parseScriptResult(raw interface{}) (bool, error) {
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2 {
		return false, apperrors.New(apperrors.CodeInternal, "unexpected token bucket script result shape", nil)
	}
	switch v := vals[0].(type) {
	case int64:
		return v == 1, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, apperrors.New(apperrors.CodeInternal, "non-numeric allowed flag from script", err)
		}
		return n == 1, nil
	default:
		return false, apperrors.New(apperrors.CodeInternal, "unexpected allowed flag type from script", nil)
	}
}

// AvailablePermits reads the stored tokens field advisory-only: it does not
// apply refill since the last write, so it may understate true capacity.
// If the store does not expose PeekTokens, -1 is returned (uncertain).
func (l *Limiter) AvailablePermits(ctx context.Context, key string) (int64, error) {
	tbs, ok := l.store.(storage.TokenBucketStore)
	if !ok {
		return -1, nil
	}
	tokens, ok, err := tbs.PeekTokens(ctx, l.bucketKey(key))
	if err != nil {
		return -1, err
	}
	if !ok {
		return int64(l.capacity), nil
	}
	return int64(tokens), nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.bucketKey(key))
}
