// Package redis adapts go-redis/v9 to the storage.Storage contract.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/concurrency"
	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/logger"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/resilience"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// incrAndExpireScript makes INCR and EXPIRE indivisible with respect to a
// concurrent reader observing the counter before its TTL is applied.
var incrAndExpireScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return count
`)

// compareAndSetScript detects concurrent writers between the adapter's read
// and write by re-checking the value server-side before mutating it.
var compareAndSetScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '0' end
if tostring(current) ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// tokenBucketScript implements the token-bucket atomic script contract:
// five arguments (capacity, refill_rate_per_ms, requested, now_ms, ttl_ms),
// one key, returning {allowed (0|1), tokens_after}.
var tokenBucketScript = goredis.NewScript(`
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
`)

// Storage is a Redis-backed storage.Storage. Every operation is wrapped in
// the adapter's own retry policy (linear backoff, per-operation attempt
// budget) and gated by a semaphore bounding in-flight calls to the
// configured pool size, since go-redis's own pool blocks rather than fails
// fast on exhaustion.
type Storage struct {
	client        *goredis.Client
	id            string
	admission     *concurrency.Semaphore
	borrowTimeout time.Duration
	retryCfg      resilience.RetryConfig
	tracer        trace.Tracer
	sink          metrics.Sink
}

// New dials the store described by cfg and verifies connectivity. sink may
// be nil, in which case storage latency observations are discarded.
func New(cfg storage.Config, sink metrics.Sink) (*Storage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolMax,
		MinIdleConns: cfg.PoolIdleMin,
		MaxIdleConns: cfg.PoolIdleMax,
		PoolTimeout:  cfg.BorrowTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BorrowTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to connect to storage")
	}

	if sink == nil {
		sink = metrics.NewNoop()
	}

	return &Storage{
		client:        client,
		id:            uuid.New().String(),
		admission:     concurrency.NewSemaphore(int64(cfg.PoolMax)),
		borrowTimeout: cfg.BorrowTimeout,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			BackoffFunc: resilience.LinearBackoff(cfg.RetryBackoffUnit),
			RetryIf:     func(err error) bool { return err != nil },
		},
		tracer: otel.Tracer("pkg/storage/redis"),
		sink:   sink,
	}, nil
}

// withAdmission bounds how long a caller waits for a free admission slot to
// borrowTimeout, regardless of the deadline (if any) already on ctx — this
// is the "pool-level wait timeout" a caller with an undeadlined context
// (e.g. context.Background()) would otherwise never get.
func (s *Storage) withAdmission(ctx context.Context, fn func(ctx context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.borrowTimeout)
	defer cancel()

	if err := s.admission.Acquire(waitCtx, 1); err != nil {
		return apperrors.Wrap(err, "storage pool exhausted")
	}
	defer s.admission.Release(1)
	return fn(ctx)
}

func (s *Storage) retry(ctx context.Context, op string, fn resilience.Executor) error {
	ctx, span := s.tracer.Start(ctx, "storage."+op, trace.WithAttributes(
		attribute.String("storage.instance_id", s.id),
	))
	defer span.End()

	start := time.Now()
	err := s.withAdmission(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retryCfg, fn)
	})
	s.sink.ObserveStorageLatency(ctx, op, float64(time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "storage operation failed", "op", op, "error", err)
		return apperrors.New(apperrors.CodeStorageUnavailable, op+" failed", err)
	}
	return nil
}

func (s *Storage) IncrAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := s.retry(ctx, "IncrAndExpire", func(ctx context.Context) error {
		v, err := incrAndExpireScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
		if err != nil {
			return err
		}
		count = v
		return nil
	})
	return count, err
}

func (s *Storage) Get(ctx context.Context, key string) (int64, error) {
	var val int64
	err := s.retry(ctx, "Get", func(ctx context.Context) error {
		v, err := s.client.Get(ctx, key).Int64()
		if err == goredis.Nil {
			val = 0
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return val, err
}

func (s *Storage) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.retry(ctx, "Set", func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

func (s *Storage) CompareAndSet(ctx context.Context, key string, expect, update int64) (bool, error) {
	var ok bool
	err := s.retry(ctx, "CompareAndSet", func(ctx context.Context) error {
		v, err := compareAndSetScript.Run(ctx, s.client, []string{key}, expect, update).Int64()
		if err != nil {
			return err
		}
		ok = v == 1
		return nil
	})
	return ok, err
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, "Delete", func(ctx context.Context) error {
		return s.client.Del(ctx, key).Err()
	})
}

func (s *Storage) EvalScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error) {
	var result interface{}
	sc := goredis.NewScript(script)
	err := s.retry(ctx, "EvalScript", func(ctx context.Context) error {
		v, err := sc.Run(ctx, s.client, keys, args...).Result()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (s *Storage) ApplyTokenBucket(ctx context.Context, key string, capacity, refillRatePerMs, requested float64, nowMs, ttlMs int64) (bool, float64, error) {
	var allowed bool
	var tokensAfter float64
	err := s.retry(ctx, "ApplyTokenBucket", func(ctx context.Context) error {
		res, err := tokenBucketScript.Run(ctx, s.client, []string{key}, capacity, refillRatePerMs, requested, nowMs, ttlMs).Slice()
		if err != nil {
			return err
		}
		if len(res) != 2 {
			return apperrors.New(apperrors.CodeInternal, "unexpected token bucket script result shape", nil)
		}
		allowedN, _ := res[0].(int64)
		allowed = allowedN == 1
		tokensStr, _ := res[1].(string)
		tokensAfter, _ = strconv.ParseFloat(tokensStr, 64)
		return nil
	})
	return allowed, tokensAfter, err
}

func (s *Storage) PeekTokens(ctx context.Context, key string) (float64, bool, error) {
	var tokens float64
	var ok bool
	err := s.retry(ctx, "PeekTokens", func(ctx context.Context) error {
		v, err := s.client.HGet(ctx, key, "tokens").Result()
		if err == goredis.Nil {
			ok = false
			return nil
		}
		if err != nil {
			return err
		}
		parsed, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return perr
		}
		tokens = parsed
		ok = true
		return nil
	})
	return tokens, ok, err
}

func (s *Storage) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.client.Close()
}

var _ storage.Storage = (*Storage)(nil)
var _ storage.TokenBucketStore = (*Storage)(nil)
