// Package storage defines the shared storage contract both rate-limiting
// algorithms build on: a thin, retryable abstraction over a remote
// key/value engine offering atomic counters, expiring keys, hash fields,
// and server-side atomic scripts.
//
// The adapter deliberately knows nothing about rate-limit semantics. That
// keeps the store swappable (see storage/redis and storage/memory) and
// lets limiters be unit-tested against the in-process implementation.
package storage

import (
	"context"
	"time"
)

// Storage is the abstract contract over a remote data store for the atomic
// primitives the sliding-window and token-bucket limiters require. Every
// operation either returns a value or fails with a *errors.AppError coded
// errors.CodeStorageUnavailable.
type Storage interface {
	// IncrAndExpire atomically increments key by 1 and (re-)applies ttl,
	// returning the new count. The increment and TTL-set are indivisible
	// with respect to concurrent readers.
	IncrAndExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current integer value of key, or 0 if absent.
	Get(ctx context.Context, key string) (int64, error)

	// Set stores value at key with the given ttl.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error

	// CompareAndSet atomically sets key to update iff its current value
	// equals expect, detecting concurrent writes between read and write.
	CompareAndSet(ctx context.Context, key string, expect, update int64) (bool, error)

	// Delete removes key. It is not an error for key to be absent.
	Delete(ctx context.Context, key string) error

	// EvalScript executes script as an atomic unit against the store,
	// returning its raw result (for the token-bucket script, a two-element
	// []interface{} holding the allowed flag and the remaining tokens).
	EvalScript(ctx context.Context, script string, keys []string, args []interface{}) (interface{}, error)

	// Available is a liveness probe; it must not block for long and must
	// never itself retry.
	Available(ctx context.Context) bool
}

// TokenBucketStore is an optional capability a Storage may expose to run the
// token-bucket read-refill-compare-write procedure without going through
// EvalScript's generic script-text path. The Redis adapter implements both
// (EvalScript via a real Lua script, this as a thin wrapper around it); the
// in-process adapter implements only this one, since it has no embedded
// scripting engine. The tokenbucket limiter prefers this interface when
// present and falls back to EvalScript otherwise.
type TokenBucketStore interface {
	// ApplyTokenBucket refills then attempts to withdraw requested tokens
	// from the bucket at key, returning whether the withdrawal succeeded
	// and the token count remaining afterward.
	ApplyTokenBucket(ctx context.Context, key string, capacity, refillRatePerMs, requested float64, nowMs, ttlMs int64) (allowed bool, tokensAfter float64, err error)

	// PeekTokens returns the stored tokens field for key without applying
	// refill or mutating state — advisory only, per available_permits'
	// contract. ok is false if the bucket has never been written.
	PeekTokens(ctx context.Context, key string) (tokens float64, ok bool, err error)
}

// Config is the connection-policy surface for a Storage implementation, shared
// across backends even though not every field applies to every backend.
type Config struct {
	// Host/Port address the shared store.
	Host string `env:"STORAGE_HOST" env-default:"localhost" validate:"required"`
	Port string `env:"STORAGE_PORT" env-default:"6379" validate:"required"`

	// Password authenticates to the store, if required.
	Password string `env:"STORAGE_PASSWORD"`

	// DB selects a logical database on stores that support it.
	DB int `env:"STORAGE_DB" env-default:"0"`

	// PoolMax is the maximum number of pooled connections.
	PoolMax int `env:"STORAGE_POOL_MAX" env-default:"128" validate:"gt=0"`

	// PoolIdleMin/PoolIdleMax bound the idle connection count maintained
	// by the pool between bursts.
	PoolIdleMin int `env:"STORAGE_POOL_IDLE_MIN" env-default:"16" validate:"gte=0"`
	PoolIdleMax int `env:"STORAGE_POOL_IDLE_MAX" env-default:"32" validate:"gte=0"`

	// BorrowTimeout bounds how long a caller waits for a pooled connection
	// before failing with StorageError.
	BorrowTimeout time.Duration `env:"STORAGE_BORROW_TIMEOUT" env-default:"2s" validate:"gt=0"`

	// RetryAttempts and RetryBackoffUnit implement the linear retry policy
	// required of every storage operation: up to RetryAttempts tries,
	// sleeping RetryBackoffUnit*attempt between them.
	RetryAttempts    int           `env:"STORAGE_RETRY_ATTEMPTS" env-default:"3" validate:"gt=0"`
	RetryBackoffUnit time.Duration `env:"STORAGE_RETRY_BACKOFF_UNIT" env-default:"10ms" validate:"gt=0"`
}
