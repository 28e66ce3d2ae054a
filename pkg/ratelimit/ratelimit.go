// Package ratelimit defines the public rate-limiter contract shared by the
// sliding-window and token-bucket algorithms, and a factory that constructs
// either one from explicit dependencies (storage, metrics) — no global
// state, no DI container. The sliding window builds its own local cache
// from the config.
package ratelimit

import (
	"context"
	"time"

	apperrors "github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/go-playground/validator/v10"
)

// Limiter is the contract both algorithms satisfy. All methods are safe to
// call concurrently from any goroutine; none blocks beyond a bounded
// storage round trip (plus the storage adapter's own retries).
type Limiter interface {
	// TryAcquire is equivalent to TryAcquireN(ctx, key, 1).
	TryAcquire(ctx context.Context, key string) (bool, error)

	// TryAcquireN attempts to consume permits units for key. permits must
	// be >= 1; otherwise it fails with an InvalidArgument error.
	TryAcquireN(ctx context.Context, key string, permits int64) (bool, error)

	// AvailablePermits reports the caller's best estimate of remaining
	// permits for key, or -1 if that can't be determined right now.
	AvailablePermits(ctx context.Context, key string) (int64, error)

	// Reset clears all stored state for key.
	Reset(ctx context.Context, key string) error
}

// Algorithm selects which limiter a Config builds.
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// Config is the full construction surface for a single limiter instance.
// Every field here is validated at construction time (see Validate); the
// limiter never re-checks them per call.
type Config struct {
	// Algorithm chooses the closed-sum variant New dispatches to.
	Algorithm Algorithm `validate:"required,oneof=sliding_window token_bucket"`

	// MaxPermits is the ceiling of the bucket or window.
	MaxPermits int64 `validate:"required,gt=0"`

	// Window is the rate-limit horizon.
	Window time.Duration `validate:"required,gt=0"`

	// RefillRate is permits per second; required (>0) for token bucket,
	// ignored by sliding window.
	RefillRate float64 `validate:"gte=0"`

	// LocalCacheEnabled toggles the sliding window's probe short-circuit.
	// Ignored by token bucket, which never consults a local cache.
	LocalCacheEnabled bool

	// LocalCacheTTL is the write-TTL of local cache entries; required
	// (>0) when LocalCacheEnabled is true.
	LocalCacheTTL time.Duration

	// KeyPrefix namespaces storage keys for this limiter instance (e.g.
	// per API, per tenant) ahead of the rl:/tb: prefix the algorithms add.
	KeyPrefix string
}

// Validate enforces the construction invariants from the configuration
// surface. The per-field tags (algorithm is one of the two known values,
// max_permits > 0, window > 0, refill_rate >= 0) are checked by
// go-playground/validator, the same library pkg/config.Load runs against
// storage.Config; the two cross-field rules it can't express as a plain
// tag — refill_rate > 0 specifically for token bucket, local_cache_ttl > 0
// specifically when caching is enabled — are checked by hand afterward. It
// does not retry or touch storage — pure, synchronous validation.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "invalid rate limiter configuration", err)
	}
	if c.Algorithm == AlgorithmTokenBucket && c.RefillRate <= 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "refill_rate must be positive for token bucket", nil)
	}
	if c.LocalCacheEnabled && c.LocalCacheTTL <= 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "local_cache_ttl must be positive when caching is enabled", nil)
	}
	return nil
}
