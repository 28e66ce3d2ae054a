// Package metrics defines the rate-limiter core's metrics sink contract and
// an OpenTelemetry-backed implementation. Counter names are fixed by the
// core's external contract; tags are left to the implementer.
package metrics

import "context"

// Fixed counter names emitted by the limiters.
const (
	NameRequestsAllowed     = "ratelimiter.requests.allowed"
	NameRequestsRejected    = "ratelimiter.requests.rejected"
	NameCacheHits           = "ratelimiter.cache.hits"
	NameTokenBucketAllowed  = "ratelimiter.tokenbucket.allowed"
	NameTokenBucketRejected = "ratelimiter.tokenbucket.rejected"
)

// Sink receives the fixed set of counters the core emits, tagged by the
// rate-limited key. Implementations must be safe for concurrent use.
type Sink interface {
	// IncrAllowed records a sliding-window accept.
	IncrAllowed(ctx context.Context, key string)

	// IncrRejected records a sliding-window reject.
	IncrRejected(ctx context.Context, key string)

	// IncrCacheHit records a local-cache short-circuit.
	IncrCacheHit(ctx context.Context, key string)

	// IncrTokenBucketAllowed records a token-bucket accept.
	IncrTokenBucketAllowed(ctx context.Context, key string)

	// IncrTokenBucketRejected records a token-bucket reject.
	IncrTokenBucketRejected(ctx context.Context, key string)

	// ObserveStorageLatency records the duration, in milliseconds, of one
	// storage operation as the caller sees it, including any wait for an
	// admission slot and all retry attempts.
	ObserveStorageLatency(ctx context.Context, op string, durationMs float64)
}

// noop discards every observation. Used as the default Sink so limiters
// never need a nil check.
type noop struct{}

// NewNoop returns a Sink that does nothing, for callers that have not wired
// a real metrics backend.
func NewNoop() Sink { return noop{} }

func (noop) IncrAllowed(context.Context, string)                    {}
func (noop) IncrRejected(context.Context, string)                   {}
func (noop) IncrCacheHit(context.Context, string)                    {}
func (noop) IncrTokenBucketAllowed(context.Context, string)          {}
func (noop) IncrTokenBucketRejected(context.Context, string)         {}
func (noop) ObserveStorageLatency(context.Context, string, float64)  {}

var _ Sink = noop{}
