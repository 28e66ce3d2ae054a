package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink records the fixed counter set as OpenTelemetry Int64Counter
// instruments plus a shared storage-latency histogram. Keys are not used as
// attribute values (unbounded cardinality); callers needing per-key
// breakdowns should derive it from traces instead.
type OTelSink struct {
	allowed            metric.Int64Counter
	rejected           metric.Int64Counter
	cacheHits          metric.Int64Counter
	tokenBucketAllowed metric.Int64Counter
	tokenBucketReject  metric.Int64Counter
	storageLatency     metric.Float64Histogram
}

// NewOTelSink creates the five counters and the latency histogram against
// the given meter provider's "pkg/ratelimit" meter.
func NewOTelSink(provider metric.MeterProvider) (*OTelSink, error) {
	meter := provider.Meter("pkg/ratelimit")

	allowed, err := meter.Int64Counter(NameRequestsAllowed)
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter(NameRequestsRejected)
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter(NameCacheHits)
	if err != nil {
		return nil, err
	}
	tbAllowed, err := meter.Int64Counter(NameTokenBucketAllowed)
	if err != nil {
		return nil, err
	}
	tbRejected, err := meter.Int64Counter(NameTokenBucketRejected)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"ratelimiter.storage.latency_ms",
		metric.WithDescription("Storage round-trip latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelSink{
		allowed:            allowed,
		rejected:           rejected,
		cacheHits:          cacheHits,
		tokenBucketAllowed: tbAllowed,
		tokenBucketReject:  tbRejected,
		storageLatency:     latency,
	}, nil
}

func (s *OTelSink) IncrAllowed(ctx context.Context, key string) {
	s.allowed.Add(ctx, 1)
}

func (s *OTelSink) IncrRejected(ctx context.Context, key string) {
	s.rejected.Add(ctx, 1)
}

func (s *OTelSink) IncrCacheHit(ctx context.Context, key string) {
	s.cacheHits.Add(ctx, 1)
}

func (s *OTelSink) IncrTokenBucketAllowed(ctx context.Context, key string) {
	s.tokenBucketAllowed.Add(ctx, 1)
}

func (s *OTelSink) IncrTokenBucketRejected(ctx context.Context, key string) {
	s.tokenBucketReject.Add(ctx, 1)
}

func (s *OTelSink) ObserveStorageLatency(ctx context.Context, op string, durationMs float64) {
	s.storageLatency.Record(ctx, durationMs, metric.WithAttributes(attribute.String("op", op)))
}

var _ Sink = (*OTelSink)(nil)
