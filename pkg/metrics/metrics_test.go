package metrics_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinkAcceptsAllCalls(t *testing.T) {
	s := metrics.NewNoop()
	ctx := context.Background()
	s.IncrAllowed(ctx, "k")
	s.IncrRejected(ctx, "k")
	s.IncrCacheHit(ctx, "k")
	s.IncrTokenBucketAllowed(ctx, "k")
	s.IncrTokenBucketRejected(ctx, "k")
	s.ObserveStorageLatency(ctx, "Get", 1.5)
}

func TestNewOTelSinkRegistersInstruments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	sink, err := metrics.NewOTelSink(provider)
	require.NoError(t, err)

	ctx := context.Background()
	sink.IncrAllowed(ctx, "k")
	sink.IncrRejected(ctx, "k")
	sink.ObserveStorageLatency(ctx, "EvalScript", 3.2)

	assert.NotNil(t, sink)
}
