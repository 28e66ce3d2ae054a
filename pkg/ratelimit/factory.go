package ratelimit

import (
	"github.com/chris-alexander-pop/ratelimitcore/pkg/metrics"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/ratelimit/slidingwindow"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/ratelimit/tokenbucket"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
)

// New is the single construction entry point for the core: a closed sum of
// the two algorithm variants, dispatched by cfg.Algorithm. There is no
// dynamic registry and no process-wide state — every dependency is passed
// in explicitly.
func New(cfg Config, store storage.Storage, sink metrics.Sink) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NewNoop()
	}

	switch cfg.Algorithm {
	case AlgorithmSlidingWindow:
		return slidingwindow.New(store, slidingwindow.Config{
			MaxPermits:        cfg.MaxPermits,
			Window:            cfg.Window,
			LocalCacheEnabled: cfg.LocalCacheEnabled,
			LocalCacheTTL:     cfg.LocalCacheTTL,
			KeyPrefix:         cfg.KeyPrefix,
		}, sink), nil
	case AlgorithmTokenBucket:
		return tokenbucket.New(store, tokenbucket.Config{
			Capacity:   cfg.MaxPermits,
			Window:     cfg.Window,
			RefillRate: cfg.RefillRate,
			KeyPrefix:  cfg.KeyPrefix,
		}, sink), nil
	default:
		// Unreachable: cfg.Validate rejects unknown algorithms.
		panic("ratelimit: unhandled algorithm " + string(cfg.Algorithm))
	}
}

var (
	_ Limiter = (*slidingwindow.Limiter)(nil)
	_ Limiter = (*tokenbucket.Limiter)(nil)
)
