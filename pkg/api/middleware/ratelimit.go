// Package middleware demonstrates the fail-open policy and the
// X-RateLimit-* response headers a real gateway would set in front of a
// pkg/ratelimit.Limiter. It is not part of the core's public API surface —
// the core stops at the Limiter contract and never dictates a transport.
package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/logger"
	"github.com/chris-alexander-pop/ratelimitcore/pkg/ratelimit"
)

// RateLimitMiddleware enforces limiter against each request, keyed by
// client IP. A storage failure fails open: service availability is judged
// more important than strict enforcement of a single outage window.
func RateLimitMiddleware(limiter ratelimit.Limiter, maxPermits int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}

			ctx := r.Context()
			allowed, err := limiter.TryAcquire(ctx, key)
			if err != nil {
				logger.L().ErrorContext(ctx, "rate limit check failed, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxPermits))
			if remaining, rErr := limiter.AvailablePermits(ctx, key); rErr == nil && remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			}

			if !allowed {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
