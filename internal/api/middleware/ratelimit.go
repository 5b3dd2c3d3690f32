package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/api/response"
	"github.com/kiranshivaraju/keyhub/internal/cache"
	"github.com/kiranshivaraju/keyhub/internal/metrics"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting per API key via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	metrics        *metrics.Metrics
}

func NewRateLimit(c cache.Cache, requestsPerMin int, m *metrics.Metrics) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, metrics: m}
}

// Limit counts requests against the kid set by APIKeyAuth.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			// API-key auth didn't run; nothing to key on.
			next.ServeHTTP(w, r)
			return
		}

		count, ttl, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(p.KID), rateWindow)
		if err != nil {
			// Fail open.
			slog.WarnContext(r.Context(), "rate limit unavailable", "kid", p.KID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		retryAfter := int64((ttl + time.Second - 1) / time.Second)
		resetTime := time.Now().Add(ttl).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			rl.metrics.RateLimit()
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
