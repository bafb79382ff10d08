package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/ratelimit"
)

// RateLimitByIP limits requests per client IP. Limiter errors fail open so a
// Redis outage never blocks logins.
func RateLimitByIP(limiter ratelimit.RateLimiter, log *logging.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.GetClientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.WarnContext(r.Context(), "Rate limiter unavailable", logging.IP(ip), logging.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter(limiter))
				httputil.WriteError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

// retryAfter is the limiter window in whole seconds, at least one.
func retryAfter(limiter ratelimit.RateLimiter) string {
	seconds := int(math.Ceil(limiter.Window().Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
