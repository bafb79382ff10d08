package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLog logs each request and records its duration by route pattern.
func AccessLog(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
				Observe(elapsed.Seconds())

			log.DebugContext(r.Context(), "HTTP request",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.Status(rec.status),
				logging.Duration(elapsed.Milliseconds()),
			)
		})
	}
}
