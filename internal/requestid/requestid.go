// Package requestid propagates a per-request identifier through headers and context.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request ID.
const Header = "X-Request-ID"

type contextKey string

// Key is the context key for request IDs.
const Key = contextKey("request-id")

// Middleware reuses an incoming X-Request-ID or generates a new one, echoes it on
// the response and stores it in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, Key, id)
}

// FromContext extracts the request ID from ctx, or "" if none is set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(Key).(string); ok {
		return id
	}
	return ""
}
