package middleware

import (
	"net/http"

	"github.com/telhawk-systems/adminauth/internal/httputil"
)

// ClientIP resolves the client address once per request. Forwarding headers
// count only when the peer is one of proxies; with none configured the peer
// address is used as is.
func ClientIP(proxies httputil.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, httputil.WithClientIP(r, proxies.ClientIP(r)))
		})
	}
}
