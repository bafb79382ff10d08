package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://console.example.com", "*.ops.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
	}{
		{"exact origin", http.MethodGet, "https://console.example.com", false, "https://console.example.com", http.StatusOK},
		{"wildcard subdomain", http.MethodGet, "https://eu.ops.example.com", false, "https://eu.ops.example.com", http.StatusOK},
		{"disallowed origin", http.MethodGet, "https://evil.example.org", false, "", http.StatusOK},
		{"no origin", http.MethodGet, "", false, "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://console.example.com", true, "https://console.example.com", http.StatusNoContent},
		{"disallowed preflight falls through", http.MethodOptions, "https://evil.example.org", true, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/v1/auth/login", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, corsMethods, w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			}
		})
	}
}
