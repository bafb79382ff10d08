package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded header ignored", map[string]string{"X-Forwarded-For": "203.0.113.195"}, "10.0.0.1:1234", "10.0.0.1"},
		{"real ip ignored", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "10.0.0.1"},
		{"remote addr with port", nil, "192.0.2.1:54321", "192.0.2.1"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestGetClientIP_Resolved(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "203.0.113.9", GetClientIP(WithClientIP(r, "203.0.113.9")))
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, proxies, 3)

	assert.True(t, proxies.Trusts("10.20.30.40"))
	assert.True(t, proxies.Trusts("192.0.2.1"))
	assert.False(t, proxies.Trusts("192.0.2.2"))
	assert.True(t, proxies.Trusts("2001:db8::5"))
	assert.False(t, proxies.Trusts("not-an-ip"))

	for _, bad := range []string{"10.0.0.0/33", "proxy.internal", "300.1.1.1"} {
		_, err := ParseTrustedProxies([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		proxies    TrustedProxies
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"no proxies configured", nil, map[string]string{"X-Forwarded-For": "203.0.113.195"}, "10.0.0.1:1234", "10.0.0.1"},
		{"untrusted peer spoofing", proxies, map[string]string{"X-Forwarded-For": "203.0.113.195"}, "198.51.100.1:1234", "198.51.100.1"},
		{"untrusted peer real ip", proxies, map[string]string{"X-Real-IP": "203.0.113.195"}, "198.51.100.1:1234", "198.51.100.1"},
		{"trusted peer", proxies, map[string]string{"X-Forwarded-For": "203.0.113.195"}, "10.0.0.1:1234", "203.0.113.195"},
		{"spoofed leftmost hop", proxies, map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.195"}, "10.0.0.1:1234", "203.0.113.195"},
		{"chain of trusted proxies", proxies, map[string]string{"X-Forwarded-For": "203.0.113.195, 10.1.1.1, 10.2.2.2"}, "10.0.0.1:1234", "203.0.113.195"},
		{"only trusted hops", proxies, map[string]string{"X-Forwarded-For": "10.1.1.1, 10.2.2.2"}, "10.0.0.1:1234", "10.1.1.1"},
		{"trusted peer real ip", proxies, map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"trusted peer malformed header", proxies, map[string]string{"X-Forwarded-For": "garbage"}, "10.0.0.1:1234", "10.0.0.1"},
		{"trusted peer no headers", proxies, nil, "10.0.0.1:1234", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(r))
		})
	}
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 10, ParseIntParam("", 10))
	assert.Equal(t, 25, ParseIntParam("25", 10))
	assert.Equal(t, 10, ParseIntParam("abc", 10))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), tt.header)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice"}`))
	require.NoError(t, DecodeJSON(w, r, &v))
	assert.Equal(t, "alice", v.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nme":"alice"}`))
	assert.Error(t, DecodeJSON(w, r, &v), "unknown fields are rejected")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(w, r, &v))
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusTeapot, "nope")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "nope", body["error"])
}
