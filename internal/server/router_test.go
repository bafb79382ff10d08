package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/adminauth/internal/audit"
	"github.com/telhawk-systems/adminauth/internal/handlers"
	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/lockout"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/middleware"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/ratelimit"
	"github.com/telhawk-systems/adminauth/internal/repository"
	"github.com/telhawk-systems/adminauth/internal/service"
	"github.com/telhawk-systems/adminauth/internal/session"
)

const (
	rootPassword = "R00t!Secret"
	bobPassword  = "B0b!Secret"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	svc     *service.AuthService
}

func newTestServer(t *testing.T, limiter ratelimit.RateLimiter) *testServer {
	t.Helper()
	return newTestServerWithOptions(t, Options{MetricsPath: "/metrics", LoginLimiter: limiter})
}

func newTestServerWithOptions(t *testing.T, opts Options) *testServer {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	log := logging.Discard()

	sessions := session.NewService("jwt-secret", repo, repo, session.Config{}).WithLogger(log)
	auditLog := audit.NewLogger("audit-secret", repo).WithLogger(log)
	svc := service.NewAuthService(
		repo,
		sessions,
		auditLog,
		password.NewHasher(1000),
		lockout.NewPolicy(3, 15*time.Minute),
		password.DefaultPolicy(),
	).WithLogger(log)

	res := svc.CreateUser(context.Background(), &models.CreateUserRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: rootPassword,
		Role:     string(models.RoleSuperAdmin),
	}, "", "127.0.0.1", "test")
	require.True(t, res.Success, "%v", res.Errors)

	h := handlers.NewAuthHandler(svc, repo)
	opts.Logger = log
	router := NewRouter(h, middleware.NewAuthMiddleware(svc), opts)
	return &testServer{t: t, handler: router, svc: svc}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.doFrom("192.0.2.10:40000", "", method, path, token, body)
}

// doFrom sends a request from remoteAddr, with X-Forwarded-For set when
// forwardedFor is non-empty.
func (s *testServer) doFrom(remoteAddr, forwardedFor, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) login(username, pw string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: username, Password: pw})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var res models.LoginResult
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(s.t, res.Token)
	return res.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createBob(rootToken string) *models.UserResponse {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/users", rootToken, models.CreateUserRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: bobPassword,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.CreateUserResult](s.t, w).User
}

func TestLoginAndValidate(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: "root", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username or password", decode[models.LoginResult](t, w).Message)

	token := s.login("root", rootPassword)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(http.MethodPost, "/api/v1/auth/validate", "", models.TokenRequest{Token: token})
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[models.ValidateResult](t, w)
	assert.True(t, v.Valid)
	assert.Equal(t, "root", v.Username)
	assert.Equal(t, models.RoleSuperAdmin, v.Role)

	w = s.do(http.MethodPost, "/api/v1/auth/validate", "", models.TokenRequest{Token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/validate", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", decode[models.UserResponse](t, w).Username)
}

func TestLoginMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLockoutReturnsLocked(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: "root", Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: "root", Password: rootPassword})
	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Contains(t, decode[models.LoginResult](t, w).Message, "Account is locked")
}

func TestLogoutAndRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("root", rootPassword)

	w := s.do(http.MethodPost, "/api/v1/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := decode[models.LoginResult](t, w).Token
	require.NotEmpty(t, refreshed)

	w = s.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refreshed-away token is revoked")

	w = s.do(http.MethodPost, "/api/v1/auth/logout", refreshed, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.ActionResult](t, w).Success)

	w = s.do(http.MethodPost, "/api/v1/auth/logout", refreshed, nil)
	assert.Equal(t, http.StatusOK, w.Code, "logout is idempotent")

	w = s.do(http.MethodGet, "/api/v1/auth/me", refreshed, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("root", rootPassword)

	w := s.do(http.MethodPost, "/api/v1/auth/password", token, models.ChangePasswordRequest{
		CurrentPassword: rootPassword,
		NewPassword:     "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decode[models.ActionResult](t, w).Errors)

	w = s.do(http.MethodPost, "/api/v1/auth/password", token, models.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "N3w!Password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/password", token, models.ChangePasswordRequest{
		CurrentPassword: rootPassword,
		NewPassword:     "N3w!Password",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "sessions end on password change")

	s.login("root", "N3w!Password")
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t, nil)
	rootToken := s.login("root", rootPassword)
	bob := s.createBob(rootToken)
	assert.Equal(t, models.RoleReadonly, bob.Role)

	w := s.do(http.MethodPost, "/api/v1/users", rootToken, models.CreateUserRequest{
		Username: "BOB", Email: "other@example.com", Password: bobPassword,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/users", rootToken, models.CreateUserRequest{
		Username: "x", Email: "nope", Password: "weak",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.GreaterOrEqual(t, len(decode[models.CreateUserResult](t, w).Errors), 2)

	bobToken := s.login("bob", bobPassword)
	w = s.do(http.MethodGet, "/api/v1/users", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/users", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]models.UserResponse](t, w)["users"], 2)

	w = s.do(http.MethodGet, "/api/v1/users/"+bob.ID, rootToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/users/does-not-exist", rootToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, "/api/v1/users/"+bob.ID+"/role", rootToken, models.UpdateRoleRequest{Role: "wizard"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPut, "/api/v1/users/"+bob.ID+"/role", rootToken, models.UpdateRoleRequest{Role: "operator"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/auth/validate", bobToken, nil)
	assert.Equal(t, models.RoleOperator, decode[models.ValidateResult](t, w).Role)

	w = s.do(http.MethodPost, "/api/v1/users/"+bob.ID+"/unlock", rootToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/users/"+bob.ID+"/deactivate", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/auth/me", bobToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: "bob", Password: bobPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionsScope(t *testing.T) {
	s := newTestServer(t, nil)
	rootToken := s.login("root", rootPassword)
	bob := s.createBob(rootToken)
	bobToken := s.login("bob", bobPassword)

	type sessionList struct {
		Sessions []models.Session `json:"sessions"`
	}
	type viewList struct {
		Sessions []models.SessionView `json:"sessions"`
	}

	w := s.do(http.MethodGet, "/api/v1/sessions", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[viewList](t, w).Sessions
	require.Len(t, views, 1)
	assert.Equal(t, bob.ID, views[0].UserID)
	assert.Contains(t, views[0].SessionID, "...", "session ids are masked for non super admins")

	w = s.do(http.MethodGet, "/api/v1/sessions", rootToken, nil)
	assert.Len(t, decode[sessionList](t, w).Sessions, 2, "super admin sees every session")

	w = s.do(http.MethodGet, "/api/v1/sessions?user_id="+bob.ID, rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	own := decode[sessionList](t, w).Sessions
	require.Len(t, own, 1)
	assert.Equal(t, models.MaskToken(own[0].ID), views[0].SessionID)

	w = s.do(http.MethodDelete, "/api/v1/sessions/"+own[0].ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/sessions/"+own[0].ID, rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["revoked"])

	w = s.do(http.MethodDelete, "/api/v1/sessions/unknown", rootToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/auth/me", bobToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rootToken := s.login("root", rootPassword)

	w := s.do(http.MethodGet, "/api/v1/audit?limit=0", rootToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/audit?limit=10", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events []struct {
			Action   models.AuditAction `json:"action"`
			Verified bool               `json:"verified"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, models.ActionLoginSuccess, body.Events[0].Action)
	for _, e := range body.Events {
		assert.True(t, e.Verified, e.Action)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "adminauth_http_request_duration_seconds")
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, ratelimit.NewWithClient(client, "login", 2, time.Minute))
	s.login("root", rootPassword)
	s.login("root", rootPassword)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: "root", Password: rootPassword})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	w = s.doFrom("192.0.2.10:40000", "203.0.113.77", http.MethodPost, "/api/v1/auth/login", "",
		models.LoginRequest{Username: "root", Password: rootPassword})
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "forwarding headers from an untrusted peer are ignored")
}

func TestLoginRateLimit_BehindTrustedProxy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	s := newTestServerWithOptions(t, Options{
		LoginLimiter:   ratelimit.NewWithClient(client, "login", 1, time.Minute),
		TrustedProxies: proxies,
	})
	login := models.LoginRequest{Username: "root", Password: rootPassword}

	w := s.doFrom("10.0.0.5:40000", "203.0.113.1", http.MethodPost, "/api/v1/auth/login", "", login)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.doFrom("10.0.0.5:40000", "203.0.113.1", http.MethodPost, "/api/v1/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.doFrom("10.0.0.5:40000", "203.0.113.2", http.MethodPost, "/api/v1/auth/login", "", login)
	assert.Equal(t, http.StatusOK, w.Code, "clients behind the proxy are limited separately")

	events, err := s.svc.RecentAuditEvents(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.2", events[0].IPAddress)
}
