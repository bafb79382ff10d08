package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/adminauth/internal/handlers"
	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/middleware"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/ratelimit"
	"github.com/telhawk-systems/adminauth/internal/requestid"
)

// Options controls the optional parts of the router.
type Options struct {
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath  string
	LoginLimiter ratelimit.RateLimiter
	Logger       *logging.Logger
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP. Empty means the
	// peer address is always the client address.
	TrustedProxies httputil.TrustedProxies
}

// NewRouter constructs a ServeMux with the auth API routes registered.
func NewRouter(h *handlers.AuthHandler, authMW *middleware.AuthMiddleware, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	limiter := opts.LoginLimiter
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	superAdmin := authMW.RequireRole(models.RoleSuperAdmin)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("POST /api/v1/auth/login", middleware.RateLimitByIP(limiter, log)(h.Login))
	mux.HandleFunc("POST /api/v1/auth/refresh", h.RefreshToken)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)

	// Service-to-service validation
	mux.HandleFunc("POST /api/v1/auth/validate", h.ValidateToken)

	// Any authenticated user
	mux.HandleFunc("GET /api/v1/auth/me", authMW.RequireAuth(h.Me))
	mux.HandleFunc("POST /api/v1/auth/password", authMW.RequireAuth(h.ChangePassword))
	mux.HandleFunc("GET /api/v1/sessions", authMW.RequireAuth(h.ListSessions))

	// Administration
	mux.HandleFunc("POST /api/v1/users", superAdmin(h.CreateUser))
	mux.HandleFunc("GET /api/v1/users", superAdmin(h.ListUsers))
	mux.HandleFunc("GET /api/v1/users/{id}", superAdmin(h.GetUser))
	mux.HandleFunc("PUT /api/v1/users/{id}/role", superAdmin(h.UpdateRole))
	mux.HandleFunc("POST /api/v1/users/{id}/deactivate", superAdmin(h.DeactivateUser))
	mux.HandleFunc("POST /api/v1/users/{id}/unlock", superAdmin(h.UnlockUser))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", superAdmin(h.RevokeSession))
	mux.HandleFunc("GET /api/v1/audit", superAdmin(h.RecentAudit))

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	if opts.MetricsPath != "" {
		mux.Handle("GET "+opts.MetricsPath, promhttp.Handler())
	}

	var handler http.Handler = middleware.AccessLog(log)(mux)
	if len(opts.AllowedOrigins) > 0 {
		handler = middleware.CORS(opts.AllowedOrigins)(handler)
	}
	handler = middleware.ClientIP(opts.TrustedProxies)(handler)
	return requestid.Middleware(handler)
}
