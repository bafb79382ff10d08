// Package middleware provides the HTTP middleware used by the adminauth server.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/service"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenValidator is the subset of the auth service the middleware needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token, ipAddress string) *models.ValidateResult
}

var _ TokenValidator = (*service.AuthService)(nil)

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// validation result in the request context.
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := httputil.BearerToken(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		res := m.validator.ValidateToken(r.Context(), token, httputil.GetClientIP(r))
		if !res.Valid {
			status := http.StatusUnauthorized
			if errors.Is(res.Err, service.ErrInternal) {
				status = http.StatusInternalServerError
			}
			httputil.WriteError(w, status, res.Message)
			return
		}

		if res.NeedsRefresh {
			w.Header().Set("X-Token-Refresh", "true")
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), res)))
	}
}

// RequireRole wraps RequireAuth and additionally demands one of roles.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			p := Principal(r.Context())
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteError(w, http.StatusForbidden, "Forbidden: insufficient role")
		})
	}
}

// WithPrincipal returns a copy of ctx carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p *models.ValidateResult) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Principal returns the authenticated caller, or nil outside RequireAuth.
func Principal(ctx context.Context) *models.ValidateResult {
	p, _ := ctx.Value(principalKey).(*models.ValidateResult)
	return p
}
