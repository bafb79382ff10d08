// Package handlers exposes the authentication service over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/middleware"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AuthHandler struct {
	service *service.AuthService
	store   Pinger
}

func NewAuthHandler(service *service.AuthService, store Pinger) *AuthHandler {
	return &AuthHandler{
		service: service,
		store:   store,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.service.Authenticate(r.Context(), req.Username, req.Password, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

// ValidateToken lets other services check a token. The token comes from the
// body or, failing that, the Authorization header.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromRequest(w, r)
	if !ok {
		return
	}

	res := h.service.ValidateToken(r.Context(), token, httputil.GetClientIP(r))
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromRequest(w, r)
	if !ok {
		return
	}

	res := h.service.RefreshToken(r.Context(), token, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

// Logout is not behind RequireAuth: an expired token can still be logged out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromRequest(w, r)
	if !ok {
		return
	}

	res := h.service.Logout(r.Context(), token, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p := middleware.Principal(r.Context())
	res := h.service.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

// Me returns the caller's own account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.Principal(r.Context())
	user, err := h.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "storage unavailable",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func tokenFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	if token := httputil.BearerToken(r); token != "" {
		return token, true
	}

	var req models.TokenRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil || req.Token == "" {
		httputil.WriteError(w, http.StatusBadRequest, "token is required")
		return "", false
	}
	return req.Token, true
}
