package handlers

import (
	"errors"
	"net/http"

	"github.com/telhawk-systems/adminauth/internal/audit"
	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/middleware"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/session"
)

func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := middleware.Principal(r.Context())
	res := h.service.CreateUser(r.Context(), &req, actor.UserID, httputil.GetClientIP(r), r.UserAgent())
	status := statusFor(res.Err)
	if res.Success {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, res)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRoleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := middleware.Principal(r.Context())
	res := h.service.UpdateRole(r.Context(), r.PathValue("id"), req.Role, actor.UserID, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

func (h *AuthHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Principal(r.Context())
	res := h.service.DeactivateUser(r.Context(), r.PathValue("id"), actor.UserID, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

func (h *AuthHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Principal(r.Context())
	res := h.service.UnlockUser(r.Context(), r.PathValue("id"), actor.UserID, httputil.GetClientIP(r), r.UserAgent())
	httputil.WriteJSON(w, statusFor(res.Err), res)
}

// ListSessions lists active sessions. Super admins may pass user_id (or omit
// it for every user) and see full session rows; anyone else only sees masked
// views of their own.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := middleware.Principal(r.Context())
	if p.Role == models.RoleSuperAdmin {
		sessions, err := h.service.ListActiveSessions(r.Context(), r.URL.Query().Get("user_id"))
		if err != nil {
			httputil.WriteError(w, statusFor(err), err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
		return
	}

	sessions, err := h.service.ListActiveSessions(r.Context(), p.UserID)
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	views := make([]*models.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.ToView())
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	changed, err := h.service.RevokeSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": changed})
}

type auditEntry struct {
	*models.AuditEvent
	Verified bool `json:"verified"`
}

// RecentAudit returns the newest audit events with their signature status.
func (h *AuthHandler) RecentAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := httputil.ParseIntParam(q.Get("limit"), audit.DefaultRecentLimit)
	if limit < 1 || limit > 1000 {
		httputil.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}

	events, err := h.service.RecentAuditEvents(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}

	entries := make([]auditEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, auditEntry{AuditEvent: e, Verified: h.service.VerifyAuditEvent(e)})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}
