package service

import (
	"context"
	"errors"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/metrics"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/session"
)

// ListActiveSessions returns unexpired active sessions, for one user or,
// with an empty userID, for everyone.
func (s *AuthService) ListActiveSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "Failed to list sessions", err)
	}
	return sessions, nil
}

// RevokeSession ends one session on behalf of an administrator.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) (bool, error) {
	changed, err := s.sessions.Revoke(ctx, sessionID, models.RevokeReasonLogout)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return false, err
		}
		return false, s.internal(ctx, "Failed to revoke session", err)
	}
	if changed {
		metrics.SessionsRevoked.WithLabelValues(models.RevokeReasonLogout).Inc()
	}
	return changed, nil
}

// SweepExpiredSessions marks every expired but still active session inactive.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		return 0, s.internal(ctx, "Failed to sweep expired sessions", err)
	}
	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues(models.RevokeReasonExpired).Add(float64(n))
		s.log.WithContext(ctx).Info("Expired sessions swept", "count", n)
	}
	return n, nil
}

// RecentAuditEvents returns the newest audit events, newest first.
func (s *AuthService) RecentAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	events, err := s.auditLog.Recent(ctx, userID, limit)
	if err != nil {
		return nil, s.internal(ctx, "Failed to read audit events", err)
	}
	return events, nil
}

// VerifyAuditEvent reports whether the event's signature is intact.
func (s *AuthService) VerifyAuditEvent(event *models.AuditEvent) bool {
	ok := s.auditLog.Verify(event)
	if !ok {
		s.log.Warn("Audit event failed signature check", logging.Action(string(event.Action)), "audit_id", event.ID)
	}
	return ok
}
