package service

import (
	"context"
	"errors"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/metrics"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/repository"
)

// ChangePassword replaces the user's password and revokes every session they hold.
// A wrong current password does not count toward lockout.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) *models.ActionResult {
	log := s.log.WithContext(ctx)

	failed := func(reason string) bool {
		metrics.PasswordChanges.WithLabelValues(metrics.ResultFailure).Inc()
		return s.record(ctx, &models.AuditEvent{
			UserID:       &userID,
			Action:       models.ActionPasswordChangeFailed,
			Resource:     models.ResourceUser,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
			ErrorMessage: models.StringPtr(reason),
		})
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &models.ActionResult{Message: "User not found", Err: ErrUserNotFound}
		}
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to load user", err)}
	}
	if !user.IsActive {
		degraded := failed("account inactive")
		return &models.ActionResult{Message: msgUserInactive, AuditDegraded: degraded, Err: ErrInvalidCredentials}
	}

	ok, err := s.verify(currentPassword, user)
	if err != nil {
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to verify password", err)}
	}
	if !ok {
		degraded := failed("invalid current password")
		log.Info("Password change rejected", logging.UserID(userID), "reason", "invalid current password")
		return &models.ActionResult{Message: "Current password is incorrect", AuditDegraded: degraded, Err: ErrInvalidCredentials}
	}

	if valid, reasons := s.policy.Validate(newPassword); !valid {
		degraded := failed("weak password")
		return &models.ActionResult{
			Message:       "New password does not meet requirements",
			Errors:        reasons,
			AuditDegraded: degraded,
			Err:           password.ErrWeakPassword,
		}
	}
	if newPassword == currentPassword {
		degraded := failed("password reused")
		return &models.ActionResult{
			Message:       "New password must differ from the current password",
			AuditDegraded: degraded,
			Err:           ErrInvalidInput,
		}
	}

	cred, err := s.hash(newPassword)
	if err != nil {
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to hash password", err)}
	}

	now := s.now()
	if _, err := s.users.UpdateUser(ctx, userID, func(u *models.User) error {
		if !sameCredential(u, user) {
			return errCredentialChanged
		}
		u.PasswordHash = cred.Hash
		u.PasswordSalt = cred.Salt
		u.PasswordIterations = cred.Iterations
		u.UpdatedAt = now
		return nil
	}); err != nil {
		if errors.Is(err, errCredentialChanged) {
			degraded := failed("credential changed")
			log.Info("Password change rejected", logging.UserID(userID), "reason", "credential changed")
			return &models.ActionResult{Message: "Current password is incorrect", AuditDegraded: degraded, Err: ErrInvalidCredentials}
		}
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to store new password", err)}
	}
	metrics.PasswordChanges.WithLabelValues(metrics.ResultSuccess).Inc()

	// The new password is stored at this point, so a revocation failure is
	// reported as a partial success rather than an error.
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID, models.RevokeReasonPasswordChange)
	if err != nil {
		log.Error("Password changed but existing sessions were not revoked",
			logging.UserID(userID), logging.Error(err))
		degraded := s.record(ctx, &models.AuditEvent{
			UserID:       &userID,
			Action:       models.ActionPasswordChanged,
			Resource:     models.ResourceUser,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
			Success:      true,
			ErrorMessage: models.StringPtr("session revocation failed"),
		})
		return &models.ActionResult{
			Success:          true,
			Message:          "Password changed, but existing sessions could not be signed out",
			SessionsRetained: true,
			AuditDegraded:    degraded,
		}
	}
	metrics.SessionsRevoked.WithLabelValues(models.RevokeReasonPasswordChange).Add(float64(revoked))

	degraded := s.record(ctx, &models.AuditEvent{
		UserID:    &userID,
		Action:    models.ActionPasswordChanged,
		Resource:  models.ResourceUser,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
	log.Info("Password changed", logging.UserID(userID), "sessions_revoked", revoked)

	return &models.ActionResult{
		Success:       true,
		Message:       "Password changed successfully. All sessions have been signed out",
		AuditDegraded: degraded,
	}
}
