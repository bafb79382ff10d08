package service

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/metrics"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/repository"
	"github.com/telhawk-systems/adminauth/internal/session"
)

// Authenticate checks credentials and, on success, issues a session token.
// login may be a username or an email address, matched case-insensitively.
func (s *AuthService) Authenticate(ctx context.Context, login, pw, ipAddress, userAgent string) *models.LoginResult {
	log := s.log.WithContext(ctx)

	user, err := s.users.FindUserByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to look up user", err)}
		}
		// Spend the same hashing cost as a real verification.
		_, _ = s.hash(pw)
		degraded := s.record(ctx, &models.AuditEvent{
			Action:       models.ActionLoginFailed,
			Resource:     models.ResourceSession,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
			ErrorMessage: models.StringPtr("unknown user"),
		})
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		log.Info("Login failed", logging.Username(login), logging.IP(ipAddress), "reason", "unknown user")
		return &models.LoginResult{Message: msgInvalidCredentials, AuditDegraded: degraded, Err: ErrInvalidCredentials}
	}

	failed := func(reason string) *models.AuditEvent {
		return &models.AuditEvent{
			UserID:       &user.ID,
			Action:       models.ActionLoginFailed,
			Resource:     models.ResourceSession,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
			ErrorMessage: models.StringPtr(reason),
		}
	}

	if !user.IsActive {
		degraded := s.record(ctx, failed("account inactive"))
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		log.Info("Login failed", logging.UserID(user.ID), logging.IP(ipAddress), "reason", "account inactive")
		return &models.LoginResult{Message: msgInvalidCredentials, AuditDegraded: degraded, Err: ErrInvalidCredentials}
	}

	now := s.now()
	if s.lockout.IsLocked(user, now) {
		return s.lockedResult(ctx, user, failed, now)
	}

	ok, err := s.verify(pw, user)
	if err != nil {
		return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to verify password", err)}
	}

	if !ok {
		var newlyLocked bool
		_, err := s.users.UpdateUser(ctx, user.ID, func(u *models.User) error {
			newlyLocked = s.lockout.RecordFailure(u, now)
			u.UpdatedAt = now
			return nil
		})
		if err != nil {
			return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to record failed login", err)}
		}

		reason := "invalid password"
		if newlyLocked {
			reason = "invalid password; account locked"
			metrics.AccountLockouts.Inc()
			log.Warn("Account locked after repeated failures", logging.UserID(user.ID), logging.IP(ipAddress))
		}
		degraded := s.record(ctx, failed(reason))
		metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
		log.Info("Login failed", logging.UserID(user.ID), logging.IP(ipAddress), "reason", "invalid password")
		return &models.LoginResult{Message: msgInvalidCredentials, AuditDegraded: degraded, Err: ErrInvalidCredentials}
	}

	// Upgrade hashes made with an older iteration count while the plaintext is at hand.
	var rehashed *password.Credential
	if s.hasher.NeedsRehash(password.Credential{Iterations: user.PasswordIterations}) {
		cred, err := s.hash(pw)
		if err != nil {
			log.Warn("Failed to rehash password", logging.UserID(user.ID), logging.Error(err))
		} else {
			rehashed = &cred
		}
	}

	updated, err := s.users.UpdateUser(ctx, user.ID, func(u *models.User) error {
		// The password may have been changed since it was verified above.
		if !sameCredential(u, user) {
			return errCredentialChanged
		}
		// A concurrent failure may have locked the account since the check above.
		if s.lockout.IsLocked(u, now) {
			return ErrAccountLocked
		}
		s.lockout.RecordSuccess(u)
		u.LastLogin = &now
		u.LastIP = models.StringPtr(ipAddress)
		u.UpdatedAt = now
		if rehashed != nil {
			u.PasswordHash = rehashed.Hash
			u.PasswordSalt = rehashed.Salt
			u.PasswordIterations = rehashed.Iterations
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errCredentialChanged):
			return s.credentialChangedResult(ctx, user, failed)
		case errors.Is(err, ErrAccountLocked):
			locked, getErr := s.users.GetUserByID(ctx, user.ID)
			if getErr != nil {
				return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to reload user", getErr)}
			}
			return s.lockedResult(ctx, locked, failed, now)
		}
		return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to record successful login", err)}
	}

	issued, err := s.sessions.Issue(ctx, updated.ID, updated.Username, updated.Role, ipAddress, userAgent)
	if err != nil {
		return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to issue session", err)}
	}

	// A password change that committed between the update and Issue has
	// already revoked every session it could see, so drop this one too.
	current, err := s.users.GetUserByID(ctx, updated.ID)
	if err != nil || !sameCredential(current, updated) {
		if _, revokeErr := s.sessions.Revoke(ctx, issued.Session.ID, models.RevokeReasonPasswordChange); revokeErr != nil {
			log.Error("Failed to revoke session issued against a stale password",
				logging.SessionID(issued.Session.ID), logging.Error(revokeErr))
		}
		if err != nil {
			return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to reload user", err)}
		}
		return s.credentialChangedResult(ctx, user, failed)
	}
	metrics.SessionsIssued.Inc()

	degraded := s.record(ctx, &models.AuditEvent{
		UserID:    &updated.ID,
		Action:    models.ActionLoginSuccess,
		Resource:  models.ResourceSession,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
	metrics.LoginAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("User authenticated",
		logging.UserID(updated.ID),
		logging.Username(updated.Username),
		logging.IP(ipAddress),
		logging.SessionID(issued.Session.ID),
	)

	return &models.LoginResult{
		Success:       true,
		Token:         issued.Token,
		ExpiresIn:     int64(issued.ExpiresIn.Seconds()),
		User:          updated.ToResponse(),
		Message:       "Login successful",
		AuditDegraded: degraded,
	}
}

func (s *AuthService) credentialChangedResult(ctx context.Context, user *models.User, failed func(string) *models.AuditEvent) *models.LoginResult {
	degraded := s.record(ctx, failed("credential changed"))
	metrics.LoginAttempts.WithLabelValues(metrics.ResultFailure).Inc()
	s.log.WithContext(ctx).Info("Login failed", logging.UserID(user.ID), "reason", "credential changed")
	return &models.LoginResult{Message: msgInvalidCredentials, AuditDegraded: degraded, Err: ErrInvalidCredentials}
}

func (s *AuthService) lockedResult(ctx context.Context, user *models.User, failed func(string) *models.AuditEvent, now time.Time) *models.LoginResult {
	degraded := s.record(ctx, failed("account locked"))
	metrics.LoginAttempts.WithLabelValues(metrics.ResultLocked).Inc()
	s.log.WithContext(ctx).Info("Login rejected for locked account", logging.UserID(user.ID))
	return &models.LoginResult{
		Message:       lockedMessage(s.lockout.Remaining(user, now)),
		AuditDegraded: degraded,
		Err:           ErrAccountLocked,
	}
}

// ValidateToken checks a token against its signature, expiry and session row.
func (s *AuthService) ValidateToken(ctx context.Context, token, ipAddress string) *models.ValidateResult {
	v, err := s.sessions.Validate(ctx, token, ipAddress)
	if err != nil {
		result := validationFailure(err)
		if errors.Is(result.Err, ErrInternal) {
			s.internal(ctx, "Failed to validate token", err)
		}
		return result
	}
	metrics.TokenValidations.WithLabelValues(metrics.ResultSuccess).Inc()

	return &models.ValidateResult{
		Valid:        true,
		UserID:       v.User.ID,
		Username:     v.User.Username,
		Role:         v.User.Role,
		SessionID:    v.Session.ID,
		NeedsRefresh: v.NeedsRefresh,
		ExpiresIn:    int64(v.ExpiresIn.Seconds()),
	}
}

func validationFailure(err error) *models.ValidateResult {
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		metrics.TokenValidations.WithLabelValues(metrics.ResultExpired).Inc()
		return &models.ValidateResult{Message: msgExpiredToken, Err: session.ErrTokenExpired}
	case errors.Is(err, session.ErrTokenInvalid):
		metrics.TokenValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		return &models.ValidateResult{Message: msgInvalidToken, Err: session.ErrTokenInvalid}
	case errors.Is(err, session.ErrSessionNotFound):
		metrics.TokenValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		return &models.ValidateResult{Message: msgSessionNotFound, Err: session.ErrSessionNotFound}
	case errors.Is(err, session.ErrUserInactive):
		metrics.TokenValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		return &models.ValidateResult{Message: msgUserInactive, Err: session.ErrUserInactive}
	default:
		metrics.TokenValidations.WithLabelValues(metrics.ResultError).Inc()
		return &models.ValidateResult{Message: msgInternal, Err: ErrInternal}
	}
}

// RefreshToken exchanges a valid token for a new one and revokes the old session.
func (s *AuthService) RefreshToken(ctx context.Context, token, ipAddress, userAgent string) *models.LoginResult {
	v, err := s.sessions.Validate(ctx, token, ipAddress)
	if err != nil {
		failure := validationFailure(err)
		if errors.Is(failure.Err, ErrInternal) {
			s.internal(ctx, "Failed to validate token for refresh", err)
		}
		return &models.LoginResult{Message: failure.Message, Err: failure.Err}
	}

	// Revoke before issuing so that only one of two concurrent refreshes of
	// the same token can succeed.
	changed, err := s.sessions.Revoke(ctx, v.Session.ID, models.RevokeReasonRefresh)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to revoke superseded session", err)}
	}
	if !changed {
		metrics.TokenValidations.WithLabelValues(metrics.ResultInvalid).Inc()
		return &models.LoginResult{Message: msgSessionNotFound, Err: session.ErrSessionNotFound}
	}
	metrics.SessionsRevoked.WithLabelValues(models.RevokeReasonRefresh).Inc()

	issued, err := s.sessions.Issue(ctx, v.User.ID, v.User.Username, v.User.Role, ipAddress, userAgent)
	if err != nil {
		return &models.LoginResult{Message: msgInternal, Err: s.internal(ctx, "Failed to issue refreshed session", err)}
	}
	metrics.SessionsIssued.Inc()

	degraded := s.record(ctx, &models.AuditEvent{
		UserID:    &v.User.ID,
		Action:    models.ActionTokenRefreshed,
		Resource:  models.ResourceSession,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
	s.log.WithContext(ctx).Info("Session refreshed",
		logging.UserID(v.User.ID),
		logging.SessionID(issued.Session.ID),
	)

	return &models.LoginResult{
		Success:       true,
		Token:         issued.Token,
		ExpiresIn:     int64(issued.ExpiresIn.Seconds()),
		User:          v.User.ToResponse(),
		Message:       "Token refreshed",
		AuditDegraded: degraded,
	}
}

// Logout revokes the session behind token. It accepts expired tokens and
// succeeds when the session is already inactive.
func (s *AuthService) Logout(ctx context.Context, token, ipAddress, userAgent string) *models.ActionResult {
	claims, err := s.sessions.Inspect(token)
	if err != nil {
		return &models.ActionResult{Message: msgInvalidToken, Err: session.ErrTokenInvalid}
	}

	changed, err := s.sessions.Revoke(ctx, claims.SessionID, models.RevokeReasonLogout)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to revoke session", err)}
	}
	if changed {
		metrics.SessionsRevoked.WithLabelValues(models.RevokeReasonLogout).Inc()
	}

	degraded := s.record(ctx, &models.AuditEvent{
		UserID:    &claims.UserID,
		Action:    models.ActionLogout,
		Resource:  models.ResourceSession,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
	s.log.WithContext(ctx).Info("User logged out",
		logging.UserID(claims.UserID),
		logging.SessionID(claims.SessionID),
	)

	return &models.ActionResult{Success: true, Message: "Logged out successfully", AuditDegraded: degraded}
}
