package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/repository"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
)

func validateUsername(username string) string {
	switch {
	case len(username) < minUsernameLength || len(username) > maxUsernameLength:
		return "username must be between 3 and 64 characters"
	case strings.IndexFunc(username, unicode.IsSpace) >= 0:
		return "username must not contain whitespace"
	case strings.Contains(username, "@"):
		return "username must not contain '@'"
	}
	return ""
}

// CreateUser provisions a new account. actorID identifies the administrator
// and may be empty for bootstrap provisioning from the CLI.
func (s *AuthService) CreateUser(ctx context.Context, req *models.CreateUserRequest, actorID, ipAddress, userAgent string) *models.CreateUserResult {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	var fieldErrors []string
	if msg := validateUsername(username); msg != "" {
		fieldErrors = append(fieldErrors, msg)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fieldErrors = append(fieldErrors, "email must be a valid address")
	}
	role := models.RoleReadonly
	if req.Role != "" {
		parsed, ok := models.ParseRole(req.Role)
		if !ok {
			fieldErrors = append(fieldErrors, "role must be one of super_admin, server_admin, metrics_viewer, operator, readonly")
		}
		role = parsed
	}
	strong, reasons := s.policy.Validate(req.Password)

	failed := func(reason string) bool {
		return s.record(ctx, &models.AuditEvent{
			ActorID:      models.StringPtr(actorID),
			Action:       models.ActionUserCreated,
			Resource:     models.ResourceUser,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
			ErrorMessage: models.StringPtr(reason),
		})
	}

	if len(fieldErrors) > 0 || !strong {
		kind := ErrInvalidInput
		if len(fieldErrors) == 0 {
			kind = password.ErrWeakPassword
		}
		degraded := failed("validation failed")
		return &models.CreateUserResult{
			Errors:        append(fieldErrors, reasons...),
			AuditDegraded: degraded,
			Err:           kind,
		}
	}

	cred, err := s.hash(req.Password)
	if err != nil {
		return &models.CreateUserResult{Errors: []string{msgInternal}, Err: s.internal(ctx, "Failed to hash password", err)}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return &models.CreateUserResult{Errors: []string{msgInternal}, Err: s.internal(ctx, "Failed to generate user ID", err)}
	}

	now := s.now()
	user := &models.User{
		ID:                 id.String(),
		Username:           username,
		Email:              email,
		FullName:           strings.TrimSpace(req.FullName),
		Role:               role,
		IsActive:           true,
		PasswordHash:       cred.Hash,
		PasswordSalt:       cred.Salt,
		PasswordIterations: cred.Iterations,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			degraded := failed("username or email already exists")
			return &models.CreateUserResult{
				Errors:        []string{"username or email already exists"},
				AuditDegraded: degraded,
				Err:           ErrUserExists,
			}
		}
		return &models.CreateUserResult{Errors: []string{msgInternal}, Err: s.internal(ctx, "Failed to create user", err)}
	}

	degraded := s.record(ctx, &models.AuditEvent{
		UserID:    &user.ID,
		ActorID:   models.StringPtr(actorID),
		Action:    models.ActionUserCreated,
		Resource:  models.ResourceUser,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})
	s.log.WithContext(ctx).Info("User created",
		logging.UserID(user.ID),
		logging.Username(user.Username),
		"role", string(user.Role),
	)

	return &models.CreateUserResult{Success: true, User: user.ToResponse(), AuditDegraded: degraded}
}

// adminUpdate applies fn to the user row and audits the outcome under action.
func (s *AuthService) adminUpdate(ctx context.Context, userID, actorID, ipAddress, userAgent string, action models.AuditAction, fn func(u *models.User) error) (*models.User, *models.ActionResult) {
	event := &models.AuditEvent{
		UserID:    models.StringPtr(userID),
		ActorID:   models.StringPtr(actorID),
		Action:    action,
		Resource:  models.ResourceUser,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	updated, err := s.users.UpdateUser(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			event.UserID = nil
			event.ErrorMessage = models.StringPtr("user not found")
			return nil, &models.ActionResult{Message: "User not found", AuditDegraded: s.record(ctx, event), Err: ErrUserNotFound}
		}
		return nil, &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to update user", err)}
	}

	event.Success = true
	return updated, &models.ActionResult{Success: true, AuditDegraded: s.record(ctx, event)}
}

// UpdateRole changes the role of userID.
func (s *AuthService) UpdateRole(ctx context.Context, userID, role, actorID, ipAddress, userAgent string) *models.ActionResult {
	parsed, ok := models.ParseRole(role)
	if !ok {
		return &models.ActionResult{Message: "Invalid role", Errors: []string{"unknown role " + role}, Err: ErrInvalidInput}
	}

	now := s.now()
	updated, result := s.adminUpdate(ctx, userID, actorID, ipAddress, userAgent, models.ActionRoleUpdated, func(u *models.User) error {
		u.Role = parsed
		u.UpdatedAt = now
		return nil
	})
	if !result.Success {
		return result
	}

	s.log.WithContext(ctx).Info("Role updated", logging.UserID(updated.ID), "role", string(parsed), "actor_id", actorID)
	result.Message = "Role updated to " + string(parsed)
	return result
}

// DeactivateUser disables the account and revokes all of its sessions.
// Accounts are never deleted.
func (s *AuthService) DeactivateUser(ctx context.Context, userID, actorID, ipAddress, userAgent string) *models.ActionResult {
	if userID == actorID {
		return &models.ActionResult{Message: "You cannot deactivate your own account", Err: ErrInvalidInput}
	}

	now := s.now()
	_, result := s.adminUpdate(ctx, userID, actorID, ipAddress, userAgent, models.ActionUserDeactivated, func(u *models.User) error {
		u.IsActive = false
		u.UpdatedAt = now
		return nil
	})
	if !result.Success {
		return result
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, userID, models.RevokeReasonDeactivated)
	if err != nil {
		return &models.ActionResult{Message: msgInternal, Err: s.internal(ctx, "Failed to revoke sessions of deactivated user", err)}
	}

	s.log.WithContext(ctx).Info("User deactivated", logging.UserID(userID), "sessions_revoked", revoked, "actor_id", actorID)
	result.Message = "User deactivated"
	return result
}

// UnlockUser clears the failed-attempt counter and any lock on the account.
func (s *AuthService) UnlockUser(ctx context.Context, userID, actorID, ipAddress, userAgent string) *models.ActionResult {
	now := s.now()
	_, result := s.adminUpdate(ctx, userID, actorID, ipAddress, userAgent, models.ActionAccountUnlocked, func(u *models.User) error {
		s.lockout.RecordSuccess(u)
		u.UpdatedAt = now
		return nil
	})
	if !result.Success {
		return result
	}

	s.log.WithContext(ctx).Info("Account unlocked", logging.UserID(userID), "actor_id", actorID)
	result.Message = "Account unlocked"
	return result
}

// ListUsers returns every account, active or not.
func (s *AuthService) ListUsers(ctx context.Context) ([]*models.UserResponse, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, s.internal(ctx, "Failed to list users", err)
	}
	out := make([]*models.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	return out, nil
}

// GetUser returns one account.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.UserResponse, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal(ctx, "Failed to load user", err)
	}
	return user.ToResponse(), nil
}
