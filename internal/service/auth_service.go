// Package service implements the authentication and session lifecycle core.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/telhawk-systems/adminauth/internal/audit"
	"github.com/telhawk-systems/adminauth/internal/lockout"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/metrics"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/repository"
	"github.com/telhawk-systems/adminauth/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInternal           = errors.New("internal error")

	// errCredentialChanged aborts a user update when the stored password no
	// longer matches the one that was verified.
	errCredentialChanged = errors.New("credential changed since verification")
)

// User-facing messages. Credential failures share one message so callers
// cannot tell an unknown username from a wrong password.
const (
	msgInvalidCredentials = "Invalid username or password"
	msgInternal           = "internal error"
	msgInvalidToken       = "Invalid token"
	msgExpiredToken       = "Token expired"
	msgSessionNotFound    = "Session not found or revoked"
	msgUserInactive       = "User account is inactive"
)

type AuthService struct {
	users    repository.UserStore
	sessions *session.Service
	auditLog *audit.Logger
	hasher   *password.Hasher
	lockout  lockout.Policy
	policy   password.Policy
	log      *logging.Logger
	now      func() time.Time
}

func NewAuthService(
	users repository.UserStore,
	sessions *session.Service,
	auditLog *audit.Logger,
	hasher *password.Hasher,
	lockoutPolicy lockout.Policy,
	passwordPolicy password.Policy,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		auditLog: auditLog,
		hasher:   hasher,
		lockout:  lockoutPolicy,
		policy:   passwordPolicy,
		log:      logging.Default(),
		now:      time.Now,
	}
}

func (s *AuthService) WithLogger(log *logging.Logger) *AuthService {
	s.log = log
	return s
}

// WithClock sets the time source for lockout decisions and timestamps.
// The session service keeps its own clock.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// record appends an audit event and reports whether the write failed.
func (s *AuthService) record(ctx context.Context, event *models.AuditEvent) (degraded bool) {
	if err := s.auditLog.Append(ctx, event); err != nil {
		metrics.AuditWriteFailures.Inc()
		return true
	}
	return false
}

// internal logs the full cause and returns the generic error kind.
func (s *AuthService) internal(ctx context.Context, msg string, err error) error {
	s.log.WithContext(ctx).Error(msg, logging.Error(err))
	return ErrInternal
}

func (s *AuthService) verify(pw string, user *models.User) (bool, error) {
	start := time.Now()
	defer func() { metrics.HashDuration.Observe(time.Since(start).Seconds()) }()

	return s.hasher.Verify(pw, password.Credential{
		Hash:       user.PasswordHash,
		Salt:       user.PasswordSalt,
		Iterations: user.PasswordIterations,
	})
}

// sameCredential reports whether u still carries the hash and salt that were
// verified against verified.
func sameCredential(u, verified *models.User) bool {
	return bytes.Equal(u.PasswordHash, verified.PasswordHash) &&
		bytes.Equal(u.PasswordSalt, verified.PasswordSalt)
}

func (s *AuthService) hash(pw string) (password.Credential, error) {
	start := time.Now()
	defer func() { metrics.HashDuration.Observe(time.Since(start).Seconds()) }()

	return s.hasher.Hash(pw, nil)
}

func lockedMessage(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Account is locked due to too many failed login attempts. Try again in %d minute(s)", minutes)
}
