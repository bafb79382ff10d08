// Package session issues, validates and revokes server-side session tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/repository"
	"github.com/telhawk-systems/adminauth/internal/tokens"
)

var (
	ErrTokenInvalid    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrSessionNotFound = errors.New("session not found or revoked")
	ErrUserInactive    = errors.New("user account is inactive")
)

const (
	DefaultTimeout          = time.Hour
	DefaultRefreshThreshold = 5 * time.Minute
)

// UserLookup resolves the owner of a session.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Config struct {
	Timeout          time.Duration
	RefreshThreshold time.Duration
}

type Service struct {
	signer *tokens.Signer
	store  repository.SessionStore
	users  UserLookup
	cfg    Config
	now    func() time.Time
	log    *logging.Logger
}

func NewService(secret string, store repository.SessionStore, users UserLookup, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	return &Service{
		signer: tokens.NewSigner(secret),
		store:  store,
		users:  users,
		cfg:    cfg,
		now:    time.Now,
		log:    logging.Default(),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.signer.WithClock(now)
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

// Issued is a freshly created session and its signed token.
type Issued struct {
	Token     string
	Session   *models.Session
	ExpiresIn time.Duration
}

// Issue persists a new active session and returns its token.
func (s *Service) Issue(ctx context.Context, userID, username string, role models.Role, ip, userAgent string) (*Issued, error) {
	sessionID, err := tokens.GenerateSessionID()
	if err != nil {
		return nil, err
	}

	// JWT times have second resolution; keep the row in step with the token.
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.cfg.Timeout)

	token, err := s.signer.Sign(tokens.Claims{
		UserID:    userID,
		Username:  username,
		Role:      string(role),
		SessionID: sessionID,
		IPAddress: ip,
	}, issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        sessionID,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: issuedAt,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return &Issued{Token: token, Session: session, ExpiresIn: s.cfg.Timeout}, nil
}

// Validation is the outcome of a successful Validate.
type Validation struct {
	Claims       *tokens.Claims
	Session      *models.Session
	User         *models.User
	NeedsRefresh bool
	ExpiresIn    time.Duration
}

// Validate checks the token signature and payload expiry, then requires an
// active, unexpired session row owned by an active user. ip is compared with
// the address the token was issued to, but a mismatch is only logged.
func (s *Service) Validate(ctx context.Context, token, ip string) (*Validation, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, tokens.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	session, err := s.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.IsActive {
		return nil, ErrSessionNotFound
	}
	if session.UserID != claims.UserID {
		return nil, ErrTokenInvalid
	}

	now := s.now()
	if session.ExpiredAt(now) {
		return nil, ErrTokenExpired
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session owner: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if ip != "" && claims.IPAddress != "" && ip != claims.IPAddress {
		s.log.WithContext(ctx).Warn("Session used from a different IP",
			logging.SessionID(session.ID),
			logging.UserID(user.ID),
			logging.IP(ip),
			"issued_ip", claims.IPAddress,
		)
	}

	expiresAt := claims.ExpiresAtTime()
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	remaining := expiresAt.Sub(now)

	return &Validation{
		Claims:       claims,
		Session:      session,
		User:         user,
		NeedsRefresh: remaining < s.cfg.RefreshThreshold,
		ExpiresIn:    remaining,
	}, nil
}

// Inspect verifies only the signature, so callers can act on the session
// behind a token that has already expired.
func (s *Service) Inspect(token string) (*tokens.Claims, error) {
	claims, err := s.signer.Inspect(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Revoke deactivates one session. Revoking an inactive session is a no-op;
// the bool reports whether this call did the deactivation.
func (s *Service) Revoke(ctx context.Context, sessionID, reason string) (bool, error) {
	changed, err := s.store.DeactivateSession(ctx, sessionID, reason, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return false, ErrSessionNotFound
		}
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return changed, nil
}

// RevokeAllForUser deactivates every active session of userID.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	n, err := s.store.DeactivateUserSessions(ctx, userID, reason, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return n, nil
}

// ListActive returns unexpired active sessions, for one user or all users.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.store.ListActiveSessions(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// SweepExpired marks sessions past their expiry as inactive.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeactivateExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return n, nil
}
