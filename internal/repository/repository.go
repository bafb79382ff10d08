package repository

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/adminauth/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// UserStore owns user rows. Users are never deleted, only deactivated.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// FindUserByLogin matches login against username or email, case-insensitively.
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	// UpdateUser loads the row, applies fn and writes the result back atomically
	// with respect to other UpdateUser calls on the same row. If fn returns an
	// error nothing is written and that error is returned.
	UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error)
}

// SessionStore owns session rows, keyed by session ID.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// DeactivateSession flips an active session to inactive and reports whether
	// this call made the transition. Unknown IDs return ErrSessionNotFound.
	DeactivateSession(ctx context.Context, id, reason string, at time.Time) (bool, error)
	DeactivateUserSessions(ctx context.Context, userID, reason string, at time.Time) (int, error)
	// ListActiveSessions returns unexpired active sessions, newest first.
	// An empty userID lists sessions of all users.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)
	DeactivateExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// AuditStore appends audit events. There is no update or delete.
type AuditStore interface {
	AppendAudit(ctx context.Context, event *models.AuditEvent) error
	// ListAuditEvents returns the most recent events, newest first.
	// An empty userID lists events for all users.
	ListAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error)
}

// Repository is the full storage adapter used by the service.
type Repository interface {
	UserStore
	SessionStore
	AuditStore
	Ping(ctx context.Context) error
	Close()
}
