package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/adminauth/internal/models"
)

// InMemoryRepository is a process-local Repository for development and tests.
// All rows are copied on the way in and out.
type InMemoryRepository struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	usernameIdx map[string]string // lower(username) -> id
	emailIdx    map[string]string // lower(email) -> id
	sessions    map[string]*models.Session
	audit       []*models.AuditEvent
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:       make(map[string]*models.User),
		usernameIdx: make(map[string]string),
		emailIdx:    make(map[string]string),
		sessions:    make(map[string]*models.Session),
	}
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *InMemoryRepository) Close() {}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return ErrUserExists
	}
	if _, exists := r.usernameIdx[foldKey(user.Username)]; exists {
		return ErrUserExists
	}
	if _, exists := r.emailIdx[foldKey(user.Email)]; exists {
		return ErrUserExists
	}

	r.users[user.ID] = user.Clone()
	r.usernameIdx[foldKey(user.Username)] = user.ID
	r.emailIdx[foldKey(user.Email)] = user.ID
	return nil
}

func (r *InMemoryRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *InMemoryRepository) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := foldKey(login)
	id, ok := r.usernameIdx[key]
	if !ok {
		id, ok = r.emailIdx[key]
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *InMemoryRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *InMemoryRepository) UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = id

	oldName, newName := foldKey(current.Username), foldKey(updated.Username)
	oldEmail, newEmail := foldKey(current.Email), foldKey(updated.Email)
	if other, taken := r.usernameIdx[newName]; taken && other != id {
		return nil, ErrUserExists
	}
	if other, taken := r.emailIdx[newEmail]; taken && other != id {
		return nil, ErrUserExists
	}
	delete(r.usernameIdx, oldName)
	delete(r.emailIdx, oldEmail)
	r.usernameIdx[newName] = id
	r.emailIdx[newEmail] = id

	r.users[id] = updated
	return updated.Clone(), nil
}

func (r *InMemoryRepository) CreateSession(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return ErrSessionExists
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *InMemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r *InMemoryRepository) DeactivateSession(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[id]
	if !exists {
		return false, ErrSessionNotFound
	}
	return deactivate(session, reason, at), nil
}

func (r *InMemoryRepository) DeactivateUserSessions(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, session := range r.sessions {
		if session.UserID == userID && deactivate(session, reason, at) {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*models.Session
	for _, session := range r.sessions {
		if !session.IsActive || session.ExpiredAt(now) {
			continue
		}
		if userID != "" && session.UserID != userID {
			continue
		}
		sessions = append(sessions, session.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (r *InMemoryRepository) DeactivateExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, session := range r.sessions {
		if session.IsActive && session.ExpiredAt(now) && deactivate(session, models.RevokeReasonExpired, now) {
			n++
		}
	}
	return n, nil
}

func deactivate(session *models.Session, reason string, at time.Time) bool {
	if !session.IsActive {
		return false
	}
	session.IsActive = false
	session.RevokedAt = &at
	session.RevokeReason = reason
	return true
}

func (r *InMemoryRepository) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *event
	r.audit = append(r.audit, &e)
	return nil
}

func (r *InMemoryRepository) ListAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*models.AuditEvent
	for i := len(r.audit) - 1; i >= 0; i-- {
		e := r.audit[i]
		if userID != "" && models.StringValue(e.UserID) != userID {
			continue
		}
		c := *e
		events = append(events, &c)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
