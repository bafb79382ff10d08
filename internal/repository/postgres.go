package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/adminauth/internal/models"
)

const queryTimeout = 5 * time.Second

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// canonicalID normalizes a UUID column key. Malformed ids match no row, so
// callers treat them as not found instead of sending them to the server.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `
	id, username, email, full_name, role, is_active,
	password_hash, password_salt, password_iterations,
	failed_login_attempts, locked_until, last_login, last_ip,
	created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user models.User
		role string
	)
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &role, &user.IsActive,
		&user.PasswordHash, &user.PasswordSalt, &user.PasswordIterations,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.LastLogin, &user.LastIP,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = models.Role(role)
	return &user, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.FullName, string(user.Role), user.IsActive,
		user.PasswordHash, user.PasswordSalt, user.PasswordIterations,
		user.FailedLoginAttempts, user.LockedUntil, user.LastLogin, user.LastIP,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	key, ok := canonicalID(id)
	if !ok {
		return nil, ErrUserNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, key))
}

func (r *PostgresRepository) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// A username match wins over an email match for the same input.
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		ORDER BY (LOWER(username) = LOWER($1)) DESC
		LIMIT 1
	`
	return scanUser(r.pool.QueryRow(ctx, query, login))
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser holds a row lock for the duration of fn, so concurrent updates
// of the same user are serialized.
func (r *PostgresRepository) UpdateUser(ctx context.Context, id string, fn func(u *models.User) error) (*models.User, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, key))
	if err != nil {
		return nil, err
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	query := `
		UPDATE users SET
			username = $2, email = $3, full_name = $4, role = $5, is_active = $6,
			password_hash = $7, password_salt = $8, password_iterations = $9,
			failed_login_attempts = $10, locked_until = $11, last_login = $12, last_ip = $13,
			updated_at = $14
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, query,
		key, user.Username, user.Email, user.FullName, string(user.Role), user.IsActive,
		user.PasswordHash, user.PasswordSalt, user.PasswordIterations,
		user.FailedLoginAttempts, user.LockedUntil, user.LastLogin, user.LastIP,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit user update: %w", err)
	}
	user.ID = id
	return user, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `
	session_id, user_id, ip_address, user_agent, created_at, expires_at,
	is_active, revoked_at, revoke_reason`

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID, &session.UserID, &session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.ExpiresAt, &session.IsActive,
		&session.RevokedAt, &session.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &session, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.IPAddress, session.UserAgent,
		session.CreatedAt, session.ExpiresAt, session.IsActive,
		session.RevokedAt, session.RevokeReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) DeactivateSession(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE sessions
		SET is_active = FALSE, revoked_at = $2, revoke_reason = $3
		WHERE session_id = $1 AND is_active
	`
	tag, err := r.pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	if !exists {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (r *PostgresRepository) DeactivateUserSessions(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	key, ok := canonicalID(userID)
	if !ok {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE sessions
		SET is_active = FALSE, revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1 AND is_active
	`
	tag, err := r.pool.Exec(ctx, query, key, at, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE is_active AND expires_at > $1
		ORDER BY created_at DESC
	`
	args := []any{now}
	if userID != "" {
		key, ok := canonicalID(userID)
		if !ok {
			return nil, nil
		}
		query = `
			SELECT ` + sessionColumns + `
			FROM sessions
			WHERE is_active AND expires_at > $1 AND user_id = $2
			ORDER BY created_at DESC
		`
		args = append(args, key)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresRepository) DeactivateExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE sessions
		SET is_active = FALSE, revoked_at = $1, revoke_reason = $2
		WHERE is_active AND expires_at <= $1
	`
	tag, err := r.pool.Exec(ctx, query, now, models.RevokeReasonExpired)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (r *PostgresRepository) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO audit_logs (id, user_id, actor_id, action, resource, ip_address,
			user_agent, success, error_message, timestamp, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID, event.UserID, event.ActorID, string(event.Action), event.Resource, event.IPAddress,
		event.UserAgent, event.Success, event.ErrorMessage, event.Timestamp, event.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	const selectEvents = `
		SELECT id, user_id::text, actor_id::text, action, resource, ip_address,
			user_agent, success, error_message, timestamp, signature
		FROM audit_logs`
	query := selectEvents + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	args := []any{limit}
	if userID != "" {
		key, ok := canonicalID(userID)
		if !ok {
			return nil, nil
		}
		query = selectEvents + `
		WHERE user_id = $2
		ORDER BY timestamp DESC
		LIMIT $1
	`
		args = append(args, key)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var (
			event  models.AuditEvent
			action string
		)
		if err := rows.Scan(
			&event.ID, &event.UserID, &event.ActorID, &action, &event.Resource, &event.IPAddress,
			&event.UserAgent, &event.Success, &event.ErrorMessage, &event.Timestamp, &event.Signature,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Action = models.AuditAction(action)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}
