package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/adminauth/internal/models"
)

// Postgres stores timestamps with microsecond precision.
var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestUser(username string) *models.User {
	return &models.User{
		ID:                 uuid.NewString(),
		Username:           username,
		Email:              username + "@" + gofakeit.DomainName(),
		FullName:           gofakeit.Name(),
		Role:               models.RoleOperator,
		IsActive:           true,
		PasswordHash:       []byte("0123456789abcdef0123456789abcdef"),
		PasswordSalt:       []byte("fedcba9876543210fedcba9876543210"),
		PasswordIterations: 1000,
		CreatedAt:          baseTime,
		UpdatedAt:          baseTime,
	}
}

func newTestSession(userID string, created time.Time, ttl time.Duration) *models.Session {
	return &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IPAddress: gofakeit.IPv4Address(),
		UserAgent: gofakeit.UserAgent(),
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
		IsActive:  true,
	}
}

// runRepositoryTests exercises behavior every Repository implementation must share.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("CreateUser", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := newTestUser("testuser")
		require.NoError(t, repo.CreateUser(ctx, first))

		tests := []struct {
			name   string
			mutate func(u *models.User)
		}{
			{name: "duplicate username", mutate: func(u *models.User) { u.Username = "testuser" }},
			{name: "duplicate username different case", mutate: func(u *models.User) { u.Username = "TestUser" }},
			{name: "duplicate email", mutate: func(u *models.User) { u.Email = first.Email }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				u := newTestUser("other" + gofakeit.LetterN(6))
				tt.mutate(u)
				err := repo.CreateUser(ctx, u)
				if !errors.Is(err, ErrUserExists) {
					t.Fatalf("Expected ErrUserExists, got %v", err)
				}
			})
		}

		got, err := repo.GetUserByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Username, got.Username)
		assert.Equal(t, first.Email, got.Email)
		assert.Equal(t, first.Role, got.Role)
		assert.Equal(t, first.PasswordHash, got.PasswordHash)
		assert.Equal(t, first.PasswordIterations, got.PasswordIterations)
	})

	t.Run("GetUserByID not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetUserByID(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("FindUserByLogin", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("Alice")
		user.Email = "alice@example.com"
		require.NoError(t, repo.CreateUser(ctx, user))

		for _, login := range []string{"Alice", "alice", "ALICE", "alice@example.com", "Alice@Example.COM"} {
			got, err := repo.FindUserByLogin(ctx, login)
			if err != nil {
				t.Fatalf("FindUserByLogin(%q) failed: %v", login, err)
			}
			assert.Equal(t, user.ID, got.ID, login)
		}

		_, err := repo.FindUserByLogin(ctx, "bob")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("ListUsers", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateUser(ctx, newTestUser(gofakeit.LetterN(10))))
		}
		users, err := repo.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 3)
	})

	t.Run("UpdateUser", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("updater")
		require.NoError(t, repo.CreateUser(ctx, user))

		locked := baseTime.Add(30 * time.Minute)
		updated, err := repo.UpdateUser(ctx, user.ID, func(u *models.User) error {
			u.FailedLoginAttempts = 5
			u.LockedUntil = &locked
			u.Role = models.RoleReadonly
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 5, updated.FailedLoginAttempts)

		got, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.FailedLoginAttempts)
		assert.Equal(t, models.RoleReadonly, got.Role)
		require.NotNil(t, got.LockedUntil)
		assert.True(t, locked.Equal(*got.LockedUntil))
	})

	t.Run("UpdateUser callback error writes nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("rollback")
		require.NoError(t, repo.CreateUser(ctx, user))

		boom := errors.New("boom")
		_, err := repo.UpdateUser(ctx, user.ID, func(u *models.User) error {
			u.FailedLoginAttempts = 3
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.FailedLoginAttempts)
	})

	t.Run("UpdateUser not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.UpdateUser(context.Background(), uuid.NewString(), func(u *models.User) error { return nil })
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("malformed ids match nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("uuiduser")
		require.NoError(t, repo.CreateUser(ctx, user))
		require.NoError(t, repo.CreateSession(ctx, newTestSession(user.ID, baseTime, time.Hour)))

		for _, id := range []string{"does-not-exist", "1 OR 1=1", user.ID + "x"} {
			_, err := repo.GetUserByID(ctx, id)
			assert.ErrorIs(t, err, ErrUserNotFound, id)

			_, err = repo.UpdateUser(ctx, id, func(u *models.User) error { return nil })
			assert.ErrorIs(t, err, ErrUserNotFound, id)

			n, err := repo.DeactivateUserSessions(ctx, id, models.RevokeReasonDeactivated, baseTime)
			require.NoError(t, err, id)
			assert.Zero(t, n, id)

			sessions, err := repo.ListActiveSessions(ctx, id, baseTime)
			require.NoError(t, err, id)
			assert.Empty(t, sessions, id)

			events, err := repo.ListAuditEvents(ctx, id, 10)
			require.NoError(t, err, id)
			assert.Empty(t, events, id)
		}

		sessions, err := repo.ListActiveSessions(ctx, user.ID, baseTime)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("UpdateUser serializes concurrent increments", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("counter")
		require.NoError(t, repo.CreateUser(ctx, user))

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.UpdateUser(ctx, user.ID, func(u *models.User) error {
					u.FailedLoginAttempts++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, workers, got.FailedLoginAttempts)
	})

	t.Run("Sessions", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		user := newTestUser("sessionuser")
		require.NoError(t, repo.CreateUser(ctx, user))

		session := newTestSession(user.ID, baseTime, time.Hour)
		require.NoError(t, repo.CreateSession(ctx, session))
		assert.ErrorIs(t, repo.CreateSession(ctx, session), ErrSessionExists)

		got, err := repo.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		assert.Equal(t, user.ID, got.UserID)

		changed, err := repo.DeactivateSession(ctx, session.ID, models.RevokeReasonLogout, baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.DeactivateSession(ctx, session.ID, models.RevokeReasonLogout, baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, changed, "second deactivation is a no-op")

		got, err = repo.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, baseTime.Add(time.Minute).Equal(*got.RevokedAt))
		assert.Equal(t, models.RevokeReasonLogout, got.RevokeReason)

		_, err = repo.DeactivateSession(ctx, "missing", models.RevokeReasonLogout, baseTime)
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = repo.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("ListActiveSessions and sweeping", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		alice := newTestUser("alice")
		bob := newTestUser("bob")
		require.NoError(t, repo.CreateUser(ctx, alice))
		require.NoError(t, repo.CreateUser(ctx, bob))

		older := newTestSession(alice.ID, baseTime, time.Hour)
		newer := newTestSession(alice.ID, baseTime.Add(10*time.Minute), time.Hour)
		expired := newTestSession(alice.ID, baseTime.Add(-2*time.Hour), time.Hour)
		other := newTestSession(bob.ID, baseTime, time.Hour)
		for _, s := range []*models.Session{older, newer, expired, other} {
			require.NoError(t, repo.CreateSession(ctx, s))
		}

		now := baseTime.Add(20 * time.Minute)
		sessions, err := repo.ListActiveSessions(ctx, alice.ID, now)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, newer.ID, sessions[0].ID)
		assert.Equal(t, older.ID, sessions[1].ID)

		all, err := repo.ListActiveSessions(ctx, "", now)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		swept, err := repo.DeactivateExpiredSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, swept)

		got, err := repo.GetSession(ctx, expired.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, models.RevokeReasonExpired, got.RevokeReason)

		n, err := repo.DeactivateUserSessions(ctx, alice.ID, models.RevokeReasonPasswordChange, now)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		sessions, err = repo.ListActiveSessions(ctx, alice.ID, now)
		require.NoError(t, err)
		assert.Empty(t, sessions)

		sessions, err = repo.ListActiveSessions(ctx, bob.ID, now)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("Audit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		userID := uuid.NewString()
		for i := 0; i < 5; i++ {
			event := &models.AuditEvent{
				ID:        uuid.NewString(),
				UserID:    &userID,
				Action:    models.ActionLoginFailed,
				Resource:  models.ResourceSession,
				IPAddress: "10.0.0.1",
				Success:   false,
				Timestamp: baseTime.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, repo.AppendAudit(ctx, event))
		}
		require.NoError(t, repo.AppendAudit(ctx, &models.AuditEvent{
			ID:           uuid.NewString(),
			Action:       models.ActionLoginFailed,
			Resource:     models.ResourceSession,
			ErrorMessage: models.StringPtr("unknown user"),
			Timestamp:    baseTime.Add(time.Minute),
		}))

		events, err := repo.ListAuditEvents(ctx, userID, 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.True(t, baseTime.Add(4*time.Second).Equal(events[0].Timestamp))
		assert.Equal(t, userID, models.StringValue(events[0].UserID))

		all, err := repo.ListAuditEvents(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, all, 6)
		assert.Nil(t, all[0].UserID)
		assert.Equal(t, "unknown user", models.StringValue(all[0].ErrorMessage))
	})
}
