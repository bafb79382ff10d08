package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/telhawk-systems/adminauth/internal/audit"
	"github.com/telhawk-systems/adminauth/internal/config"
	"github.com/telhawk-systems/adminauth/internal/lockout"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/messaging"
	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/repository"
	"github.com/telhawk-systems/adminauth/internal/service"
	"github.com/telhawk-systems/adminauth/internal/session"
	"github.com/telhawk-systems/adminauth/migrations"
)

const (
	cliUserAgent = "adminauth-cli"
	cliAddress   = "local"
)

// app is the wired service stack shared by serve and the admin commands.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	repo      repository.Repository
	svc       *service.AuthService
	publisher messaging.Publisher
}

// openApp connects the configured store and builds the auth service.
// With migrate set, PostgreSQL migrations run before anything else.
func openApp(ctx context.Context, cfg *config.Config, log *logging.Logger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, log: log, publisher: messaging.NoopPublisher{}}

	jwtSecret, auditSecret := cfg.Auth.JWTSecret, cfg.Auth.AuditSecret

	switch cfg.Database.Type {
	case "postgres":
		p := cfg.Database.Postgres
		log.Info("Connecting to PostgreSQL", "host", p.Host, "port", p.Port, "database", p.Database)

		if migrate {
			status, err := migrations.Up(cfg.DatabaseURL())
			if err != nil {
				return nil, err
			}
			log.Info("Database migration complete", "version", status.Version, "dirty", status.Dirty)
		}

		repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		a.repo = repo
	default:
		log.Warn("Using in-memory repository (development only)")
		a.repo = repository.NewInMemoryRepository()
		if jwtSecret == "" {
			jwtSecret = ephemeralSecret()
			log.Warn("auth.jwt_secret not set, tokens will not survive a restart")
		}
		if auditSecret == "" {
			auditSecret = ephemeralSecret()
			log.Warn("auth.audit_secret not set, audit signatures will not verify after a restart")
		}
	}

	if cfg.NATS.Enabled {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		pub, err := messaging.NewNATSPublisher(natsCfg)
		if err != nil {
			log.Warn("Audit forwarding disabled", logging.Error(err))
		} else {
			log.Info("Forwarding audit events to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
			a.publisher = pub
		}
	}

	sessions := session.NewService(jwtSecret, a.repo, a.repo, session.Config{
		Timeout:          cfg.Auth.SessionTimeout,
		RefreshThreshold: cfg.Auth.RefreshThreshold,
	}).WithLogger(log)

	auditLog := audit.NewLogger(auditSecret, a.repo).WithLogger(log)
	if _, ok := a.publisher.(messaging.NoopPublisher); !ok {
		auditLog.WithPublisher(a.publisher, cfg.NATS.SubjectPrefix)
	}

	a.svc = service.NewAuthService(
		a.repo,
		sessions,
		auditLog,
		password.NewHasher(cfg.Auth.PBKDF2Iterations),
		lockout.NewPolicy(cfg.Auth.MaxAttempts, cfg.Auth.LockoutDuration),
		password.Policy{MinLength: cfg.Auth.MinPasswordLength},
	).WithLogger(log)

	return a, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("Failed to close publisher", logging.Error(err))
	}
	a.repo.Close()
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
