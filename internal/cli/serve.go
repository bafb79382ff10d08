package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/adminauth/internal/handlers"
	"github.com/telhawk-systems/adminauth/internal/httputil"
	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/middleware"
	"github.com/telhawk-systems/adminauth/internal/models"
	"github.com/telhawk-systems/adminauth/internal/ratelimit"
	"github.com/telhawk-systems/adminauth/internal/server"
)

// loginLimiterName prefixes the Redis keys of the login rate limiter.
const loginLimiterName = "login"

func newServeCmd(st *rootState) *cobra.Command {
	var adminUsername, adminEmail string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the authentication HTTP API.

On an empty store, set ADMINAUTH_ADMIN_PASSWORD to create an initial
super_admin account named by --admin-username.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), st, adminUsername, adminEmail)
		},
	}
	cmd.Flags().StringVar(&adminUsername, "admin-username", "admin", "username of the bootstrap super_admin")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "admin@localhost.localdomain", "email of the bootstrap super_admin")
	return cmd
}

func runServe(ctx context.Context, st *rootState, adminUsername, adminEmail string) error {
	cfg, log := st.cfg, st.log
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting adminauth service",
		"port", cfg.Server.Port,
		"database", cfg.Database.Type,
		"log_level", cfg.Logging.Level,
	)

	a, err := openApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := bootstrapAdmin(ctx, a, adminUsername, adminEmail, os.Getenv("ADMINAUTH_ADMIN_PASSWORD")); err != nil {
		return err
	}

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled {
		l, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, loginLimiterName, cfg.Redis.LoginLimit, cfg.Redis.LoginWindow)
		if err != nil {
			log.Warn("Login rate limiting disabled", logging.Error(err))
		} else {
			log.Info("Login rate limiting enabled", "limit", cfg.Redis.LoginLimit, "window", cfg.Redis.LoginWindow.String())
			limiter = l
		}
	}
	defer limiter.Close()

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	if len(proxies) > 0 {
		log.Info("Forwarding headers trusted", "proxies", cfg.Server.TrustedProxies)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	router := server.NewRouter(
		handlers.NewAuthHandler(a.svc, a.repo),
		middleware.NewAuthMiddleware(a.svc),
		server.Options{
			MetricsPath:    metricsPath,
			LoginLimiter:   limiter,
			Logger:         log,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			TrustedProxies: proxies,
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go sweepLoop(ctx, a, cfg.Auth.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info("adminauth listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server stopped gracefully")
	return nil
}

// sweepLoop deactivates expired sessions every interval until ctx ends.
func sweepLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by the service; the next tick retries.
			_, _ = a.svc.SweepExpiredSessions(ctx)
		}
	}
}

// bootstrapAdmin creates the first super_admin when the store has no users.
func bootstrapAdmin(ctx context.Context, a *app, username, email, pw string) error {
	users, err := a.svc.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	if pw == "" {
		a.log.Warn("No users exist and ADMINAUTH_ADMIN_PASSWORD is not set; nobody can log in")
		return nil
	}

	res := a.svc.CreateUser(ctx, &models.CreateUserRequest{
		Username: username,
		Email:    email,
		Password: pw,
		Role:     string(models.RoleSuperAdmin),
	}, "", cliAddress, cliUserAgent)
	if !res.Success {
		return fmt.Errorf("failed to create bootstrap admin: %v", res.Errors)
	}
	a.log.Info("Bootstrap super_admin created", logging.Username(username))
	return nil
}
