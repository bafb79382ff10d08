package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authentication metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminauth_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"result"},
	)

	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adminauth_account_lockouts_total",
			Help: "Total number of accounts transitioned to locked",
		},
	)

	TokenValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminauth_token_validations_total",
			Help: "Total number of token validations by outcome",
		},
		[]string{"result"},
	)

	PasswordChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminauth_password_changes_total",
			Help: "Total number of password change attempts by outcome",
		},
		[]string{"result"},
	)

	// Session metrics
	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adminauth_sessions_issued_total",
			Help: "Total number of sessions issued",
		},
	)

	SessionsRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminauth_sessions_revoked_total",
			Help: "Total number of sessions revoked by reason",
		},
		[]string{"reason"},
	)

	// Password hashing metrics
	HashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adminauth_password_hash_duration_seconds",
			Help:    "Duration of password hash computations in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Audit metrics
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adminauth_audit_write_failures_total",
			Help: "Total number of audit events that could not be persisted",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminauth_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adminauth_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultLocked  = "locked"
	ResultError   = "error"
	ResultExpired = "expired"
	ResultInvalid = "invalid"
)
