// Package lockout decides when repeated failed logins lock an account.
//
// The policy is per-account. It only computes transitions on a models.User; the
// repository applies them inside an atomic read-modify-write so concurrent
// failures against the same account cannot under-count.
package lockout

import (
	"time"

	"github.com/telhawk-systems/adminauth/internal/models"
)

const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 30 * time.Minute
)

// Policy holds the lockout thresholds.
type Policy struct {
	MaxAttempts int
	Duration    time.Duration
}

// NewPolicy returns a Policy, substituting defaults for non-positive values.
func NewPolicy(maxAttempts int, duration time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Policy{MaxAttempts: maxAttempts, Duration: duration}
}

// IsLocked reports whether u may not attempt authentication at now.
//
// A future locked_until locks the account. A counter at or above the threshold
// with no locked_until also locks it, which covers partially written rows. Once
// locked_until has passed the account is unlocked; the stale counter is cleared
// by the next RecordFailure or RecordSuccess.
func (p Policy) IsLocked(u *models.User, now time.Time) bool {
	if u.LockedUntil != nil {
		return now.Before(*u.LockedUntil)
	}
	return u.FailedLoginAttempts >= p.MaxAttempts
}

// RecordFailure applies a failed attempt to u and reports whether this attempt
// moved the account into the locked state.
func (p Policy) RecordFailure(u *models.User, now time.Time) bool {
	if u.LockedUntil != nil && !now.Before(*u.LockedUntil) {
		// Previous lock expired: start a fresh window.
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}

	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= p.MaxAttempts && u.LockedUntil == nil {
		until := now.Add(p.Duration)
		u.LockedUntil = &until
		return true
	}
	return false
}

// RecordSuccess resets the counter and clears any lock.
func (p Policy) RecordSuccess(u *models.User) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
}

// Remaining returns how long u stays locked, or 0.
func (p Policy) Remaining(u *models.User, now time.Time) time.Duration {
	if u.LockedUntil == nil {
		if u.FailedLoginAttempts >= p.MaxAttempts {
			return p.Duration
		}
		return 0
	}
	if d := u.LockedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
