package models

import "time"

// Session is the server-side record behind an issued token.
// A session goes active -> inactive exactly once and never back.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`

	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Revoke reasons recorded on the session row.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonRefresh        = "refresh"
	RevokeReasonDeactivated    = "user_deactivated"
	RevokeReasonExpired        = "expired"
)

// ExpiredAt reports whether the session has passed its expiry at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// SessionView is the introspection view of a session. The session ID is masked
// because it is the lookup key behind bearer tokens.
type SessionView struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToView converts s to its masked view.
func (s *Session) ToView() *SessionView {
	return &SessionView{
		SessionID: MaskToken(s.ID),
		UserID:    s.UserID,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// MaskToken keeps the first and last 8 characters of a secret.
func MaskToken(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:8] + "..." + token[len(token)-8:]
}
