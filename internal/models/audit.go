package models

import "time"

// AuditAction names a security-relevant event.
type AuditAction string

const (
	ActionLoginSuccess         AuditAction = "LOGIN_SUCCESS"
	ActionLoginFailed          AuditAction = "LOGIN_FAILED"
	ActionLogout               AuditAction = "LOGOUT"
	ActionPasswordChanged      AuditAction = "PASSWORD_CHANGED"
	ActionPasswordChangeFailed AuditAction = "PASSWORD_CHANGE_FAILED"
	ActionUserCreated          AuditAction = "USER_CREATED"
	ActionRoleUpdated          AuditAction = "ROLE_UPDATED"
	ActionUserDeactivated      AuditAction = "USER_DEACTIVATED"
	ActionTokenRefreshed       AuditAction = "TOKEN_REFRESHED"
	ActionAccountUnlocked      AuditAction = "ACCOUNT_UNLOCKED"
)

// Audit resources.
const (
	ResourceSession = "session"
	ResourceUser    = "user"
)

// AuditEvent is an append-only security record. It is never updated or deleted.
type AuditEvent struct {
	ID           string      `json:"id"`
	UserID       *string     `json:"user_id"` // nil for attempts against unknown accounts
	ActorID      *string     `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	Resource     string      `json:"resource"`
	IPAddress    string      `json:"ip_address"`
	UserAgent    string      `json:"user_agent"`
	Success      bool        `json:"success"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Signature    string      `json:"signature"`
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
