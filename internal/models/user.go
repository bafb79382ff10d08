package models

import (
	"strings"
	"time"
)

// Role is the administrative role label carried by a user and its tokens.
// No permission evaluation happens here; callers decide what a role may do.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleServerAdmin   Role = "server_admin"
	RoleMetricsViewer Role = "metrics_viewer"
	RoleOperator      Role = "operator"
	RoleReadonly      Role = "readonly"
)

// Roles lists every valid role.
var Roles = []Role{RoleSuperAdmin, RoleServerAdmin, RoleMetricsViewer, RoleOperator, RoleReadonly}

// ParseRole returns the Role matching s, ignoring case and surrounding space.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// User is an administrative account.
// IDs are UUIDv7, so the ID timestamp doubles as created_at.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`

	// Credential. Salt and hash are stored separately; Iterations is the PBKDF2
	// cost the hash was computed with.
	PasswordHash       []byte `json:"-"`
	PasswordSalt       []byte `json:"-"`
	PasswordIterations int    `json:"-"`

	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	LastIP              *string    `json:"last_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of u so stores never hand out shared mutable rows.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	c.PasswordSalt = append([]byte(nil), u.PasswordSalt...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.LastIP != nil {
		ip := *u.LastIP
		c.LastIP = &ip
	}
	return &c
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name,omitempty"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// ToResponse converts a User to its API representation.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
	}
}
