package models

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// LoginResult is returned by Authenticate and RefreshToken.
type LoginResult struct {
	Success       bool          `json:"success"`
	Token         string        `json:"token,omitempty"`
	ExpiresIn     int64         `json:"expires_in,omitempty"`
	User          *UserResponse `json:"user,omitempty"`
	Message       string        `json:"message,omitempty"`
	AuditDegraded bool          `json:"audit_degraded,omitempty"`
	Err           error         `json:"-"`
}

// ValidateResult is returned by ValidateToken.
type ValidateResult struct {
	Valid        bool   `json:"valid"`
	UserID       string `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`
	Role         Role   `json:"role,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	NeedsRefresh bool   `json:"needs_refresh,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds
	Message      string `json:"message,omitempty"`
	Err          error  `json:"-"`
}

// ActionResult is returned by Logout, ChangePassword and the user administration operations.
type ActionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
	// SessionsRetained is set when a password change was stored but the
	// user's existing sessions could not be revoked.
	SessionsRetained bool  `json:"sessions_retained,omitempty"`
	AuditDegraded    bool  `json:"audit_degraded,omitempty"`
	Err              error `json:"-"`
}

// CreateUserResult is returned by CreateUser.
type CreateUserResult struct {
	Success       bool          `json:"success"`
	User          *UserResponse `json:"user,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	AuditDegraded bool          `json:"audit_degraded,omitempty"`
	Err           error         `json:"-"`
}
