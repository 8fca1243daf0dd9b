package auth

import "time"

// LoginRequest for credential login
type LoginRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse successful login response. The token itself travels in the
// session cookie only.
type LoginResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo minimal user information
type UserInfo struct {
	IdentityID int64  `json:"identity_id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Role       Role   `json:"role"`
}

// ResetRequest starts a password reset.
type ResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetVerifyRequest submits the emailed code.
type ResetVerifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ResetVerifyResponse carries the single-use reset ticket.
type ResetVerifyResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetCompleteRequest sets the new password.
type ResetCompleteRequest struct {
	Ticket      string `json:"ticket" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ResetCompleteResponse reports the advisory strength of the accepted password.
type ResetCompleteResponse struct {
	StrengthScore int      `json:"strength_score"`
	Suggestions   []string `json:"suggestions,omitempty"`
}
