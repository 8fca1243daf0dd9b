// internal/pkg/session/types.go
package session

import (
	"time"

	"dashboard-service/internal/domain/auth"
)

// SessionData is the server-side record of an issued session token. The
// token itself stays authoritative; this record exists for listing and
// forced sign-out.
type SessionData struct {
	JTI        string    `json:"jti"`
	IdentityID int64     `json:"identity_id"`
	Email      string    `json:"email"`
	Role       auth.Role `json:"role"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	LoginAt    time.Time `json:"login_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Stats summarises the session keyspace.
type Stats struct {
	ActiveSessions int64 `json:"active_sessions"`
	RevokedTokens  int64 `json:"revoked_tokens"`
}

// Limits configures the fixed-window rate limiter.
type Limits struct {
	LoginAttempts int64
	LoginWindow   time.Duration
	ResetRequests int64
	ResetWindow   time.Duration
	OTPAttempts   int64
	OTPWindow     time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		LoginAttempts: 5,
		LoginWindow:   15 * time.Minute,
		ResetRequests: 3,
		ResetWindow:   time.Hour,
		OTPAttempts:   5,
		OTPWindow:     10 * time.Minute,
	}
}

// Decision is the outcome of a single rate limit hit.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}
