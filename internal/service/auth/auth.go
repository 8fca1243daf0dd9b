// internal/service/auth/auth.go
package auth

import (
	"context"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/metrics"
	xerrors "dashboard-service/internal/pkg/errors"
	"dashboard-service/internal/pkg/jwt"
	otpcode "dashboard-service/internal/pkg/otp"
	"dashboard-service/internal/pkg/session"

	"go.uber.org/zap"
)

// IdentityStore is the identity/credential collaborator.
type IdentityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error)
	FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error)
	VerifyPassword(ctx context.Context, email, password string) (*auth.Identity, error)
	UpdatePassword(ctx context.Context, id int64, newPassword string) error
	UpdateLastLogin(ctx context.Context, id int64) error
	CreateIdentity(ctx context.Context, identity *auth.Identity, password string) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CountByRole(ctx context.Context, role auth.Role) (int64, error)
}

// SessionStore tracks and revokes issued session tokens.
type SessionStore interface {
	Track(ctx context.Context, s *session.SessionData) error
	Revoke(ctx context.Context, identityID int64, jti string, ttl time.Duration) error
	RevokeAllBefore(ctx context.Context, identityID int64, at time.Time, ttl time.Duration) error
}

type RateLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, email string) (session.Decision, error)
	ResetLoginAttempts(ctx context.Context, ip, email string) error
	CheckResetRequest(ctx context.Context, email string) (session.Decision, error)
	CheckOTPAttempt(ctx context.Context, email string) (session.Decision, error)
	ResetOTPAttempts(ctx context.Context, email string) error
}

// SessionEvents pushes sign-out notices to connected dashboards and account
// activity to the admin audit feed.
type SessionEvents interface {
	ForceLogout(identityID int64, jti, reason string)
	Audit(action string, identityID int64, email string)
}

type AuthService struct {
	identities IdentityStore
	tokens     *jwt.Manager
	sessions   SessionStore
	limiter    RateLimiter
	events     SessionEvents
	metrics    metrics.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthService(
	identities IdentityStore,
	tokens *jwt.Manager,
	sessions SessionStore,
	limiter RateLimiter,
	events SessionEvents,
	recorder metrics.Recorder,
	logger *zap.Logger,
) *AuthService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AuthService{
		identities: identities,
		tokens:     tokens,
		sessions:   sessions,
		limiter:    limiter,
		events:     events,
		metrics:    recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// ========== Login ==========

// Login verifies credentials and issues a session token. The token is
// returned separately so the handler can place it in the cookie only.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (string, *auth.LoginResponse, error) {
	const op = "auth.Login"
	email := otpcode.NormalizeEmail(req.Email)

	decision, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress, email)
	if err != nil {
		s.logger.Warn("login rate limiter unavailable", zap.Error(err))
	} else if !decision.Allowed {
		s.metrics.RecordLogin("rate_limited")
		return "", nil, xerrors.New(xerrors.KindRateLimited, op, "too many login attempts, please try again later")
	}

	identity, err := s.identities.VerifyPassword(ctx, email, req.Password)
	if err != nil {
		if xerrors.IsKind(err, xerrors.KindUnauthorized) {
			s.metrics.RecordLogin("invalid_credentials")
			s.logger.Info("login failed", zap.String("email", email), zap.String("ip", req.IPAddress))
			return "", nil, xerrors.New(xerrors.KindUnauthorized, op, "invalid email or password")
		}
		s.metrics.RecordLogin("error")
		return "", nil, err
	}

	if identity.Status != auth.StatusActive {
		s.metrics.RecordLogin("inactive")
		return "", nil, xerrors.New(xerrors.KindForbidden, op, "account is not active")
	}

	token, claims, err := s.tokens.Issue(identity.ID, identity.Role, identity.DisplayName(), map[string]interface{}{
		"email": identity.Email,
	})
	if err != nil {
		s.metrics.RecordLogin("error")
		return "", nil, err
	}

	if err := s.sessions.Track(ctx, &session.SessionData{
		JTI:        claims.ID,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Role:       identity.Role,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		LoginAt:    claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}); err != nil {
		s.logger.Warn("failed to track session", zap.Int64("identity_id", identity.ID), zap.Error(err))
	}
	if err := s.limiter.ResetLoginAttempts(ctx, req.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}
	if err := s.identities.UpdateLastLogin(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.Int64("identity_id", identity.ID), zap.Error(err))
	}

	s.metrics.RecordLogin("success")
	if s.events != nil {
		s.events.Audit("login", identity.ID, identity.Email)
	}
	s.logger.Info("user logged in",
		zap.Int64("identity_id", identity.ID),
		zap.String("role", identity.Role.String()),
		zap.String("ip", req.IPAddress),
	)

	return token, &auth.LoginResponse{
		ExpiresAt: claims.ExpiresAt.Time,
		User:      UserInfoFromClaims(claims),
	}, nil
}

// ========== Logout ==========

// Logout revokes the token until its absolute expiry and tells other tabs
// of the same session to sign out.
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims) error {
	id, err := claims.SubjectID()
	if err != nil {
		return xerrors.E(xerrors.KindUnauthorized, "auth.Logout", err)
	}

	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}

	if err := s.sessions.Revoke(ctx, id, claims.ID, ttl); err != nil {
		return err
	}
	if s.events != nil {
		s.events.ForceLogout(id, claims.ID, "logout")
		email, _ := claims.ExtraData["email"].(string)
		s.events.Audit("logout", id, email)
	}

	s.logger.Info("user logged out", zap.Int64("identity_id", id))
	return nil
}

// UserInfoFromClaims builds the public view of a session.
func UserInfoFromClaims(claims *jwt.Claims) auth.UserInfo {
	id, _ := claims.SubjectID()
	email, _ := claims.ExtraData["email"].(string)
	return auth.UserInfo{
		IdentityID: id,
		Email:      email,
		Name:       claims.Name,
		Role:       claims.Role,
	}
}
