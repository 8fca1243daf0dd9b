// internal/service/auth/reset.go
package auth

import (
	"context"
	"fmt"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/metrics"
	xerrors "dashboard-service/internal/pkg/errors"
	"dashboard-service/internal/pkg/jwt"
	otpcode "dashboard-service/internal/pkg/otp"
	"dashboard-service/internal/service/otp"

	"go.uber.org/zap"
)

// bcrypt ignores input past 72 bytes
const maxPasswordBytes = 72

// TicketLedger makes reset tickets single use.
type TicketLedger interface {
	Register(ctx context.Context, jti string, identityID int64, ttl time.Duration) error
	Redeem(ctx context.Context, jti string) (int64, error)
}

type ResetConfig struct {
	TicketTTL         time.Duration
	MinPasswordLength int
}

func DefaultResetConfig() ResetConfig {
	return ResetConfig{
		TicketTTL:         15 * time.Minute,
		MinPasswordLength: 8,
	}
}

// ResetService drives a password reset from code request to new password.
type ResetService struct {
	identities IdentityStore
	engine     *otp.Engine
	tokens     *jwt.Manager
	ledger     TicketLedger
	delivery   CodeDelivery
	sessions   SessionStore
	limiter    RateLimiter
	advisor    StrengthAdvisor
	events     SessionEvents
	metrics    metrics.Recorder
	cfg        ResetConfig
	logger     *zap.Logger
	now        func() time.Time
}

type ResetDeps struct {
	Identities IdentityStore
	Engine     *otp.Engine
	Tokens     *jwt.Manager
	Ledger     TicketLedger
	Delivery   CodeDelivery
	Sessions   SessionStore
	Limiter    RateLimiter
	Advisor    StrengthAdvisor
	Events     SessionEvents
	Metrics    metrics.Recorder
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewResetService(deps ResetDeps, cfg ResetConfig) *ResetService {
	if cfg.TicketTTL <= 0 {
		cfg.TicketTTL = DefaultResetConfig().TicketTTL
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = DefaultResetConfig().MinPasswordLength
	}
	if deps.Advisor == nil {
		deps.Advisor = ClassAdvisor{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ResetService{
		identities: deps.Identities,
		engine:     deps.Engine,
		tokens:     deps.Tokens,
		ledger:     deps.Ledger,
		delivery:   deps.Delivery,
		sessions:   deps.Sessions,
		limiter:    deps.Limiter,
		advisor:    deps.Advisor,
		events:     deps.Events,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// RequestReset starts a reset. Callers get the same answer whether or not the
// email belongs to an identity; only store failures surface as errors.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	email = otpcode.NormalizeEmail(email)

	decision, err := s.limiter.CheckResetRequest(ctx, email)
	if err != nil {
		s.logger.Warn("reset rate limiter unavailable", zap.Error(err))
	} else if !decision.Allowed {
		s.logger.Info("reset request rate limited", zap.String("email", email))
		return nil
	}

	identity, err := s.identities.FindIdentityByEmail(ctx, email)
	if xerrors.IsKind(err, xerrors.KindNotFound) {
		s.logger.Info("reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}
	if identity.Status != auth.StatusActive {
		s.logger.Info("reset requested for inactive identity", zap.Int64("identity_id", identity.ID))
		return nil
	}

	issued, err := s.engine.RequestCode(ctx, identity.Email)
	if xerrors.IsKind(err, xerrors.KindInvalidInput) {
		s.logger.Warn("reset code not issued", zap.Int64("identity_id", identity.ID), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.delivery.DeliverResetCode(ctx, issued.Email, identity.DisplayName(), issued.Code, issued.ExpiresAt); err != nil {
		s.logger.Error("failed to deliver reset code", zap.Int64("identity_id", identity.ID), zap.Error(err))
		return nil
	}

	s.logger.Info("reset code sent", zap.Int64("identity_id", identity.ID))
	return nil
}

// ConfirmCode verifies the emailed code and exchanges it for a single-use
// reset ticket bound to the identity.
func (s *ResetService) ConfirmCode(ctx context.Context, email, code string) (*auth.ResetVerifyResponse, error) {
	const op = "auth.ConfirmCode"
	email = otpcode.NormalizeEmail(email)

	decision, err := s.limiter.CheckOTPAttempt(ctx, email)
	if err != nil {
		s.logger.Warn("otp rate limiter unavailable", zap.Error(err))
	} else if !decision.Allowed {
		return nil, xerrors.New(xerrors.KindRateLimited, op, "too many attempts, request a new code later")
	}

	verified, err := s.engine.VerifyCode(ctx, email, code)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.FindIdentityByEmail(ctx, verified.Email)
	if xerrors.IsKind(err, xerrors.KindNotFound) {
		return nil, xerrors.New(xerrors.KindNotFound, op, "no pending verification")
	}
	if err != nil {
		return nil, err
	}

	ticket, claims, err := s.tokens.Generator.IssueResetTicket(identity.ID, s.cfg.TicketTTL)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Register(ctx, claims.ID, identity.ID, s.cfg.TicketTTL); err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}
	if err := s.limiter.ResetOTPAttempts(ctx, email); err != nil {
		s.logger.Warn("failed to reset otp attempts", zap.Error(err))
	}

	s.logger.Info("reset code verified", zap.Int64("identity_id", identity.ID))
	return &auth.ResetVerifyResponse{Ticket: ticket, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// CompleteReset sets the new password. The ticket is spent by the first call
// that passes the password policy. No session is issued; the user signs in
// again with the new password.
func (s *ResetService) CompleteReset(ctx context.Context, ticket, newPassword string) (*auth.ResetCompleteResponse, error) {
	const op = "auth.CompleteReset"

	claims, err := s.tokens.Verifier.VerifyResetTicket(ticket)
	if err != nil {
		return nil, xerrors.E(xerrors.KindInvalidInput, op, fmt.Errorf("invalid or expired reset ticket: %w", err))
	}
	subjectID, err := claims.SubjectID()
	if err != nil {
		return nil, xerrors.E(xerrors.KindInvalidInput, op, err)
	}

	if err := s.checkPolicy(newPassword); err != nil {
		return nil, err
	}

	identityID, err := s.ledger.Redeem(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if identityID != subjectID {
		return nil, xerrors.New(xerrors.KindInvalidInput, op, "reset ticket does not match its identity")
	}

	advice := s.advisor.Advise(newPassword)

	if err := s.identities.UpdatePassword(ctx, identityID, newPassword); err != nil {
		// give the ticket back so the user can retry within its lifetime
		if remaining := claims.ExpiresAt.Sub(s.now()); remaining > 0 {
			if rerr := s.ledger.Register(ctx, claims.ID, identityID, remaining); rerr != nil {
				s.logger.Warn("failed to restore reset ticket", zap.Error(rerr))
			}
		}
		return nil, err
	}

	now := s.now()
	if err := s.sessions.RevokeAllBefore(ctx, identityID, now, s.tokens.Generator.MaxLifetime()); err != nil {
		s.logger.Error("failed to revoke sessions after reset", zap.Int64("identity_id", identityID), zap.Error(err))
	}
	if s.events != nil {
		s.events.ForceLogout(identityID, "", "password_reset")
	}

	email := ""
	if identity, err := s.identities.FindIdentityByID(ctx, identityID); err == nil {
		email = identity.Email
		if err := s.engine.Invalidate(ctx, identity.Email); err != nil {
			s.logger.Warn("failed to drop outstanding reset codes", zap.Int64("identity_id", identityID), zap.Error(err))
		}
		if err := s.delivery.NotifyPasswordChanged(ctx, identity.Email, identity.DisplayName()); err != nil {
			s.logger.Warn("failed to send password changed notice", zap.Int64("identity_id", identityID), zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Audit("password_reset", identityID, email)
	}

	s.metrics.RecordResetCompleted()
	s.logger.Info("password reset completed",
		zap.Int64("identity_id", identityID),
		zap.Int("strength_score", advice.Score),
	)

	return &auth.ResetCompleteResponse{StrengthScore: advice.Score, Suggestions: advice.Suggestions}, nil
}

func (s *ResetService) checkPolicy(password string) error {
	const op = "auth.CompleteReset"
	if len([]rune(password)) < s.cfg.MinPasswordLength {
		return xerrors.New(xerrors.KindInvalidInput, op, fmt.Sprintf("password must be at least %d characters", s.cfg.MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return xerrors.New(xerrors.KindInvalidInput, op, fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
