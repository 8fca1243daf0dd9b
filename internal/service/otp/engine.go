// internal/service/otp/engine.go
package otp

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/metrics"
	xerrors "dashboard-service/internal/pkg/errors"
	otpcode "dashboard-service/internal/pkg/otp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the OTP verification store adapter. Consume must delete the record
// only if it still holds the given commitment, atomically, and report whether
// this caller performed the delete.
type Store interface {
	Save(ctx context.Context, v *auth.OTPVerification, replace bool) error
	Latest(ctx context.Context, email, purpose string) (*auth.OTPVerification, error)
	Consume(ctx context.Context, v *auth.OTPVerification) (bool, error)
	Discard(ctx context.Context, email, purpose string) error
}

// Policy decides what happens to outstanding codes when a new one is issued.
type Policy string

const (
	// PolicyLatestWins keeps older codes; verification always targets the
	// newest record.
	PolicyLatestWins Policy = "latest_wins"
	// PolicyInvalidateOnNew drops every outstanding code for the email first.
	PolicyInvalidateOnNew Policy = "invalidate_on_new"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyLatestWins, PolicyInvalidateOnNew:
		return p, nil
	case "":
		return PolicyLatestWins, nil
	default:
		return "", fmt.Errorf("unknown otp policy %q", s)
	}
}

type Config struct {
	Length  int
	TTL     time.Duration
	Policy  Policy
	Purpose string
}

func DefaultConfig() Config {
	return Config{
		Length:  otpcode.DefaultLength,
		TTL:     10 * time.Minute,
		Policy:  PolicyLatestWins,
		Purpose: auth.PurposePasswordReset,
	}
}

// Issued is handed to the delivery collaborator. The code is never stored.
type Issued struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Verification identifies the consumed record and its owner.
type Verification struct {
	Email      string
	RecordID   string
	VerifiedAt time.Time
}

// Verification outcomes as recorded in metrics.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeExpired     = "expired"
	OutcomeMismatch    = "mismatch"
	OutcomeInvalid     = "invalid_input"
	OutcomeStoreFailed = "store_unavailable"
)

// Engine issues and verifies one-time codes. It keeps no state of its own.
type Engine struct {
	store   Store
	hasher  *otpcode.Hasher
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
	metrics metrics.Recorder
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

func NewEngine(store Store, hasher *otpcode.Hasher, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.Purpose == "" {
		cfg.Purpose = auth.PurposePasswordReset
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLatestWins
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:   store,
		hasher:  hasher,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL is the configured code lifetime.
func (e *Engine) TTL() time.Duration {
	return e.cfg.TTL
}

// RequestCode mints a code for email and stores its commitment. Invalid
// configuration or email is rejected before anything is stored.
func (e *Engine) RequestCode(ctx context.Context, email string) (*Issued, error) {
	const op = "otp.RequestCode"

	if e.cfg.Length <= 0 || e.cfg.Length > otpcode.MaxLength {
		return nil, xerrors.New(xerrors.KindInvalidInput, op, fmt.Sprintf("code length must be between 1 and %d", otpcode.MaxLength))
	}
	if e.cfg.TTL <= 0 {
		return nil, xerrors.New(xerrors.KindInvalidInput, op, "code ttl must be positive")
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, xerrors.E(xerrors.KindInvalidInput, op, err)
	}

	code, err := e.hasher.GenerateCode(e.cfg.Length)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, xerrors.E(xerrors.KindInternal, op, err)
	}

	now := e.now()
	rec := &auth.OTPVerification{
		ID:         id.String(),
		Email:      normalized,
		Commitment: e.hasher.Commit(code, normalized),
		Purpose:    e.cfg.Purpose,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.cfg.TTL),
	}

	if err := e.store.Save(ctx, rec, e.cfg.Policy == PolicyInvalidateOnNew); err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}

	e.metrics.RecordOTPIssued()
	e.logger.Info("otp issued",
		zap.String("email", normalized),
		zap.String("record_id", rec.ID),
		zap.Time("expires_at", rec.ExpiresAt),
	)

	return &Issued{Email: normalized, Code: code, ExpiresAt: rec.ExpiresAt}, nil
}

// VerifyCode checks code against the most recent record for email and
// consumes it on success. A record can be consumed exactly once; a caller
// that loses a concurrent race gets NotFound.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (*Verification, error) {
	const op = "otp.VerifyCode"

	normalized, err := normalizeEmail(email)
	if err != nil {
		e.metrics.RecordOTPVerification(OutcomeInvalid)
		return nil, xerrors.E(xerrors.KindInvalidInput, op, err)
	}
	code = strings.TrimSpace(code)
	if code == "" || len(code) > otpcode.MaxLength || !otpcode.IsNumeric(code) {
		e.metrics.RecordOTPVerification(OutcomeInvalid)
		return nil, xerrors.New(xerrors.KindInvalidInput, op, "code must be numeric")
	}

	rec, err := e.store.Latest(ctx, normalized, e.cfg.Purpose)
	if xerrors.IsKind(err, xerrors.KindNotFound) {
		e.metrics.RecordOTPVerification(OutcomeNotFound)
		return nil, xerrors.New(xerrors.KindNotFound, op, "no pending verification")
	}
	if err != nil {
		e.metrics.RecordOTPVerification(OutcomeStoreFailed)
		return nil, xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}

	now := e.now()
	if rec.Expired(now) {
		e.metrics.RecordOTPVerification(OutcomeExpired)
		return nil, xerrors.New(xerrors.KindExpired, op, "code expired")
	}
	if !e.hasher.Verify(code, normalized, rec.Commitment) {
		e.metrics.RecordOTPVerification(OutcomeMismatch)
		return nil, xerrors.New(xerrors.KindMismatch, op, "code does not match")
	}

	consumed, err := e.store.Consume(ctx, rec)
	switch {
	case err != nil:
		// the code matched; a failed delete is logged, not surfaced
		e.logger.Error("failed to consume verified otp record",
			zap.String("email", normalized),
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
	case !consumed:
		e.metrics.RecordOTPVerification(OutcomeNotFound)
		return nil, xerrors.New(xerrors.KindNotFound, op, "verification already consumed")
	}

	e.metrics.RecordOTPVerification(OutcomeOK)
	return &Verification{Email: normalized, RecordID: rec.ID, VerifiedAt: now}, nil
}

// Invalidate drops every outstanding code for email.
func (e *Engine) Invalidate(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return xerrors.E(xerrors.KindInvalidInput, "otp.Invalidate", err)
	}
	return e.store.Discard(ctx, normalized, e.cfg.Purpose)
}

func normalizeEmail(email string) (string, error) {
	normalized := otpcode.NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("malformed email %q", email)
	}
	return normalized, nil
}
