// internal/repository/postgres/otp_repo.go
package postgres

import (
	"context"

	"dashboard-service/internal/domain/auth"
	xerrors "dashboard-service/internal/pkg/errors"
)

// OTPRepository persists OTP verification records. Only commitments are
// stored, never raw codes.
type OTPRepository struct {
	db DBTX
}

func NewOTPRepository(db DBTX) *OTPRepository {
	return &OTPRepository{db: db}
}

// Save inserts the record. Expired rows for the same email are purged in the
// same statement; with replace set every outstanding row for the email and
// purpose is removed first.
func (r *OTPRepository) Save(ctx context.Context, v *auth.OTPVerification, replace bool) error {
	query := `
		WITH purged AS (
			DELETE FROM otp_verifications
			WHERE email = $2 AND (expires_at < $5 OR ($6 AND purpose = $4))
		)
		INSERT INTO otp_verifications (id, email, commitment, purpose, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $7)`

	_, err := r.db.Exec(ctx, query, v.ID, v.Email, v.Commitment, v.Purpose, v.CreatedAt, replace, v.ExpiresAt)
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "postgres.OTPRepository.Save", err)
	}
	return nil
}

// Latest returns the most recent record for the email and purpose.
func (r *OTPRepository) Latest(ctx context.Context, email, purpose string) (*auth.OTPVerification, error) {
	query := `
		SELECT id, email, commitment, purpose, created_at, expires_at
		FROM otp_verifications
		WHERE email = $1 AND purpose = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var v auth.OTPVerification
	err := r.db.QueryRow(ctx, query, email, purpose).Scan(
		&v.ID, &v.Email, &v.Commitment, &v.Purpose, &v.CreatedAt, &v.ExpiresAt,
	)
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, "postgres.OTPRepository.Latest", err)
	}
	return &v, nil
}

// Consume deletes the record only if it still holds the given commitment.
// It reports false when another caller already consumed it.
func (r *OTPRepository) Consume(ctx context.Context, v *auth.OTPVerification) (bool, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`DELETE FROM otp_verifications WHERE id = $1 AND commitment = $2 RETURNING id`,
		v.ID, v.Commitment,
	).Scan(&id)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.E(xerrors.KindStoreUnavailable, "postgres.OTPRepository.Consume", err)
	}
	return true, nil
}

// Discard removes every record for the email and purpose.
func (r *OTPRepository) Discard(ctx context.Context, email, purpose string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM otp_verifications WHERE email = $1 AND purpose = $2`, email, purpose)
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "postgres.OTPRepository.Discard", err)
	}
	return nil
}
