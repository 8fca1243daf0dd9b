// internal/repository/postgres/identity_repo.go
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dashboard-service/internal/domain/auth"
	xerrors "dashboard-service/internal/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

const identityColumns = `
	id, email, full_name, role, status, password_hash,
	password_changed_at, last_login, created_at, updated_at`

// IdentityRepository is the identity/credential store.
type IdentityRepository struct {
	db         DBTX
	bcryptCost int
}

func NewIdentityRepository(db DBTX, bcryptCost int) *IdentityRepository {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &IdentityRepository{db: db, bcryptCost: bcryptCost}
}

func scanIdentity(row interface{ Scan(dest ...any) error }) (*auth.Identity, error) {
	var identity auth.Identity
	var role string
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.FullName, &role, &identity.Status, &identity.PasswordHash,
		&identity.PasswordChangedAt, &identity.LastLogin, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, ok := auth.ParseRole(role)
	if !ok {
		return nil, xerrors.New(xerrors.KindInternal, "postgres.scanIdentity", fmt.Sprintf("identity %d has unknown role %q", identity.ID, role))
	}
	identity.Role = parsed
	return &identity, nil
}

// FindIdentityByEmail retrieves an identity by email, case-insensitively.
func (r *IdentityRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM identities
		WHERE LOWER(email) = LOWER($1)`

	identity, err := scanIdentity(r.db.QueryRow(ctx, query, email))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, "postgres.FindIdentityByEmail", err)
	}
	return identity, nil
}

// FindIdentityByID retrieves an identity by ID
func (r *IdentityRepository) FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM identities
		WHERE id = $1`

	identity, err := scanIdentity(r.db.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, "postgres.FindIdentityByID", err)
	}
	return identity, nil
}

// VerifyPassword checks the password against the stored bcrypt hash. Unknown
// email and wrong password are both reported as Unauthorized.
func (r *IdentityRepository) VerifyPassword(ctx context.Context, email, password string) (*auth.Identity, error) {
	identity, err := r.FindIdentityByEmail(ctx, email)
	if xerrors.IsKind(err, xerrors.KindNotFound) {
		// keep timing close to the found-identity path
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, xerrors.New(xerrors.KindUnauthorized, "postgres.VerifyPassword", "invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if identity.PasswordHash == "" {
		return nil, xerrors.New(xerrors.KindUnauthorized, "postgres.VerifyPassword", "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, xerrors.New(xerrors.KindUnauthorized, "postgres.VerifyPassword", "invalid credentials")
	}
	return identity, nil
}

// UpdatePassword hashes and stores a new password.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id int64, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), r.bcryptCost)
	if err != nil {
		return xerrors.E(xerrors.KindInvalidInput, "postgres.UpdatePassword", err)
	}

	query := `
		UPDATE identities
		SET password_hash = $1, password_changed_at = $2, updated_at = $2
		WHERE id = $3`
	result, err := r.db.Exec(ctx, query, string(hash), time.Now(), id)
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "postgres.UpdatePassword", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// CreateIdentity inserts a new identity with a hashed password.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *auth.Identity, password string) error {
	if !identity.Role.Valid() {
		return xerrors.New(xerrors.KindInvalidInput, "postgres.CreateIdentity", fmt.Sprintf("unknown role %q", identity.Role))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return xerrors.E(xerrors.KindInvalidInput, "postgres.CreateIdentity", err)
	}
	if identity.Status == "" {
		identity.Status = auth.StatusActive
	}
	identity.PasswordHash = string(hash)

	query := `
		INSERT INTO identities (email, full_name, role, status, password_hash, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query, identity.Email, identity.FullName, string(identity.Role), identity.Status, identity.PasswordHash).
		Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if isUniqueViolation(err) {
		return xerrors.New(xerrors.KindConflict, "postgres.CreateIdentity", "email already registered")
	}
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "postgres.CreateIdentity", err)
	}
	return nil
}

// UpdateLastLogin updates the last login timestamp
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET last_login = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "postgres.UpdateLastLogin", err)
	}
	return nil
}

func (r *IdentityRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM identities WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	if err != nil {
		return false, xerrors.E(xerrors.KindStoreUnavailable, "postgres.ExistsByEmail", err)
	}
	return exists, nil
}

// CountByRole is used by the super admin bootstrap.
func (r *IdentityRepository) CountByRole(ctx context.Context, role auth.Role) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM identities WHERE role = $1`, string(role)).Scan(&n)
	if err != nil {
		return 0, xerrors.E(xerrors.KindStoreUnavailable, "postgres.CountByRole", err)
	}
	return n, nil
}

var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	return h
})
