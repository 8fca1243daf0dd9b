// internal/service/auth/admin_create.go
package auth

import (
	"context"
	"database/sql"
	"fmt"

	"dashboard-service/internal/domain/auth"

	"go.uber.org/zap"
)

// EnsureSuperAdminExists creates a super admin account if none exists (called on startup)
func (s *AuthService) EnsureSuperAdminExists(ctx context.Context, email, password, fullName string) error {
	count, err := s.identities.CountByRole(ctx, auth.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to check super admin existence: %w", err)
	}
	if count > 0 {
		s.logger.Info("super admin already exists, skipping creation")
		return nil
	}

	if email == "" || password == "" {
		return fmt.Errorf("super admin email and password must be provided via environment variables")
	}

	emailExists, err := s.identities.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if emailExists {
		return fmt.Errorf("email %s already exists but is not a super admin", email)
	}

	identity := &auth.Identity{
		Email:    email,
		FullName: sql.NullString{String: fullName, Valid: fullName != ""},
		Role:     auth.RoleSuperAdmin,
		Status:   auth.StatusActive,
	}
	if err := s.identities.CreateIdentity(ctx, identity, password); err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created successfully",
		zap.String("email", email),
		zap.Int64("identity_id", identity.ID),
	)
	return nil
}
