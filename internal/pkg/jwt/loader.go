// internal/pkg/jwt/loader.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"dashboard-service/internal/domain/auth"
)

const (
	DefaultMaxLifetime = 30 * 24 * time.Hour
	DefaultIdleTimeout = 8 * time.Hour
)

type Config struct {
	PrivPath    string
	PubPath     string
	Issuer      string
	Audience    string
	KID         string
	MaxLifetime time.Duration
	IdleTimeout time.Duration
}

// Manager is the session token service: it issues, validates and refreshes
// session tokens and issues reset tickets.
type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	priv, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
	}

	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}

	return NewManager(priv, pub, cfg, nil), nil
}

// NewManager builds a manager from parsed keys. A nil clock means time.Now.
func NewManager(priv *rsa.PrivateKey, pub *rsa.PublicKey, cfg Config, now func() time.Time) *Manager {
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = DefaultMaxLifetime
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if now == nil {
		now = time.Now
	}

	return &Manager{
		Generator: NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.MaxLifetime, now),
		Verifier:  NewVerifier(pub, cfg.Issuer, cfg.Audience, cfg.MaxLifetime, cfg.IdleTimeout, now),
	}
}

// Issue creates a session token with last-activity set to now.
func (m *Manager) Issue(subjectID int64, role auth.Role, name string, extra map[string]interface{}) (string, *Claims, error) {
	return m.Generator.IssueSession(subjectID, role, name, extra)
}

// Validate is read-only: it never touches last-activity.
func (m *Manager) Validate(token string) (*Claims, error) {
	return m.Verifier.VerifySession(token)
}

// RefreshActivity validates the token and re-signs it with last-activity
// moved to now.
func (m *Manager) RefreshActivity(token string) (string, *Claims, error) {
	claims, err := m.Verifier.VerifySession(token)
	if err != nil {
		return "", nil, err
	}
	return m.Generator.RefreshActivity(claims)
}
