// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"dashboard-service/internal/domain/auth"
	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Generator struct {
	priv        *rsa.PrivateKey
	issuer      string
	audience    string
	kid         string // key id for rotation
	maxLifetime time.Duration
	now         func() time.Time
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, maxLifetime time.Duration, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		priv:        priv,
		issuer:      issuer,
		audience:    audience,
		kid:         kid,
		maxLifetime: maxLifetime,
		now:         now,
	}
}

// MaxLifetime is the absolute lifetime of a session token.
func (g *Generator) MaxLifetime() time.Duration {
	return g.maxLifetime
}

// IssueSession creates a session token for the subject. The role must be one
// of the enumerated roles.
func (g *Generator) IssueSession(subjectID int64, role auth.Role, name string, extra map[string]interface{}) (string, *Claims, error) {
	if !role.Valid() {
		return "", nil, xerrors.New(xerrors.KindInvalidInput, "jwt.IssueSession", fmt.Sprintf("unknown role %q", role))
	}
	if subjectID <= 0 {
		return "", nil, xerrors.New(xerrors.KindInvalidInput, "jwt.IssueSession", "subject is required")
	}

	now := g.now()
	claims := &Claims{
		Name:         name,
		Role:         role,
		LastActivity: now.Unix(),
		Purpose:      PurposeSession,
		ExtraData:    extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   strconv.FormatInt(subjectID, 10),
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(g.maxLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := g.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// RefreshActivity re-signs validated session claims with last-activity set to
// now. Subject, role, token id and the absolute expiry are preserved, so
// refreshing never extends the maximum lifetime.
func (g *Generator) RefreshActivity(claims *Claims) (string, *Claims, error) {
	if claims == nil || claims.Purpose != PurposeSession {
		return "", nil, xerrors.New(xerrors.KindInvalidInput, "jwt.RefreshActivity", "not a session token")
	}
	if !claims.Role.Valid() {
		return "", nil, xerrors.New(xerrors.KindInvalidInput, "jwt.RefreshActivity", fmt.Sprintf("unknown role %q", claims.Role))
	}

	next := claims.clone()
	next.LastActivity = g.now().Unix()

	signed, err := g.sign(next)
	if err != nil {
		return "", nil, err
	}
	return signed, next, nil
}

// IssueResetTicket creates a short-lived password reset ticket. It carries no
// role and is rejected wherever a session token is expected.
func (g *Generator) IssueResetTicket(subjectID int64, ttl time.Duration) (string, *Claims, error) {
	if subjectID <= 0 || ttl <= 0 {
		return "", nil, xerrors.New(xerrors.KindInvalidInput, "jwt.IssueResetTicket", "subject and ttl are required")
	}

	now := g.now()
	claims := &Claims{
		Purpose: PurposePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   strconv.FormatInt(subjectID, 10),
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := g.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (g *Generator) sign(claims *Claims) (string, error) {
	if g.priv == nil {
		return "", xerrors.New(xerrors.KindInternal, "jwt.sign", "jwt generator has nil private key")
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	if err != nil {
		return "", xerrors.E(xerrors.KindInternal, "jwt.sign", err)
	}
	return signed, nil
}
