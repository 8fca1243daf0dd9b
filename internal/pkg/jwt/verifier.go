// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers signature mismatch, structural corruption, unknown
	// role, wrong purpose and an exceeded absolute lifetime.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionTimedOut means the token was otherwise valid but its
	// last-activity is older than the inactivity ceiling.
	ErrSessionTimedOut = errors.New("session timed out")
)

type Verifier struct {
	pub         *rsa.PublicKey
	issuer      string
	audience    string
	maxLifetime time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string, maxLifetime, idleTimeout time.Duration, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		pub:         pub,
		issuer:      issuer,
		audience:    audience,
		maxLifetime: maxLifetime,
		idleTimeout: idleTimeout,
		now:         now,
	}
}

// IdleTimeout is the inactivity ceiling applied to session tokens.
func (v *Verifier) IdleTimeout() time.Duration {
	return v.idleTimeout
}

// parse checks signature, issuer, audience and registered time claims.
func (v *Verifier) parse(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, fmt.Errorf("jwt verifier has nil public key")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifySession validates a session token. Every failure is an Unauthorized
// error wrapping either ErrInvalidToken or ErrSessionTimedOut.
func (v *Verifier) VerifySession(tokenString string) (*Claims, error) {
	const op = "jwt.VerifySession"

	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, invalid(op, err)
	}
	if claims.Purpose != PurposeSession {
		return nil, invalid(op, fmt.Errorf("token is not a session token"))
	}
	if !claims.Role.Valid() {
		return nil, invalid(op, fmt.Errorf("unknown role %q", claims.Role))
	}
	if claims.IssuedAt == nil || v.now().Sub(claims.IssuedAt.Time) > v.maxLifetime {
		return nil, invalid(op, fmt.Errorf("token exceeds maximum lifetime"))
	}
	if claims.LastActivity <= 0 {
		return nil, invalid(op, fmt.Errorf("missing last activity"))
	}
	if v.now().Sub(claims.LastActivityAt()) > v.idleTimeout {
		return nil, xerrors.E(xerrors.KindUnauthorized, op, ErrSessionTimedOut)
	}

	return claims, nil
}

// VerifyResetTicket validates a password reset ticket. Single use is enforced
// by the ticket ledger, not here.
func (v *Verifier) VerifyResetTicket(tokenString string) (*Claims, error) {
	const op = "jwt.VerifyResetTicket"

	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, invalid(op, err)
	}
	if claims.Purpose != PurposePasswordReset {
		return nil, invalid(op, fmt.Errorf("token is not for password reset"))
	}
	if claims.ID == "" {
		return nil, invalid(op, fmt.Errorf("reset ticket has no id"))
	}
	return claims, nil
}

// IsTimeout reports whether err came from an inactivity-ceiling breach.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrSessionTimedOut)
}

func invalid(op string, cause error) error {
	return xerrors.E(xerrors.KindUnauthorized, op, fmt.Errorf("%w: %v", ErrInvalidToken, cause))
}
