// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager tracks issued sessions and revocations in redis.
type Manager struct {
	client redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(client redis.UniversalClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Track records a freshly issued session until it expires.
func (m *Manager) Track(ctx context.Context, s *SessionData) error {
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return xerrors.New(xerrors.KindInvalidInput, "session.Track", "session already expired")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.client.Set(ctx, sessionKey(s.IdentityID, s.JTI), data, ttl).Err(); err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "session.Track", err)
	}
	return nil
}

// Revoke signs one token out. The revocation entry lives as long as the token
// could still validate.
func (m *Manager) Revoke(ctx context.Context, identityID int64, jti string, ttl time.Duration) error {
	if jti == "" {
		return xerrors.New(xerrors.KindInvalidInput, "session.Revoke", "token id is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, revokedKey(jti), "1", ttl)
	pipe.Del(ctx, sessionKey(identityID, jti))
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "session.Revoke", err)
	}
	return nil
}

// RevokeAllBefore invalidates every token of the identity issued before at.
// The cutoff is kept in milliseconds. Used after a password change.
func (m *Manager) RevokeAllBefore(ctx context.Context, identityID int64, at time.Time, ttl time.Duration) error {
	if err := m.client.Set(ctx, validAfterKey(identityID), at.UnixMilli(), ttl).Err(); err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "session.RevokeAllBefore", err)
	}

	iter := m.client.Scan(ctx, 0, fmt.Sprintf("session:%d:*", identityID), 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			m.logger.Warn("failed to drop tracked session",
				zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		m.logger.Warn("session scan failed", zap.Int64("identity_id", identityID), zap.Error(err))
	}
	return nil
}

// IsRevoked reports whether the token was signed out individually or issued
// before the identity's last forced sign-out. The issue time comes from the
// ULID jti when it parses, since the iat claim only has second precision.
func (m *Manager) IsRevoked(ctx context.Context, identityID int64, jti string, issuedAt time.Time) (bool, error) {
	pipe := m.client.Pipeline()
	revoked := pipe.Exists(ctx, revokedKey(jti))
	after := pipe.Get(ctx, validAfterKey(identityID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, xerrors.E(xerrors.KindStoreUnavailable, "session.IsRevoked", err)
	}

	if revoked.Val() > 0 {
		return true, nil
	}

	if raw, err := after.Result(); err == nil {
		cutoff, perr := strconv.ParseInt(raw, 10, 64)
		if perr == nil && issuedMillis(jti, issuedAt) < cutoff {
			return true, nil
		}
	}
	return false, nil
}

func issuedMillis(jti string, issuedAt time.Time) int64 {
	if id, err := ulid.ParseStrict(jti); err == nil {
		return int64(id.Time())
	}
	return issuedAt.UnixMilli()
}

// ActiveSessions lists the tracked sessions of one identity.
func (m *Manager) ActiveSessions(ctx context.Context, identityID int64) ([]*SessionData, error) {
	var sessions []*SessionData

	iter := m.client.Scan(ctx, 0, fmt.Sprintf("session:%d:*", identityID), 0).Iterator()
	for iter.Next(ctx) {
		data, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var s SessionData
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		sessions = append(sessions, &s)
	}
	if err := iter.Err(); err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, "session.ActiveSessions", err)
	}
	return sessions, nil
}

// Stats counts tracked sessions and live revocation entries.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	active, err := m.count(ctx, "session:*")
	if err != nil {
		return nil, err
	}
	revoked, err := m.count(ctx, "revoked:*")
	if err != nil {
		return nil, err
	}
	return &Stats{ActiveSessions: active, RevokedTokens: revoked}, nil
}

func (m *Manager) count(ctx context.Context, pattern string) (int64, error) {
	var n int64
	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, xerrors.E(xerrors.KindStoreUnavailable, "session.count", err)
	}
	return n, nil
}

func sessionKey(identityID int64, jti string) string {
	return fmt.Sprintf("session:%d:%s", identityID, jti)
}

func revokedKey(jti string) string {
	return fmt.Sprintf("revoked:%s", jti)
}

func validAfterKey(identityID int64) string {
	return fmt.Sprintf("valid_after:%d", identityID)
}
