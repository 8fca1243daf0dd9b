package session

import (
	"context"
	"testing"
	"time"

	"dashboard-service/internal/domain/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestManager_TrackAndRevoke(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	m := NewManager(client, nil)

	s := &SessionData{
		JTI:        "01J0000000000000000000000A",
		IdentityID: 7,
		Email:      "a@x.com",
		Role:       auth.RoleAdmin,
		LoginAt:    time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	require.NoError(t, m.Track(ctx, s))

	list, err := m.ActiveSessions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, auth.RoleAdmin, list[0].Role)

	revoked, err := m.IsRevoked(ctx, 7, s.JTI, s.LoginAt)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, m.Revoke(ctx, 7, s.JTI, time.Hour))

	revoked, err = m.IsRevoked(ctx, 7, s.JTI, s.LoginAt)
	require.NoError(t, err)
	assert.True(t, revoked)

	list, err = m.ActiveSessions(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ActiveSessions)
	assert.Equal(t, int64(1), stats.RevokedTokens)
}

func TestManager_TrackRejectsExpired(t *testing.T) {
	_, client := newRedis(t)
	m := NewManager(client, nil)

	err := m.Track(context.Background(), &SessionData{JTI: "x", IdentityID: 1, ExpiresAt: time.Now().Add(-time.Second)})
	assert.Error(t, err)
}

func TestManager_RevokeAllBefore(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	m := NewManager(client, nil)

	cutoff := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.Track(ctx, &SessionData{JTI: "old", IdentityID: 3, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, m.RevokeAllBefore(ctx, 3, cutoff, time.Hour))

	revoked, err := m.IsRevoked(ctx, 3, "old", cutoff.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = m.IsRevoked(ctx, 3, "new", cutoff)
	require.NoError(t, err)
	assert.False(t, revoked)

	// other identities are untouched
	revoked, err = m.IsRevoked(ctx, 4, "other", cutoff.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, revoked)

	list, err := m.ActiveSessions(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_RevokeAllBefore_SameSecond(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	m := NewManager(client, nil)

	cutoff := time.Date(2026, 5, 1, 12, 0, 0, 900*int(time.Millisecond), time.UTC)
	issued := cutoff.Add(-800 * time.Millisecond)
	jti := ulid.MustNew(ulid.Timestamp(issued), ulid.DefaultEntropy()).String()
	require.NoError(t, m.RevokeAllBefore(ctx, 3, cutoff, time.Hour))

	// iat is truncated to the second the reset happened in
	revoked, err := m.IsRevoked(ctx, 3, jti, issued.Truncate(time.Second))
	require.NoError(t, err)
	assert.True(t, revoked)

	later := ulid.MustNew(ulid.Timestamp(cutoff.Add(time.Millisecond)), ulid.DefaultEntropy()).String()
	revoked, err = m.IsRevoked(ctx, 3, later, cutoff.Truncate(time.Second))
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestManager_StoreDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	m := NewManager(client, nil)
	mr.Close()

	_, err = m.IsRevoked(context.Background(), 1, "x", time.Now())
	assert.Error(t, err)
}

func TestRateLimiter_LoginWindow(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	rl := NewRateLimiter(client, DefaultLimits())

	for i := 0; i < 5; i++ {
		d, err := rl.CheckLoginAttempt(ctx, "10.0.0.1", "A@x.com")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(4-i), d.Remaining)
	}

	d, err := rl.CheckLoginAttempt(ctx, "10.0.0.1", "a@x.com ")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	mr.FastForward(16 * time.Minute)
	d, err = rl.CheckLoginAttempt(ctx, "10.0.0.1", "a@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_ResetCounters(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	rl := NewRateLimiter(client, Limits{OTPAttempts: 1, OTPWindow: time.Minute, ResetRequests: 1, ResetWindow: time.Minute})

	d, err := rl.CheckOTPAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = rl.CheckOTPAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, rl.ResetOTPAttempts(ctx, "a@x.com"))
	d, err = rl.CheckOTPAttempt(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = rl.CheckResetRequest(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = rl.CheckResetRequest(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
