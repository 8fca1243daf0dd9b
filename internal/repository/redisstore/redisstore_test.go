package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dashboard-service/internal/domain/auth"
	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func record(id string, created time.Time, commitment string) *auth.OTPVerification {
	return &auth.OTPVerification{
		ID:         id,
		Email:      "a@x.com",
		Commitment: commitment,
		Purpose:    auth.PurposePasswordReset,
		CreatedAt:  created,
		ExpiresAt:  created.Add(10 * time.Minute),
	}
}

func TestOTPStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	now := time.Now()
	require.NoError(t, s.Save(ctx, record("id-1", now, "c1"), false))
	require.NoError(t, s.Save(ctx, record("id-2", now.Add(time.Second), "c2"), false))

	got, err := s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "id-2", got.ID)
	assert.Equal(t, "c2", got.Commitment)
	assert.Equal(t, now.Add(time.Second).Add(10*time.Minute).UnixNano(), got.ExpiresAt.UnixNano())

	ok, err := s.Consume(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)

	// the older record surfaces again once the newer one is consumed
	got, err = s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
}

func TestOTPStore_Replace(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	now := time.Now()
	require.NoError(t, s.Save(ctx, record("id-1", now, "c1"), false))
	require.NoError(t, s.Save(ctx, record("id-2", now.Add(time.Second), "c2"), true))

	got, err := s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "id-2", got.ID)

	ok, err := s.Consume(ctx, got)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	assert.True(t, xerrors.IsKind(err, xerrors.KindNotFound))
}

func TestOTPStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	rec := record("id-1", time.Now(), "c1")
	require.NoError(t, s.Save(ctx, rec, false))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Consume(ctx, rec)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestOTPStore_ConsumeWrongCommitment(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	rec := record("id-1", time.Now(), "c1")
	require.NoError(t, s.Save(ctx, rec, false))

	stale := *rec
	stale.Commitment = "other"
	ok, err := s.Consume(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	assert.NoError(t, err)
}

func TestOTPStore_EvictedRecord(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	rec := record("id-1", time.Now(), "c1")
	require.NoError(t, s.Save(ctx, rec, false))
	mr.Del(recordKey(rec.Email, rec.ID))

	_, err := s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	assert.True(t, xerrors.IsKind(err, xerrors.KindNotFound))
}

func TestOTPStore_RetentionAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	rec := record("id-1", time.Now(), "c1")
	require.NoError(t, s.Save(ctx, rec, false))

	// expired but retained, so the engine can still answer Expired
	mr.FastForward(11 * time.Minute)
	got, err := s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	mr.FastForward(otpRetention)
	_, err = s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	assert.True(t, xerrors.IsKind(err, xerrors.KindNotFound))
}

func TestOTPStore_EvictedIndexEntryRemoved(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	s := NewOTPStore(client, zap.NewNop())

	require.NoError(t, s.Save(ctx, record("id-1", time.Now(), "c1"), false))
	require.NoError(t, s.Save(ctx, record("id-2", time.Now().Add(time.Second), "c2"), false))
	mr.Del(recordKey("a@x.com", "id-2"))

	got, err := s.Latest(ctx, "a@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	members, err := mr.ZMembers(indexKey("a@x.com", auth.PurposePasswordReset))
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1"}, members)
}

func TestTicketLedger_SingleUse(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	l := NewTicketLedger(client)

	require.NoError(t, l.Register(ctx, "T", 42, 15*time.Minute))
	assert.True(t, xerrors.IsKind(l.Register(ctx, "T", 42, 15*time.Minute), xerrors.KindConflict))

	id, err := l.Redeem(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = l.Redeem(ctx, "T")
	assert.True(t, xerrors.IsKind(err, xerrors.KindInvalidInput))
}

func TestTicketLedger_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	l := NewTicketLedger(client)

	require.NoError(t, l.Register(ctx, "T", 1, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := l.Redeem(ctx, "T")
	assert.True(t, xerrors.IsKind(err, xerrors.KindInvalidInput))
}
