// internal/repository/redisstore/otp_store.go
package redisstore

import (
	"context"
	"fmt"
	"time"

	"dashboard-service/internal/domain/auth"
	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Records outlive their expiry by this much so a late submission is reported
// as expired rather than unknown. Past it the record is gone and lookups
// answer not found.
const otpRetention = time.Hour

// consumeScript deletes the record only while it still holds the expected
// commitment. Returns 1 for the caller that won, 0 for everyone else.
var consumeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'commitment') == ARGV[1] then
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// OTPStore keeps OTP records as hashes indexed per email by a sorted set.
// Keys share a hash tag on the email so the consume script stays within one
// cluster slot.
type OTPStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewOTPStore(client redis.UniversalClient, logger *zap.Logger) *OTPStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPStore{client: client, logger: logger}
}

func recordKey(email, id string) string {
	return fmt.Sprintf("otp:{%s}:rec:%s", email, id)
}

func indexKey(email, purpose string) string {
	return fmt.Sprintf("otp:{%s}:idx:%s", email, purpose)
}

func (s *OTPStore) Save(ctx context.Context, v *auth.OTPVerification, replace bool) error {
	const op = "redisstore.OTPStore.Save"

	idx := indexKey(v.Email, v.Purpose)
	if replace {
		if err := s.Discard(ctx, v.Email, v.Purpose); err != nil {
			return err
		}
	}

	keep := v.ExpiresAt.Add(otpRetention)
	rec := recordKey(v.Email, v.ID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, rec, map[string]interface{}{
		"id":         v.ID,
		"email":      v.Email,
		"commitment": v.Commitment,
		"purpose":    v.Purpose,
		"created_at": v.CreatedAt.UnixNano(),
		"expires_at": v.ExpiresAt.UnixNano(),
	})
	pipe.ExpireAt(ctx, rec, keep)
	pipe.ZAdd(ctx, idx, redis.Z{Score: float64(v.CreatedAt.UnixMicro()), Member: v.ID})
	pipe.ExpireAt(ctx, idx, keep)
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}
	return nil
}

// Latest walks the index newest first and drops entries whose record has
// already been evicted.
func (s *OTPStore) Latest(ctx context.Context, email, purpose string) (*auth.OTPVerification, error) {
	const op = "redisstore.OTPStore.Latest"

	idx := indexKey(email, purpose)
	ids, err := s.client.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}

	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, recordKey(email, id)).Result()
		if err != nil {
			return nil, xerrors.E(xerrors.KindStoreUnavailable, op, err)
		}
		if len(fields) == 0 {
			if err := s.client.ZRem(ctx, idx, id).Err(); err != nil {
				s.logger.Warn("failed to drop evicted otp index entry",
					zap.String("index", idx),
					zap.String("id", id),
					zap.Error(err),
				)
			}
			continue
		}
		return decodeRecord(fields)
	}
	return nil, xerrors.ErrNotFound
}

func (s *OTPStore) Consume(ctx context.Context, v *auth.OTPVerification) (bool, error) {
	keys := []string{recordKey(v.Email, v.ID), indexKey(v.Email, v.Purpose)}
	n, err := consumeScript.Run(ctx, s.client, keys, v.Commitment, v.ID).Int()
	if err != nil {
		return false, xerrors.E(xerrors.KindStoreUnavailable, "redisstore.OTPStore.Consume", err)
	}
	return n == 1, nil
}

func (s *OTPStore) Discard(ctx context.Context, email, purpose string) error {
	const op = "redisstore.OTPStore.Discard"

	idx := indexKey(email, purpose)
	ids, err := s.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, recordKey(email, id))
	}
	keys = append(keys, idx)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}
	return nil
}

func decodeRecord(fields map[string]string) (*auth.OTPVerification, error) {
	var created, expires int64
	if _, err := fmt.Sscan(fields["created_at"], &created); err != nil {
		return nil, xerrors.E(xerrors.KindInternal, "redisstore.decodeRecord", err)
	}
	if _, err := fmt.Sscan(fields["expires_at"], &expires); err != nil {
		return nil, xerrors.E(xerrors.KindInternal, "redisstore.decodeRecord", err)
	}
	return &auth.OTPVerification{
		ID:         fields["id"],
		Email:      fields["email"],
		Commitment: fields["commitment"],
		Purpose:    fields["purpose"],
		CreatedAt:  time.Unix(0, created),
		ExpiresAt:  time.Unix(0, expires),
	}, nil
}
