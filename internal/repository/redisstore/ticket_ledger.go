// internal/repository/redisstore/ticket_ledger.go
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	xerrors "dashboard-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// TicketLedger makes reset tickets single use. A ticket id is registered
// when issued and removed atomically by the first redemption.
type TicketLedger struct {
	client redis.UniversalClient
}

func NewTicketLedger(client redis.UniversalClient) *TicketLedger {
	return &TicketLedger{client: client}
}

func ticketKey(jti string) string {
	return fmt.Sprintf("reset_ticket:%s", jti)
}

func (l *TicketLedger) Register(ctx context.Context, jti string, identityID int64, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, ticketKey(jti), identityID, ttl).Result()
	if err != nil {
		return xerrors.E(xerrors.KindStoreUnavailable, "redisstore.TicketLedger.Register", err)
	}
	if !ok {
		return xerrors.New(xerrors.KindConflict, "redisstore.TicketLedger.Register", "ticket already registered")
	}
	return nil
}

// Redeem consumes the ticket and returns the identity it was bound to. A
// second redemption fails with InvalidInput.
func (l *TicketLedger) Redeem(ctx context.Context, jti string) (int64, error) {
	const op = "redisstore.TicketLedger.Redeem"

	raw, err := l.client.GetDel(ctx, ticketKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, xerrors.New(xerrors.KindInvalidInput, op, "reset ticket already used or expired")
	}
	if err != nil {
		return 0, xerrors.E(xerrors.KindStoreUnavailable, op, err)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, xerrors.E(xerrors.KindInternal, op, err)
	}
	return id, nil
}
