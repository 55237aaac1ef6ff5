package positions

import (
	"context"
	"errors"
	"testing"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db/dbtest"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

var openedAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newDBService(t *testing.T) (*Service, *pgxpool.Pool, string) {
	pool := dbtest.Pool(t)
	accountSvc := accounts.NewService(pool, ledger.NewService(pool))
	svc := NewService(pool, accountSvc, nil, nil, nil, logger.Nop())
	svc.now = func() time.Time { return openedAt }
	user := dbtest.User(t, pool)
	dbtest.Fund(t, pool, user, types.BucketTrading, "50")
	return svc, pool, user
}

func TestDBOpenOverBalanceWritesNothing(t *testing.T) {
	svc, pool, user := newDBService(t)

	_, err := svc.Open(context.Background(), user, OpenInput{Symbol: "BTC", Direction: "buy", EntryPrice: "50000", Amount: "100"})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := dbtest.Balance(t, pool, user, types.BucketTrading); got.String() != "50" {
		t.Fatalf("trading = %s", got)
	}
	if n := dbtest.Count(t, pool, "select count(*) from positions where user_id = $1", user); n != 0 {
		t.Fatalf("positions = %d", n)
	}
	if n := dbtest.Count(t, pool, `
		select count(*) from ledger_entries e join accounts a on a.id = e.account_id where a.user_id = $1
	`, user); n != 0 {
		t.Fatalf("journal entries = %d", n)
	}
}

func TestDBSweepClosesOnlyExpired(t *testing.T) {
	svc, pool, user := newDBService(t)
	ctx := context.Background()
	filter := SweepFilter{UserID: user}

	pos, err := svc.Open(ctx, user, OpenInput{Symbol: "BTC", Direction: "buy", EntryPrice: "50000", Amount: "40", Duration: 5})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := dbtest.Balance(t, pool, user, types.BucketTrading); got.String() != "10" {
		t.Fatalf("trading after open = %s", got)
	}

	svc.now = func() time.Time { return openedAt.Add(4*time.Minute + 59*time.Second) }
	closed, err := svc.SweepExpired(ctx, filter, 10)
	if err != nil || len(closed) != 0 {
		t.Fatalf("early sweep closed %d, %v", len(closed), err)
	}

	svc.now = func() time.Time { return openedAt.Add(5 * time.Minute) }
	closed, err = svc.SweepExpired(ctx, filter, 10)
	if err != nil || len(closed) != 1 || closed[0].Ref != pos.Ref {
		t.Fatalf("sweep = %v, %v", closed, err)
	}
	got, err := svc.Get(ctx, user, pos.Ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.PositionStatusClosed || got.CloseReason == nil || *got.CloseReason != types.CloseReasonExpired {
		t.Fatalf("position = %+v", got)
	}
	if b := dbtest.Balance(t, pool, user, types.BucketTrading); b.String() != "50" {
		t.Fatalf("trading after flat settle = %s", b)
	}

	closed, err = svc.SweepExpired(ctx, filter, 10)
	if err != nil || len(closed) != 0 {
		t.Fatalf("repeat sweep closed %d, %v", len(closed), err)
	}
	out, err := svc.Close(ctx, user, pos.Ref)
	if err != nil || out.Status != "already_closed" {
		t.Fatalf("manual close after sweep = %+v, %v", out, err)
	}
	if b := dbtest.Balance(t, pool, user, types.BucketTrading); b.String() != "50" {
		t.Fatalf("trading after no-op close = %s", b)
	}
}
