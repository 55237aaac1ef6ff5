package withdrawals

import (
	"context"
	"errors"
	"testing"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db/dbtest"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/paymentmethods"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

type fundedUser struct {
	id, admin, currency string
}

func newDBService(t *testing.T) (*Service, *pgxpool.Pool, fundedUser) {
	pool := dbtest.Pool(t)
	accountSvc := accounts.NewService(pool, ledger.NewService(pool))
	svc := NewService(pool, accountSvc, paymentmethods.NewService(pool), nil, nil, logger.Nop(), 0)
	u := fundedUser{id: dbtest.User(t, pool), admin: dbtest.User(t, pool), currency: dbtest.Currency(t, pool, "0")}
	dbtest.Fund(t, pool, u.id, types.BucketWithdrawable, "200")
	return svc, pool, u
}

func request(t *testing.T, svc *Service, u fundedUser, amount string) string {
	t.Helper()
	w, err := svc.Create(context.Background(), u.id, CreateInput{
		Amount:   amount,
		Currency: &CurrencyDestination{Ref: u.currency, WalletAddress: "bc1qtestwallet"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return w.Ref
}

func assertBalances(t *testing.T, pool *pgxpool.Pool, userID, withdrawable, hold string) {
	t.Helper()
	if got := dbtest.Balance(t, pool, userID, types.BucketWithdrawable); got.String() != withdrawable {
		t.Fatalf("withdrawable = %s, want %s", got, withdrawable)
	}
	if got := dbtest.Balance(t, pool, userID, types.BucketWithdrawHold); got.String() != hold {
		t.Fatalf("hold = %s, want %s", got, hold)
	}
}

func TestDBApproveDebitsOnce(t *testing.T) {
	svc, pool, u := newDBService(t)
	ctx := context.Background()
	ref := request(t, svc, u, "80")
	assertBalances(t, pool, u.id, "200", "80")

	out, err := svc.Approve(ctx, ref, u.admin)
	if err != nil || out.Status != OutcomeApproved {
		t.Fatalf("approve = %+v, %v", out, err)
	}
	assertBalances(t, pool, u.id, "120", "0")

	again, err := svc.Approve(ctx, ref, u.admin)
	if err != nil || again.Status != "already_success" {
		t.Fatalf("second approve = %+v, %v", again, err)
	}
	assertBalances(t, pool, u.id, "120", "0")
}

func TestDBRejectReleasesHoldOnly(t *testing.T) {
	svc, pool, u := newDBService(t)
	ctx := context.Background()
	ref := request(t, svc, u, "50")
	assertBalances(t, pool, u.id, "200", "50")

	out, err := svc.Reject(ctx, ref, u.admin)
	if err != nil || out.Status != OutcomeRejected {
		t.Fatalf("reject = %+v, %v", out, err)
	}
	assertBalances(t, pool, u.id, "200", "0")

	again, err := svc.Approve(ctx, ref, u.admin)
	if err != nil || again.Status != "already_rejected" {
		t.Fatalf("approve after reject = %+v, %v", again, err)
	}
	assertBalances(t, pool, u.id, "200", "0")
}

func TestDBCreateBeyondAvailableWritesNothing(t *testing.T) {
	svc, pool, u := newDBService(t)
	request(t, svc, u, "150")

	_, err := svc.Create(context.Background(), u.id, CreateInput{
		Amount:   "60",
		Currency: &CurrencyDestination{Ref: u.currency, WalletAddress: "bc1qtestwallet"},
	})
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	assertBalances(t, pool, u.id, "200", "150")
	if n := dbtest.Count(t, pool, "select count(*) from withdrawals where user_id = $1", u.id); n != 1 {
		t.Fatalf("withdrawals = %d", n)
	}
}
