// Package dbtest opens a migrated Postgres database for integration tests. Every helper
// skips the calling test unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"norvia-broker/internal/db"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const migrateLockKey = 7342

// Pool connects to TEST_DATABASE_URL and applies the schema. Package test binaries run in
// parallel, so migrations serialize on an advisory lock.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "select pg_advisory_lock($1)", migrateLockKey); err != nil {
		t.Fatalf("migrate lock: %v", err)
	}
	defer conn.Exec(context.Background(), "select pg_advisory_unlock($1)", migrateLockKey)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// User creates a user with an empty account and returns the user id.
func User(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	ctx := context.Background()
	handle := "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
	var userID string
	if err := pool.QueryRow(ctx, `
		insert into users (email, handle) values ($1, $2) returning id::text
	`, handle+"@example.test", handle).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := pool.Exec(ctx, `insert into accounts (user_id, handle) values ($1, $2)`, userID, handle); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	return userID
}

var bucketColumns = map[types.Bucket]string{
	types.BucketTrading:       "trading_balance",
	types.BucketHolding:       "holding_balance",
	types.BucketProfit:        "profit",
	types.BucketHoldingProfit: "holding_profit",
	types.BucketWithdrawable:  "withdrawable",
}

// Fund sets a bucket directly, without a journal entry.
func Fund(t *testing.T, pool *pgxpool.Pool, userID string, bucket types.Bucket, amount string) {
	t.Helper()
	col, ok := bucketColumns[bucket]
	if !ok {
		t.Fatalf("unknown bucket %q", bucket)
	}
	if _, err := pool.Exec(context.Background(), "update accounts set "+col+" = $2 where user_id = $1", userID, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("fund %s: %v", bucket, err)
	}
}

// Balance reads one bucket of the user's account.
func Balance(t *testing.T, pool *pgxpool.Pool, userID string, bucket types.Bucket) decimal.Decimal {
	t.Helper()
	col := string(types.BucketWithdrawHold)
	if bucket != types.BucketWithdrawHold {
		var ok bool
		if col, ok = bucketColumns[bucket]; !ok {
			t.Fatalf("unknown bucket %q", bucket)
		}
	}
	var v decimal.Decimal
	if err := pool.QueryRow(context.Background(), "select "+col+" from accounts where user_id = $1", userID).Scan(&v); err != nil {
		t.Fatalf("read %s: %v", bucket, err)
	}
	return v
}

// Currency inserts an enabled currency with the given fee and returns its ref.
func Currency(t *testing.T, pool *pgxpool.Pool, fee string) string {
	t.Helper()
	ref := uuid.NewString()
	abbr := "T" + strings.ToUpper(strings.ReplaceAll(ref, "-", "")[:7])
	if _, err := pool.Exec(context.Background(), `
		insert into currencies (ref, abbr, name, address, network, transaction_fee)
		values ($1, $2, $3, 'wallet-address', 'test', $4)
	`, ref, abbr, "Test "+abbr, decimal.RequireFromString(fee)); err != nil {
		t.Fatalf("insert currency: %v", err)
	}
	return ref
}

// Count runs a count(*) query.
func Count(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
