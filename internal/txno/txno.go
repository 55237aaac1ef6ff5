// Package txno issues human-readable transaction numbers of the form YYYYMMDD followed by
// a per-day sequence, zero-padded to four digits.
package txno

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	ScopeDeposit    = "deposit"
	ScopeWithdrawal = "withdrawal"
)

// Format renders the transaction number for the n-th record of day.
func Format(day time.Time, n int64) string {
	return fmt.Sprintf("%s%04d", day.UTC().Format("20060102"), n)
}

// Next atomically bumps the per-day counter for scope and returns the new number.
// Concurrent callers on the same day serialize on the counter row.
func Next(ctx context.Context, tx pgx.Tx, scope string, now time.Time) (string, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	var n int64
	err := tx.QueryRow(ctx, `
		insert into daily_sequences (scope, day, last_value)
		values ($1, $2::date, 1)
		on conflict (scope, day) do update set last_value = daily_sequences.last_value + 1
		returning last_value
	`, scope, day).Scan(&n)
	if err != nil {
		return "", err
	}
	return Format(day, n), nil
}
