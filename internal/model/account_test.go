package model

import (
	"errors"
	"testing"
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDebitRejectsOverdraft(t *testing.T) {
	a := &Account{TradingBalance: dec("1000")}
	if _, err := a.Debit(types.BucketTrading, dec("1000.01")); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !a.TradingBalance.Equal(dec("1000")) {
		t.Fatalf("balance mutated on failed debit: %s", a.TradingBalance)
	}
	d, err := a.Debit(types.BucketTrading, dec("100"))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !a.TradingBalance.Equal(dec("900")) || !d.Amount.Equal(dec("-100")) {
		t.Fatalf("got balance %s delta %s", a.TradingBalance, d.Amount)
	}
}

func TestCreditRequiresPositiveAmount(t *testing.T) {
	a := &Account{}
	for _, v := range []string{"0", "-5"} {
		if _, err := a.Credit(types.BucketHolding, dec(v)); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("credit %s: expected invalid input, got %v", v, err)
		}
	}
	if _, err := a.Credit(types.Bucket("savings"), dec("1")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown bucket: expected invalid input, got %v", err)
	}
}

func TestWithdrawalHoldLifecycle(t *testing.T) {
	a := &Account{Withdrawable: dec("150")}
	if _, err := a.Reserve(dec("200")); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("reserve beyond balance: got %v", err)
	}
	if _, err := a.Reserve(dec("100")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// a second request may only claim what the first did not hold
	if _, err := a.Reserve(dec("60")); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("double spend not prevented: %v", err)
	}
	if got := a.AvailableToWithdraw(); !got.Equal(dec("50")) {
		t.Fatalf("available = %s, want 50", got)
	}
	deltas, err := a.SettleHold(dec("100"))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(deltas) != 2 || !a.Withdrawable.Equal(dec("50")) || !a.WithdrawalHold.IsZero() {
		t.Fatalf("after settle: withdrawable=%s hold=%s", a.Withdrawable, a.WithdrawalHold)
	}
	if _, err := a.Reserve(dec("50")); err != nil {
		t.Fatalf("reserve remaining: %v", err)
	}
	if _, err := a.Release(dec("50")); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !a.Withdrawable.Equal(dec("50")) || !a.WithdrawalHold.IsZero() {
		t.Fatalf("release moved funds: withdrawable=%s hold=%s", a.Withdrawable, a.WithdrawalHold)
	}
}

func TestAccountGuards(t *testing.T) {
	a := &Account{TradingEnabled: true, WithdrawalEnabled: true}
	if a.CanTrade() != nil || a.CanWithdraw() != nil {
		t.Fatal("enabled account rejected")
	}
	a.WithdrawalEnabled = false
	if !errors.Is(a.CanWithdraw(), apperr.ErrForbidden) {
		t.Fatal("disabled withdrawals allowed")
	}
	a.Banned = true
	if !errors.Is(a.CanTrade(), apperr.ErrForbidden) {
		t.Fatal("banned account can trade")
	}
}

func TestPositionExpiry(t *testing.T) {
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &Position{OpenedAt: opened, DurationMinutes: 5}
	if p.Expired(opened.Add(4*time.Minute + 59*time.Second)) {
		t.Fatal("expired too early")
	}
	if !p.Expired(opened.Add(5 * time.Minute)) {
		t.Fatal("elapsed == duration must count as expired")
	}
}
