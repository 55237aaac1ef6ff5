package model

import (
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID                string          `json:"-"`
	UserID            string          `json:"-"`
	Handle            string          `json:"handle"`
	TradingBalance    decimal.Decimal `json:"trading_balance"`
	HoldingBalance    decimal.Decimal `json:"holding_balance"`
	Profit            decimal.Decimal `json:"profit"`
	HoldingProfit     decimal.Decimal `json:"holding_profit"`
	Withdrawable      decimal.Decimal `json:"withdrawable"`
	WithdrawalHold    decimal.Decimal `json:"withdrawal_hold"`
	TradingEnabled    bool            `json:"trading_enabled"`
	WithdrawalEnabled bool            `json:"withdrawal_enabled"`
	Banned            bool            `json:"banned"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BucketDelta is one signed change applied to one bucket.
type BucketDelta struct {
	Bucket types.Bucket
	Amount decimal.Decimal
}

func (a *Account) bucket(b types.Bucket) (*decimal.Decimal, error) {
	switch b {
	case types.BucketTrading:
		return &a.TradingBalance, nil
	case types.BucketHolding:
		return &a.HoldingBalance, nil
	case types.BucketProfit:
		return &a.Profit, nil
	case types.BucketHoldingProfit:
		return &a.HoldingProfit, nil
	case types.BucketWithdrawable:
		return &a.Withdrawable, nil
	case types.BucketWithdrawHold:
		return &a.WithdrawalHold, nil
	}
	return nil, apperr.InvalidInput("unknown balance bucket %q", b)
}

func (a *Account) Balance(b types.Bucket) decimal.Decimal {
	p, err := a.bucket(b)
	if err != nil {
		return decimal.Zero
	}
	return *p
}

func (a *Account) Credit(b types.Bucket, amount decimal.Decimal) (BucketDelta, error) {
	if !amount.IsPositive() {
		return BucketDelta{}, apperr.InvalidInput("credit amount must be positive")
	}
	p, err := a.bucket(b)
	if err != nil {
		return BucketDelta{}, err
	}
	*p = p.Add(amount)
	return BucketDelta{Bucket: b, Amount: amount}, nil
}

func (a *Account) Debit(b types.Bucket, amount decimal.Decimal) (BucketDelta, error) {
	if !amount.IsPositive() {
		return BucketDelta{}, apperr.InvalidInput("debit amount must be positive")
	}
	p, err := a.bucket(b)
	if err != nil {
		return BucketDelta{}, err
	}
	available := *p
	if b == types.BucketWithdrawable {
		available = a.AvailableToWithdraw()
	}
	if amount.GreaterThan(available) {
		return BucketDelta{}, apperr.InsufficientBalance("insufficient %s balance", b)
	}
	*p = p.Sub(amount)
	return BucketDelta{Bucket: b, Amount: amount.Neg()}, nil
}

// AvailableToWithdraw is the single source of truth for what a new withdrawal may claim.
func (a *Account) AvailableToWithdraw() decimal.Decimal {
	v := a.Withdrawable.Sub(a.WithdrawalHold)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Reserve places a hold for a pending withdrawal.
func (a *Account) Reserve(amount decimal.Decimal) (BucketDelta, error) {
	if !amount.IsPositive() {
		return BucketDelta{}, apperr.InvalidInput("amount must be positive")
	}
	if amount.GreaterThan(a.AvailableToWithdraw()) {
		return BucketDelta{}, apperr.InsufficientBalance("insufficient withdrawable balance")
	}
	a.WithdrawalHold = a.WithdrawalHold.Add(amount)
	return BucketDelta{Bucket: types.BucketWithdrawHold, Amount: amount}, nil
}

// Release drops a hold without moving funds.
func (a *Account) Release(amount decimal.Decimal) (BucketDelta, error) {
	if !amount.IsPositive() || amount.GreaterThan(a.WithdrawalHold) {
		return BucketDelta{}, apperr.InvalidInput("release exceeds held amount")
	}
	a.WithdrawalHold = a.WithdrawalHold.Sub(amount)
	return BucketDelta{Bucket: types.BucketWithdrawHold, Amount: amount.Neg()}, nil
}

// SettleHold consumes a hold and debits the withdrawable bucket by the same amount.
func (a *Account) SettleHold(amount decimal.Decimal) ([]BucketDelta, error) {
	if !amount.IsPositive() || amount.GreaterThan(a.WithdrawalHold) || amount.GreaterThan(a.Withdrawable) {
		return nil, apperr.InsufficientBalance("held amount does not cover withdrawal")
	}
	a.WithdrawalHold = a.WithdrawalHold.Sub(amount)
	a.Withdrawable = a.Withdrawable.Sub(amount)
	return []BucketDelta{
		{Bucket: types.BucketWithdrawHold, Amount: amount.Neg()},
		{Bucket: types.BucketWithdrawable, Amount: amount.Neg()},
	}, nil
}

func (a *Account) CanTrade() error {
	if a.Banned {
		return apperr.Forbidden("account is suspended")
	}
	if !a.TradingEnabled {
		return apperr.Forbidden("trading is disabled for this account")
	}
	return nil
}

func (a *Account) CanWithdraw() error {
	if a.Banned {
		return apperr.Forbidden("account is suspended")
	}
	if !a.WithdrawalEnabled {
		return apperr.Forbidden("withdrawals are disabled for this account")
	}
	return nil
}
