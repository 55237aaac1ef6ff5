package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const accountColumns = `id::text, user_id::text, handle, trading_balance, holding_balance, profit, holding_profit,
	withdrawable, withdrawal_hold, trading_enabled, withdrawal_enabled, banned, created_at, updated_at`

// Service owns the per-user balance row. Every mutation goes through Lock then Apply
// inside one transaction, so changes to a single account are serialized by the row lock.
type Service struct {
	pool    *pgxpool.Pool
	journal *ledger.Service
}

func NewService(pool *pgxpool.Pool, journal *ledger.Service) *Service {
	return &Service{pool: pool, journal: journal}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Handle, &a.TradingBalance, &a.HoldingBalance, &a.Profit, &a.HoldingProfit,
		&a.Withdrawable, &a.WithdrawalHold, &a.TradingEnabled, &a.WithdrawalEnabled, &a.Banned, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("account")
		}
		return nil, err
	}
	return &a, nil
}

func (s *Service) Create(ctx context.Context, tx pgx.Tx, userID, handle string) error {
	_, err := tx.Exec(ctx, `insert into accounts (user_id, handle) values ($1, $2) on conflict (user_id) do nothing`, userID, handle)
	return err
}

// Lock loads the account row FOR UPDATE.
func (s *Service) Lock(ctx context.Context, tx pgx.Tx, userID string) (*model.Account, error) {
	return scanAccount(tx.QueryRow(ctx, "select "+accountColumns+" from accounts where user_id = $1 for update", userID))
}

func (s *Service) LockByHandle(ctx context.Context, tx pgx.Tx, handle string) (*model.Account, error) {
	return scanAccount(tx.QueryRow(ctx, "select "+accountColumns+" from accounts where handle = $1 for update", strings.TrimSpace(handle)))
}

func (s *Service) Get(ctx context.Context, userID string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, "select "+accountColumns+" from accounts where user_id = $1", userID))
}

// Apply persists a locked account after in-memory mutation and journals the deltas.
func (s *Service) Apply(ctx context.Context, tx pgx.Tx, a *model.Account, deltas []model.BucketDelta, entryType types.LedgerEntryType, ref string) error {
	_, err := tx.Exec(ctx, `
		update accounts
		set trading_balance = $2,
			holding_balance = $3,
			profit = $4,
			holding_profit = $5,
			withdrawable = $6,
			withdrawal_hold = $7,
			updated_at = now()
		where id = $1
	`, a.ID, a.TradingBalance.Round(8), a.HoldingBalance.Round(8), a.Profit.Round(8), a.HoldingProfit.Round(8),
		a.Withdrawable.Round(8), a.WithdrawalHold.Round(8))
	if err != nil {
		return err
	}
	if s.journal == nil {
		return nil
	}
	return s.journal.Record(ctx, tx, a.ID, deltas, entryType, ref)
}

var (
	transferSources = map[types.Bucket]bool{
		types.BucketTrading: true, types.BucketHolding: true, types.BucketProfit: true, types.BucketHoldingProfit: true,
	}
	transferTargets = map[types.Bucket]bool{
		types.BucketTrading: true, types.BucketHolding: true, types.BucketWithdrawable: true,
	}
)

func ValidateTransfer(from, to types.Bucket) error {
	if !transferSources[from] {
		return apperr.InvalidInput("cannot transfer from %s", from)
	}
	if !transferTargets[to] {
		return apperr.InvalidInput("cannot transfer to %s", to)
	}
	if from == to {
		return apperr.InvalidInput("source and destination must differ")
	}
	return nil
}

type TransferInput struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,decimal_gt0"`
}

// Transfer moves funds between two buckets of the same account.
func (s *Service) Transfer(ctx context.Context, userID string, in TransferInput) (*model.Account, error) {
	from, to := types.Bucket(strings.ToLower(in.From)), types.Bucket(strings.ToLower(in.To))
	if err := ValidateTransfer(from, to); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, apperr.InvalidInput("amount must be greater than 0")
	}
	var out *model.Account
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if a.Banned {
			return apperr.Forbidden("account is suspended")
		}
		debit, err := a.Debit(from, amount)
		if err != nil {
			return err
		}
		credit, err := a.Credit(to, amount)
		if err != nil {
			return err
		}
		ref := fmt.Sprintf("transfer:%s:%s", from, to)
		if err := s.Apply(ctx, tx, a, []model.BucketDelta{debit, credit}, types.LedgerEntryTransfer, ref); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

type Summary struct {
	Account             *model.Account  `json:"account"`
	AvailableToWithdraw decimal.Decimal `json:"available_to_withdraw"`
	OpenPositions       int             `json:"open_positions"`
	OpenPnL             decimal.Decimal `json:"open_pnl"`
	PendingDeposits     int             `json:"pending_deposits"`
	PendingWithdrawals  int             `json:"pending_withdrawals"`
	EmailVerified       bool            `json:"email_verified"`
	PhoneVerified       bool            `json:"phone_verified"`
	KYCStatus           string          `json:"kyc_status"`
	AddressStatus       string          `json:"address_status"`
}

// Summary marks open positions at their stored current price.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{Account: a, AvailableToWithdraw: a.AvailableToWithdraw()}
	err = s.pool.QueryRow(ctx, `
		select
			count(*),
			coalesce(sum(case when side = 'buy' then (current_price - entry_price) * size
			                  else (entry_price - current_price) * size end), 0)
		from positions
		where user_id = $1 and status = 'open'
	`, userID).Scan(&out.OpenPositions, &out.OpenPnL)
	if err != nil {
		return out, err
	}
	err = s.pool.QueryRow(ctx, `
		select
			(select count(*) from deposits where user_id = $1 and status = 'pending'),
			(select count(*) from withdrawals where user_id = $1 and status = 'pending'),
			u.email_verified,
			u.phone_verified,
			coalesce((select status from verifications where user_id = $1 and kind = 'kyc' order by created_at desc limit 1), 'none'),
			coalesce((select status from verifications where user_id = $1 and kind = 'address' order by created_at desc limit 1), 'none')
		from users u
		where u.id = $1
	`, userID).Scan(&out.PendingDeposits, &out.PendingWithdrawals, &out.EmailVerified, &out.PhoneVerified, &out.KYCStatus, &out.AddressStatus)
	if err != nil {
		return out, err
	}
	out.OpenPnL = out.OpenPnL.Round(8)
	return out, nil
}

type FlagsInput struct {
	TradingEnabled    *bool `json:"trading_enabled"`
	WithdrawalEnabled *bool `json:"withdrawal_enabled"`
	Banned            *bool `json:"banned"`
}

func (s *Service) SetFlags(ctx context.Context, handle string, in FlagsInput) (*model.Account, error) {
	if in.TradingEnabled == nil && in.WithdrawalEnabled == nil && in.Banned == nil {
		return nil, apperr.InvalidInput("no flags supplied")
	}
	var out *model.Account
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.LockByHandle(ctx, tx, handle)
		if err != nil {
			return err
		}
		if in.TradingEnabled != nil {
			a.TradingEnabled = *in.TradingEnabled
		}
		if in.WithdrawalEnabled != nil {
			a.WithdrawalEnabled = *in.WithdrawalEnabled
		}
		if in.Banned != nil {
			a.Banned = *in.Banned
		}
		_, err = tx.Exec(ctx, `
			update accounts set trading_enabled = $2, withdrawal_enabled = $3, banned = $4, updated_at = now()
			where id = $1
		`, a.ID, a.TradingEnabled, a.WithdrawalEnabled, a.Banned)
		out = a
		return err
	})
	return out, err
}

// Ledger returns the caller's most recent journal entries.
func (s *Service) Ledger(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.journal.EntriesByAccount(ctx, a.ID, limit)
}
