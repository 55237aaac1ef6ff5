package admin

import (
	"context"
	"net/http"

	"norvia-broker/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Handler serves the back-office dashboard.
type Handler struct {
	pool *pgxpool.Pool
}

func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

type Stats struct {
	Users                  int64           `json:"users"`
	PendingDeposits        int64           `json:"pending_deposits"`
	PendingDepositTotal    decimal.Decimal `json:"pending_deposit_total"`
	PendingWithdrawals     int64           `json:"pending_withdrawals"`
	PendingWithdrawalTotal decimal.Decimal `json:"pending_withdrawal_total"`
	PendingCopies          int64           `json:"pending_copies"`
	PendingCopyRequests    int64           `json:"pending_copy_requests"`
	PendingVerifications   int64           `json:"pending_verifications"`
	PendingApplications    int64           `json:"pending_trader_applications"`
	OpenPositions          int64           `json:"open_positions"`
	OpenPositionNotional   decimal.Decimal `json:"open_position_notional"`
	TotalTradingBalance    decimal.Decimal `json:"total_trading_balance"`
	TotalWithdrawalHold    decimal.Decimal `json:"total_withdrawal_hold"`
}

func (h *Handler) stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.pool.QueryRow(ctx, `
		select
			(select count(*) from users),
			(select count(*) from deposits where status = 'pending'),
			(select coalesce(sum(amount), 0) from deposits where status = 'pending'),
			(select count(*) from withdrawals where status = 'pending'),
			(select coalesce(sum(amount), 0) from withdrawals where status = 'pending'),
			(select count(*) from copy_relationships where status = 'pending'),
			(select count(*) from copy_requests where status = 'pending'),
			(select count(*) from verifications where status = 'pending'),
			(select count(*) from trader_applications where status = 'pending'),
			(select count(*) from positions where status = 'open'),
			(select coalesce(sum(amount), 0) from positions where status = 'open'),
			(select coalesce(sum(trading_balance), 0) from accounts),
			(select coalesce(sum(withdrawal_hold), 0) from accounts)
	`).Scan(
		&s.Users,
		&s.PendingDeposits, &s.PendingDepositTotal,
		&s.PendingWithdrawals, &s.PendingWithdrawalTotal,
		&s.PendingCopies, &s.PendingCopyRequests, &s.PendingVerifications, &s.PendingApplications,
		&s.OpenPositions, &s.OpenPositionNotional,
		&s.TotalTradingBalance, &s.TotalWithdrawalHold,
	)
	return s, err
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}
