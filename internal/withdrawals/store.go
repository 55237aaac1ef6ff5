package withdrawals

import (
	"context"
	"errors"
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
)

const withdrawalSelect = `
	select w.id::text, w.ref::text, w.user_id::text, w.transaction_no, w.amount,
		case when w.currency_id is not null then 'currency' else 'gateway' end,
		coalesce(c.ref, g.ref)::text, coalesce(c.abbr, g.name), w.network, w.wallet_address, w.email,
		w.status, w.expire_time, w.reviewed_at, w.created_at
	from withdrawals w
	left join currencies c on c.id = w.currency_id
	left join payment_gateways g on g.id = w.gateway_id
`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var kind, status string
	err := row.Scan(&w.ID, &w.Ref, &w.UserID, &w.TransactionNo, &w.Amount,
		&kind, &w.Method.Ref, &w.MethodName, &w.Network, &w.WalletAddress, &w.Email,
		&status, &w.ExpireTime, &w.ReviewedAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("withdrawal")
		}
		return nil, err
	}
	w.Method.Kind = types.PaymentMethodKind(kind)
	w.Status = types.WithdrawalStatus(status)
	return &w, nil
}

func collect(rows pgx.Rows) ([]model.Withdrawal, error) {
	defer rows.Close()
	out := []model.Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func insertWithdrawal(ctx context.Context, tx pgx.Tx, w *model.Withdrawal, currencyID, gatewayID *string) error {
	return tx.QueryRow(ctx, `
		insert into withdrawals (
			ref, user_id, amount, currency_id, gateway_id, network, wallet_address, email,
			status, transaction_no, expire_time, created_at
		) values ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $10, $11)
		returning id::text
	`, w.Ref, w.UserID, w.Amount, currencyID, gatewayID, w.Network, w.WalletAddress, w.Email,
		w.TransactionNo, w.ExpireTime, w.CreatedAt).Scan(&w.ID)
}

func lockByRef(ctx context.Context, tx pgx.Tx, ref string) (*model.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRow(ctx, withdrawalSelect+`where w.ref::text = $1 for update of w`, ref))
}

func lockNextExpired(ctx context.Context, tx pgx.Tx, now time.Time) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx, withdrawalSelect+`
		where w.status = 'pending' and w.expire_time <= $1
		order by w.expire_time
		limit 1
		for update of w skip locked
	`, now))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return w, err
}

// transition is the compare-and-swap out of pending.
func transition(ctx context.Context, tx pgx.Tx, id string, to types.WithdrawalStatus, reviewerID *string, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		update withdrawals set status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = now()
		where id = $1 and status = 'pending'
	`, id, string(to), reviewerID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
