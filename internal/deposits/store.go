package deposits

import (
	"context"
	"errors"
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
)

const depositSelect = `
	select d.id::text, d.ref::text, d.user_id::text, d.transaction_no, d.amount, d.fee, d.grand_total, d.bucket,
		case when d.currency_id is not null then 'currency' else 'gateway' end,
		coalesce(c.ref, g.ref)::text, coalesce(c.abbr, g.name), d.network, d.status,
		d.proof_ref, d.tx_hash, d.note, d.expire_time, d.approved_amount, d.approved_on, d.created_at
	from deposits d
	left join currencies c on c.id = d.currency_id
	left join payment_gateways g on g.id = d.gateway_id
`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var d model.Deposit
	var bucket, kind, status string
	err := row.Scan(&d.ID, &d.Ref, &d.UserID, &d.TransactionNo, &d.Amount, &d.Fee, &d.GrandTotal, &bucket,
		&kind, &d.Method.Ref, &d.MethodName, &d.Network, &status,
		&d.ProofRef, &d.TxHash, &d.Note, &d.ExpireTime, &d.ApprovedAmount, &d.ApprovedOn, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("deposit")
		}
		return nil, err
	}
	d.Bucket = types.Bucket(bucket)
	d.Method.Kind = types.PaymentMethodKind(kind)
	d.Status = types.DepositStatus(status)
	return &d, nil
}

func collect(rows pgx.Rows) ([]model.Deposit, error) {
	defer rows.Close()
	out := []model.Deposit{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func insertDeposit(ctx context.Context, tx pgx.Tx, d *model.Deposit, currencyID, gatewayID *string) error {
	return tx.QueryRow(ctx, `
		insert into deposits (
			ref, user_id, amount, fee, grand_total, bucket, currency_id, gateway_id,
			network, status, transaction_no, expire_time, created_at
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, $12)
		returning id::text
	`, d.Ref, d.UserID, d.Amount, d.Fee, d.GrandTotal, string(d.Bucket), currencyID, gatewayID,
		d.Network, d.TransactionNo, d.ExpireTime, d.CreatedAt).Scan(&d.ID)
}

// lockByRef locks one deposit. An empty userID skips the ownership filter (admin paths).
func lockByRef(ctx context.Context, tx pgx.Tx, userID, ref string) (*model.Deposit, error) {
	return scanDeposit(tx.QueryRow(ctx, depositSelect+`
		where d.ref::text = $1 and ($2 = '' or d.user_id::text = $2)
		for update of d
	`, ref, userID))
}

func lockNextExpired(ctx context.Context, tx pgx.Tx, now time.Time) (*model.Deposit, error) {
	d, err := scanDeposit(tx.QueryRow(ctx, depositSelect+`
		where d.status = 'pending' and d.proof_ref = '' and d.expire_time <= $1
		order by d.expire_time
		limit 1
		for update of d skip locked
	`, now))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// transition is the compare-and-swap out of pending.
func transition(ctx context.Context, tx pgx.Tx, id string, to types.DepositStatus, reviewerID *string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		update deposits set status = $2, reviewed_by = $3, updated_at = now()
		where id = $1 and status = 'pending'
	`, id, string(to), reviewerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
