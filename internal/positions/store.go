package positions

import (
	"context"
	"errors"
	"strings"
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
)

const positionColumns = `p.id::text, p.ref::text, p.user_id::text, p.copy_id::text, c.ref::text, p.symbol, p.side, p.mode,
	p.leverage, p.asset, p.entry_price, p.current_price, p.amount, p.size, p.duration_minutes, p.status,
	p.pnl, p.pnl_percent, p.close_reason, p.opened_by, p.opened_at, p.closed_at`

const positionFrom = ` from positions p left join copy_relationships c on c.id = p.copy_id `

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var side, mode, asset, status string
	var reason *string
	err := row.Scan(&p.ID, &p.Ref, &p.UserID, &p.CopyID, &p.CopyRef, &p.Symbol, &side, &mode,
		&p.Leverage, &asset, &p.EntryPrice, &p.CurrentPrice, &p.Amount, &p.Size, &p.DurationMinutes, &status,
		&p.PnL, &p.PnLPercent, &reason, &p.OpenedBy, &p.OpenedAt, &p.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("position")
		}
		return nil, err
	}
	p.Side = types.PositionSide(side)
	p.Mode = types.PositionMode(mode)
	p.Asset = types.AssetClass(asset)
	p.Status = types.PositionStatus(status)
	if reason != nil {
		r := types.CloseReason(*reason)
		p.CloseReason = &r
	}
	return &p, nil
}

func insertPosition(ctx context.Context, tx pgx.Tx, p *model.Position) error {
	return tx.QueryRow(ctx, `
		insert into positions (
			ref, user_id, copy_id, symbol, side, mode, leverage, asset,
			entry_price, current_price, amount, size, duration_minutes,
			status, pnl, pnl_percent, opened_by, opened_at
		) values (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			'open', $14, $15, $16, $17
		)
		returning id::text
	`, p.Ref, p.UserID, p.CopyID, p.Symbol, string(p.Side), string(p.Mode), p.Leverage, string(p.Asset),
		p.EntryPrice, p.CurrentPrice, p.Amount, p.Size, p.DurationMinutes,
		p.PnL.Round(8), p.PnLPercent.Round(8), p.OpenedBy, p.OpenedAt).Scan(&p.ID)
}

func lockPositionByRef(ctx context.Context, tx pgx.Tx, userID, ref string) (*model.Position, error) {
	return scanPosition(tx.QueryRow(ctx, "select "+positionColumns+positionFrom+
		"where p.ref::text = $1 and p.user_id = $2 for update of p", ref, userID))
}

// lockNextExpired claims one expired open position, skipping rows another worker holds.
func lockNextExpired(ctx context.Context, tx pgx.Tx, f SweepFilter, now time.Time) (*model.Position, error) {
	p, err := scanPosition(tx.QueryRow(ctx, "select "+positionColumns+positionFrom+`
		where p.status = 'open'
		  and p.opened_at + make_interval(mins => p.duration_minutes) <= $1
		  and ($2 = '' or p.user_id::text = $2)
		  and ($3 = '' or p.asset = $3)
		order by p.opened_at asc
		limit 1
		for update of p skip locked
	`, now, f.UserID, string(f.Asset)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// markClosed is the compare-and-swap from open to closed.
func markClosed(ctx context.Context, tx pgx.Tx, p *model.Position, s Settlement, reason types.CloseReason, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		update positions
		set status = 'closed', pnl = $2, pnl_percent = $3, close_reason = $4, closed_at = $5
		where id = $1 and status = 'open'
	`, p.ID, s.PnL.Round(8), s.PnLPercent.Round(8), string(reason), now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type ListFilter struct {
	Status types.PositionStatus
	Asset  types.AssetClass
	Limit  int
}

func listPositions(ctx context.Context, q querier, userID string, f ListFilter) ([]model.Position, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.Query(ctx, "select "+positionColumns+positionFrom+`
		where p.user_id = $1
		  and ($2 = '' or p.status = $2)
		  and ($3 = '' or p.asset = $3)
		order by p.opened_at desc
		limit $4
	`, userID, string(f.Status), string(f.Asset), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func getPosition(ctx context.Context, q querier, userID, ref string) (*model.Position, error) {
	return scanPosition(q.QueryRow(ctx, "select "+positionColumns+positionFrom+"where p.ref::text = $1 and p.user_id = $2", ref, userID))
}

func updateMarks(ctx context.Context, tx pgx.Tx, symbol string, price any) (int64, error) {
	tag, err := tx.Exec(ctx, `
		update positions set current_price = $2
		where status = 'open' and upper(symbol) = $1
	`, strings.ToUpper(strings.TrimSpace(symbol)), price)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func openSymbols(ctx context.Context, q querier, asset types.AssetClass) ([]string, error) {
	rows, err := q.Query(ctx, `select distinct upper(symbol) from positions where status = 'open' and asset = $1`, string(asset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
