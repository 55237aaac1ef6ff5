package copytrading

import (
	"context"
	"errors"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
)

const traderColumns = `id::text, ref::text, name, bio, win_rate, profit_share, min_allocation, copiers, enabled, created_at`

const relationshipSelect = `
	select r.id::text, r.ref::text, r.user_id::text, r.trader_id::text, t.ref::text, t.name, r.mode, r.amount,
		r.percentage, r.leverage, r.status, r.total_profit, r.reviewed_at, r.created_at
	from copy_relationships r
	join traders t on t.id = r.trader_id
`

const applicationSelect = `
	select a.id::text, a.ref::text, a.user_id::text, a.full_name, a.email, a.phone, a.country, a.experience,
		a.markets, a.volume, a.certifications, a.trading_style, a.risk_level, a.strategy, a.win_rate,
		a.statements_ref, a.government_id_ref, a.proof_account_ref, a.status, t.ref::text, a.reviewed_at, a.created_at
	from trader_applications a
	left join traders t on t.id = a.trader_id
`

const requestSelect = `
	select q.id::text, q.ref::text, q.user_id::text, q.trader_id::text, t.ref::text, q.allocation, q.percentage,
		q.status, q.reviewed_at, q.created_at
	from copy_requests q
	join traders t on t.id = q.trader_id
`

func scanTrader(row pgx.Row) (*model.Trader, error) {
	var t model.Trader
	err := row.Scan(&t.ID, &t.Ref, &t.Name, &t.Bio, &t.WinRate, &t.ProfitShare, &t.MinAllocation, &t.Copiers, &t.Enabled, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("trader")
		}
		return nil, err
	}
	return &t, nil
}

func scanRelationship(row pgx.Row) (*model.CopyRelationship, error) {
	var c model.CopyRelationship
	var mode, status string
	err := row.Scan(&c.ID, &c.Ref, &c.UserID, &c.TraderID, &c.TraderRef, &c.TraderName, &mode, &c.Amount,
		&c.Percentage, &c.Leverage, &status, &c.TotalProfit, &c.ReviewedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("copy relationship")
		}
		return nil, err
	}
	c.Mode = types.CopyMode(mode)
	c.Status = types.CopyStatus(status)
	return &c, nil
}

func scanRequest(row pgx.Row) (*model.CopyRequest, error) {
	var q model.CopyRequest
	var status string
	err := row.Scan(&q.ID, &q.Ref, &q.UserID, &q.TraderID, &q.TraderRef, &q.Allocation, &q.Percentage, &status, &q.ReviewedAt, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("copy request")
		}
		return nil, err
	}
	q.Status = types.CopyStatus(status)
	return &q, nil
}

// lockTrader locks the trader row; only enabled traders can be copied.
func lockTrader(ctx context.Context, tx pgx.Tx, ref string) (*model.Trader, error) {
	t, err := scanTrader(tx.QueryRow(ctx, "select "+traderColumns+" from traders where ref::text = $1 for update", ref))
	if err != nil {
		return nil, err
	}
	if !t.Enabled {
		return nil, apperr.NotFound("trader")
	}
	return t, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertTrader(ctx context.Context, q queryRower, t *model.Trader) error {
	return q.QueryRow(ctx, `
		insert into traders (ref, name, bio, win_rate, profit_share, min_allocation, enabled, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id::text
	`, t.Ref, t.Name, t.Bio, t.WinRate.Round(2), t.ProfitShare.Round(2), t.MinAllocation.Round(8), t.Enabled, t.CreatedAt).Scan(&t.ID)
}

func insertRelationship(ctx context.Context, tx pgx.Tx, c *model.CopyRelationship) error {
	return tx.QueryRow(ctx, `
		insert into copy_relationships (ref, user_id, trader_id, mode, amount, percentage, leverage, status, reviewed_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning id::text
	`, c.Ref, c.UserID, c.TraderID, string(c.Mode), c.Amount.Round(8), c.Percentage.Round(2), c.Leverage,
		string(c.Status), c.ReviewedAt, c.CreatedAt).Scan(&c.ID)
}

// adjustCopiers moves the copier counter by delta without going below zero.
func adjustCopiers(ctx context.Context, tx pgx.Tx, traderID string, delta int) error {
	_, err := tx.Exec(ctx, `update traders set copiers = greatest(copiers + $2, 0) where id = $1`, traderID, delta)
	return err
}

func collectRelationships(rows pgx.Rows) ([]model.CopyRelationship, error) {
	defer rows.Close()
	out := []model.CopyRelationship{}
	for rows.Next() {
		c, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (*model.TraderApplication, error) {
	var a model.TraderApplication
	var status string
	err := row.Scan(&a.ID, &a.Ref, &a.UserID, &a.FullName, &a.Email, &a.Phone, &a.Country, &a.Experience,
		&a.Markets, &a.Volume, &a.Certifications, &a.TradingStyle, &a.RiskLevel, &a.Strategy, &a.WinRate,
		&a.StatementsRef, &a.GovernmentIDRef, &a.ProofAccountRef, &status, &a.TraderRef, &a.ReviewedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("trader application")
		}
		return nil, err
	}
	a.Status = types.ApplicationStatus(status)
	return &a, nil
}

func collectApplications(rows pgx.Rows) ([]model.TraderApplication, error) {
	defer rows.Close()
	out := []model.TraderApplication{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func collectRequests(rows pgx.Rows) ([]model.CopyRequest, error) {
	defer rows.Close()
	out := []model.CopyRequest{}
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}
