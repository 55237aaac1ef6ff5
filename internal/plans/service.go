// Package plans keeps the investment plan catalog. Buying a plan files a pending currency
// deposit for the plan price; nothing is credited until an admin approves that deposit.
package plans

import (
	"context"
	"errors"
	"strings"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/deposits"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const planColumns = `id::text, ref::text, category, tier, price, features, enabled, created_at`

type Service struct {
	pool     *pgxpool.Pool
	accounts *accounts.Service
	deposits *deposits.Service
	log      *logger.Logger
}

func NewService(pool *pgxpool.Pool, accountSvc *accounts.Service, depositSvc *deposits.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.L()
	}
	return &Service{pool: pool, accounts: accountSvc, deposits: depositSvc, log: log.Component("plans")}
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.Ref, &p.Category, &p.Tier, &p.Price, &p.Features, &p.Enabled, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("plan")
		}
		return nil, err
	}
	return &p, nil
}

// List returns plans grouped by category, cheapest first.
func (s *Service) List(ctx context.Context, enabledOnly bool) ([]model.Plan, error) {
	q := "select " + planColumns + " from plans "
	if enabledOnly {
		q += "where enabled "
	}
	rows, err := s.pool.Query(ctx, q+"order by category, price")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type PlanInput struct {
	Category string   `json:"category" validate:"required,max=64"`
	Tier     string   `json:"tier" validate:"required,max=64"`
	Price    string   `json:"price" validate:"required,decimal_gt0"`
	Features []string `json:"features" validate:"max=20,dive,required,max=200"`
	Enabled  *bool    `json:"enabled"`
}

func (s *Service) Create(ctx context.Context, in PlanInput) (*model.Plan, error) {
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Tier = strings.TrimSpace(in.Tier)
	in.Features = trimFeatures(in.Features)
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	price, err := planPrice(in.Price)
	if err != nil {
		return nil, err
	}
	p := model.Plan{
		Ref:      uuid.NewString(),
		Category: in.Category,
		Tier:     in.Tier,
		Price:    price,
		Features: in.Features,
		Enabled:  in.Enabled == nil || *in.Enabled,
	}
	err = s.pool.QueryRow(ctx, `
		insert into plans (ref, category, tier, price, features, enabled)
		values ($1, $2, $3, $4, $5, $6)
		returning id::text, created_at
	`, p.Ref, p.Category, p.Tier, p.Price, p.Features, p.Enabled).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a " + p.Tier + " plan already exists in " + p.Category)
		}
		return nil, err
	}
	s.log.Infof("plan %s/%s created at %s", p.Category, p.Tier, p.Price.String())
	return &p, nil
}

// UpdateInput changes only the fields that are present.
type UpdateInput struct {
	Price    string   `json:"price" validate:"omitempty,decimal_gt0"`
	Features []string `json:"features" validate:"omitempty,max=20,dive,required,max=200"`
	Enabled  *bool    `json:"enabled"`
}

func (s *Service) Update(ctx context.Context, ref string, in UpdateInput) (*model.Plan, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("plan")
	}
	if in.Features != nil {
		in.Features = trimFeatures(in.Features)
	}
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	if in.Price == "" && in.Features == nil && in.Enabled == nil {
		return nil, apperr.InvalidInput("nothing to update")
	}
	var price *decimal.Decimal
	if in.Price != "" {
		p, err := planPrice(in.Price)
		if err != nil {
			return nil, err
		}
		price = &p
	}
	return scanPlan(s.pool.QueryRow(ctx, `
		update plans set
			price = coalesce($2, price),
			features = coalesce($3, features),
			enabled = coalesce($4, enabled),
			updated_at = now()
		where ref::text = $1
		returning `+planColumns, ref, price, in.Features, in.Enabled))
}

func (s *Service) Delete(ctx context.Context, ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return apperr.NotFound("plan")
	}
	tag, err := s.pool.Exec(ctx, "delete from plans where ref::text = $1", ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("plan")
	}
	return nil
}

type PurchaseInput struct {
	CurrencyRef string `json:"currency_ref" validate:"required,uuid"`
}

// Purchase files a pending deposit of the plan price into trading, paid with the chosen
// currency. The trading balance must already cover the price.
func (s *Service) Purchase(ctx context.Context, userID, ref string, in PurchaseInput) (*model.Deposit, error) {
	in.CurrencyRef = strings.TrimSpace(in.CurrencyRef)
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("plan")
	}
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	p, err := scanPlan(s.pool.QueryRow(ctx, "select "+planColumns+" from plans where ref::text = $1 and enabled", ref))
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := a.CanTrade(); err != nil {
		return nil, err
	}
	if p.Price.GreaterThan(a.TradingBalance) {
		return nil, apperr.InsufficientBalance("low balance: the %s plan costs %s", p.Tier, p.Price.StringFixed(2))
	}
	d, err := s.deposits.Create(ctx, userID, deposits.CreateInput{
		Amount:     p.Price.String(),
		MethodKind: string(types.PaymentMethodCurrency),
		MethodRef:  in.CurrencyRef,
		Bucket:     string(types.BucketTrading),
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("plan %s/%s purchased as deposit %s", p.Category, p.Tier, d.TransactionNo)
	return d, nil
}

func planPrice(raw string) (decimal.Decimal, error) {
	price, err := httputil.Amount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	price = price.Round(8)
	if !price.IsPositive() {
		return decimal.Zero, apperr.InvalidInput("price must be at least 0.00000001")
	}
	return price, nil
}

func trimFeatures(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
