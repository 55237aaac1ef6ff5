package paymentmethods

import (
	"context"
	"errors"
	"strings"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// defaultCurrencies are created disabled on first start; an admin fills in the address.
var defaultCurrencies = []model.Currency{
	{Abbr: "BTC", Name: "Bitcoin", Network: "BTC"},
	{Abbr: "ETH", Name: "Ethereum", Network: "ERC20"},
	{Abbr: "USDT", Name: "Tether", Network: "TRC20"},
	{Abbr: "TON", Name: "Toncoin", Network: "TON"},
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Resolved is a payment method loaded from the catalog.
type Resolved struct {
	model.PaymentMethod
	ID      string
	Name    string
	Network string
	Address string
	Email   string
	Minimum decimal.Decimal
	Fee     decimal.Decimal
	Enabled bool
}

// GrandTotal is what the user must pay for a deposit of amount through this method.
func (r Resolved) GrandTotal(amount decimal.Decimal) decimal.Decimal {
	return amount.Add(r.Fee)
}

// CheckAmount rejects amounts below the method minimum.
func (r Resolved) CheckAmount(amount decimal.Decimal) error {
	if amount.LessThan(r.Minimum) {
		return apperr.InvalidInput("minimum amount for %s is %s", r.Name, r.Minimum.String())
	}
	return nil
}

// ParseMethod builds the tagged union from a kind and an opaque ref.
func ParseMethod(kind, ref string) (model.PaymentMethod, error) {
	k := types.PaymentMethodKind(strings.ToLower(strings.TrimSpace(kind)))
	if k != types.PaymentMethodCurrency && k != types.PaymentMethodGateway {
		return model.PaymentMethod{}, apperr.InvalidInput("method kind must be currency or gateway")
	}
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err != nil {
		return model.PaymentMethod{}, apperr.InvalidInput("method ref must be a valid reference")
	}
	return model.PaymentMethod{Kind: k, Ref: ref}, nil
}

// Resolve loads the method behind m. Disabled methods are reported as not found.
func (s *Service) Resolve(ctx context.Context, q querier, m model.PaymentMethod) (Resolved, error) {
	if q == nil {
		q = s.pool
	}
	r := Resolved{PaymentMethod: m}
	var err error
	switch m.Kind {
	case types.PaymentMethodCurrency:
		err = q.QueryRow(ctx, `
			select id::text, abbr, network, address, minimum_deposit, transaction_fee, enabled
			from currencies where ref::text = $1
		`, m.Ref).Scan(&r.ID, &r.Name, &r.Network, &r.Address, &r.Minimum, &r.Fee, &r.Enabled)
	case types.PaymentMethodGateway:
		err = q.QueryRow(ctx, `
			select id::text, name, email, min_amount, transaction_fee, enabled
			from payment_gateways where ref::text = $1
		`, m.Ref).Scan(&r.ID, &r.Name, &r.Email, &r.Minimum, &r.Fee, &r.Enabled)
	default:
		return Resolved{}, apperr.InvalidInput("method kind must be currency or gateway")
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolved{}, apperr.NotFound(string(m.Kind))
		}
		return Resolved{}, err
	}
	if !r.Enabled {
		return Resolved{}, apperr.NotFound(string(m.Kind))
	}
	return r, nil
}

type Catalog struct {
	Currencies []model.Currency `json:"currencies"`
	Gateways   []model.Gateway  `json:"gateways"`
}

func (s *Service) Catalog(ctx context.Context, enabledOnly bool) (Catalog, error) {
	out := Catalog{Currencies: []model.Currency{}, Gateways: []model.Gateway{}}
	rows, err := s.pool.Query(ctx, `
		select id::text, ref::text, abbr, name, address, network, minimum_deposit, transaction_fee, instructions, enabled
		from currencies
		where enabled or not $1
		order by abbr
	`, enabledOnly)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var c model.Currency
		if err := rows.Scan(&c.ID, &c.Ref, &c.Abbr, &c.Name, &c.Address, &c.Network, &c.MinimumDeposit, &c.TransactionFee, &c.Instructions, &c.Enabled); err != nil {
			rows.Close()
			return out, err
		}
		out.Currencies = append(out.Currencies, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	rows, err = s.pool.Query(ctx, `
		select id::text, ref::text, name, email, min_amount, transaction_fee, enabled
		from payment_gateways
		where enabled or not $1
		order by name
	`, enabledOnly)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var g model.Gateway
		if err := rows.Scan(&g.ID, &g.Ref, &g.Name, &g.Email, &g.MinAmount, &g.TransactionFee, &g.Enabled); err != nil {
			return out, err
		}
		out.Gateways = append(out.Gateways, g)
	}
	return out, rows.Err()
}

type CurrencyInput struct {
	Abbr           string `json:"abbr" validate:"required,max=16"`
	Name           string `json:"name" validate:"required,max=64"`
	Address        string `json:"address" validate:"max=256"`
	Network        string `json:"network" validate:"max=32"`
	MinimumDeposit string `json:"minimum_deposit" validate:"omitempty,decimal_gte0"`
	TransactionFee string `json:"transaction_fee" validate:"omitempty,decimal_gte0"`
	Instructions   string `json:"instructions" validate:"max=2000"`
	Enabled        *bool  `json:"enabled"`
}

// UpsertCurrency creates or updates a currency keyed by its abbreviation.
func (s *Service) UpsertCurrency(ctx context.Context, in CurrencyInput) (*model.Currency, error) {
	in.Abbr = strings.ToUpper(strings.TrimSpace(in.Abbr))
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	minimum, fee, err := parseLimits(in.MinimumDeposit, in.TransactionFee)
	if err != nil {
		return nil, err
	}
	enabled := in.Enabled == nil || *in.Enabled
	if enabled && strings.TrimSpace(in.Address) == "" {
		return nil, apperr.InvalidInput("address is required for an enabled currency")
	}
	c := model.Currency{
		Abbr:           in.Abbr,
		Name:           strings.TrimSpace(in.Name),
		Address:        strings.TrimSpace(in.Address),
		Network:        strings.TrimSpace(in.Network),
		MinimumDeposit: minimum,
		TransactionFee: fee,
		Instructions:   strings.TrimSpace(in.Instructions),
		Enabled:        enabled,
	}
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			insert into currencies (ref, abbr, name, address, network, minimum_deposit, transaction_fee, instructions, enabled)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			on conflict (abbr) do update set
				name = excluded.name,
				address = excluded.address,
				network = excluded.network,
				minimum_deposit = excluded.minimum_deposit,
				transaction_fee = excluded.transaction_fee,
				instructions = excluded.instructions,
				enabled = excluded.enabled
			returning id::text, ref::text
		`, uuid.NewString(), c.Abbr, c.Name, c.Address, c.Network, c.MinimumDeposit, c.TransactionFee, c.Instructions, c.Enabled).Scan(&c.ID, &c.Ref)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type GatewayInput struct {
	Name           string `json:"name" validate:"required,max=64"`
	Email          string `json:"email" validate:"required,email"`
	MinAmount      string `json:"min_amount" validate:"omitempty,decimal_gte0"`
	TransactionFee string `json:"transaction_fee" validate:"omitempty,decimal_gte0"`
	Enabled        *bool  `json:"enabled"`
}

// UpsertGateway creates or updates a gateway keyed by its name.
func (s *Service) UpsertGateway(ctx context.Context, in GatewayInput) (*model.Gateway, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	minimum, fee, err := parseLimits(in.MinAmount, in.TransactionFee)
	if err != nil {
		return nil, err
	}
	g := model.Gateway{
		Name:           in.Name,
		Email:          in.Email,
		MinAmount:      minimum,
		TransactionFee: fee,
		Enabled:        in.Enabled == nil || *in.Enabled,
	}
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			insert into payment_gateways (ref, name, email, min_amount, transaction_fee, enabled)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (name) do update set
				email = excluded.email,
				min_amount = excluded.min_amount,
				transaction_fee = excluded.transaction_fee,
				enabled = excluded.enabled
			returning id::text, ref::text
		`, uuid.NewString(), g.Name, g.Email, g.MinAmount, g.TransactionFee, g.Enabled).Scan(&g.ID, &g.Ref)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SeedDefaults inserts the default currencies, disabled, if they are missing.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, c := range defaultCurrencies {
		_, err := s.pool.Exec(ctx, `
			insert into currencies (ref, abbr, name, address, network, enabled)
			values ($1, $2, $3, '', $4, false)
			on conflict (abbr) do nothing
		`, uuid.NewString(), c.Abbr, c.Name, c.Network)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseLimits(minRaw, feeRaw string) (decimal.Decimal, decimal.Decimal, error) {
	minimum, fee := decimal.Zero, decimal.Zero
	var err error
	if strings.TrimSpace(minRaw) != "" {
		if minimum, err = httputil.Amount(minRaw); err != nil {
			return minimum, fee, err
		}
	}
	if strings.TrimSpace(feeRaw) != "" {
		if fee, err = httputil.Amount(feeRaw); err != nil {
			return minimum, fee, err
		}
	}
	return minimum.Round(8), fee.Round(8), nil
}
