package positions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/events"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/marketdata"
	"norvia-broker/internal/metrics"
	"norvia-broker/internal/model"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	openedByUser  = "user"
	openedByAdmin = "admin"
)

// Prices and amounts are stored as numeric(28,8) and size as numeric(38,18).
const moneyScale = 8

var maxSize = decimal.New(1, 20)

type Service struct {
	pool     *pgxpool.Pool
	accounts *accounts.Service
	prices   marketdata.PriceSource
	bus      *events.Bus
	notifier *notify.Dispatcher
	log      *logger.Logger
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, accountSvc *accounts.Service, prices marketdata.PriceSource, bus *events.Bus, notifier *notify.Dispatcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.L()
	}
	return &Service{
		pool:     pool,
		accounts: accountSvc,
		prices:   prices,
		bus:      bus,
		notifier: notifier,
		log:      log.Component("positions"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OpenInput is the trade form. TradeType is accepted as the older name for Direction.
type OpenInput struct {
	Symbol       string `json:"symbol" validate:"required,max=32"`
	Direction    string `json:"direction" validate:"required,oneof=buy sell"`
	Mode         string `json:"mode" validate:"omitempty,oneof=spot leverage"`
	Leverage     *int   `json:"leverage" validate:"omitempty,min=1,max=1000"`
	EntryPrice   string `json:"entry_price" validate:"required,decimal_gt0"`
	CurrentPrice string `json:"current_price" validate:"omitempty,decimal_gt0"`
	Amount       string `json:"amount" validate:"required,decimal_gt0"`
	Duration     int    `json:"duration" validate:"omitempty,min=1,max=525600"`
	Asset        string `json:"asset" validate:"omitempty,oneof=crypto stock forex commodity"`
	TradeType    string `json:"trade_type" validate:"-"`
}

type openParams struct {
	symbol       string
	side         types.PositionSide
	mode         types.PositionMode
	leverage     *int
	entryPrice   decimal.Decimal
	currentPrice decimal.Decimal
	amount       decimal.Decimal
	duration     int
	asset        types.AssetClass
}

func (in *OpenInput) normalize() {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Direction = strings.ToLower(strings.TrimSpace(in.Direction))
	if in.Direction == "" {
		in.Direction = strings.ToLower(strings.TrimSpace(in.TradeType))
	}
	in.TradeType = ""
	switch in.Direction {
	case "long":
		in.Direction = string(types.PositionSideBuy)
	case "short":
		in.Direction = string(types.PositionSideSell)
	}
	in.Mode = strings.ToLower(strings.TrimSpace(in.Mode))
	in.Asset = strings.ToLower(strings.TrimSpace(in.Asset))
}

// parse validates the request and fills defaults. It never touches storage.
func (in OpenInput) parse() (openParams, error) {
	in.normalize()
	if err := httputil.Validate(in); err != nil {
		return openParams{}, err
	}
	p := openParams{
		symbol:   in.Symbol,
		side:     types.PositionSide(in.Direction),
		mode:     types.PositionModeSpot,
		duration: in.Duration,
		asset:    types.AssetCrypto,
	}
	if in.Mode != "" {
		p.mode = types.PositionMode(in.Mode)
	}
	if in.Asset != "" {
		p.asset = types.AssetClass(in.Asset)
	}
	if p.duration == 0 {
		p.duration = 1
	}
	switch p.mode {
	case types.PositionModeLeverage:
		if in.Leverage == nil || *in.Leverage < 2 {
			return openParams{}, apperr.InvalidInput("leverage must be at least 2 in leverage mode")
		}
		lev := *in.Leverage
		p.leverage = &lev
	default:
		if in.Leverage != nil && *in.Leverage > 1 {
			return openParams{}, apperr.InvalidInput("leverage is only allowed in leverage mode")
		}
	}
	var err error
	if p.entryPrice, err = storedPositive("entry_price", in.EntryPrice); err != nil {
		return openParams{}, err
	}
	if p.amount, err = storedPositive("amount", in.Amount); err != nil {
		return openParams{}, err
	}
	p.currentPrice = p.entryPrice
	if in.CurrentPrice != "" {
		if p.currentPrice, err = storedPositive("current_price", in.CurrentPrice); err != nil {
			return openParams{}, err
		}
	}
	return p, nil
}

// storedPositive parses raw and rounds it to the storage scale. A value that rounds
// to zero is rejected so that size is always derived from what gets persisted.
func storedPositive(field, raw string) (decimal.Decimal, error) {
	d, err := httputil.Amount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return roundPositive(field, d)
}

func roundPositive(field string, d decimal.Decimal) (decimal.Decimal, error) {
	d = d.Round(moneyScale)
	if !d.IsPositive() {
		return decimal.Zero, apperr.InvalidInput("%s must be at least 0.00000001", field)
	}
	return d, nil
}

// positionSize derives size from the stored amount and entry price and rejects sizes
// that would not fit the size column.
func positionSize(amount, entryPrice decimal.Decimal) (decimal.Decimal, error) {
	size := Size(amount, entryPrice)
	if size.GreaterThanOrEqual(maxSize) {
		return decimal.Zero, apperr.InvalidInput("position size is too large for entry price %s", entryPrice)
	}
	return size, nil
}

// Open debits the trading balance by amount and records an open position.
func (s *Service) Open(ctx context.Context, userID string, in OpenInput) (*model.Position, error) {
	p, err := in.parse()
	if err != nil {
		return nil, err
	}
	var pos *model.Position
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		pos, err = s.open(ctx, tx, a, p, openedByUser, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.opened(pos)
	return pos, nil
}

func (s *Service) open(ctx context.Context, tx pgx.Tx, a *model.Account, p openParams, openedBy string, copyID *string) (*model.Position, error) {
	if err := a.CanTrade(); err != nil {
		return nil, err
	}
	size, err := positionSize(p.amount, p.entryPrice)
	if err != nil {
		return nil, err
	}
	debit, err := a.Debit(types.BucketTrading, p.amount)
	if err != nil {
		return nil, err
	}
	pnl := PnL(p.side, p.entryPrice, p.currentPrice, size)
	pos := &model.Position{
		Ref:             uuid.NewString(),
		UserID:          a.UserID,
		CopyID:          copyID,
		Symbol:          p.symbol,
		Side:            p.side,
		Mode:            p.mode,
		Leverage:        p.leverage,
		Asset:           p.asset,
		EntryPrice:      p.entryPrice,
		CurrentPrice:    p.currentPrice,
		Amount:          p.amount,
		Size:            size,
		DurationMinutes: p.duration,
		Status:          types.PositionStatusOpen,
		PnL:             pnl,
		PnLPercent:      PnLPercent(pnl, p.entryPrice, size),
		OpenedBy:        openedBy,
		OpenedAt:        s.now(),
	}
	if err := insertPosition(ctx, tx, pos); err != nil {
		return nil, err
	}
	if err := s.accounts.Apply(ctx, tx, a, []model.BucketDelta{debit}, types.LedgerEntryPositionOpen, "position:"+pos.Ref); err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *Service) opened(pos *model.Position) {
	metrics.PositionsOpened.WithLabelValues(pos.OpenedBy).Inc()
	s.bus.Publish(events.Event{Type: events.TypePositionOpened, UserID: pos.UserID, Data: pos})
	if pos.OpenedBy == openedByAdmin {
		s.notifier.Send(notify.Notice{
			UserID: pos.UserID,
			Title:  "New trade opened",
			Body:   fmt.Sprintf("A %s %s trade of %s was opened on your account.", pos.Side, pos.Symbol, pos.Amount.StringFixed(2)),
		})
	}
}

// CloseResult mirrors the review decisions: Status is "closed", or "already_closed"
// with a warning when the position had been settled before and nothing changed.
type CloseResult struct {
	Status   string          `json:"status"`
	Warning  string          `json:"warning,omitempty"`
	Position *model.Position `json:"position"`
}

// Close settles an open position at its stored current price.
func (s *Service) Close(ctx context.Context, userID, ref string) (CloseResult, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return CloseResult{}, apperr.NotFound("position")
	}
	var out CloseResult
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := lockPositionByRef(ctx, tx, userID, ref)
		if err != nil {
			return err
		}
		if p.Status != types.PositionStatusOpen {
			out = alreadyClosed(p)
			return nil
		}
		if err := s.settle(ctx, tx, p, types.CloseReasonManual); err != nil {
			return err
		}
		out = CloseResult{Status: string(types.PositionStatusClosed), Position: p}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	if strings.HasPrefix(out.Status, "already_") {
		s.log.Warnf("%s", out.Warning)
		return out, nil
	}
	s.closed(out.Position)
	return out, nil
}

func alreadyClosed(p *model.Position) CloseResult {
	return CloseResult{
		Status:   "already_" + string(p.Status),
		Warning:  fmt.Sprintf("position %s is already %s", p.Ref, p.Status),
		Position: p,
	}
}

// settle flips the position to closed and pays the result into the owner's account.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, pos *model.Position, reason types.CloseReason) error {
	now := s.now()
	st := Settle(pos.Side, pos.EntryPrice, pos.CurrentPrice, pos.Size, pos.Amount)
	ok, err := markClosed(ctx, tx, pos, st, reason, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("position changed concurrently")
	}
	a, err := s.accounts.Lock(ctx, tx, pos.UserID)
	if err != nil {
		return err
	}
	var deltas []model.BucketDelta
	if st.Returned.IsPositive() {
		d, err := a.Credit(types.BucketTrading, st.Returned)
		if err != nil {
			return err
		}
		deltas = append(deltas, d)
	}
	if st.Gain.IsPositive() {
		bucket := types.BucketProfit
		if pos.CopyID != nil {
			bucket = types.BucketHoldingProfit
			if _, err := tx.Exec(ctx, `update copy_relationships set total_profit = total_profit + $2 where id = $1`, *pos.CopyID, st.Gain.Round(8)); err != nil {
				return err
			}
		}
		d, err := a.Credit(bucket, st.Gain)
		if err != nil {
			return err
		}
		deltas = append(deltas, d)
	}
	if len(deltas) > 0 {
		if err := s.accounts.Apply(ctx, tx, a, deltas, types.LedgerEntryPositionSettle, "position:"+pos.Ref); err != nil {
			return err
		}
	}
	pos.Status = types.PositionStatusClosed
	pos.PnL = st.PnL
	pos.PnLPercent = st.PnLPercent
	pos.CloseReason = &reason
	pos.ClosedAt = &now
	return nil
}

func (s *Service) closed(pos *model.Position) {
	reason := string(types.CloseReasonManual)
	if pos.CloseReason != nil {
		reason = string(*pos.CloseReason)
	}
	metrics.PositionsClosed.WithLabelValues(reason).Inc()
	s.bus.Publish(events.Event{Type: events.TypePositionClosed, UserID: pos.UserID, Data: pos})
	level := notify.LevelSuccess
	if pos.PnL.IsNegative() {
		level = notify.LevelWarning
	}
	s.notifier.Send(notify.Notice{
		UserID: pos.UserID,
		Title:  "Trade closed",
		Body:   fmt.Sprintf("%s %s closed (%s) with P&L %s.", pos.Side, pos.Symbol, reason, pos.PnL.StringFixed(2)),
		Level:  level,
	})
}

type SweepFilter struct {
	UserID string           `json:"user_id"`
	Asset  types.AssetClass `json:"asset"`
}

// SweepExpired closes up to limit expired positions, one transaction each.
func (s *Service) SweepExpired(ctx context.Context, f SweepFilter, limit int) ([]model.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []model.Position{}
	for i := 0; i < limit; i++ {
		pos, err := s.sweepOne(ctx, f)
		if err != nil {
			return out, err
		}
		if pos == nil {
			break
		}
		s.closed(pos)
		out = append(out, *pos)
	}
	return out, nil
}

func (s *Service) sweepOne(ctx context.Context, f SweepFilter) (*model.Position, error) {
	var pos *model.Position
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		pos = nil
		p, err := lockNextExpired(ctx, tx, f, s.now())
		if err != nil || p == nil {
			return err
		}
		if err := s.settle(ctx, tx, p, types.CloseReasonExpired); err != nil {
			return err
		}
		pos = p
		return nil
	})
	return pos, err
}

type TakeTradeInput struct {
	Symbol    string `json:"symbol" validate:"required,max=32"`
	Direction string `json:"direction" validate:"required,oneof=buy sell"`
	Leverage  *int   `json:"leverage" validate:"omitempty,min=1,max=1000"`
	Amount    string `json:"amount" validate:"required,decimal_gt0"`
	Duration  int    `json:"duration" validate:"omitempty,min=1,max=525600"`
	Asset     string `json:"asset" validate:"omitempty,oneof=crypto stock forex commodity"`
	CopyRef   string `json:"copy_ref" validate:"omitempty,uuid"`
}

// TakeTrade opens a position on a user's behalf at the live market price.
// A price lookup failure aborts before anything is written.
func (s *Service) TakeTrade(ctx context.Context, handle string, in TakeTradeInput) (*model.Position, error) {
	req := OpenInput{
		Symbol:    in.Symbol,
		Direction: in.Direction,
		Leverage:  in.Leverage,
		Amount:    in.Amount,
		Duration:  in.Duration,
		Asset:     in.Asset,
	}
	if in.Leverage != nil && *in.Leverage > 1 {
		req.Mode = string(types.PositionModeLeverage)
	} else {
		req.Leverage = nil
	}
	// entry price is a placeholder until the live quote arrives
	req.EntryPrice = "1"
	if in.CopyRef != "" {
		if _, err := uuid.Parse(in.CopyRef); err != nil {
			return nil, apperr.InvalidInput("copy_ref must be a valid reference")
		}
	}
	p, err := req.parse()
	if err != nil {
		return nil, err
	}
	if s.prices == nil {
		return nil, apperr.ExternalService("price source is not configured", nil)
	}
	price, err := s.prices.Price(ctx, p.symbol)
	if err != nil {
		s.log.Warnf("take trade aborted handle=%s symbol=%s: %v", handle, p.symbol, err)
		return nil, err
	}
	if price, err = roundPositive("market price", price); err != nil {
		return nil, err
	}
	p.entryPrice, p.currentPrice = price, price

	var pos *model.Position
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.accounts.LockByHandle(ctx, tx, handle)
		if err != nil {
			return err
		}
		var copyID *string
		if in.CopyRef != "" {
			var id string
			err := tx.QueryRow(ctx, `
				select id::text from copy_relationships
				where ref::text = $1 and user_id = $2 and status = 'approved'
			`, in.CopyRef, a.UserID).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("copy relationship")
			}
			if err != nil {
				return err
			}
			copyID = &id
		}
		pos, err = s.open(ctx, tx, a, p, openedByAdmin, copyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if in.CopyRef != "" {
		pos.CopyRef = &in.CopyRef
	}
	s.opened(pos)
	return pos, nil
}

// MarkPrice sets the current price of every open position on symbol.
func (s *Service) MarkPrice(ctx context.Context, symbol string, price decimal.Decimal) (int64, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, apperr.InvalidInput("symbol is required")
	}
	price, err := roundPositive("price", price)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = updateMarks(ctx, tx, symbol, price)
		return err
	})
	return n, err
}

// RefreshMark marks symbol at the live market price.
func (s *Service) RefreshMark(ctx context.Context, symbol string) (decimal.Decimal, int64, error) {
	if s.prices == nil {
		return decimal.Zero, 0, apperr.ExternalService("price source is not configured", nil)
	}
	price, err := s.prices.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, 0, err
	}
	n, err := s.MarkPrice(ctx, symbol, price)
	return price, n, err
}

func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]model.Position, error) {
	if f.Asset != "" && !f.Asset.Valid() {
		return nil, apperr.InvalidInput("unknown asset %q", f.Asset)
	}
	if f.Status != "" && f.Status != types.PositionStatusOpen && f.Status != types.PositionStatusClosed {
		return nil, apperr.InvalidInput("unknown status %q", f.Status)
	}
	return listPositions(ctx, s.pool, userID, f)
}

func (s *Service) Get(ctx context.Context, userID, ref string) (*model.Position, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("position")
	}
	return getPosition(ctx, s.pool, userID, ref)
}

// Sweeper adapts SweepExpired to the background worker.
type Sweeper struct {
	svc   *Service
	batch int
}

func NewSweeper(svc *Service, batch int) *Sweeper {
	return &Sweeper{svc: svc, batch: batch}
}

func (s *Sweeper) Name() string { return "positions" }

func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	closed, err := s.svc.SweepExpired(ctx, SweepFilter{}, s.batch)
	return len(closed), err
}
