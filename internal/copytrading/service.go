package copytrading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/events"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/metrics"
	"norvia-broker/internal/model"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Service manages copy relationships. Copied capital is notional: creating or stopping a
// relationship never moves money between buckets.
type Service struct {
	pool     *pgxpool.Pool
	accounts *accounts.Service
	bus      *events.Bus
	notifier *notify.Dispatcher
	log      *logger.Logger
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, accountSvc *accounts.Service, bus *events.Bus, notifier *notify.Dispatcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.L()
	}
	return &Service{
		pool:     pool,
		accounts: accountSvc,
		bus:      bus,
		notifier: notifier,
		log:      log.Component("copytrading"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type Decision struct {
	Status       string                   `json:"status"`
	Warning      string                   `json:"warning,omitempty"`
	Relationship *model.CopyRelationship  `json:"relationship,omitempty"`
	Request      *model.CopyRequest       `json:"request,omitempty"`
	Application  *model.TraderApplication `json:"application,omitempty"`
	Trader       *model.Trader            `json:"trader,omitempty"`
}

func (s *Service) ListTraders(ctx context.Context) ([]model.Trader, error) {
	rows, err := s.pool.Query(ctx, "select "+traderColumns+" from traders where enabled order by copiers desc, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Trader{}
	for rows.Next() {
		t, err := scanTrader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Service) GetTrader(ctx context.Context, ref string) (*model.Trader, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("trader")
	}
	t, err := scanTrader(s.pool.QueryRow(ctx, "select "+traderColumns+" from traders where ref::text = $1", ref))
	if err != nil {
		return nil, err
	}
	if !t.Enabled {
		return nil, apperr.NotFound("trader")
	}
	return t, nil
}

type TraderInput struct {
	Name          string `json:"name" validate:"required,max=128"`
	Bio           string `json:"bio" validate:"max=4000"`
	WinRate       string `json:"win_rate" validate:"omitempty,decimal_gte0"`
	ProfitShare   string `json:"profit_share" validate:"omitempty,decimal_gte0"`
	MinAllocation string `json:"min_allocation" validate:"omitempty,decimal_gte0"`
}

func (s *Service) CreateTrader(ctx context.Context, in TraderInput) (*model.Trader, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	t := model.Trader{Ref: uuid.NewString(), Name: in.Name, Bio: strings.TrimSpace(in.Bio), Enabled: true, CreatedAt: s.now()}
	var err error
	if t.WinRate, err = optionalDecimal(in.WinRate); err != nil {
		return nil, err
	}
	if t.ProfitShare, err = optionalDecimal(in.ProfitShare); err != nil {
		return nil, err
	}
	if t.MinAllocation, err = optionalDecimal(in.MinAllocation); err != nil {
		return nil, err
	}
	if t.WinRate.GreaterThan(hundred) || t.ProfitShare.GreaterThan(hundred) {
		return nil, apperr.InvalidInput("win_rate and profit_share are percentages and cannot exceed 100")
	}
	if err := insertTrader(ctx, s.pool, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

type CopyInput struct {
	TraderRef  string `json:"trader_ref" validate:"required,uuid"`
	Mode       string `json:"mode" validate:"required,oneof=flexible full"`
	Amount     string `json:"amount" validate:"omitempty,decimal_gt0"`
	Percentage string `json:"percentage" validate:"omitempty,decimal_gt0"`
	Leverage   int    `json:"leverage" validate:"omitempty,min=1,max=100"`
}

type copyParams struct {
	traderRef  string
	mode       types.CopyMode
	amount     decimal.Decimal
	percentage decimal.Decimal
	leverage   int
}

func (in CopyInput) parse() (copyParams, error) {
	in.TraderRef = strings.TrimSpace(in.TraderRef)
	in.Mode = strings.ToLower(strings.TrimSpace(in.Mode))
	if err := httputil.Validate(in); err != nil {
		return copyParams{}, err
	}
	p := copyParams{traderRef: in.TraderRef, mode: types.CopyMode(in.Mode), percentage: hundred, leverage: 1}
	if p.mode == types.CopyModeFull {
		return p, nil
	}
	if in.Amount == "" {
		return copyParams{}, apperr.InvalidInput("amount is required for flexible copies")
	}
	var err error
	if p.amount, err = httputil.Amount(in.Amount); err != nil {
		return copyParams{}, err
	}
	if in.Percentage != "" {
		if p.percentage, err = httputil.Amount(in.Percentage); err != nil {
			return copyParams{}, err
		}
		if p.percentage.GreaterThan(hundred) {
			return copyParams{}, apperr.InvalidInput("percentage cannot exceed 100")
		}
	}
	if in.Leverage > 0 {
		p.leverage = in.Leverage
	}
	return p, nil
}

// Copy starts copying a trader. Flexible copies wait for admin approval; full-balance
// copies are approved immediately and allocate the whole trading balance.
func (s *Service) Copy(ctx context.Context, userID string, in CopyInput) (*model.CopyRelationship, error) {
	p, err := in.parse()
	if err != nil {
		return nil, err
	}
	var out *model.CopyRelationship
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := a.CanTrade(); err != nil {
			return err
		}
		t, err := lockTrader(ctx, tx, p.traderRef)
		if err != nil {
			return err
		}
		now := s.now()
		c := &model.CopyRelationship{
			Ref:        uuid.NewString(),
			UserID:     userID,
			TraderID:   t.ID,
			TraderRef:  t.Ref,
			TraderName: t.Name,
			Mode:       p.mode,
			Percentage: p.percentage,
			Leverage:   p.leverage,
			Status:     types.CopyStatusPending,
			CreatedAt:  now,
		}
		switch p.mode {
		case types.CopyModeFull:
			if !a.TradingBalance.IsPositive() {
				return apperr.InsufficientBalance("trading balance is empty")
			}
			c.Amount = a.TradingBalance
			c.Status = types.CopyStatusApproved
			c.ReviewedAt = &now
		default:
			if p.amount.GreaterThan(a.TradingBalance) {
				return apperr.InsufficientBalance("allocation exceeds trading balance")
			}
			c.Amount = p.amount
		}
		if c.Amount.LessThan(t.MinAllocation) {
			return apperr.InvalidInput("minimum allocation for %s is %s", t.Name, t.MinAllocation.String())
		}
		if err := insertRelationship(ctx, tx, c); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("you are already copying this trader")
			}
			return err
		}
		if err := adjustCopiers(ctx, tx, t.ID, 1); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.Event{Type: events.TypeCopyUpdated, UserID: userID, Data: out})
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Copy trading started",
		Body:      fmt.Sprintf("Copy of %s with %s (%s) is %s.", out.TraderName, out.Amount.StringFixed(2), out.Mode, out.Status),
		ForAdmins: out.Status == types.CopyStatusPending,
	})
	return out, nil
}

type RequestInput struct {
	TraderRef string `json:"trader_ref" validate:"required,uuid"`
}

// Request asks an admin to set up a full-balance copy; nothing changes until approval.
func (s *Service) Request(ctx context.Context, userID string, in RequestInput) (*model.CopyRequest, error) {
	in.TraderRef = strings.TrimSpace(in.TraderRef)
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	var out *model.CopyRequest
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := a.CanTrade(); err != nil {
			return err
		}
		t, err := lockTrader(ctx, tx, in.TraderRef)
		if err != nil {
			return err
		}
		var live bool
		if err := tx.QueryRow(ctx, `
			select exists(select 1 from copy_relationships where user_id = $1 and trader_id = $2 and status in ('pending', 'approved'))
		`, userID, t.ID).Scan(&live); err != nil {
			return err
		}
		if live {
			return apperr.Conflict("you are already copying this trader")
		}
		q := &model.CopyRequest{
			Ref:        uuid.NewString(),
			UserID:     userID,
			TraderID:   t.ID,
			TraderRef:  t.Ref,
			Allocation: a.TradingBalance,
			Percentage: hundred,
			Status:     types.CopyStatusPending,
			CreatedAt:  s.now(),
		}
		err = tx.QueryRow(ctx, `
			insert into copy_requests (ref, user_id, trader_id, allocation, percentage, status, created_at)
			values ($1, $2, $3, $4, $5, 'pending', $6)
			returning id::text
		`, q.Ref, q.UserID, q.TraderID, q.Allocation.Round(8), q.Percentage, q.CreatedAt).Scan(&q.ID)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("a copy request for this trader is already pending")
			}
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Copy request submitted",
		Body:      fmt.Sprintf("Request %s to copy with %s is awaiting approval.", out.Ref, out.Allocation.StringFixed(2)),
		ForAdmins: true,
	})
	return out, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]model.CopyRelationship, error) {
	rows, err := s.pool.Query(ctx, relationshipSelect+"where r.user_id = $1 order by r.created_at desc", userID)
	if err != nil {
		return nil, err
	}
	return collectRelationships(rows)
}

func (s *Service) ListRequests(ctx context.Context, userID string) ([]model.CopyRequest, error) {
	rows, err := s.pool.Query(ctx, requestSelect+"where q.user_id = $1 order by q.created_at desc", userID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

type Pending struct {
	Relationships []model.CopyRelationship `json:"relationships"`
	Requests      []model.CopyRequest      `json:"requests"`
}

func (s *Service) ListPending(ctx context.Context) (Pending, error) {
	var out Pending
	rows, err := s.pool.Query(ctx, relationshipSelect+"where r.status = 'pending' order by r.created_at")
	if err != nil {
		return out, err
	}
	if out.Relationships, err = collectRelationships(rows); err != nil {
		return out, err
	}
	rows, err = s.pool.Query(ctx, requestSelect+"where q.status = 'pending' order by q.created_at")
	if err != nil {
		return out, err
	}
	out.Requests, err = collectRequests(rows)
	return out, err
}

// Stop deletes the caller's relationship. Another user's ref is reported as not found.
func (s *Service) Stop(ctx context.Context, userID, ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return apperr.NotFound("copy relationship")
	}
	var traderName, status string
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := scanRelationship(tx.QueryRow(ctx, relationshipSelect+`
			where r.ref::text = $1 and r.user_id = $2
			for update of r
		`, ref, userID))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `delete from copy_relationships where id = $1`, c.ID); err != nil {
			return err
		}
		if c.Status.Live() {
			if err := adjustCopiers(ctx, tx, c.TraderID, -1); err != nil {
				return err
			}
		}
		traderName, status = c.TraderName, string(c.Status)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Infof("copy %s stopped by owner (trader=%s status=%s)", ref, traderName, status)
	s.bus.Publish(events.Event{Type: events.TypeCopyUpdated, UserID: userID, Data: map[string]string{"ref": ref, "status": "stopped"}})
	return nil
}

// ApproveCopy and RejectCopy decide a pending flexible copy.
func (s *Service) ApproveCopy(ctx context.Context, ref string) (Decision, error) {
	return s.decideCopy(ctx, ref, types.CopyStatusApproved)
}

func (s *Service) RejectCopy(ctx context.Context, ref string) (Decision, error) {
	return s.decideCopy(ctx, ref, types.CopyStatusRejected)
}

func (s *Service) decideCopy(ctx context.Context, ref string, to types.CopyStatus) (Decision, error) {
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := scanRelationship(tx.QueryRow(ctx, relationshipSelect+"where r.ref::text = $1 for update of r", ref))
		if err != nil {
			return err
		}
		if c.Status != types.CopyStatusPending {
			out = Decision{Status: "already_" + string(c.Status), Warning: fmt.Sprintf("copy %s is already %s", c.Ref, c.Status), Relationship: c}
			return nil
		}
		now := s.now()
		tag, err := tx.Exec(ctx, `
			update copy_relationships set status = $2, reviewed_at = $3, updated_at = now()
			where id = $1 and status = 'pending'
		`, c.ID, string(to), now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return apperr.Conflict("copy relationship changed concurrently")
		}
		if to == types.CopyStatusRejected {
			if err := adjustCopiers(ctx, tx, c.TraderID, -1); err != nil {
				return err
			}
		}
		c.Status = to
		c.ReviewedAt = &now
		out = Decision{Status: string(to), Relationship: c}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	s.copyDecided(out)
	return out, nil
}

// ApproveRequest turns a pending request into an approved full-allocation relationship.
func (s *Service) ApproveRequest(ctx context.Context, ref string) (Decision, error) {
	return s.decideRequest(ctx, ref, types.CopyStatusApproved)
}

func (s *Service) RejectRequest(ctx context.Context, ref string) (Decision, error) {
	return s.decideRequest(ctx, ref, types.CopyStatusRejected)
}

func (s *Service) decideRequest(ctx context.Context, ref string, to types.CopyStatus) (Decision, error) {
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		q, err := scanRequest(tx.QueryRow(ctx, requestSelect+"where q.ref::text = $1 for update of q", ref))
		if err != nil {
			return err
		}
		if q.Status != types.CopyStatusPending {
			out = Decision{Status: "already_" + string(q.Status), Warning: fmt.Sprintf("copy request %s is already %s", q.Ref, q.Status), Request: q}
			return nil
		}
		now := s.now()
		var rel *model.CopyRelationship
		if to == types.CopyStatusApproved {
			rel = &model.CopyRelationship{
				Ref:        uuid.NewString(),
				UserID:     q.UserID,
				TraderID:   q.TraderID,
				TraderRef:  q.TraderRef,
				Mode:       types.CopyModeFull,
				Amount:     q.Allocation,
				Percentage: q.Percentage,
				Leverage:   1,
				Status:     types.CopyStatusApproved,
				ReviewedAt: &now,
				CreatedAt:  now,
			}
			if err := insertRelationship(ctx, tx, rel); err != nil {
				if db.IsUniqueViolation(err) {
					return apperr.Conflict("user is already copying this trader")
				}
				return err
			}
			if err := adjustCopiers(ctx, tx, q.TraderID, 1); err != nil {
				return err
			}
		}
		var relID *string
		if rel != nil {
			relID = &rel.ID
		}
		tag, err := tx.Exec(ctx, `
			update copy_requests set status = $2, reviewed_at = $3, relationship_id = $4
			where id = $1 and status = 'pending'
		`, q.ID, string(to), now, relID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return apperr.Conflict("copy request changed concurrently")
		}
		q.Status = to
		q.ReviewedAt = &now
		out = Decision{Status: string(to), Request: q, Relationship: rel}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	s.copyDecided(out)
	return out, nil
}

func (s *Service) copyDecided(out Decision) {
	metrics.Decisions.WithLabelValues("copy", out.Status).Inc()
	if strings.HasPrefix(out.Status, "already_") {
		s.log.Warnf("%s", out.Warning)
		return
	}
	userID := ""
	if out.Relationship != nil {
		userID = out.Relationship.UserID
	} else if out.Request != nil {
		userID = out.Request.UserID
	}
	s.bus.Publish(events.Event{Type: events.TypeCopyUpdated, UserID: userID, Data: out})
	level := notify.LevelSuccess
	if out.Status == string(types.CopyStatusRejected) {
		level = notify.LevelWarning
	}
	s.notifier.Send(notify.Notice{
		UserID: userID,
		Title:  "Copy trading " + out.Status,
		Body:   "Your copy trading request was " + out.Status + ".",
		Level:  level,
	})
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return httputil.Amount(raw)
}
