package withdrawals

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
	"norvia-broker/internal/paymentmethods"
	"norvia-broker/internal/txno"
	"norvia-broker/internal/types"
	"norvia-broker/internal/worker"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// Service runs the withdrawal state machine. The amount is held on the account from
// request until the record leaves pending: approve consumes the hold, reject and
// expiry release it.
type Service struct {
	pool     *pgxpool.Pool
	accounts *accounts.Service
	methods  *paymentmethods.Service
	bus      *events.Bus
	notifier *notify.Dispatcher
	log      *logger.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, accountSvc *accounts.Service, methods *paymentmethods.Service, bus *events.Bus, notifier *notify.Dispatcher, log *logger.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if log == nil {
		log = logger.L()
	}
	return &Service{
		pool:     pool,
		accounts: accountSvc,
		methods:  methods,
		bus:      bus,
		notifier: notifier,
		log:      log.Component("withdrawals"),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type Decision struct {
	Status     string            `json:"status"`
	Warning    string            `json:"warning,omitempty"`
	Withdrawal *model.Withdrawal `json:"withdrawal"`
}

func alreadyDecided(w *model.Withdrawal) Decision {
	return Decision{
		Status:     "already_" + string(w.Status),
		Warning:    fmt.Sprintf("withdrawal %s is already %s", w.TransactionNo, w.Status),
		Withdrawal: w,
	}
}

type CurrencyDestination struct {
	Ref           string `json:"ref" validate:"required,uuid"`
	Network       string `json:"network" validate:"max=32"`
	WalletAddress string `json:"wallet_address" validate:"required,max=256"`
}

type GatewayDestination struct {
	Ref   string `json:"ref" validate:"required,uuid"`
	Email string `json:"email" validate:"required,email"`
}

// CreateInput carries exactly one destination: a currency wallet or a gateway account.
type CreateInput struct {
	Amount   string               `json:"amount" validate:"required,decimal_gt0"`
	Currency *CurrencyDestination `json:"currency"`
	Gateway  *GatewayDestination  `json:"gateway"`
}

type createParams struct {
	amount        decimal.Decimal
	method        model.PaymentMethod
	network       string
	walletAddress string
	email         string
}

func (in CreateInput) parse() (createParams, error) {
	if (in.Currency == nil) == (in.Gateway == nil) {
		return createParams{}, apperr.InvalidInput("exactly one of currency or gateway is required")
	}
	if in.Currency != nil {
		c := *in.Currency
		c.Ref, c.Network, c.WalletAddress = strings.TrimSpace(c.Ref), strings.TrimSpace(c.Network), strings.TrimSpace(c.WalletAddress)
		in.Currency = &c
	} else {
		g := *in.Gateway
		g.Ref, g.Email = strings.TrimSpace(g.Ref), strings.TrimSpace(g.Email)
		in.Gateway = &g
	}
	if err := httputil.Validate(in); err != nil {
		return createParams{}, err
	}
	amount, err := httputil.Amount(in.Amount)
	if err != nil {
		return createParams{}, err
	}
	p := createParams{amount: amount.Round(8)}
	if in.Currency != nil {
		p.method = model.PaymentMethod{Kind: types.PaymentMethodCurrency, Ref: in.Currency.Ref}
		p.network = in.Currency.Network
		p.walletAddress = in.Currency.WalletAddress
	} else {
		p.method = model.PaymentMethod{Kind: types.PaymentMethodGateway, Ref: in.Gateway.Ref}
		p.email = in.Gateway.Email
	}
	return p, nil
}

// Create reserves amount from the withdrawable balance and records a pending request.
// When the balance cannot cover it nothing is written.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Withdrawal, error) {
	p, err := in.parse()
	if err != nil {
		return nil, err
	}
	var out *model.Withdrawal
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := s.methods.Resolve(ctx, tx, p.method)
		if err != nil {
			return err
		}
		a, err := s.accounts.Lock(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := a.CanWithdraw(); err != nil {
			return err
		}
		hold, err := a.Reserve(p.amount)
		if err != nil {
			return err
		}
		now := s.now()
		no, err := txno.Next(ctx, tx, txno.ScopeWithdrawal, now)
		if err != nil {
			return err
		}
		w := &model.Withdrawal{
			Ref:           uuid.NewString(),
			UserID:        userID,
			TransactionNo: no,
			Amount:        p.amount,
			Method:        p.method,
			MethodName:    m.Name,
			Network:       p.network,
			WalletAddress: p.walletAddress,
			Email:         p.email,
			Status:        types.WithdrawalStatusPending,
			ExpireTime:    now.Add(s.ttl),
			CreatedAt:     now,
		}
		if w.Network == "" {
			w.Network = m.Network
		}
		var currencyID, gatewayID *string
		if p.method.Kind == types.PaymentMethodCurrency {
			currencyID = &m.ID
		} else {
			gatewayID = &m.ID
		}
		if err := insertWithdrawal(ctx, tx, w, currencyID, gatewayID); err != nil {
			return err
		}
		if err := s.accounts.Apply(ctx, tx, a, []model.BucketDelta{hold}, types.LedgerEntryWithdrawalHold, "withdrawal:"+w.Ref); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.Event{Type: events.TypeWithdrawalCreated, UserID: userID, Data: out})
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Withdrawal requested",
		Body:      fmt.Sprintf("Withdrawal %s of %s via %s is pending review.", out.TransactionNo, out.Amount.StringFixed(2), out.MethodName),
		ForAdmins: true,
	})
	return out, nil
}

// Approve debits the held amount exactly once.
func (s *Service) Approve(ctx context.Context, ref, reviewerID string) (Decision, error) {
	out, err := s.decide(ctx, ref, reviewerID, types.WithdrawalStatusSuccess)
	if err != nil {
		return Decision{}, err
	}
	s.decided(out)
	return out, nil
}

// Reject releases the hold; the withdrawable balance is unchanged.
func (s *Service) Reject(ctx context.Context, ref, reviewerID string) (Decision, error) {
	out, err := s.decide(ctx, ref, reviewerID, types.WithdrawalStatusRejected)
	if err != nil {
		return Decision{}, err
	}
	s.decided(out)
	return out, nil
}

func (s *Service) decide(ctx context.Context, ref, reviewerID string, to types.WithdrawalStatus) (Decision, error) {
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		w, err := lockByRef(ctx, tx, ref)
		if err != nil {
			return err
		}
		if w.Status.Terminal() {
			out = alreadyDecided(w)
			return nil
		}
		if err := s.finish(ctx, tx, w, to, nullable(reviewerID)); err != nil {
			return err
		}
		outcome := OutcomeRejected
		if to == types.WithdrawalStatusSuccess {
			outcome = OutcomeApproved
		}
		out = Decision{Status: outcome, Withdrawal: w}
		return nil
	})
	return out, err
}

// finish moves a locked pending withdrawal to its terminal state and settles the hold.
func (s *Service) finish(ctx context.Context, tx pgx.Tx, w *model.Withdrawal, to types.WithdrawalStatus, reviewerID *string) error {
	now := s.now()
	ok, err := transition(ctx, tx, w.ID, to, reviewerID, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("withdrawal changed concurrently")
	}
	a, err := s.accounts.Lock(ctx, tx, w.UserID)
	if err != nil {
		return err
	}
	var deltas []model.BucketDelta
	entryType := types.LedgerEntryWithdrawalRelease
	if to == types.WithdrawalStatusSuccess {
		deltas, err = a.SettleHold(w.Amount)
		entryType = types.LedgerEntryWithdrawal
	} else {
		var d model.BucketDelta
		d, err = a.Release(w.Amount)
		deltas = []model.BucketDelta{d}
	}
	if err != nil {
		return err
	}
	if err := s.accounts.Apply(ctx, tx, a, deltas, entryType, "withdrawal:"+w.Ref); err != nil {
		return err
	}
	w.Status = to
	w.ReviewedAt = &now
	return nil
}

func (s *Service) decided(out Decision) {
	metrics.Decisions.WithLabelValues("withdrawal", out.Status).Inc()
	if strings.HasPrefix(out.Status, "already_") {
		s.log.Warnf("%s", out.Warning)
		return
	}
	w := out.Withdrawal
	if out.Status == OutcomeApproved {
		s.bus.Publish(events.Event{Type: events.TypeWithdrawalApproved, UserID: w.UserID, Data: w})
		s.bus.Publish(events.Event{Type: events.TypeBalance, UserID: w.UserID})
		s.notifier.Send(notify.Notice{
			UserID: w.UserID,
			Title:  "Withdrawal approved",
			Body:   fmt.Sprintf("Withdrawal %s of %s has been approved.", w.TransactionNo, w.Amount.StringFixed(2)),
			Level:  notify.LevelSuccess,
		})
		return
	}
	s.bus.Publish(events.Event{Type: events.TypeWithdrawalRejected, UserID: w.UserID, Data: w})
	s.notifier.Send(notify.Notice{
		UserID: w.UserID,
		Title:  "Withdrawal rejected",
		Body:   fmt.Sprintf("Withdrawal %s was rejected and the held funds were released.", w.TransactionNo),
		Level:  notify.LevelWarning,
	})
}

// ExpireDue expires stale pending withdrawals and releases their holds.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	return worker.Drain(ctx, limit, s.expireOne)
}

func (s *Service) expireOne(ctx context.Context) (bool, error) {
	var out *model.Withdrawal
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		out = nil
		w, err := lockNextExpired(ctx, tx, s.now())
		if err != nil || w == nil {
			return err
		}
		if err := s.finish(ctx, tx, w, types.WithdrawalStatusExpired, nil); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil || out == nil {
		return false, err
	}
	metrics.Decisions.WithLabelValues("withdrawal", "expired").Inc()
	s.bus.Publish(events.Event{Type: events.TypeWithdrawalExpired, UserID: out.UserID, Data: out})
	s.notifier.Send(notify.Notice{
		UserID: out.UserID,
		Title:  "Withdrawal expired",
		Body:   fmt.Sprintf("Withdrawal %s expired without review; the held funds were released.", out.TransactionNo),
		Level:  notify.LevelWarning,
	})
	return true, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.Withdrawal, error) {
	rows, err := s.pool.Query(ctx, withdrawalSelect+`
		where w.user_id = $1
		order by w.created_at desc
		limit $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Service) Get(ctx context.Context, userID, ref string) (*model.Withdrawal, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("withdrawal")
	}
	return scanWithdrawal(s.pool.QueryRow(ctx, withdrawalSelect+`where w.ref::text = $1 and w.user_id = $2`, ref, userID))
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]model.Withdrawal, error) {
	rows, err := s.pool.Query(ctx, withdrawalSelect+`
		where w.status = 'pending'
		order by w.created_at asc
		limit $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

type Expirer struct {
	svc   *Service
	batch int
}

func NewExpirer(svc *Service, batch int) *Expirer {
	return &Expirer{svc: svc, batch: batch}
}

func (e *Expirer) Name() string { return "withdrawals" }

func (e *Expirer) RunOnce(ctx context.Context) (int, error) {
	return e.svc.ExpireDue(ctx, e.batch)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func nullable(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
