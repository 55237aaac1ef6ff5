package deposits

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
	OutcomeApproved       = "approved"
	OutcomeRejected       = "rejected"
	OutcomeCancelled      = "cancelled"
	OutcomeProofSubmitted = "proof_submitted"
)

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
		ttl = 30 * time.Minute
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
		log:      log.Component("deposits"),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Decision is the result of a review action. Status is either the new state or
// "already_<state>" when the record had already left pending and nothing changed.
type Decision struct {
	Status  string         `json:"status"`
	Warning string         `json:"warning,omitempty"`
	Deposit *model.Deposit `json:"deposit"`
}

func alreadyDecided(d *model.Deposit) Decision {
	return Decision{
		Status:  "already_" + string(d.Status),
		Warning: fmt.Sprintf("deposit %s is already %s", d.TransactionNo, d.Status),
		Deposit: d,
	}
}

type CreateInput struct {
	Amount     string `json:"amount" validate:"required,decimal_gt0"`
	MethodKind string `json:"method_kind" validate:"required,oneof=currency gateway"`
	MethodRef  string `json:"method_ref" validate:"required,uuid"`
	Bucket     string `json:"bucket" validate:"omitempty,oneof=trading holding"`
}

type createParams struct {
	amount decimal.Decimal
	method model.PaymentMethod
	bucket types.Bucket
}

func (in CreateInput) parse() (createParams, error) {
	in.MethodKind = strings.ToLower(strings.TrimSpace(in.MethodKind))
	in.MethodRef = strings.TrimSpace(in.MethodRef)
	in.Bucket = strings.ToLower(strings.TrimSpace(in.Bucket))
	if err := httputil.Validate(in); err != nil {
		return createParams{}, err
	}
	amount, err := httputil.Amount(in.Amount)
	if err != nil {
		return createParams{}, err
	}
	method, err := paymentmethods.ParseMethod(in.MethodKind, in.MethodRef)
	if err != nil {
		return createParams{}, err
	}
	p := createParams{amount: amount.Round(8), method: method, bucket: types.BucketTrading}
	if in.Bucket != "" {
		p.bucket = types.Bucket(in.Bucket)
	}
	return p, nil
}

// Create records a pending deposit; grand_total is amount plus the method fee at this moment.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Deposit, error) {
	p, err := in.parse()
	if err != nil {
		return nil, err
	}
	var dep *model.Deposit
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := s.methods.Resolve(ctx, tx, p.method)
		if err != nil {
			return err
		}
		if err := m.CheckAmount(p.amount); err != nil {
			return err
		}
		now := s.now()
		no, err := txno.Next(ctx, tx, txno.ScopeDeposit, now)
		if err != nil {
			return err
		}
		d := &model.Deposit{
			Ref:           uuid.NewString(),
			UserID:        userID,
			TransactionNo: no,
			Amount:        p.amount,
			Fee:           m.Fee,
			GrandTotal:    m.GrandTotal(p.amount),
			Bucket:        p.bucket,
			Method:        p.method,
			MethodName:    m.Name,
			Network:       m.Network,
			Status:        types.DepositStatusPending,
			ExpireTime:    now.Add(s.ttl),
			CreatedAt:     now,
		}
		var currencyID, gatewayID *string
		if p.method.Kind == types.PaymentMethodCurrency {
			currencyID = &m.ID
		} else {
			gatewayID = &m.ID
		}
		if err := insertDeposit(ctx, tx, d, currencyID, gatewayID); err != nil {
			return err
		}
		dep = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.Event{Type: events.TypeDepositCreated, UserID: userID, Data: dep})
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Deposit request received",
		Body:      fmt.Sprintf("Deposit %s of %s via %s is awaiting payment.", dep.TransactionNo, dep.GrandTotal.StringFixed(2), dep.MethodName),
		ForAdmins: true,
	})
	return dep, nil
}

// Cancel moves the user's own pending deposit to cancelled.
func (s *Service) Cancel(ctx context.Context, userID, ref string) (Decision, error) {
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := lockByRef(ctx, tx, userID, ref)
		if err != nil {
			return err
		}
		if d.Status.Terminal() {
			out = alreadyDecided(d)
			return nil
		}
		ok, err := transition(ctx, tx, d.ID, types.DepositStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("deposit changed concurrently")
		}
		d.Status = types.DepositStatusCancelled
		out = Decision{Status: OutcomeCancelled, Deposit: d}
		return nil
	})
	return out, err
}

type ProofInput struct {
	ProofRef string `json:"proof_ref" validate:"required,max=512"`
	TxHash   string `json:"tx_hash" validate:"max=256"`
	Note     string `json:"note" validate:"max=1000"`
}

// SubmitProof attaches a proof-of-payment reference; a deposit with proof no longer expires.
// A deposit that already left pending is returned unchanged with a warning.
func (s *Service) SubmitProof(ctx context.Context, userID, ref string, in ProofInput) (Decision, error) {
	in.ProofRef = strings.TrimSpace(in.ProofRef)
	in.TxHash = strings.TrimSpace(in.TxHash)
	in.Note = strings.TrimSpace(in.Note)
	if err := httputil.Validate(in); err != nil {
		return Decision{}, err
	}
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := lockByRef(ctx, tx, userID, ref)
		if err != nil {
			return err
		}
		if d.Status.Terminal() {
			out = alreadyDecided(d)
			return nil
		}
		if _, err := tx.Exec(ctx, `
			update deposits set proof_ref = $2, tx_hash = $3, note = $4, updated_at = now()
			where id = $1
		`, d.ID, in.ProofRef, in.TxHash, in.Note); err != nil {
			return err
		}
		d.ProofRef, d.TxHash, d.Note = in.ProofRef, in.TxHash, in.Note
		out = Decision{Status: OutcomeProofSubmitted, Deposit: d}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	if out.Status != OutcomeProofSubmitted {
		return out, nil
	}
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Deposit proof submitted",
		Body:      fmt.Sprintf("Proof for deposit %s was submitted and is under review.", out.Deposit.TransactionNo),
		ForAdmins: true,
	})
	return out, nil
}

type ApproveInput struct {
	CreditAmount string `json:"credit_amount" validate:"required,decimal_gt0"`
}

// Approve credits credit_amount, which may differ from the requested amount, to the
// deposit's target bucket. Approving a record that already left pending changes nothing.
func (s *Service) Approve(ctx context.Context, ref, reviewerID string, in ApproveInput) (Decision, error) {
	if err := httputil.Validate(in); err != nil {
		return Decision{}, err
	}
	credit, err := httputil.Amount(in.CreditAmount)
	if err != nil {
		return Decision{}, err
	}
	credit = credit.Round(8)
	var out Decision
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := lockByRef(ctx, tx, "", ref)
		if err != nil {
			return err
		}
		if d.Status.Terminal() {
			out = alreadyDecided(d)
			return nil
		}
		now := s.now()
		tag, err := tx.Exec(ctx, `
			update deposits
			set status = 'success', approved_amount = $2, approved_on = $3, reviewed_by = $4, updated_at = now()
			where id = $1 and status = 'pending'
		`, d.ID, credit, now, nullable(reviewerID))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return apperr.Conflict("deposit changed concurrently")
		}
		a, err := s.accounts.Lock(ctx, tx, d.UserID)
		if err != nil {
			return err
		}
		delta, err := a.Credit(d.Bucket, credit)
		if err != nil {
			return err
		}
		if err := s.accounts.Apply(ctx, tx, a, []model.BucketDelta{delta}, types.LedgerEntryDeposit, "deposit:"+d.Ref); err != nil {
			return err
		}
		d.Status = types.DepositStatusSuccess
		d.ApprovedAmount = &credit
		d.ApprovedOn = &now
		out = Decision{Status: OutcomeApproved, Deposit: d}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	s.decided(out)
	return out, nil
}

// Reject closes a pending deposit without touching any balance.
func (s *Service) Reject(ctx context.Context, ref, reviewerID string) (Decision, error) {
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		d, err := lockByRef(ctx, tx, "", ref)
		if err != nil {
			return err
		}
		if d.Status.Terminal() {
			out = alreadyDecided(d)
			return nil
		}
		ok, err := transition(ctx, tx, d.ID, types.DepositStatusRejected, nullable(reviewerID))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("deposit changed concurrently")
		}
		d.Status = types.DepositStatusRejected
		out = Decision{Status: OutcomeRejected, Deposit: d}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	s.decided(out)
	return out, nil
}

func (s *Service) decided(out Decision) {
	metrics.Decisions.WithLabelValues("deposit", out.Status).Inc()
	if strings.HasPrefix(out.Status, "already_") {
		s.log.Warnf("%s", out.Warning)
		return
	}
	d := out.Deposit
	switch out.Status {
	case OutcomeApproved:
		s.bus.Publish(events.Event{Type: events.TypeDepositApproved, UserID: d.UserID, Data: d})
		s.bus.Publish(events.Event{Type: events.TypeBalance, UserID: d.UserID})
		s.notifier.Send(notify.Notice{
			UserID: d.UserID,
			Title:  "Deposit approved",
			Body:   fmt.Sprintf("Deposit %s was approved and %s credited to your %s balance.", d.TransactionNo, d.ApprovedAmount.StringFixed(2), d.Bucket),
			Level:  notify.LevelSuccess,
		})
	case OutcomeRejected:
		s.bus.Publish(events.Event{Type: events.TypeDepositRejected, UserID: d.UserID, Data: d})
		s.notifier.Send(notify.Notice{
			UserID: d.UserID,
			Title:  "Deposit rejected",
			Body:   fmt.Sprintf("Deposit %s was rejected.", d.TransactionNo),
			Level:  notify.LevelWarning,
		})
	}
}

// ExpireDue moves up to limit unpaid deposits past their expire time to expired.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	return worker.Drain(ctx, limit, s.expireOne)
}

func (s *Service) expireOne(ctx context.Context) (bool, error) {
	var dep *model.Deposit
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		dep = nil
		d, err := lockNextExpired(ctx, tx, s.now())
		if err != nil || d == nil {
			return err
		}
		ok, err := transition(ctx, tx, d.ID, types.DepositStatusExpired, nil)
		if err != nil || !ok {
			return err
		}
		d.Status = types.DepositStatusExpired
		dep = d
		return nil
	})
	if err != nil || dep == nil {
		return false, err
	}
	metrics.Decisions.WithLabelValues("deposit", "expired").Inc()
	s.bus.Publish(events.Event{Type: events.TypeDepositExpired, UserID: dep.UserID, Data: dep})
	s.notifier.Send(notify.Notice{
		UserID: dep.UserID,
		Title:  "Deposit expired",
		Body:   fmt.Sprintf("Deposit %s expired before payment was confirmed.", dep.TransactionNo),
		Level:  notify.LevelWarning,
	})
	return true, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.Deposit, error) {
	rows, err := s.pool.Query(ctx, depositSelect+`
		where d.user_id = $1
		order by d.created_at desc
		limit $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Service) Get(ctx context.Context, userID, ref string) (*model.Deposit, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, apperr.NotFound("deposit")
	}
	return scanDeposit(s.pool.QueryRow(ctx, depositSelect+`where d.ref::text = $1 and d.user_id = $2`, ref, userID))
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]model.Deposit, error) {
	rows, err := s.pool.Query(ctx, depositSelect+`
		where d.status = 'pending'
		order by d.created_at asc
		limit $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Expirer runs ExpireDue from the background worker.
type Expirer struct {
	svc   *Service
	batch int
}

func NewExpirer(svc *Service, batch int) *Expirer {
	return &Expirer{svc: svc, batch: batch}
}

func (e *Expirer) Name() string { return "deposits" }

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
