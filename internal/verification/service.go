package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/events"
	"norvia-broker/internal/httputil"
	"norvia-broker/internal/metrics"
	"norvia-broker/internal/model"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const columns = `id::text, ref::text, user_id::text, kind, status, document_ref, note, reviewed_at, created_at`

type Service struct {
	pool     *pgxpool.Pool
	bus      *events.Bus
	notifier *notify.Dispatcher
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, bus *events.Bus, notifier *notify.Dispatcher) *Service {
	return &Service{pool: pool, bus: bus, notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

func scan(row pgx.Row) (*model.Verification, error) {
	var v model.Verification
	var kind, status string
	if err := row.Scan(&v.ID, &v.Ref, &v.UserID, &kind, &status, &v.DocumentRef, &v.Note, &v.ReviewedAt, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("verification")
		}
		return nil, err
	}
	v.Kind = types.VerificationKind(kind)
	v.Status = types.VerificationStatus(status)
	return &v, nil
}

type SubmitInput struct {
	Kind        string `json:"kind" validate:"required,oneof=kyc address"`
	DocumentRef string `json:"document_ref" validate:"required,max=512"`
	Note        string `json:"note" validate:"max=1000"`
}

// Submit files a document for review. Only the reference is stored; contents are not inspected.
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput) (*model.Verification, error) {
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	in.DocumentRef = strings.TrimSpace(in.DocumentRef)
	in.Note = strings.TrimSpace(in.Note)
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	v := &model.Verification{
		Ref:         uuid.NewString(),
		UserID:      userID,
		Kind:        types.VerificationKind(in.Kind),
		Status:      types.VerificationPending,
		DocumentRef: in.DocumentRef,
		Note:        in.Note,
		CreatedAt:   s.now(),
	}
	err := s.pool.QueryRow(ctx, `
		insert into verifications (ref, user_id, kind, status, document_ref, note, created_at)
		values ($1, $2, $3, 'pending', $4, $5, $6)
		returning id::text
	`, v.Ref, v.UserID, string(v.Kind), v.DocumentRef, v.Note, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("%s verification is already pending or verified", v.Kind))
		}
		return nil, err
	}
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Verification submitted",
		Body:      fmt.Sprintf("Your %s documents were received and are under review.", v.Kind),
		ForAdmins: true,
	})
	return v, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Verification, error) {
	return s.query(ctx, "select "+columns+" from verifications where user_id = $1 order by created_at desc", userID)
}

func (s *Service) ListPending(ctx context.Context) ([]model.Verification, error) {
	return s.query(ctx, "select "+columns+" from verifications where status = 'pending' order by created_at")
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]model.Verification, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Verification{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

type Decision struct {
	Status       string              `json:"status"`
	Warning      string              `json:"warning,omitempty"`
	Verification *model.Verification `json:"verification"`
}

type ReviewInput struct {
	Note string `json:"note" validate:"max=1000"`
}

func (s *Service) Approve(ctx context.Context, ref string, in ReviewInput) (Decision, error) {
	return s.decide(ctx, ref, types.VerificationVerified, in)
}

func (s *Service) Reject(ctx context.Context, ref string, in ReviewInput) (Decision, error) {
	return s.decide(ctx, ref, types.VerificationRejected, in)
}

func (s *Service) decide(ctx context.Context, ref string, to types.VerificationStatus, in ReviewInput) (Decision, error) {
	if err := httputil.Validate(in); err != nil {
		return Decision{}, err
	}
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		v, err := scan(tx.QueryRow(ctx, "select "+columns+" from verifications where ref::text = $1 for update", ref))
		if err != nil {
			return err
		}
		if v.Status != types.VerificationPending {
			out = Decision{Status: "already_" + string(v.Status), Warning: fmt.Sprintf("verification %s is already %s", v.Ref, v.Status), Verification: v}
			return nil
		}
		now := s.now()
		note := v.Note
		if strings.TrimSpace(in.Note) != "" {
			note = strings.TrimSpace(in.Note)
		}
		tag, err := tx.Exec(ctx, `
			update verifications set status = $2, note = $3, reviewed_at = $4
			where id = $1 and status = 'pending'
		`, v.ID, string(to), note, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return apperr.Conflict("verification changed concurrently")
		}
		v.Status, v.Note, v.ReviewedAt = to, note, &now
		out = Decision{Status: string(to), Verification: v}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	metrics.Decisions.WithLabelValues("verification", out.Status).Inc()
	if !strings.HasPrefix(out.Status, "already_") {
		v := out.Verification
		s.bus.Publish(events.Event{Type: events.TypeVerification, UserID: v.UserID, Data: v})
		level := notify.LevelSuccess
		if to == types.VerificationRejected {
			level = notify.LevelWarning
		}
		s.notifier.Send(notify.Notice{
			UserID: v.UserID,
			Title:  "Verification " + string(to),
			Body:   fmt.Sprintf("Your %s verification was %s.", v.Kind, to),
			Level:  level,
		})
	}
	return out, nil
}
