package copytrading

import (
	"context"
	"fmt"
	"strings"

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
)

// ApplicationInput is the become-a-trader form. Uploaded documents are passed as storage refs.
type ApplicationInput struct {
	FullName        string   `json:"full_name" validate:"required,max=128"`
	Email           string   `json:"email" validate:"required,email,max=254"`
	Phone           string   `json:"phone" validate:"required,max=32"`
	Country         string   `json:"country" validate:"required,max=64"`
	Experience      string   `json:"experience" validate:"required,max=64"`
	Markets         []string `json:"markets" validate:"required,min=1,max=10,dive,required,max=32"`
	Volume          string   `json:"volume" validate:"required,max=64"`
	Certifications  string   `json:"certifications" validate:"required,max=1000"`
	TradingStyle    string   `json:"trading_style" validate:"required,max=64"`
	RiskLevel       string   `json:"risk_level" validate:"required,max=32"`
	Strategy        string   `json:"strategy" validate:"required,max=4000"`
	WinRate         string   `json:"win_rate" validate:"required,decimal_gte0"`
	StatementsRef   string   `json:"statements_ref" validate:"required,max=512"`
	GovernmentIDRef string   `json:"government_id_ref" validate:"required,max=512"`
	ProofAccountRef string   `json:"proof_account_ref" validate:"required,max=512"`
}

func (in ApplicationInput) parse() (model.TraderApplication, error) {
	for _, f := range []*string{
		&in.FullName, &in.Email, &in.Phone, &in.Country, &in.Experience, &in.Volume, &in.Certifications,
		&in.TradingStyle, &in.RiskLevel, &in.Strategy, &in.WinRate, &in.StatementsRef, &in.GovernmentIDRef,
		&in.ProofAccountRef,
	} {
		*f = strings.TrimSpace(*f)
	}
	markets := make([]string, 0, len(in.Markets))
	seen := map[string]bool{}
	for _, m := range in.Markets {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		markets = append(markets, m)
	}
	in.Markets = markets
	if err := httputil.Validate(in); err != nil {
		return model.TraderApplication{}, err
	}
	winRate, err := httputil.Amount(in.WinRate)
	if err != nil {
		return model.TraderApplication{}, err
	}
	if winRate.GreaterThan(hundred) {
		return model.TraderApplication{}, apperr.InvalidInput("win_rate is a percentage and cannot exceed 100")
	}
	return model.TraderApplication{
		FullName:        in.FullName,
		Email:           strings.ToLower(in.Email),
		Phone:           in.Phone,
		Country:         in.Country,
		Experience:      in.Experience,
		Markets:         in.Markets,
		Volume:          in.Volume,
		Certifications:  in.Certifications,
		TradingStyle:    in.TradingStyle,
		RiskLevel:       in.RiskLevel,
		Strategy:        in.Strategy,
		WinRate:         winRate.Round(2),
		StatementsRef:   in.StatementsRef,
		GovernmentIDRef: in.GovernmentIDRef,
		ProofAccountRef: in.ProofAccountRef,
		Status:          types.ApplicationPending,
	}, nil
}

// Apply files a trader application. A user has at most one pending application.
func (s *Service) Apply(ctx context.Context, userID string, in ApplicationInput) (*model.TraderApplication, error) {
	a, err := in.parse()
	if err != nil {
		return nil, err
	}
	a.Ref = uuid.NewString()
	a.UserID = userID
	a.CreatedAt = s.now()
	err = s.pool.QueryRow(ctx, `
		insert into trader_applications (ref, user_id, full_name, email, phone, country, experience, markets, volume,
			certifications, trading_style, risk_level, strategy, win_rate, statements_ref, government_id_ref,
			proof_account_ref, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 'pending', $18)
		returning id::text
	`, a.Ref, a.UserID, a.FullName, a.Email, a.Phone, a.Country, a.Experience, a.Markets, a.Volume,
		a.Certifications, a.TradingStyle, a.RiskLevel, a.Strategy, a.WinRate, a.StatementsRef, a.GovernmentIDRef,
		a.ProofAccountRef, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a trader application is already pending")
		}
		return nil, err
	}
	s.notifier.Send(notify.Notice{
		UserID:    userID,
		Title:     "Trader application received",
		Body:      fmt.Sprintf("%s applied to become a trader and is awaiting review.", a.FullName),
		ForAdmins: true,
	})
	return &a, nil
}

func (s *Service) ListApplications(ctx context.Context, userID string) ([]model.TraderApplication, error) {
	rows, err := s.pool.Query(ctx, applicationSelect+"where a.user_id = $1 order by a.created_at desc", userID)
	if err != nil {
		return nil, err
	}
	return collectApplications(rows)
}

// Applications lists applications for review, newest first. An empty status lists all of them.
func (s *Service) Applications(ctx context.Context, status string) ([]model.TraderApplication, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch types.ApplicationStatus(status) {
	case "":
		rows, err := s.pool.Query(ctx, applicationSelect+"order by a.created_at desc")
		if err != nil {
			return nil, err
		}
		return collectApplications(rows)
	case types.ApplicationPending, types.ApplicationApproved, types.ApplicationRejected:
		rows, err := s.pool.Query(ctx, applicationSelect+"where a.status = $1 order by a.created_at desc", status)
		if err != nil {
			return nil, err
		}
		return collectApplications(rows)
	default:
		return nil, apperr.InvalidInput("status must be one of pending approved rejected")
	}
}

// ApproveApplication lists the applicant as an enabled trader in the same transaction.
func (s *Service) ApproveApplication(ctx context.Context, ref string) (Decision, error) {
	return s.decideApplication(ctx, ref, types.ApplicationApproved)
}

func (s *Service) RejectApplication(ctx context.Context, ref string) (Decision, error) {
	return s.decideApplication(ctx, ref, types.ApplicationRejected)
}

func (s *Service) decideApplication(ctx context.Context, ref string, to types.ApplicationStatus) (Decision, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return Decision{}, apperr.NotFound("trader application")
	}
	var out Decision
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := scanApplication(tx.QueryRow(ctx, applicationSelect+"where a.ref::text = $1 for update of a", ref))
		if err != nil {
			return err
		}
		if a.Status != types.ApplicationPending {
			out = Decision{Status: "already_" + string(a.Status), Warning: fmt.Sprintf("trader application %s is already %s", a.Ref, a.Status), Application: a}
			return nil
		}
		now := s.now()
		var trader *model.Trader
		var traderID *string
		if to == types.ApplicationApproved {
			trader = traderFromApplication(a)
			trader.Ref = uuid.NewString()
			trader.CreatedAt = now
			if err := insertTrader(ctx, tx, trader); err != nil {
				return err
			}
			traderID = &trader.ID
			a.TraderRef = &trader.Ref
		}
		tag, err := tx.Exec(ctx, `
			update trader_applications set status = $2, trader_id = $3, reviewed_at = $4
			where id = $1 and status = 'pending'
		`, a.ID, string(to), traderID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return apperr.Conflict("trader application changed concurrently")
		}
		a.Status = to
		a.ReviewedAt = &now
		out = Decision{Status: string(to), Application: a, Trader: trader}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	s.applicationDecided(out)
	return out, nil
}

func traderFromApplication(a *model.TraderApplication) *model.Trader {
	return &model.Trader{
		Name:    a.FullName,
		Bio:     a.Strategy,
		WinRate: a.WinRate,
		Enabled: true,
	}
}

func (s *Service) applicationDecided(out Decision) {
	metrics.Decisions.WithLabelValues("trader_application", out.Status).Inc()
	if strings.HasPrefix(out.Status, "already_") {
		s.log.Warnf("%s", out.Warning)
		return
	}
	userID := out.Application.UserID
	s.bus.Publish(events.Event{Type: events.TypeTraderApplication, UserID: userID, Data: out})
	level := notify.LevelSuccess
	body := "Your trader application was approved and your profile is now listed."
	if out.Status == string(types.ApplicationRejected) {
		level = notify.LevelWarning
		body = "Your trader application was rejected."
	}
	s.notifier.Send(notify.Notice{
		UserID: userID,
		Title:  "Trader application " + out.Status,
		Body:   body,
		Level:  level,
	})
}
