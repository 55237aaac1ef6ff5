package httpserver

import (
	"net/http"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/admin"
	"norvia-broker/internal/auth"
	"norvia-broker/internal/copytrading"
	"norvia-broker/internal/deposits"
	"norvia-broker/internal/health"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/metrics"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/paymentmethods"
	"norvia-broker/internal/plans"
	"norvia-broker/internal/positions"
	"norvia-broker/internal/ratelimit"
	"norvia-broker/internal/verification"
	"norvia-broker/internal/withdrawals"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Auth           *auth.Handler
	Accounts       *accounts.Handler
	Positions      *positions.Handler
	Deposits       *deposits.Handler
	Withdrawals    *withdrawals.Handler
	PaymentMethods *paymentmethods.Handler
	Copy           *copytrading.Handler
	Plans          *plans.Handler
	Verification   *verification.Handler
	Notifications  *notify.Handler
	Ledger         *ledger.Handler
	Admin          *admin.Handler
	Health         *health.Handler
	WS             http.Handler
	Tokens         TokenParser
	Limiter        ratelimit.Limiter
	CORSOrigin     string
	Log            *logger.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log.Component("http")
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recover(log))
	r.Use(AccessLog(log))
	r.Use(CORS(d.CORSOrigin))
	r.Use(SecurityHeaders)

	r.Get("/health", d.Health.Ready)
	r.Get("/health/live", d.Health.Live)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(d.Limiter, log))
			r.Post("/auth/register", d.Auth.Register)
			r.Post("/auth/login", d.Auth.Login)
			r.Get("/traders", d.Copy.ListTraders)
			r.Get("/traders/{ref}", d.Copy.GetTrader)
			r.Get("/payment-methods", d.PaymentMethods.List)
			r.Get("/plans", d.Plans.List)
		})
		r.Get("/ws", d.WS.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens))
			r.Use(RateLimit(d.Limiter, log))

			r.Get("/me", withUser(d.Auth.Me))
			r.Get("/notifications", withUser(d.Notifications.List))

			r.Get("/account/summary", withUser(d.Accounts.Summary))
			r.Get("/account/ledger", withUser(d.Accounts.Ledger))
			r.Post("/account/transfer", withUser(d.Accounts.Transfer))

			r.Post("/positions", withUser(d.Positions.Place))
			r.Get("/positions", withUser(d.Positions.List))
			r.Get("/positions/{ref}", withUser(d.Positions.Get))
			r.Post("/positions/{ref}/close", withUser(d.Positions.Close))

			r.Post("/deposits", withUser(d.Deposits.Create))
			r.Get("/deposits", withUser(d.Deposits.List))
			r.Get("/deposits/{ref}", withUser(d.Deposits.Get))
			r.Post("/deposits/{ref}/cancel", withUser(d.Deposits.Cancel))
			r.Post("/deposits/{ref}/proof", withUser(d.Deposits.SubmitProof))

			r.Post("/withdrawals", withUser(d.Withdrawals.Create))
			r.Get("/withdrawals", withUser(d.Withdrawals.List))
			r.Get("/withdrawals/{ref}", withUser(d.Withdrawals.Get))

			r.Post("/copies", withUser(d.Copy.Copy))
			r.Get("/copies", withUser(d.Copy.List))
			r.Delete("/copies/{ref}", withUser(d.Copy.Stop))
			r.Post("/copy-requests", withUser(d.Copy.Request))
			r.Post("/trader-applications", withUser(d.Copy.Apply))
			r.Get("/trader-applications", withUser(d.Copy.ListApplications))

			r.Post("/plans/{ref}/purchase", withUser(d.Plans.Purchase))

			r.Post("/verifications", withUser(d.Verification.Submit))
			r.Get("/verifications", withUser(d.Verification.List))

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin))

				r.Get("/stats", d.Admin.Stats)
				r.Get("/ledger/verify", d.Ledger.Verify)
				r.Patch("/accounts/{handle}/flags", d.Accounts.SetFlags)

				r.Get("/deposits/pending", d.Deposits.ListPending)
				r.Post("/deposits/{ref}/approve", withUser(d.Deposits.Approve))
				r.Post("/deposits/{ref}/reject", withUser(d.Deposits.Reject))

				r.Get("/withdrawals/pending", d.Withdrawals.ListPending)
				r.Post("/withdrawals/{ref}/approve", withUser(d.Withdrawals.Approve))
				r.Post("/withdrawals/{ref}/reject", withUser(d.Withdrawals.Reject))

				r.Get("/copies/pending", d.Copy.ListPending)
				r.Post("/copies/{ref}/approve", d.Copy.ApproveCopy)
				r.Post("/copies/{ref}/reject", d.Copy.RejectCopy)
				r.Post("/copy-requests/{ref}/approve", d.Copy.ApproveRequest)
				r.Post("/copy-requests/{ref}/reject", d.Copy.RejectRequest)
				r.Get("/trader-applications", d.Copy.Applications)
				r.Post("/trader-applications/{ref}/approve", d.Copy.ApproveApplication)
				r.Post("/trader-applications/{ref}/reject", d.Copy.RejectApplication)

				r.Get("/verifications/pending", d.Verification.ListPending)
				r.Post("/verifications/{ref}/approve", d.Verification.Approve)
				r.Post("/verifications/{ref}/reject", d.Verification.Reject)

				r.Post("/positions/take", d.Positions.TakeTrade)
				r.Post("/positions/mark", d.Positions.Mark)
				r.Post("/positions/refresh", d.Positions.Refresh)
				r.Post("/positions/sweep", d.Positions.Sweep)

				r.Post("/traders", d.Copy.CreateTrader)
				r.Get("/plans", d.Plans.ListAll)
				r.Post("/plans", d.Plans.Create)
				r.Patch("/plans/{ref}", d.Plans.Update)
				r.Delete("/plans/{ref}", d.Plans.Delete)
				r.Put("/currencies", d.PaymentMethods.PutCurrency)
				r.Put("/gateways", d.PaymentMethods.PutGateway)
			})
		})
	})
	return r
}
