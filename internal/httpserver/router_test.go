package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/admin"
	"norvia-broker/internal/auth"
	"norvia-broker/internal/copytrading"
	"norvia-broker/internal/deposits"
	"norvia-broker/internal/health"
	"norvia-broker/internal/ledger"
	"norvia-broker/internal/logger"
	"norvia-broker/internal/notify"
	"norvia-broker/internal/paymentmethods"
	"norvia-broker/internal/plans"
	"norvia-broker/internal/positions"
	"norvia-broker/internal/ratelimit"
	"norvia-broker/internal/verification"
	"norvia-broker/internal/withdrawals"
)

func testRouter() http.Handler {
	return NewRouter(RouterDeps{
		Auth:           auth.NewHandler(nil),
		Accounts:       accounts.NewHandler(nil),
		Positions:      positions.NewHandler(nil),
		Deposits:       deposits.NewHandler(nil),
		Withdrawals:    withdrawals.NewHandler(nil),
		PaymentMethods: paymentmethods.NewHandler(nil),
		Copy:           copytrading.NewHandler(nil),
		Plans:          plans.NewHandler(nil),
		Verification:   verification.NewHandler(nil),
		Notifications:  notify.NewHandler(nil),
		Ledger:         ledger.NewHandler(nil),
		Admin:          admin.NewHandler(nil),
		Health:         health.NewHandler(nil, nil, time.Now()),
		WS:             http.NotFoundHandler(),
		Tokens:         tokens,
		Limiter:        ratelimit.NewMemory(1000, time.Minute),
		CORSOrigin:     "*",
		Log:            logger.Nop(),
	})
}

func TestRouterGuards(t *testing.T) {
	r := testRouter()
	cases := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/v1/positions", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/deposits", "forged", http.StatusUnauthorized},
		{http.MethodGet, "/v1/admin/stats", "trader", http.StatusForbidden},
		{http.MethodPost, "/v1/admin/deposits/abc/approve", "trader", http.StatusForbidden},
		{http.MethodPost, "/v1/admin/positions/sweep", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/admin/trader-applications/abc/approve", "trader", http.StatusForbidden},
		{http.MethodPost, "/v1/admin/plans", "trader", http.StatusForbidden},
		{http.MethodPost, "/v1/trader-applications", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/plans/abc/purchase", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/nowhere", "trader", http.StatusNotFound},
		{http.MethodGet, "/health", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/health/live", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("got %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatal("missing request id")
			}
		})
	}
}

func TestRouterValidatesBeforeTouchingStorage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/positions?limit=abc", nil)
	req.Header.Set("Authorization", "Bearer trader")
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPlanPurchaseUnknownRefIsNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/not-a-ref/purchase", strings.NewReader(`{"currency_ref":"5a8d1c2e-3b4f-4a6d-9e8f-7c6b5a4d3e2f"}`))
	req.Header.Set("Authorization", "Bearer trader")
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
}
