package withdrawals

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

const ref = "0e3f4a2b-9c1d-4e5f-8a7b-6c5d4e3f2a1b"

func TestCreateInputCurrencyDestination(t *testing.T) {
	p, err := CreateInput{
		Amount:   "200",
		Currency: &CurrencyDestination{Ref: " " + ref + " ", Network: "TRC20", WalletAddress: " TXabc "},
	}.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.method.Kind != types.PaymentMethodCurrency || p.method.Ref != ref {
		t.Fatalf("method = %+v", p.method)
	}
	if p.walletAddress != "TXabc" || p.network != "TRC20" || p.email != "" {
		t.Fatalf("destination = %+v", p)
	}
}

func TestCreateInputGatewayDestination(t *testing.T) {
	p, err := CreateInput{Amount: "25.5", Gateway: &GatewayDestination{Ref: ref, Email: "me@example.com"}}.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.method.Kind != types.PaymentMethodGateway || p.email != "me@example.com" || p.walletAddress != "" {
		t.Fatalf("got %+v", p)
	}
}

func TestCreateInputRejects(t *testing.T) {
	cases := map[string]CreateInput{
		"no destination": {Amount: "10"},
		"both destinations": {
			Amount:   "10",
			Currency: &CurrencyDestination{Ref: ref, WalletAddress: "addr"},
			Gateway:  &GatewayDestination{Ref: ref, Email: "a@b.co"},
		},
		"zero amount":     {Amount: "0", Gateway: &GatewayDestination{Ref: ref, Email: "a@b.co"}},
		"missing wallet":  {Amount: "10", Currency: &CurrencyDestination{Ref: ref}},
		"bad gateway ref": {Amount: "10", Gateway: &GatewayDestination{Ref: "x", Email: "a@b.co"}},
		"bad email":       {Amount: "10", Gateway: &GatewayDestination{Ref: ref, Email: "nope"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := in.parse(); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

// The hold is what prevents a second request from spending funds already claimed.
func TestWithdrawalBeyondBalanceIsRejected(t *testing.T) {
	a := &model.Account{Withdrawable: decimal.RequireFromString("150"), WithdrawalEnabled: true}
	if _, err := a.Reserve(decimal.RequireFromString("200")); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !a.WithdrawalHold.IsZero() {
		t.Fatalf("hold changed on failure: %s", a.WithdrawalHold)
	}
}

func TestAlreadyDecided(t *testing.T) {
	out := alreadyDecided(&model.Withdrawal{TransactionNo: "202603070002", Status: types.WithdrawalStatusRejected})
	if out.Status != "already_rejected" || !strings.Contains(out.Warning, "already rejected") {
		t.Fatalf("got %+v", out)
	}
}

func TestCreateHandlerValidation(t *testing.T) {
	h := NewHandler(&Service{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", strings.NewReader(`{"amount":"10"}`))
	h.Create(rec, req, "user")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
