package paymentmethods

import (
	"context"
	"errors"
	"testing"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

const sampleRef = "2f1c7a5e-8d0b-4a57-9a57-5a4bde0c1f11"

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Currency ", sampleRef)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != types.PaymentMethodCurrency || m.Ref != sampleRef {
		t.Fatalf("got %+v", m)
	}
	if _, err := ParseMethod("gateway", sampleRef); err != nil {
		t.Fatalf("gateway: %v", err)
	}

	for _, tc := range []struct{ kind, ref string }{
		{"card", sampleRef},
		{"", sampleRef},
		{"currency", "42"},
		{"gateway", ""},
	} {
		if _, err := ParseMethod(tc.kind, tc.ref); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("ParseMethod(%q, %q): expected invalid input, got %v", tc.kind, tc.ref, err)
		}
	}
}

func TestGrandTotalAddsFee(t *testing.T) {
	r := Resolved{Fee: decimal.RequireFromString("5")}
	if got := r.GrandTotal(decimal.RequireFromString("500")); !got.Equal(decimal.RequireFromString("505")) {
		t.Fatalf("grand total = %s, want 505", got)
	}
}

func TestCheckAmountEnforcesMinimum(t *testing.T) {
	r := Resolved{Name: "USDT", Minimum: decimal.RequireFromString("10")}
	if err := r.CheckAmount(decimal.RequireFromString("9.99")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := r.CheckAmount(decimal.RequireFromString("10")); err != nil {
		t.Fatalf("minimum itself must pass: %v", err)
	}
}

func TestUpsertValidatesBeforeStorage(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()
	if _, err := svc.UpsertCurrency(ctx, CurrencyInput{Abbr: "BTC"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("missing name: %v", err)
	}
	if _, err := svc.UpsertCurrency(ctx, CurrencyInput{Abbr: "BTC", Name: "Bitcoin", TransactionFee: "-1"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("negative fee: %v", err)
	}
	if _, err := svc.UpsertCurrency(ctx, CurrencyInput{Abbr: "BTC", Name: "Bitcoin"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("enabled without address: %v", err)
	}
	if _, err := svc.UpsertGateway(ctx, GatewayInput{Name: "PayPal", Email: "not-an-email"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
}

func TestResolveRejectsUnknownKind(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.Resolve(context.Background(), nil, Resolved{}.PaymentMethod)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
