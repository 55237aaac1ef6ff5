package plans

import (
	"context"
	"errors"
	"testing"

	"norvia-broker/internal/apperr"
)

const currencyRef = "5a8d1c2e-3b4f-4a6d-9e8f-7c6b5a4d3e2f"

func TestCreateValidatesBeforeStorage(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	cases := map[string]PlanInput{
		"missing category":  {Tier: "Gold", Price: "500"},
		"missing tier":      {Category: "mining", Price: "500"},
		"zero price":        {Category: "mining", Tier: "Gold", Price: "0"},
		"price below scale": {Category: "mining", Tier: "Gold", Price: "0.000000001"},
		"too many features": {Category: "mining", Tier: "Gold", Price: "500", Features: manyFeatures(21)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), in); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestPlanPriceRoundsToStoredScale(t *testing.T) {
	p, err := planPrice("99.123456789")
	if err != nil {
		t.Fatalf("planPrice: %v", err)
	}
	if p.String() != "99.12345679" {
		t.Fatalf("price = %s", p)
	}
}

func TestTrimFeatures(t *testing.T) {
	got := trimFeatures([]string{" daily payouts ", "", "  ", "24/7 support"})
	if len(got) != 2 || got[0] != "daily payouts" || got[1] != "24/7 support" {
		t.Fatalf("features = %q", got)
	}
	if got := trimFeatures(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil features should become an empty list, got %#v", got)
	}
}

func TestUpdateRequiresAChange(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	if _, err := svc.Update(context.Background(), currencyRef, UpdateInput{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.Update(context.Background(), currencyRef, UpdateInput{Price: "-3"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("negative price: expected invalid input, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "nope", UpdateInput{Price: "3"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("bad ref: expected not found, got %v", err)
	}
}

func TestDeleteMalformedRefIsNotFound(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	if err := svc.Delete(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPurchaseValidatesBeforeStorage(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	if _, err := svc.Purchase(context.Background(), "user", "nope", PurchaseInput{CurrencyRef: currencyRef}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("bad plan ref: expected not found, got %v", err)
	}
	if _, err := svc.Purchase(context.Background(), "user", currencyRef, PurchaseInput{CurrencyRef: "btc"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("bad currency ref: expected invalid input, got %v", err)
	}
}

func manyFeatures(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "feature"
	}
	return out
}
