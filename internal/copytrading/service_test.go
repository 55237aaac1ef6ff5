package copytrading

import (
	"context"
	"errors"
	"testing"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/types"
)

const traderRef = "5a8d1c2e-3b4f-4a6d-9e8f-7c6b5a4d3e2f"

func TestCopyInputFlexible(t *testing.T) {
	p, err := CopyInput{TraderRef: traderRef, Mode: "Flexible", Amount: "250", Percentage: "40", Leverage: 5}.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.mode != types.CopyModeFlexible || p.amount.String() != "250" || p.percentage.String() != "40" || p.leverage != 5 {
		t.Fatalf("got %+v", p)
	}
}

func TestCopyInputFullIgnoresAmount(t *testing.T) {
	p, err := CopyInput{TraderRef: traderRef, Mode: "full"}.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.mode != types.CopyModeFull || !p.amount.IsZero() || p.percentage.String() != "100" || p.leverage != 1 {
		t.Fatalf("got %+v", p)
	}
}

func TestCopyInputRejects(t *testing.T) {
	cases := map[string]CopyInput{
		"flexible without amount": {TraderRef: traderRef, Mode: "flexible"},
		"negative amount":         {TraderRef: traderRef, Mode: "flexible", Amount: "-5"},
		"percentage above 100":    {TraderRef: traderRef, Mode: "flexible", Amount: "5", Percentage: "150"},
		"unknown mode":            {TraderRef: traderRef, Mode: "mirror"},
		"bad trader ref":          {TraderRef: "abc", Mode: "full"},
		"leverage too high":       {TraderRef: traderRef, Mode: "flexible", Amount: "5", Leverage: 500},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := in.parse(); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCreateTraderValidatesPercentages(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	if _, err := svc.CreateTrader(context.Background(), TraderInput{Name: "Ava", WinRate: "120"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.CreateTrader(context.Background(), TraderInput{Name: " "}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("blank name: expected invalid input, got %v", err)
	}
}

func TestStopWithForeignOrMalformedRefIsNotFound(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	if err := svc.Stop(context.Background(), "user", "not-a-ref"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func validApplication() ApplicationInput {
	return ApplicationInput{
		FullName:        " Ava Stone ",
		Email:           "Ava@Example.com",
		Phone:           "+15550100",
		Country:         "NZ",
		Experience:      "5-10 years",
		Markets:         []string{"Crypto", " forex ", "crypto", ""},
		Volume:          "100k-1m",
		Certifications:  "CMT level 2",
		TradingStyle:    "swing",
		RiskLevel:       "moderate",
		Strategy:        "Trend following on daily charts.",
		WinRate:         "67.456",
		StatementsRef:   "docs/statements.pdf",
		GovernmentIDRef: "docs/id.png",
		ProofAccountRef: "docs/account.pdf",
	}
}

func TestApplicationInputNormalizes(t *testing.T) {
	a, err := validApplication().parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.FullName != "Ava Stone" || a.Email != "ava@example.com" {
		t.Fatalf("name/email = %q/%q", a.FullName, a.Email)
	}
	if len(a.Markets) != 2 || a.Markets[0] != "crypto" || a.Markets[1] != "forex" {
		t.Fatalf("markets = %v", a.Markets)
	}
	if a.WinRate.String() != "67.46" || a.Status != types.ApplicationPending {
		t.Fatalf("win rate/status = %s/%s", a.WinRate, a.Status)
	}
}

func TestApplicationInputRejects(t *testing.T) {
	cases := []struct {
		name string
		edit func(*ApplicationInput)
	}{
		{"no markets", func(in *ApplicationInput) { in.Markets = nil }},
		{"only blank markets", func(in *ApplicationInput) { in.Markets = []string{" ", ""} }},
		{"bad email", func(in *ApplicationInput) { in.Email = "ava" }},
		{"win rate above 100", func(in *ApplicationInput) { in.WinRate = "101" }},
		{"negative win rate", func(in *ApplicationInput) { in.WinRate = "-1" }},
		{"missing id document", func(in *ApplicationInput) { in.GovernmentIDRef = " " }},
		{"missing strategy", func(in *ApplicationInput) { in.Strategy = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validApplication()
			tc.edit(&in)
			if _, err := in.parse(); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestApplyValidatesBeforeStorage(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	in := validApplication()
	in.Phone = ""
	if _, err := svc.Apply(context.Background(), "user", in); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestApplicationsRejectsUnknownStatus(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	if _, err := svc.Applications(context.Background(), "archived"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDecideApplicationMalformedRefIsNotFound(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil)
	if _, err := svc.ApproveApplication(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTraderFromApplication(t *testing.T) {
	a, err := validApplication().parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tr := traderFromApplication(&a)
	if tr.Name != "Ava Stone" || tr.Bio != a.Strategy || !tr.WinRate.Equal(a.WinRate) || !tr.Enabled {
		t.Fatalf("trader = %+v", tr)
	}
	if !tr.MinAllocation.IsZero() || !tr.ProfitShare.IsZero() {
		t.Fatalf("trader terms should start at zero, got %+v", tr)
	}
}
