package positions

import (
	"testing"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOpenScenario(t *testing.T) {
	size := Size(d("100"), d("50000"))
	if !size.Equal(d("0.002")) {
		t.Fatalf("size = %s, want 0.002", size)
	}
	pnl := PnL(types.PositionSideBuy, d("50000"), d("50000"), size)
	if !pnl.IsZero() {
		t.Fatalf("initial pnl = %s", pnl)
	}
	if pct := PnLPercent(pnl, d("50000"), size); !pct.IsZero() {
		t.Fatalf("initial pnl%% = %s", pct)
	}
}

func TestCloseScenario(t *testing.T) {
	size := d("0.002")
	s := Settle(types.PositionSideBuy, d("50000"), d("55000"), size, d("100"))
	if !s.PnL.Equal(d("10")) {
		t.Fatalf("pnl = %s, want 10", s.PnL)
	}
	if !s.PnLPercent.Equal(d("10")) {
		t.Fatalf("pnl%% = %s, want 10", s.PnLPercent)
	}
	if !s.Returned.Equal(d("100")) || !s.Gain.Equal(d("10")) {
		t.Fatalf("returned=%s gain=%s", s.Returned, s.Gain)
	}
}

func TestShortMirrorsLong(t *testing.T) {
	cases := []struct {
		entry, current, size string
	}{
		{"50000", "55000", "0.002"},
		{"120.5", "100.25", "3"},
		{"1", "1", "10"},
		{"0.0001", "0.0003", "1000000"},
	}
	for _, tc := range cases {
		long := PnL(types.PositionSideBuy, d(tc.entry), d(tc.current), d(tc.size))
		short := PnL(types.PositionSideSell, d(tc.entry), d(tc.current), d(tc.size))
		if !long.Equal(short.Neg()) {
			t.Errorf("%+v: long %s is not the mirror of short %s", tc, long, short)
		}
		want := d(tc.current).Sub(d(tc.entry)).Mul(d(tc.size))
		if !long.Equal(want) {
			t.Errorf("%+v: long pnl %s, want %s", tc, long, want)
		}
	}
}

func TestPnLPercentZeroNotional(t *testing.T) {
	if got := PnLPercent(d("5"), d("0"), d("1")); !got.IsZero() {
		t.Fatalf("zero entry: %s", got)
	}
	if got := PnLPercent(d("5"), d("100"), d("0")); !got.IsZero() {
		t.Fatalf("zero size: %s", got)
	}
	if got := Size(d("100"), d("0")); !got.IsZero() {
		t.Fatalf("size with zero entry: %s", got)
	}
}

func TestSettleLosses(t *testing.T) {
	s := Settle(types.PositionSideSell, d("100"), d("130"), d("1"), d("100"))
	if !s.PnL.Equal(d("-30")) || !s.Returned.Equal(d("70")) || !s.Gain.IsZero() {
		t.Fatalf("partial loss: %+v", s)
	}
	if !s.PnLPercent.Equal(d("-30")) {
		t.Fatalf("pnl%% = %s", s.PnLPercent)
	}
	wiped := Settle(types.PositionSideBuy, d("100"), d("10"), d("2"), d("100"))
	if !wiped.PnL.Equal(d("-180")) || !wiped.Returned.IsZero() {
		t.Fatalf("loss beyond stake must floor at zero: %+v", wiped)
	}
}
