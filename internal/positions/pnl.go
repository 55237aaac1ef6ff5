package positions

import (
	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Size is fixed at open time and never recomputed.
func Size(amount, entryPrice decimal.Decimal) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	return amount.Div(entryPrice)
}

// PnL is (current-entry)*size for a buy and the mirror for a sell.
func PnL(side types.PositionSide, entryPrice, currentPrice, size decimal.Decimal) decimal.Decimal {
	if side == types.PositionSideSell {
		return entryPrice.Sub(currentPrice).Mul(size)
	}
	return currentPrice.Sub(entryPrice).Mul(size)
}

// PnLPercent returns 0 when the notional entry*size is zero.
func PnLPercent(pnl, entryPrice, size decimal.Decimal) decimal.Decimal {
	notional := entryPrice.Mul(size)
	if notional.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(notional).Mul(hundred)
}

// Settlement is what closing a position pays back into the account.
// Returned goes to the trading bucket and is the stake less any loss, floored at zero.
// Gain is the positive part of pnl and goes to a profit bucket.
type Settlement struct {
	PnL        decimal.Decimal
	PnLPercent decimal.Decimal
	Returned   decimal.Decimal
	Gain       decimal.Decimal
}

func Settle(side types.PositionSide, entryPrice, currentPrice, size, amount decimal.Decimal) Settlement {
	pnl := PnL(side, entryPrice, currentPrice, size)
	s := Settlement{
		PnL:        pnl,
		PnLPercent: PnLPercent(pnl, entryPrice, size),
		Returned:   amount,
		Gain:       decimal.Zero,
	}
	if pnl.IsPositive() {
		s.Gain = pnl
	} else {
		s.Returned = decimal.Max(amount.Add(pnl), decimal.Zero)
	}
	return s
}
