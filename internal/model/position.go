package model

import (
	"time"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID              string               `json:"-"`
	Ref             string               `json:"ref"`
	UserID          string               `json:"-"`
	CopyID          *string              `json:"-"`
	CopyRef         *string              `json:"copy_ref,omitempty"`
	Symbol          string               `json:"symbol"`
	Side            types.PositionSide   `json:"side"`
	Mode            types.PositionMode   `json:"mode"`
	Leverage        *int                 `json:"leverage,omitempty"`
	Asset           types.AssetClass     `json:"asset"`
	EntryPrice      decimal.Decimal      `json:"entry_price"`
	CurrentPrice    decimal.Decimal      `json:"current_price"`
	Amount          decimal.Decimal      `json:"amount"`
	Size            decimal.Decimal      `json:"size"`
	DurationMinutes int                  `json:"duration_minutes"`
	Status          types.PositionStatus `json:"status"`
	PnL             decimal.Decimal      `json:"pnl"`
	PnLPercent      decimal.Decimal      `json:"pnl_percent"`
	CloseReason     *types.CloseReason   `json:"close_reason,omitempty"`
	OpenedBy        string               `json:"opened_by"`
	OpenedAt        time.Time            `json:"opened_at"`
	ClosedAt        *time.Time           `json:"closed_at,omitempty"`
}

func (p *Position) ExpiresAt() time.Time {
	return p.OpenedAt.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

func (p *Position) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}
