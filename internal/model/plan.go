package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan struct {
	ID        string          `json:"-"`
	Ref       string          `json:"ref"`
	Category  string          `json:"category"`
	Tier      string          `json:"tier"`
	Price     decimal.Decimal `json:"price"`
	Features  []string        `json:"features"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}
