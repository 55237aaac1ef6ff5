package model

import (
	"time"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

type Trader struct {
	ID            string          `json:"-"`
	Ref           string          `json:"ref"`
	Name          string          `json:"name"`
	Bio           string          `json:"bio"`
	WinRate       decimal.Decimal `json:"win_rate"`
	ProfitShare   decimal.Decimal `json:"profit_share"`
	MinAllocation decimal.Decimal `json:"min_allocation"`
	Copiers       int             `json:"copiers"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CopyRelationship struct {
	ID          string           `json:"-"`
	Ref         string           `json:"ref"`
	UserID      string           `json:"-"`
	TraderID    string           `json:"-"`
	TraderRef   string           `json:"trader_ref"`
	TraderName  string           `json:"trader_name"`
	Mode        types.CopyMode   `json:"mode"`
	Amount      decimal.Decimal  `json:"amount"`
	Percentage  decimal.Decimal  `json:"percentage"`
	Leverage    int              `json:"leverage"`
	Status      types.CopyStatus `json:"status"`
	TotalProfit decimal.Decimal  `json:"total_profit"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type CopyRequest struct {
	ID         string           `json:"-"`
	Ref        string           `json:"ref"`
	UserID     string           `json:"-"`
	TraderID   string           `json:"-"`
	TraderRef  string           `json:"trader_ref"`
	Allocation decimal.Decimal  `json:"allocation"`
	Percentage decimal.Decimal  `json:"percentage"`
	Status     types.CopyStatus `json:"status"`
	ReviewedAt *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// TraderApplication is a user's request to be listed as a trader. Document fields hold
// references to files stored elsewhere.
type TraderApplication struct {
	ID              string                  `json:"-"`
	Ref             string                  `json:"ref"`
	UserID          string                  `json:"-"`
	FullName        string                  `json:"full_name"`
	Email           string                  `json:"email"`
	Phone           string                  `json:"phone"`
	Country         string                  `json:"country"`
	Experience      string                  `json:"experience"`
	Markets         []string                `json:"markets"`
	Volume          string                  `json:"volume"`
	Certifications  string                  `json:"certifications"`
	TradingStyle    string                  `json:"trading_style"`
	RiskLevel       string                  `json:"risk_level"`
	Strategy        string                  `json:"strategy"`
	WinRate         decimal.Decimal         `json:"win_rate"`
	StatementsRef   string                  `json:"statements_ref"`
	GovernmentIDRef string                  `json:"government_id_ref"`
	ProofAccountRef string                  `json:"proof_account_ref"`
	Status          types.ApplicationStatus `json:"status"`
	TraderRef       *string                 `json:"trader_ref,omitempty"`
	ReviewedAt      *time.Time              `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}
