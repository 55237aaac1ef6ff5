package model

import (
	"time"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

type Withdrawal struct {
	ID            string                 `json:"-"`
	Ref           string                 `json:"ref"`
	UserID        string                 `json:"-"`
	TransactionNo string                 `json:"transaction_no"`
	Amount        decimal.Decimal        `json:"amount"`
	Method        PaymentMethod          `json:"method"`
	MethodName    string                 `json:"method_name"`
	Network       string                 `json:"network,omitempty"`
	WalletAddress string                 `json:"wallet_address,omitempty"`
	Email         string                 `json:"email,omitempty"`
	Status        types.WithdrawalStatus `json:"status"`
	ExpireTime    time.Time              `json:"expire_time"`
	ReviewedAt    *time.Time             `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
