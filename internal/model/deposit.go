package model

import (
	"time"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

// PaymentMethod is either a currency or a gateway, never both.
type PaymentMethod struct {
	Kind types.PaymentMethodKind `json:"kind"`
	Ref  string                  `json:"ref"`
}

type Deposit struct {
	ID             string              `json:"-"`
	Ref            string              `json:"ref"`
	UserID         string              `json:"-"`
	TransactionNo  string              `json:"transaction_no"`
	Amount         decimal.Decimal     `json:"amount"`
	Fee            decimal.Decimal     `json:"fee"`
	GrandTotal     decimal.Decimal     `json:"grand_total"`
	Bucket         types.Bucket        `json:"bucket"`
	Method         PaymentMethod       `json:"method"`
	MethodName     string              `json:"method_name"`
	Network        string              `json:"network,omitempty"`
	Status         types.DepositStatus `json:"status"`
	ProofRef       string              `json:"proof_ref,omitempty"`
	TxHash         string              `json:"tx_hash,omitempty"`
	Note           string              `json:"note,omitempty"`
	ExpireTime     time.Time           `json:"expire_time"`
	ApprovedAmount *decimal.Decimal    `json:"approved_amount,omitempty"`
	ApprovedOn     *time.Time          `json:"approved_on,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}
