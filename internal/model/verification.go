package model

import (
	"time"

	"norvia-broker/internal/types"
)

type Verification struct {
	ID          string                   `json:"-"`
	Ref         string                   `json:"ref"`
	UserID      string                   `json:"-"`
	Kind        types.VerificationKind   `json:"kind"`
	Status      types.VerificationStatus `json:"status"`
	DocumentRef string                   `json:"document_ref"`
	Note        string                   `json:"note,omitempty"`
	ReviewedAt  *time.Time               `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
}
