package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"norvia-broker/internal/apperr"
)

func TestSubmitValidates(t *testing.T) {
	svc := NewService(nil, nil, nil)
	cases := map[string]SubmitInput{
		"unknown kind":   {Kind: "passport", DocumentRef: "uploads/a.png"},
		"missing doc":    {Kind: "kyc", DocumentRef: "   "},
		"missing kind":   {DocumentRef: "uploads/a.png"},
		"oversized note": {Kind: "address", DocumentRef: "uploads/b.pdf", Note: strings.Repeat("x", 1001)},
		"oversized doc":  {Kind: "kyc", DocumentRef: strings.Repeat("d", 513)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), "user", in); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestReviewNoteIsBounded(t *testing.T) {
	svc := NewService(nil, nil, nil)
	_, err := svc.Reject(context.Background(), "ref", ReviewInput{Note: strings.Repeat("n", 1001)})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
