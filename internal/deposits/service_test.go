package deposits

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/model"
	"norvia-broker/internal/types"
)

const methodRef = "7b0e6d0c-3f43-4d5e-9b36-3a2f51c2a9d4"

func TestCreateInputParse(t *testing.T) {
	p, err := CreateInput{Amount: "500", MethodKind: "Currency", MethodRef: methodRef}.parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.bucket != types.BucketTrading {
		t.Fatalf("default bucket = %s", p.bucket)
	}
	if p.method.Kind != types.PaymentMethodCurrency || p.method.Ref != methodRef {
		t.Fatalf("method = %+v", p.method)
	}
	if p.amount.String() != "500" {
		t.Fatalf("amount = %s", p.amount)
	}

	p, err = CreateInput{Amount: "10.5", MethodKind: "gateway", MethodRef: methodRef, Bucket: "HOLDING"}.parse()
	if err != nil {
		t.Fatalf("parse holding: %v", err)
	}
	if p.bucket != types.BucketHolding {
		t.Fatalf("bucket = %s", p.bucket)
	}
}

func TestCreateInputRejects(t *testing.T) {
	cases := map[string]CreateInput{
		"zero amount":     {Amount: "0", MethodKind: "currency", MethodRef: methodRef},
		"missing amount":  {MethodKind: "currency", MethodRef: methodRef},
		"unknown kind":    {Amount: "10", MethodKind: "card", MethodRef: methodRef},
		"bad ref":         {Amount: "10", MethodKind: "currency", MethodRef: "1"},
		"profit bucket":   {Amount: "10", MethodKind: "currency", MethodRef: methodRef, Bucket: "profit"},
		"withdrawable in": {Amount: "10", MethodKind: "currency", MethodRef: methodRef, Bucket: "withdrawable"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := in.parse(); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestApproveRequiresCreditAmount(t *testing.T) {
	svc := &Service{}
	for _, v := range []string{"", "0", "-1", "abc"} {
		if _, err := svc.Approve(context.Background(), methodRef, "", ApproveInput{CreditAmount: v}); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("credit_amount %q: expected invalid input, got %v", v, err)
		}
	}
}

func TestSubmitProofRequiresReference(t *testing.T) {
	svc := &Service{}
	if _, err := svc.SubmitProof(context.Background(), "user", methodRef, ProofInput{ProofRef: "   "}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAlreadyDecidedIsNoOpOutcome(t *testing.T) {
	d := &model.Deposit{TransactionNo: "202603070001", Status: types.DepositStatusSuccess}
	out := alreadyDecided(d)
	if out.Status != "already_success" {
		t.Fatalf("status = %s", out.Status)
	}
	if !strings.Contains(out.Warning, "202603070001") || out.Deposit != d {
		t.Fatalf("decision = %+v", out)
	}
}

func TestGetRejectsMalformedRef(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Get(context.Background(), "user", "../etc"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateHandlerRejectsUnknownFields(t *testing.T) {
	h := NewHandler(&Service{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", strings.NewReader(`{"amount":"5","status":"success"}`))
	h.Create(rec, req, "user")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_INPUT") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
