package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"norvia-broker/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(now time.Time) *Service {
	s := NewService(nil, nil, "norvia", []byte("test-secret"), time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestTokenRoundTripCarriesRoles(t *testing.T) {
	s := newTestService(time.Now().UTC())
	token, err := s.signToken("user-1", []string{RoleTrader, RoleAdmin})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := s.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != "user-1" || !p.HasRole(RoleAdmin) || !p.HasRole(RoleTrader) {
		t.Fatalf("got %+v", p)
	}
	if p.HasRole("auditor") {
		t.Fatal("unexpected role")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestService(issued)
	token, err := s.signToken("user-1", nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsForeignIssuerAndSecret(t *testing.T) {
	now := time.Now().UTC()
	s := newTestService(now)

	other := NewService(nil, nil, "someone-else", []byte("test-secret"), time.Hour)
	token, _ := other.signToken("user-1", nil)
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("expected issuer mismatch")
	}

	forged := NewService(nil, nil, "norvia", []byte("other-secret"), time.Hour)
	token, _ = forged.signToken("user-1", nil)
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	s := newTestService(time.Now().UTC())
	c := claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "norvia", Subject: "user-1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestRegisterValidates(t *testing.T) {
	s := newTestService(time.Now().UTC())
	cases := map[string]RegisterInput{
		"bad email":      {Email: "nope", Handle: "alice", Password: "longenough"},
		"short password": {Email: "a@b.co", Handle: "alice", Password: "short"},
		"handle symbols": {Email: "a@b.co", Handle: "al ice!", Password: "longenough"},
		"missing handle": {Email: "a@b.co", Password: "longenough"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Register(context.Background(), in); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
