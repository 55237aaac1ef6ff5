package accounts

import (
	"errors"
	"testing"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/types"
)

func TestValidateTransfer(t *testing.T) {
	cases := []struct {
		from, to types.Bucket
		ok       bool
	}{
		{types.BucketTrading, types.BucketHolding, true},
		{types.BucketHolding, types.BucketTrading, true},
		{types.BucketProfit, types.BucketWithdrawable, true},
		{types.BucketHoldingProfit, types.BucketTrading, true},
		{types.BucketTrading, types.BucketTrading, false},
		{types.BucketWithdrawable, types.BucketTrading, false},
		{types.BucketTrading, types.BucketProfit, false},
		{types.BucketWithdrawHold, types.BucketTrading, false},
		{types.Bucket(""), types.BucketTrading, false},
	}
	for _, tc := range cases {
		err := ValidateTransfer(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s -> %s: expected invalid input, got %v", tc.from, tc.to, err)
		}
	}
}
