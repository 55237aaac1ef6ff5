package ledger

import (
	"testing"

	"norvia-broker/internal/types"

	"github.com/shopspring/decimal"
)

func TestComputeHashChainsOnPrevious(t *testing.T) {
	amount := decimal.RequireFromString("100")
	first := computeHash("e1", "a1", types.BucketTrading, amount, types.LedgerEntryDeposit, "deposit:1", 1, nil)
	if len(first) != 64 {
		t.Fatalf("hash length = %d", len(first))
	}
	again := computeHash("e1", "a1", types.BucketTrading, amount, types.LedgerEntryDeposit, "deposit:1", 1, nil)
	if first != again {
		t.Fatal("hash is not deterministic")
	}
	second := computeHash("e2", "a1", types.BucketTrading, amount, types.LedgerEntryDeposit, "deposit:2", 2, &first)
	other := "00"
	forged := computeHash("e2", "a1", types.BucketTrading, amount, types.LedgerEntryDeposit, "deposit:2", 2, &other)
	if second == forged {
		t.Fatal("previous hash does not affect the chain")
	}
}

func TestComputeHashIgnoresTrailingScale(t *testing.T) {
	a := computeHash("e1", "a1", types.BucketProfit, decimal.RequireFromString("10.5"), types.LedgerEntryPositionSettle, "p", 3, nil)
	b := computeHash("e1", "a1", types.BucketProfit, decimal.RequireFromString("10.50000000"), types.LedgerEntryPositionSettle, "p", 3, nil)
	if a != b {
		t.Fatal("database scale changed the hash")
	}
	c := computeHash("e1", "a1", types.BucketProfit, decimal.RequireFromString("-10.5"), types.LedgerEntryPositionSettle, "p", 3, nil)
	if a == c {
		t.Fatal("sign not covered by hash")
	}
}

func TestSamePtr(t *testing.T) {
	x, y := "ab", "ab"
	if !samePtr(nil, nil) || !samePtr(&x, &y) || samePtr(&x, nil) || samePtr(nil, &y) {
		t.Fatal("samePtr mismatch")
	}
}

func chained(id, account string, seq int64, prev *string) chainEntry {
	e := chainEntry{
		id:        id,
		accountID: account,
		bucket:    types.BucketTrading,
		amount:    decimal.RequireFromString("5"),
		entryType: types.LedgerEntryDeposit,
		ref:       "deposit:" + id,
		seq:       seq,
		prev:      prev,
	}
	h := computeHash(e.id, e.accountID, e.bucket, e.amount, e.entryType, e.ref, e.seq, e.prev)
	e.hash = &h
	return e
}

func TestChainWalkerInterleavedAccounts(t *testing.T) {
	a1 := chained("e1", "acct-a", 1, nil)
	b1 := chained("e2", "acct-b", 2, nil)
	a2 := chained("e3", "acct-a", 3, a1.hash)
	b2 := chained("e4", "acct-b", 4, b1.hash)

	w := newChainWalker()
	for _, e := range []chainEntry{a1, b1, a2, b2} {
		if !w.accept(e) {
			t.Fatalf("entry %d rejected", e.seq)
		}
	}
}

func TestChainWalkerRejectsCrossAccountLink(t *testing.T) {
	a1 := chained("e1", "acct-a", 1, nil)
	b1 := chained("e2", "acct-b", 2, a1.hash)

	w := newChainWalker()
	if !w.accept(a1) {
		t.Fatal("first entry rejected")
	}
	if w.accept(b1) {
		t.Fatal("entry linked to another account's tail was accepted")
	}
}

func TestChainWalkerRejectsTamperedAmount(t *testing.T) {
	a1 := chained("e1", "acct-a", 1, nil)
	a2 := chained("e2", "acct-a", 2, a1.hash)
	a2.amount = decimal.RequireFromString("500")

	w := newChainWalker()
	if !w.accept(a1) {
		t.Fatal("first entry rejected")
	}
	if w.accept(a2) {
		t.Fatal("tampered entry accepted")
	}
}

func TestChainWalkerRejectsMissingHash(t *testing.T) {
	e := chained("e1", "acct-a", 1, nil)
	e.hash = nil
	if newChainWalker().accept(e) {
		t.Fatal("entry without hash accepted")
	}
}
