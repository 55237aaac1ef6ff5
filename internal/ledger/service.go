package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"norvia-broker/internal/model"
	"norvia-broker/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Service keeps the append-only journal of every bucket change. Each account has its own
// hash chain, so journals of different accounts never contend.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Record appends one entry per delta inside the caller's transaction. The caller must hold
// the account row lock, which is what orders appends to the account's chain.
func (s *Service) Record(ctx context.Context, tx pgx.Tx, accountID string, deltas []model.BucketDelta, entryType types.LedgerEntryType, ref string) error {
	if len(deltas) == 0 {
		return nil
	}
	var prevHash *string
	err := tx.QueryRow(ctx, `
		select encode(hash, 'hex') from ledger_entries
		where account_id = $1
		order by sequence desc
		limit 1
	`, accountID).Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	for _, d := range deltas {
		amount := d.Amount.Round(8)
		if amount.IsZero() {
			continue
		}
		var entryID string
		var seq int64
		err := tx.QueryRow(ctx, `
			insert into ledger_entries (account_id, bucket, amount, entry_type, ref, prev_hash, created_at)
			values ($1, $2, $3, $4, $5, decode(nullif($6, ''), 'hex'), $7)
			returning id::text, sequence
		`, accountID, string(d.Bucket), amount, string(entryType), ref, deref(prevHash), time.Now().UTC()).Scan(&entryID, &seq)
		if err != nil {
			return err
		}
		hash := computeHash(entryID, accountID, d.Bucket, amount, entryType, ref, seq, prevHash)
		if _, err := tx.Exec(ctx, "update ledger_entries set hash = decode($1, 'hex') where id = $2", hash, entryID); err != nil {
			return err
		}
		prevHash = &hash
	}
	return nil
}

type Entry struct {
	Sequence  int64           `json:"sequence"`
	Bucket    types.Bucket    `json:"bucket"`
	Amount    decimal.Decimal `json:"amount"`
	EntryType string          `json:"entry_type"`
	Ref       string          `json:"ref"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Service) EntriesByAccount(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select sequence, bucket, amount, entry_type, ref, created_at
		from ledger_entries
		where account_id = $1
		order by sequence desc
		limit $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var bucket string
		if err := rows.Scan(&e.Sequence, &bucket, &e.Amount, &e.EntryType, &e.Ref, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Bucket = types.Bucket(bucket)
		out = append(out, e)
	}
	return out, rows.Err()
}

type VerifyResult struct {
	Checked  int    `json:"checked"`
	Valid    bool   `json:"valid"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
}

// Verify walks every account chain in sequence order and reports the first entry whose
// link or hash does not match.
func (s *Service) Verify(ctx context.Context, limit int) (VerifyResult, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx, `
		select id::text, account_id::text, bucket, amount, entry_type, ref, sequence,
		       encode(prev_hash, 'hex'), encode(hash, 'hex')
		from ledger_entries
		order by sequence asc
		limit $1
	`, limit)
	if err != nil {
		return VerifyResult{}, err
	}
	defer rows.Close()
	res := VerifyResult{Valid: true}
	w := newChainWalker()
	for rows.Next() {
		var (
			e      chainEntry
			bucket string
			kind   string
		)
		if err := rows.Scan(&e.id, &e.accountID, &bucket, &e.amount, &kind, &e.ref, &e.seq, &e.prev, &e.hash); err != nil {
			return res, err
		}
		e.bucket, e.entryType = types.Bucket(bucket), types.LedgerEntryType(kind)
		res.Checked++
		if !w.accept(e) {
			res.Valid = false
			res.BrokenAt = &e.seq
			return res, nil
		}
	}
	return res, rows.Err()
}

type chainEntry struct {
	id, accountID string
	bucket        types.Bucket
	amount        decimal.Decimal
	entryType     types.LedgerEntryType
	ref           string
	seq           int64
	prev, hash    *string
}

// chainWalker tracks the tail hash of each account seen so far.
type chainWalker struct {
	tails map[string]*string
}

func newChainWalker() *chainWalker {
	return &chainWalker{tails: map[string]*string{}}
}

func (w *chainWalker) accept(e chainEntry) bool {
	if !samePtr(e.prev, w.tails[e.accountID]) || e.hash == nil {
		return false
	}
	if *e.hash != computeHash(e.id, e.accountID, e.bucket, e.amount, e.entryType, e.ref, e.seq, e.prev) {
		return false
	}
	w.tails[e.accountID] = e.hash
	return true
}

func computeHash(entryID, accountID string, bucket types.Bucket, amount decimal.Decimal, entryType types.LedgerEntryType, ref string, seq int64, prevHash *string) string {
	buf := entryID + "|" + accountID + "|" + string(bucket) + "|" + amount.Round(8).String() + "|" + string(entryType) + "|" + ref + "|" + strconv.FormatInt(seq, 10) + "|"
	if prevHash != nil {
		buf += *prevHash
	}
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
