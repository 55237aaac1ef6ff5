package txno

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"norvia-broker/internal/db"
	"norvia-broker/internal/db/dbtest"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func TestDBNextIsSequentialPerScopeAndDay(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	scope := "test-" + uuid.NewString()
	now := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)

	for i := int64(1); i <= 25; i++ {
		var no string
		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			var err error
			no, err = Next(ctx, tx, scope, now)
			return err
		})
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if want := Format(now, i); no != want {
			t.Fatalf("next %d = %s, want %s", i, no, want)
		}
	}

	var first string
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		var err error
		first, err = Next(ctx, tx, scope, now.Add(time.Minute))
		return err
	})
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if want := Format(now.Add(time.Minute), 1); first != want {
		t.Fatalf("new day starts at %s, want %s", first, want)
	}
}

func TestDBNextConcurrentCallersGetDistinctNumbers(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	scope := "test-" + uuid.NewString()
	now := time.Now().UTC()
	const callers = 8

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := pool.Begin(ctx)
			if err != nil {
				t.Errorf("begin: %v", err)
				return
			}
			defer tx.Rollback(ctx)
			no, err := Next(ctx, tx, scope, now)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			if err := tx.Commit(ctx); err != nil {
				t.Errorf("commit: %v", err)
				return
			}
			mu.Lock()
			got = append(got, no)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Strings(got)
	if len(got) != callers {
		t.Fatalf("got %d numbers", len(got))
	}
	for i, no := range got {
		if want := Format(now, int64(i+1)); no != want {
			t.Fatalf("numbers = %v", got)
		}
	}
}
