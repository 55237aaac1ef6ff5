package positions

import (
	"context"
	"errors"

	"norvia-broker/internal/types"
)

// MarkRefresher keeps current_price of open crypto positions in step with the price feed.
// Other asset classes are marked by an admin through MarkPrice.
type MarkRefresher struct {
	svc *Service
}

func NewMarkRefresher(svc *Service) *MarkRefresher {
	return &MarkRefresher{svc: svc}
}

func (m *MarkRefresher) Name() string { return "marks" }

// RunOnce refreshes every open symbol. One failing symbol does not stop the others;
// the returned count is the number of positions re-marked.
func (m *MarkRefresher) RunOnce(ctx context.Context) (int, error) {
	if m.svc.prices == nil {
		return 0, nil
	}
	symbols, err := openSymbols(ctx, m.svc.pool, types.AssetCrypto)
	if err != nil {
		return 0, err
	}
	var (
		total int
		errs  []error
	)
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		_, n, err := m.svc.RefreshMark(ctx, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += int(n)
	}
	return total, errors.Join(errs...)
}
