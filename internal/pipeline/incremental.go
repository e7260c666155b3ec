package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/store"
)

// SnapshotStore persists load summaries between runs.
type SnapshotStore interface {
	SaveSnapshot(s store.Snapshot) error
	Snapshots(budget address.Address, limit int) ([]store.Snapshot, error)
}

// Delta is the change in budget totals between two loads.
type Delta struct {
	Approved    decimal.Decimal `json:"approved"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	NewExpenses int64           `json:"new_expenses"`
}

// IsZero reports whether nothing changed.
func (d Delta) IsZero() bool {
	return d.Approved.IsZero() && d.Spent.IsZero() && d.Remaining.IsZero() && d.NewExpenses == 0
}

// Diff computes cur minus prev.
func Diff(prev, cur store.Snapshot) Delta {
	sub := func(a, b uint64) decimal.Decimal {
		return decimal.NewFromUint64(a).Sub(decimal.NewFromUint64(b))
	}
	return Delta{
		Approved:    sub(cur.Totals.TotalApproved, prev.Totals.TotalApproved),
		Spent:       sub(cur.Totals.TotalSpent, prev.Totals.TotalSpent),
		Remaining:   sub(cur.Totals.TotalRemaining, prev.Totals.TotalRemaining),
		NewExpenses: int64(cur.ExpenseCount) - int64(prev.ExpenseCount),
	}
}

// RecordedLoad is a report together with its change since the previous
// recorded load of the same budget.
type RecordedLoad struct {
	Report   *model.BudgetReport
	Snapshot store.Snapshot
	Previous *store.Snapshot
	Delta    Delta
}

// LoadAndRecord loads the budget and appends a snapshot to st. Snapshot
// store failures are logged and do not fail the load.
func (l *Loader) LoadAndRecord(ctx context.Context, collection address.Address, opts LoadOptions, st SnapshotStore) (*RecordedLoad, error) {
	report, err := l.LoadBudget(ctx, collection, opts)
	if err != nil {
		return nil, err
	}

	out := &RecordedLoad{
		Report:   report,
		Snapshot: store.NewSnapshot(report.RunID, report, report.LoadedAt),
	}
	if st == nil {
		return out, nil
	}

	log := l.log.With(zap.String("run_id", report.RunID))
	prev, err := st.Snapshots(report.Address, 1)
	if err != nil {
		log.Warn("reading previous snapshot failed", zap.Error(err))
	} else if len(prev) > 0 {
		out.Previous = &prev[0]
		out.Delta = Diff(prev[0], out.Snapshot)
	}

	if err := st.SaveSnapshot(out.Snapshot); err != nil {
		log.Warn("saving snapshot failed", zap.Error(err))
	}
	return out, nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "budgetscope")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "budgetscope")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "cache.db")
}
