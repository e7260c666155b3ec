// Package pipeline loads a budget and reconciles its expenses concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/ledger"
	"github.com/theirongolddev/budgetscope/internal/metadata"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/reconcile"
)

// DefaultMaxExpenses caps how many expenses a single load enumerates.
const DefaultMaxExpenses = 1 << 16

var (
	// ErrRecordUnavailable marks an expense that could not be fetched or
	// did not belong to the budget. It is reported per record.
	ErrRecordUnavailable = errors.New("pipeline: record unavailable")
	// ErrAuthorityMismatch is returned when the budget belongs to another authority.
	ErrAuthorityMismatch = errors.New("pipeline: budget authority mismatch")
	// ErrTooManyExpenses is returned when expenseCount exceeds the configured cap.
	ErrTooManyExpenses = errors.New("pipeline: expense count exceeds limit")
)

// Skip reasons reported in model.SkippedRecord.
const (
	ReasonNotFound       = "not_found"
	ReasonFetch          = "fetch_failed"
	ReasonDecode         = "decode_failed"
	ReasonDerive         = "derive_failed"
	ReasonBudgetMismatch = "budget_mismatch"
)

// ProgressFunc is called as each expense finishes.
// current is the number of expenses processed so far, total is the expense count.
type ProgressFunc func(current, total int)

// Loader enumerates and reconciles the expenses of a budget. It is safe for
// concurrent use; each LoadBudget call gets its own run id.
type Loader struct {
	deriver     *address.Deriver
	reader      ledger.BalanceReader
	codec       *codec.Codec
	resolver    metadata.Resolver
	policy      reconcile.Policy
	workers     int
	maxExpenses uint32
	log         *zap.Logger
	progress    ProgressFunc
	now         func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithResolver sets the source of external approved amounts.
// Without one, on-record amounts are used.
func WithResolver(r metadata.Resolver) Option {
	return func(l *Loader) { l.resolver = r }
}

// WithPolicy sets the reconciliation thresholds.
func WithPolicy(p reconcile.Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithWorkers bounds the number of concurrent expense fetches.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithCodec replaces the record codec.
func WithCodec(c *codec.Codec) Option {
	return func(l *Loader) {
		if c != nil {
			l.codec = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithProgress registers a progress callback. It may be called concurrently.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) { l.progress = fn }
}

// WithMaxExpenses caps the expense count a load accepts.
func WithMaxExpenses(n uint32) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxExpenses = n
		}
	}
}

// NewLoader creates a loader deriving addresses with deriver and reading
// accounts through reader.
func NewLoader(deriver *address.Deriver, reader ledger.BalanceReader, opts ...Option) *Loader {
	l := &Loader{
		deriver:     deriver,
		reader:      reader,
		codec:       codec.New(),
		policy:      reconcile.DefaultPolicy,
		workers:     runtime.GOMAXPROCS(0) * 4,
		maxExpenses: DefaultMaxExpenses,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Policy returns the reconciliation policy in use.
func (l *Loader) Policy() reconcile.Policy {
	return l.policy
}

// LoadOptions narrows a single load.
type LoadOptions struct {
	// Authority, when set, must match the budget's authority.
	Authority *address.Address
}

// LoadBudget fetches the budget of collection and reconciles every expense.
// Expenses that cannot be resolved are reported in Skipped; only failures
// on the budget itself, or cancellation, return an error.
func (l *Loader) LoadBudget(ctx context.Context, collection address.Address, opts LoadOptions) (*model.BudgetReport, error) {
	runID := uuid.NewString()
	log := l.log.With(zap.String("run_id", runID), zap.Stringer("collection", collection))

	budgetAddr, bump, err := l.deriver.Budget(collection)
	if err != nil {
		return nil, fmt.Errorf("deriving budget address: %w", err)
	}
	raw, err := l.reader.GetRawAccount(ctx, budgetAddr)
	if err != nil {
		return nil, fmt.Errorf("fetching budget %s: %w", budgetAddr, err)
	}
	budget, tier, err := l.codec.DecodeBudget(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding budget %s: %w", budgetAddr, err)
	}
	if tier != codec.TierStructured {
		log.Info("budget decoded by fallback tier", zap.Stringer("tier", tier))
	}
	if budget.Bump != bump {
		log.Warn("budget bump mismatch", zap.Uint8("stored", budget.Bump), zap.Uint8("derived", bump))
	}
	if budget.Collection != collection {
		log.Warn("budget collection mismatch", zap.Stringer("stored", budget.Collection))
	}
	if opts.Authority != nil && budget.Authority != *opts.Authority {
		return nil, fmt.Errorf("%w: budget %s belongs to %s", ErrAuthorityMismatch, budgetAddr, budget.Authority)
	}
	if budget.ExpenseCount > l.maxExpenses {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyExpenses, budget.ExpenseCount, l.maxExpenses)
	}

	report := &model.BudgetReport{
		RunID:    runID,
		LoadedAt: l.now(),
		Address:  budgetAddr,
		Budget:   budget,
	}

	n := int(budget.ExpenseCount)
	slots := make([]expenseResult, n)
	var processed atomic.Int64

	var g errgroup.Group
	g.SetLimit(l.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i] = l.loadExpense(ctx, log, collection, budgetAddr, uint32(i))
			if l.progress != nil {
				l.progress(int(processed.Add(1)), n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, s := range slots {
		if s.skipped != nil {
			report.Skipped = append(report.Skipped, *s.skipped)
			continue
		}
		s.view.Index = uint32(i)
		report.Expenses = append(report.Expenses, s.view)
	}
	report.Totals = l.policy.Aggregate(report.Expenses)

	log.Info("budget loaded",
		zap.Uint32("expenses", budget.ExpenseCount),
		zap.Int("reconciled", len(report.Expenses)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

type expenseResult struct {
	view    model.ExpenseView
	skipped *model.SkippedRecord
}

func (l *Loader) loadExpense(ctx context.Context, log *zap.Logger, collection, budgetAddr address.Address, index uint32) expenseResult {
	log = log.With(zap.Uint32("index", index))

	addr, bump, err := l.deriver.Expense(collection, index)
	if err != nil {
		return skip(log, index, addr, ReasonDerive, err)
	}
	log = log.With(zap.Stringer("address", addr))

	raw, err := l.reader.GetRawAccount(ctx, addr)
	if err != nil {
		reason := ReasonFetch
		if errors.Is(err, ledger.ErrNotFound) {
			reason = ReasonNotFound
		}
		return skip(log, index, addr, reason, fmt.Errorf("%w: %w", ErrRecordUnavailable, err))
	}

	rec, tier, err := l.codec.DecodeExpense(raw)
	if err != nil {
		return skip(log, index, addr, ReasonDecode, err)
	}
	if tier != codec.TierStructured {
		log.Debug("expense decoded by fallback tier", zap.Stringer("tier", tier))
	}
	if rec.Budget != budgetAddr {
		return skip(log, index, addr, ReasonBudgetMismatch,
			fmt.Errorf("%w: expense points at budget %s", ErrRecordUnavailable, rec.Budget))
	}
	if rec.Bump != bump {
		log.Warn("expense bump mismatch", zap.Uint8("stored", rec.Bump), zap.Uint8("derived", bump))
	}

	var external *uint64
	if l.resolver != nil {
		amt, err := l.resolver.ApprovedAmount(ctx, rec)
		if err == nil {
			external = &amt
		} else {
			log.Debug("external approved amount unavailable, using on-record", zap.Error(err))
		}
	}

	var view model.ExpenseView
	balance, err := l.liveBalance(ctx, addr, rec.Mint)
	if err != nil {
		log.Warn("live balance unavailable, using on-record spend", zap.Error(err))
		view = l.policy.ReconcileStale(rec, external)
	} else {
		view = l.policy.Reconcile(rec, external, balance)
	}
	view.Index = index
	view.Address = addr

	if view.Suspicious {
		log.Warn("implausible spend reading clamped to zero",
			zap.Uint64("approved", view.ApprovedAmount))
	}
	return expenseResult{view: view}
}

// liveBalance reads the token balance held by the expense's associated token account.
func (l *Loader) liveBalance(ctx context.Context, expense, mint address.Address) (uint64, error) {
	ata, _, err := address.AssociatedTokenAddress(expense, mint)
	if err != nil {
		return 0, err
	}
	return l.reader.GetTokenBalance(ctx, ata)
}

func skip(log *zap.Logger, index uint32, addr address.Address, reason string, err error) expenseResult {
	log.Warn("expense skipped", zap.String("reason", reason), zap.Error(err))
	return expenseResult{skipped: &model.SkippedRecord{
		Index:   index,
		Address: addr,
		Reason:  reason,
		Detail:  err.Error(),
		Err:     err,
	}}
}
