package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/ledger"
	"github.com/theirongolddev/budgetscope/internal/ledger/ledgertest"
	"github.com/theirongolddev/budgetscope/internal/metadata"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/store"
)

func fill(b byte) address.Address {
	var a address.Address
	for i := range a {
		a[i] = b
	}
	return a
}

type fixture struct {
	mem        *ledger.Memory
	prog       *ledgertest.Program
	authority  address.Address
	collection address.Address
	mints      []address.Address
	expenses   []address.Address
}

type expenseSeed struct {
	typ      string
	approved uint64
	variance uint8
	spent    uint64
}

func newFixture(t testing.TB, seeds ...expenseSeed) *fixture {
	t.Helper()
	f := &fixture{
		mem:        ledger.NewMemory(),
		authority:  fill(1),
		collection: fill(2),
	}
	f.prog = ledgertest.NewProgram(f.mem, address.BudgetProgram)

	_, err := f.prog.CreateBudget(f.authority, f.collection, 2025)
	require.NoError(t, err)

	for i, s := range seeds {
		mint := fill(byte(10 + i))
		addr, idx, err := f.prog.CreateExpense(f.authority, f.collection, ledgertest.NewExpense{
			Mint:           mint,
			Name:           "expense",
			ExpenseType:    s.typ,
			ApprovedAmount: s.approved,
			VariancePct:    s.variance,
		})
		require.NoError(t, err)
		require.Equal(t, uint32(i), idx)
		if s.spent > 0 {
			require.NoError(t, f.prog.Spend(f.collection, idx, s.spent))
		}
		f.mints = append(f.mints, mint)
		f.expenses = append(f.expenses, addr)
	}
	return f
}

func (f *fixture) loader(opts ...Option) *Loader {
	return NewLoader(f.prog.Deriver(), f.mem, opts...)
}

func standardFixture(t testing.TB) *fixture {
	return newFixture(t,
		expenseSeed{typ: "Travel", approved: 1000, variance: 10},
		expenseSeed{typ: "Travel", approved: 500, variance: 10, spent: 400},
		expenseSeed{typ: "Ops", approved: 200, spent: 50},
	)
}

func TestLoadBudget_AllReconciled(t *testing.T) {
	f := standardFixture(t)

	r, err := f.loader(WithWorkers(2)).LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)

	assert.True(t, r.Complete())
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, uint16(2025), r.Budget.Year)
	require.Len(t, r.Expenses, 3)
	for i, v := range r.Expenses {
		assert.Equal(t, uint32(i), v.Index)
		assert.Equal(t, f.expenses[i], v.Address)
		assert.Equal(t, model.BalanceLive, v.BalanceSource)
	}

	assert.Equal(t, model.StatusNormal, r.Expenses[0].Status)
	assert.Equal(t, model.StatusWarning, r.Expenses[1].Status)
	assert.Equal(t, uint64(400), r.Expenses[1].ActualSpent)
	assert.Equal(t, uint64(550), r.Expenses[1].MaxAllowed)

	assert.Equal(t, model.BudgetTotals{
		TotalApproved:  1700,
		TotalSpent:     450,
		TotalRemaining: 1250,
		Reconciled:     3,
		Warnings:       1,
	}, r.Totals)
}

func TestLoadBudget_SkipsWithoutAborting(t *testing.T) {
	f := newFixture(t,
		expenseSeed{typ: "A", approved: 100},
		expenseSeed{typ: "B", approved: 100},
		expenseSeed{typ: "C", approved: 100},
		expenseSeed{typ: "D", approved: 100, spent: 10},
	)

	// 0: missing account
	f.mem.DeleteAccount(f.expenses[0])
	// 1: truncated record
	raw, err := f.mem.GetRawAccount(context.Background(), f.expenses[1])
	require.NoError(t, err)
	f.mem.PutAccount(f.expenses[1], raw[:40])
	// 2: record claiming a different budget
	foreign, err := codec.EncodeExpense(model.ExpenseRecord{Budget: fill(99), ExpenseType: "C", ApprovedAmount: 100})
	require.NoError(t, err)
	f.mem.PutAccount(f.expenses[2], foreign)

	r, err := f.loader().LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	assert.False(t, r.Complete())

	require.Len(t, r.Expenses, 1)
	assert.Equal(t, uint32(3), r.Expenses[0].Index)
	assert.Equal(t, uint64(10), r.Totals.TotalSpent)

	require.Len(t, r.Skipped, 3)
	assert.Equal(t, ReasonNotFound, r.Skipped[0].Reason)
	assert.True(t, errors.Is(r.Skipped[0].Err, ErrRecordUnavailable))
	assert.True(t, errors.Is(r.Skipped[0].Err, ledger.ErrNotFound))
	assert.NotEmpty(t, r.Skipped[0].Detail)

	assert.Equal(t, ReasonDecode, r.Skipped[1].Reason)
	assert.True(t, errors.Is(r.Skipped[1].Err, codec.ErrTruncatedRecord))

	assert.Equal(t, ReasonBudgetMismatch, r.Skipped[2].Reason)
	assert.True(t, errors.Is(r.Skipped[2].Err, ErrRecordUnavailable))
	assert.Equal(t, f.expenses[2], r.Skipped[2].Address)
}

func TestLoadBudget_StaleFallback(t *testing.T) {
	f := newFixture(t, expenseSeed{typ: "Ops", approved: 1000, spent: 300})
	ata, _, err := address.AssociatedTokenAddress(f.expenses[0], f.mints[0])
	require.NoError(t, err)
	f.mem.DeleteBalance(ata)

	r, err := f.loader().LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, r.Expenses, 1)

	v := r.Expenses[0]
	assert.Equal(t, model.BalanceOnRecord, v.BalanceSource)
	assert.Equal(t, uint64(300), v.ActualSpent)
	assert.Equal(t, uint64(700), v.RemainingBalance)
	assert.Equal(t, 1, r.Totals.Stale)
}

func TestLoadBudget_ExternalAmountWins(t *testing.T) {
	f := newFixture(t,
		expenseSeed{typ: "Travel", approved: 1000},
		expenseSeed{typ: "Ops", approved: 1000},
	)
	resolver := metadata.Static{f.mints[0]: 2000}

	r, err := f.loader(WithResolver(resolver)).LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, r.Expenses, 2)

	assert.Equal(t, model.AmountExternal, r.Expenses[0].AmountSource)
	assert.Equal(t, uint64(2000), r.Expenses[0].ApprovedAmount)
	assert.Equal(t, uint64(1000), r.Expenses[0].ActualSpent)

	assert.Equal(t, model.AmountOnRecord, r.Expenses[1].AmountSource, "unresolvable amounts fall back")
	assert.Equal(t, uint64(0), r.Expenses[1].ActualSpent)
}

func TestLoadBudget_AuthorityFilter(t *testing.T) {
	f := standardFixture(t)
	l := f.loader()

	other := fill(42)
	_, err := l.LoadBudget(context.Background(), f.collection, LoadOptions{Authority: &other})
	require.ErrorIs(t, err, ErrAuthorityMismatch)

	_, err = l.LoadBudget(context.Background(), f.collection, LoadOptions{Authority: &f.authority})
	require.NoError(t, err)
}

func TestLoadBudget_BudgetErrorsAreFatal(t *testing.T) {
	f := standardFixture(t)

	_, err := f.loader().LoadBudget(context.Background(), fill(77), LoadOptions{})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.loader(WithMaxExpenses(2)).LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.ErrorIs(t, err, ErrTooManyExpenses)
}

func TestLoadBudget_Canceled(t *testing.T) {
	f := standardFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.loader().LoadBudget(ctx, f.collection, LoadOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadBudget_ProgressAndWorkerIndependence(t *testing.T) {
	seeds := make([]expenseSeed, 25)
	for i := range seeds {
		seeds[i] = expenseSeed{typ: "T", approved: uint64(100 + i), variance: uint8(i), spent: uint64(i * 3)}
	}
	f := newFixture(t, seeds...)

	var calls, last atomic.Int64
	serial, err := f.loader(WithWorkers(1), WithProgress(func(cur, total int) {
		calls.Add(1)
		if cur == total {
			last.Store(int64(cur))
		}
	})).LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), calls.Load())
	assert.Equal(t, int64(25), last.Load())

	parallel, err := f.loader(WithWorkers(16)).LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, serial.Totals, parallel.Totals)
	assert.Equal(t, serial.Expenses, parallel.Expenses)
}

func TestLoadAndRecord(t *testing.T) {
	f := newFixture(t, expenseSeed{typ: "Ops", approved: 1000})
	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	l := f.loader()
	first, err := l.LoadAndRecord(context.Background(), f.collection, LoadOptions{}, cache)
	require.NoError(t, err)
	assert.Nil(t, first.Previous)
	assert.True(t, first.Delta.IsZero())

	require.NoError(t, f.prog.Spend(f.collection, 0, 250))
	_, _, err = f.prog.CreateExpense(f.authority, f.collection, ledgertest.NewExpense{
		Mint: fill(50), ExpenseType: "New", ApprovedAmount: 10,
	})
	require.NoError(t, err)

	second, err := l.LoadAndRecord(context.Background(), f.collection, LoadOptions{}, cache)
	require.NoError(t, err)
	require.NotNil(t, second.Previous)
	assert.Equal(t, first.Report.RunID, second.Previous.RunID)
	assert.Equal(t, "250", second.Delta.Spent.String())
	assert.Equal(t, "10", second.Delta.Approved.String())
	assert.Equal(t, "-240", second.Delta.Remaining.String())
	assert.Equal(t, int64(1), second.Delta.NewExpenses)

	snaps, err := cache.Snapshots(second.Report.Address, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	noStore, err := l.LoadAndRecord(context.Background(), f.collection, LoadOptions{}, nil)
	require.NoError(t, err)
	assert.Nil(t, noStore.Previous)
}

func TestLoadBudget_StrictCodecSkipsUnknownRecords(t *testing.T) {
	f := newFixture(t,
		expenseSeed{typ: "Travel", approved: 1000},
		expenseSeed{typ: "Ops", approved: 500},
	)
	raw, err := f.mem.GetRawAccount(context.Background(), f.expenses[1])
	require.NoError(t, err)
	f.mem.PutAccount(f.expenses[1], codec.Rediscriminate(raw, "LegacyExpense"))

	lenient, err := f.loader().LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	assert.Len(t, lenient.Expenses, 2, "raw layout tier reads the relabeled record")

	strict, err := f.loader(WithCodec(codec.New(codec.WithoutRawFallback()))).
		LoadBudget(context.Background(), f.collection, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, strict.Expenses, 1)
	require.Len(t, strict.Skipped, 1)
	assert.Equal(t, ReasonDecode, strict.Skipped[0].Reason)
	assert.ErrorIs(t, strict.Skipped[0].Err, codec.ErrUnknownDiscriminator)
}
