package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"
)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDocuments(t *testing.T) {
	c := openTest(t)

	_, ok, err := c.GetDocument("ipfs://missing", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutDocument(Document{URI: "ipfs://a", ApprovedAmount: math.MaxUint64}))
	doc, ok, err := c.GetDocument("ipfs://a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), doc.ApprovedAmount)

	require.NoError(t, c.PutDocument(Document{URI: "ipfs://a", ApprovedAmount: 7}))
	doc, _, _ = c.GetDocument("ipfs://a", 0)
	assert.Equal(t, uint64(7), doc.ApprovedAmount)

	n, err := c.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.DeleteDocument("ipfs://a"))
	_, ok, _ = c.GetDocument("ipfs://a", 0)
	assert.False(t, ok)
}

func TestDocuments_Expired(t *testing.T) {
	c := openTest(t)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, c.PutDocument(Document{URI: "u", ApprovedAmount: 1, FetchedAt: old}))

	doc, ok, err := c.GetDocument("u", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), doc.ApprovedAmount, "expired entries are still returned")

	_, ok, _ = c.GetDocument("u", 0)
	assert.True(t, ok)
}

func TestSnapshots(t *testing.T) {
	c := openTest(t)
	budget := address.MustParse("So11111111111111111111111111111111111111112")
	other := address.TokenProgram
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.SaveSnapshot(Snapshot{
			RunID:        "run",
			Budget:       budget,
			Collection:   other,
			TakenAt:      base.Add(time.Duration(i) * time.Hour),
			ExpenseCount: uint32(i),
			Totals: model.BudgetTotals{
				TotalApproved: math.MaxUint64,
				TotalSpent:    uint64(i * 100),
				Reconciled:    i,
			},
			Skipped: 1,
		}))
	}
	require.NoError(t, c.SaveSnapshot(Snapshot{RunID: "x", Budget: other, Collection: other, TakenAt: base}))

	got, err := c.Snapshots(budget, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint32(2), got[0].ExpenseCount, "newest first")
	assert.Equal(t, uint64(200), got[0].Totals.TotalSpent)
	assert.Equal(t, uint64(math.MaxUint64), got[0].Totals.TotalApproved)
	assert.Equal(t, other, got[0].Collection)
	assert.True(t, got[0].TakenAt.Equal(base.Add(2*time.Hour)))

	got, err = c.Snapshots(budget, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	n, err := c.PruneSnapshots(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, _ = c.Snapshots(budget, 0)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(2), got[0].ExpenseCount)
	got, _ = c.Snapshots(other, 0)
	assert.Len(t, got, 1)
}

func TestNewSnapshot(t *testing.T) {
	r := &model.BudgetReport{
		Budget:  model.BudgetRecord{ExpenseCount: 4},
		Totals:  model.BudgetTotals{TotalApproved: 10},
		Skipped: []model.SkippedRecord{{Index: 2}},
	}
	s := NewSnapshot("id", r, time.Unix(0, 0))
	assert.Equal(t, uint32(4), s.ExpenseCount)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, uint64(10), s.Totals.TotalApproved)
}
