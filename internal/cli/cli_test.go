package cli

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/reconcile"
	"github.com/theirongolddev/budgetscope/internal/store"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{math.MaxUint64, "18,446,744,073,709,551,615"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "-1,234", FormatNumber(-1234))
	assert.Equal(t, "12", FormatNumber(12))
	assert.Equal(t, "-9,223,372,036,854,775,808", FormatNumber(math.MinInt64))
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{999, "999"},
		{1234, "1.2K"},
		{1_500_000, "1.5M"},
		{2_000_000_000, "2.0B"},
		{math.MaxUint64, "18446744.1T"},
	}
	for _, tt := range tests {
		if got := FormatCompact(tt.in); got != tt.want {
			t.Errorf("FormatCompact(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+0", FormatDelta(decimal.Zero))
	assert.Equal(t, "+2,500", FormatDelta(decimal.NewFromInt(2500)))
	assert.Equal(t, "-1,234", FormatDelta(decimal.NewFromInt(-1234)))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", FormatAge(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h 30m ago", FormatAge(now.Add(-150*time.Minute), now))
	assert.Equal(t, "1d 2h ago", FormatAge(now.Add(-26*time.Hour), now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Travel", Truncate("Travel", 10))
	assert.Equal(t, "Trav…", Truncate("Travelling", 5))
	assert.Equal(t, "…", Truncate("Travel", 1))
	assert.Equal(t, "Ünïc…", Truncate("Ünïcödé", 5))
}

func TestThemeByName(t *testing.T) {
	th, ok := ThemeByName("terminal")
	assert.True(t, ok)
	assert.Equal(t, "terminal", th.Name)

	th, ok = ThemeByName("nope")
	assert.False(t, ok)
	assert.Equal(t, FlexokiDark.Name, th.Name)

	assert.Contains(t, ThemeNames(), "catppuccin-mocha")

	SetTheme("tokyo-night")
	assert.Equal(t, "tokyo-night", Active.Name)
	SetTheme(FlexokiDark.Name)
}

func TestRenderTable_Aligned(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Name", "Amount"},
		Rows: [][]string{
			{"short", "1"},
			{"---"},
			{"a much longer name", "1,000,000"},
		},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 7)
	w := lipgloss.Width(lines[0])
	for i, l := range lines {
		assert.Equal(t, w, lipgloss.Width(l), "line %d: %q", i, l)
	}
	assert.Contains(t, out, "a much longer name")
	assert.True(t, strings.HasPrefix(lines[0], "╭"))
}

func TestRenderTable_Empty(t *testing.T) {
	assert.Equal(t, "", RenderTable(Table{}))
}

func TestRenderSparkline(t *testing.T) {
	assert.Equal(t, "", RenderSparkline(nil))
	assert.Equal(t, "▁▄█", RenderSparkline([]uint64{0, 7, 14}))
	assert.Equal(t, "▁▁", RenderSparkline([]uint64{5, 5}))
	assert.Equal(t, "▁█", RenderSparkline([]uint64{0, math.MaxUint64}))
}

func TestSpendBar_Width(t *testing.T) {
	for _, tc := range []struct{ spent, approved uint64 }{{0, 0}, {50, 100}, {500, 100}} {
		bar := SpendBar(tc.spent, tc.approved, model.StatusNormal, 10)
		assert.Equal(t, 10, lipgloss.Width(bar))
	}
}

func sampleViews() []model.ExpenseView {
	return []model.ExpenseView{
		{Index: 0, ExpenseType: "Travel", ApprovedAmount: 1000, ActualSpent: 100, RemainingBalance: 900, MaxAllowed: 1150},
		{Index: 1, ExpenseType: "Ops", ApprovedAmount: 500, ActualSpent: 400, RemainingBalance: 100, MaxAllowed: 500,
			Status: model.StatusWarning, AmountSource: model.AmountExternal},
		{Index: 2, ExpenseType: "Gear", ApprovedAmount: 100, ActualSpent: 120, MaxAllowed: 110, Overage: 20,
			Status: model.StatusOverBudget, BalanceSource: model.BalanceOnRecord},
	}
}

func TestRenderExpenses(t *testing.T) {
	out := RenderExpenses(sampleViews())
	assert.Contains(t, out, "Travel")
	assert.Contains(t, out, "1,000")
	assert.Contains(t, out, "WARNING")
	assert.Contains(t, out, "OVER")
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "Ops *")
	assert.Contains(t, out, "~0")
	assert.Contains(t, out, "Headroom")

	var travel string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Travel") {
			travel = line
		}
	}
	assert.Contains(t, travel, "1,150")
	assert.Contains(t, travel, "1,050", "headroom is max allowed minus spent")

	assert.Contains(t, RenderExpenses(nil), "no expenses")
}

func TestRenderBudgetSummary(t *testing.T) {
	views := sampleViews()
	r := &model.BudgetReport{
		Budget:   model.BudgetRecord{Year: 2025, ExpenseCount: 4},
		Expenses: views,
		Totals:   reconcile.Aggregate(views),
		Skipped:  []model.SkippedRecord{{Index: 3, Reason: pipeline.ReasonNotFound}},
	}
	out := RenderBudgetSummary(r)
	assert.Contains(t, out, "BUDGET 2025")
	assert.Contains(t, out, "3 reconciled / 4 created")
	assert.Contains(t, out, "1,600")
	assert.Contains(t, out, "Overage")
	assert.Contains(t, out, "1 warning")
	assert.Contains(t, out, "1 over budget")
	assert.Contains(t, out, "1 skipped")

	assert.Contains(t, RenderSkipped(r.Skipped), "not_found")
}

func TestRenderTypes(t *testing.T) {
	stats := pipeline.AggregateTypes(reconcile.DefaultPolicy, sampleViews())
	out := RenderTypes(stats)
	assert.Contains(t, out, "By Type")
	assert.Contains(t, out, "Gear")
	assert.Equal(t, "", RenderTypes(nil))
}

func TestRenderHistoryAndDelta(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snaps := []store.Snapshot{
		{TakenAt: now.Add(-time.Hour), ExpenseCount: 3, Totals: model.BudgetTotals{TotalSpent: 300, TotalApproved: 1000}},
		{TakenAt: now.Add(-2 * time.Hour), ExpenseCount: 2, Totals: model.BudgetTotals{TotalSpent: 100, TotalApproved: 900}},
	}
	out := RenderHistory(snaps, now)
	assert.Contains(t, out, "1h 0m ago")
	assert.Contains(t, out, "▁█")
	assert.Contains(t, RenderHistory(nil, now), "no snapshots")

	rec := &pipeline.RecordedLoad{
		Previous: &snaps[0],
		Delta:    pipeline.Diff(snaps[1], snaps[0]),
	}
	d := RenderDelta(rec, now)
	assert.Contains(t, d, "spent +200")
	assert.Contains(t, d, "+1 expenses")

	rec.Delta = pipeline.Delta{}
	assert.Contains(t, RenderDelta(rec, now), "no change")
	assert.Equal(t, "", RenderDelta(&pipeline.RecordedLoad{}, now))
}
