package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/store"
)

const barWidth = 24

// RenderBudgetSummary renders the budget header and totals.
func RenderBudgetSummary(r *model.BudgetReport) string {
	var b strings.Builder
	b.WriteString(RenderTitle(fmt.Sprintf("BUDGET %d", r.Budget.Year)))
	b.WriteString("\n\n")

	t := r.Totals
	rows := [][]string{
		{"Budget", r.Address.String()},
		{"Collection", r.Budget.Collection.String()},
		{"Authority", r.Budget.Authority.String()},
		{"Expenses", fmt.Sprintf("%d reconciled / %d created", t.Reconciled, r.Budget.ExpenseCount)},
		{"---"},
		{"Approved", amountStyle.Render(FormatAmount(t.TotalApproved))},
		{"Spent", amountStyle.Render(FormatAmount(t.TotalSpent))},
		{"Remaining", amountStyle.Render(FormatAmount(t.TotalRemaining))},
	}
	if t.TotalOverage > 0 {
		rows = append(rows, []string{"Overage", errStyle.Render(FormatAmount(t.TotalOverage))})
	}
	status := model.StatusNormal
	switch {
	case t.OverBudget > 0:
		status = model.StatusOverBudget
	case t.Warnings > 0:
		status = model.StatusWarning
	}
	rows = append(rows, []string{"Used", SpendBar(t.TotalSpent, t.TotalApproved, status, barWidth) + " " + percentOf(t.TotalSpent, t.TotalApproved)})

	b.WriteString(RenderTable(Table{Rows: rows}))

	var flags []string
	if t.Warnings > 0 {
		flags = append(flags, warnStyle.Render(fmt.Sprintf("%d warning", t.Warnings)))
	}
	if t.OverBudget > 0 {
		flags = append(flags, errStyle.Render(fmt.Sprintf("%d over budget", t.OverBudget)))
	}
	if t.Suspicious > 0 {
		flags = append(flags, errStyle.Render(fmt.Sprintf("%d suspicious reading", t.Suspicious)))
	}
	if t.Stale > 0 {
		flags = append(flags, mutedStyle.Render(fmt.Sprintf("%d on-record balance", t.Stale)))
	}
	if len(r.Skipped) > 0 {
		flags = append(flags, warnStyle.Render(fmt.Sprintf("%d skipped", len(r.Skipped))))
	}
	if len(flags) > 0 {
		b.WriteString("  ")
		b.WriteString(strings.Join(flags, mutedStyle.Render(" · ")))
		b.WriteString("\n")
	}
	return b.String()
}

func percentOf(spent, approved uint64) string {
	return FormatPercent(model.ExpenseView{ActualSpent: spent, ApprovedAmount: approved}.SpentPercent())
}

// RenderExpenses renders one row per reconciled expense.
func RenderExpenses(views []model.ExpenseView) string {
	if len(views) == 0 {
		return mutedStyle.Render("  no expenses") + "\n"
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		typ := Truncate(v.ExpenseType, 24)
		if v.AmountSource == model.AmountExternal {
			typ += dimStyle.Render(" *")
		}
		remaining := FormatAmount(v.RemainingBalance)
		if v.BalanceSource == model.BalanceOnRecord {
			remaining = dimStyle.Render("~") + remaining
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(v.Index), 10),
			typ,
			FormatAmount(v.ApprovedAmount),
			FormatAmount(v.ActualSpent),
			remaining,
			FormatAmount(v.MaxAllowed),
			FormatAmount(v.HeadroomToMax()),
			SpendBar(v.ActualSpent, v.ApprovedAmount, v.Status, 12) + " " + FormatPercent(v.SpentPercent()),
			RenderStatus(v),
		})
	}

	out := RenderTable(Table{
		Title:   "Expenses",
		Headers: []string{"#", "Type", "Approved", "Spent", "Remaining", "Max", "Headroom", "Used", "Status"},
		Rows:    rows,
	})
	return out + dimStyle.Render("  * approved amount from metadata   ~ balance from record   ? implausible reading") + "\n"
}

// RenderTypes renders totals per expense type.
func RenderTypes(stats []pipeline.TypeStats) string {
	if len(stats) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			Truncate(s.ExpenseType, 24),
			strconv.Itoa(s.Expenses),
			FormatAmount(s.Totals.TotalApproved),
			FormatAmount(s.Totals.TotalSpent),
			FormatAmount(s.Totals.TotalRemaining),
			percentOf(s.Totals.TotalSpent, s.Totals.TotalApproved),
		})
	}
	return RenderTable(Table{
		Title:   "By Type",
		Headers: []string{"Type", "Count", "Approved", "Spent", "Remaining", "Used"},
		Rows:    rows,
	})
}

// RenderSkipped renders expenses that could not be reconciled.
func RenderSkipped(skipped []model.SkippedRecord) string {
	if len(skipped) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(skipped))
	for _, s := range skipped {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(s.Index), 10),
			FormatAddress(s.Address),
			warnStyle.Render(s.Reason),
		})
	}
	return RenderTable(Table{
		Title:   "Skipped",
		Headers: []string{"#", "Address", "Reason"},
		Rows:    rows,
	})
}

// RenderDelta renders the change since the previous recorded load.
func RenderDelta(rec *pipeline.RecordedLoad, now time.Time) string {
	if rec == nil || rec.Previous == nil {
		return ""
	}
	if rec.Delta.IsZero() {
		return mutedStyle.Render(fmt.Sprintf("  no change since %s", FormatAge(rec.Previous.TakenAt, now))) + "\n"
	}
	d := rec.Delta
	parts := []string{
		"spent " + FormatDelta(d.Spent),
		"approved " + FormatDelta(d.Approved),
		"remaining " + FormatDelta(d.Remaining),
	}
	if d.NewExpenses != 0 {
		parts = append(parts, fmt.Sprintf("%+d expenses", d.NewExpenses))
	}
	return fmt.Sprintf("  %s %s\n",
		mutedStyle.Render("since "+FormatAge(rec.Previous.TakenAt, now)+":"),
		valueStyle.Render(strings.Join(parts, ", ")))
}

// RenderHistory renders stored snapshots, newest first, with a spend sparkline.
func RenderHistory(snaps []store.Snapshot, now time.Time) string {
	if len(snaps) == 0 {
		return mutedStyle.Render("  no snapshots recorded") + "\n"
	}

	rows := make([][]string, 0, len(snaps))
	spent := make([]uint64, len(snaps))
	for i, s := range snaps {
		rows = append(rows, []string{
			s.TakenAt.Local().Format("2006-01-02 15:04"),
			FormatAge(s.TakenAt, now),
			strconv.FormatUint(uint64(s.ExpenseCount), 10),
			FormatAmount(s.Totals.TotalApproved),
			FormatAmount(s.Totals.TotalSpent),
			FormatAmount(s.Totals.TotalRemaining),
			strconv.Itoa(s.Totals.Warnings + s.Totals.OverBudget),
		})
		// oldest first for the sparkline
		spent[len(snaps)-1-i] = s.Totals.TotalSpent
	}

	var b strings.Builder
	b.WriteString(RenderTable(Table{
		Title:   "History",
		Headers: []string{"Taken", "Age", "Expenses", "Approved", "Spent", "Remaining", "Flags"},
		Rows:    rows,
	}))
	if len(snaps) > 1 {
		b.WriteString("  ")
		b.WriteString(mutedStyle.Render("spent "))
		b.WriteString(amountStyle.Render(RenderSparkline(spent)))
		b.WriteString("\n")
	}
	return b.String()
}
