package pipeline

import (
	"sort"
	"strings"

	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/reconcile"
)

// TypeStats holds totals for one expense type.
type TypeStats struct {
	ExpenseType string
	Expenses    int
	Totals      model.BudgetTotals
}

// AggregateTypes groups views by expense type and totals each group,
// sorted by spend descending.
func AggregateTypes(p reconcile.Policy, views []model.ExpenseView) []TypeStats {
	groups := make(map[string][]model.ExpenseView)
	for _, v := range views {
		key := strings.TrimSpace(v.ExpenseType)
		if key == "" {
			key = "(untyped)"
		}
		groups[key] = append(groups[key], v)
	}

	out := make([]TypeStats, 0, len(groups))
	for typ, vs := range groups {
		out = append(out, TypeStats{
			ExpenseType: typ,
			Expenses:    len(vs),
			Totals:      p.Aggregate(vs),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Totals.TotalSpent != out[j].Totals.TotalSpent {
			return out[i].Totals.TotalSpent > out[j].Totals.TotalSpent
		}
		return out[i].ExpenseType < out[j].ExpenseType
	})
	return out
}

// FilterByStatus returns views with the given status.
func FilterByStatus(views []model.ExpenseView, status model.Status) []model.ExpenseView {
	var result []model.ExpenseView
	for _, v := range views {
		if v.Status == status {
			result = append(result, v)
		}
	}
	return result
}

// FilterByType returns views whose expense type contains substr, ignoring case.
func FilterByType(views []model.ExpenseView, substr string) []model.ExpenseView {
	if substr == "" {
		return views
	}
	var result []model.ExpenseView
	for _, v := range views {
		if containsIgnoreCase(v.ExpenseType, substr) {
			result = append(result, v)
		}
	}
	return result
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SortKey selects the ordering of SortViews.
type SortKey string

const (
	SortIndex     SortKey = "index"
	SortSpent     SortKey = "spent"
	SortApproved  SortKey = "approved"
	SortRemaining SortKey = "remaining"
	SortPercent   SortKey = "percent"
)

// SortViews orders views in place. Index is ascending, everything else
// descending, with ties broken by index.
func SortViews(views []model.ExpenseView, key SortKey) {
	less := func(i, j int) bool { return views[i].Index < views[j].Index }
	desc := func(a, b uint64, i, j int) bool {
		if a != b {
			return a > b
		}
		return less(i, j)
	}

	switch key {
	case SortSpent:
		sort.SliceStable(views, func(i, j int) bool { return desc(views[i].ActualSpent, views[j].ActualSpent, i, j) })
	case SortApproved:
		sort.SliceStable(views, func(i, j int) bool { return desc(views[i].ApprovedAmount, views[j].ApprovedAmount, i, j) })
	case SortRemaining:
		sort.SliceStable(views, func(i, j int) bool {
			return desc(views[i].RemainingBalance, views[j].RemainingBalance, i, j)
		})
	case SortPercent:
		sort.SliceStable(views, func(i, j int) bool {
			c := views[i].SpentPercent().Cmp(views[j].SpentPercent())
			if c != 0 {
				return c > 0
			}
			return less(i, j)
		})
	default:
		sort.SliceStable(views, less)
	}
}
