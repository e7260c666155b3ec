package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/model"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
)

var (
	flagStatus string
	flagType   string
	flagSort   string
	flagLimit  int
)

var expensesCmd = &cobra.Command{
	Use:   "expenses <collection>",
	Short: "Per-expense reconciliation table",
	Args:  cobra.ExactArgs(1),
	RunE:  runExpenses,
}

func init() {
	expensesCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status: normal, warning, over_budget")
	expensesCmd.Flags().StringVar(&flagType, "type", "", "Filter by expense type (substring match)")
	expensesCmd.Flags().StringVar(&flagSort, "sort", "index", "Sort by: index, spent, approved, remaining, percent")
	expensesCmd.Flags().IntVarP(&flagLimit, "limit", "l", 0, "Show at most this many expenses")
	expensesCmd.Flags().StringVar(&flagAuthority, "authority", "", "Require the budget to belong to this authority")
	rootCmd.AddCommand(expensesCmd)
}

func runExpenses(_ *cobra.Command, args []string) error {
	collection, err := parseAddressArg("collection", args[0])
	if err != nil {
		return err
	}
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	var status *model.Status
	if flagStatus != "" {
		s, ok := model.ParseStatus(flagStatus)
		if !ok {
			return fmt.Errorf("unknown status %q", flagStatus)
		}
		status = &s
	}
	key := pipeline.SortKey(flagSort)
	switch key {
	case pipeline.SortIndex, pipeline.SortSpent, pipeline.SortApproved, pipeline.SortRemaining, pipeline.SortPercent:
	default:
		return fmt.Errorf("unknown sort key %q", flagSort)
	}

	ctx, cancel := signalContext()
	defer cancel()

	rec, err := loadBudget(ctx, collection, opts)
	if err != nil {
		return err
	}

	views := pipeline.FilterByType(rec.Report.Expenses, flagType)
	if status != nil {
		views = pipeline.FilterByStatus(views, *status)
	}
	pipeline.SortViews(views, key)
	if flagLimit > 0 && len(views) > flagLimit {
		views = views[:flagLimit]
	}

	if flagJSON {
		return printJSON(views)
	}

	fmt.Println()
	fmt.Print(cli.RenderExpenses(views))
	if n := len(rec.Report.Expenses) - len(views); n > 0 {
		fmt.Printf("  %d of %d expenses hidden by filters\n", n, len(rec.Report.Expenses))
	}
	fmt.Println()
	return nil
}
