package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
)

var (
	flagAuthority string
	flagByType    bool
)

var budgetCmd = &cobra.Command{
	Use:   "budget <collection>",
	Short: "Load and reconcile a budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudget,
}

func init() {
	budgetCmd.Flags().StringVar(&flagAuthority, "authority", "", "Require the budget to belong to this authority")
	budgetCmd.Flags().BoolVarP(&flagByType, "by-type", "t", false, "Add a breakdown by expense type")
	rootCmd.AddCommand(budgetCmd)
}

func loadOptions() (pipeline.LoadOptions, error) {
	var opts pipeline.LoadOptions
	if flagAuthority != "" {
		a, err := parseAddressArg("authority", flagAuthority)
		if err != nil {
			return opts, err
		}
		opts.Authority = &a
	}
	return opts, nil
}

func runBudget(_ *cobra.Command, args []string) error {
	collection, err := parseAddressArg("collection", args[0])
	if err != nil {
		return err
	}
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rec, err := loadBudget(ctx, collection, opts)
	if err != nil {
		return err
	}
	r := rec.Report

	if flagJSON {
		return printJSON(struct {
			Report any             `json:"report"`
			Types  any             `json:"types"`
			Delta  *pipeline.Delta `json:"delta,omitempty"`
		}{r, pipeline.AggregateTypes(appCfg.Policy, r.Expenses), deltaOrNil(rec)})
	}

	fmt.Println()
	fmt.Print(cli.RenderBudgetSummary(r))
	fmt.Print(cli.RenderDelta(rec, time.Now()))
	fmt.Println()
	fmt.Print(cli.RenderExpenses(r.Expenses))
	if flagByType {
		fmt.Println()
		fmt.Print(cli.RenderTypes(pipeline.AggregateTypes(appCfg.Policy, r.Expenses)))
	}
	if len(r.Skipped) > 0 {
		fmt.Println()
		fmt.Print(cli.RenderSkipped(r.Skipped))
	}
	fmt.Println()
	return nil
}

func deltaOrNil(rec *pipeline.RecordedLoad) *pipeline.Delta {
	if rec.Previous == nil {
		return nil
	}
	return &rec.Delta
}
