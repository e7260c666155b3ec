package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/store"
)

var (
	flagHistoryLimit int
	flagHistoryPrune int
)

var historyCmd = &cobra.Command{
	Use:   "history <collection>",
	Short: "Show recorded snapshots of a budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "l", 20, "Number of snapshots to show (0 = all)")
	historyCmd.Flags().IntVar(&flagHistoryPrune, "prune", 0, "Keep only the newest N snapshots of every budget")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, args []string) error {
	if !appCfg.Pipeline.UseCache {
		return errors.New("history is read from the cache, which is disabled")
	}
	collection, err := parseAddressArg("collection", args[0])
	if err != nil {
		return err
	}
	d, err := programDeriver()
	if err != nil {
		return err
	}
	budget, _, err := d.Budget(collection)
	if err != nil {
		return err
	}

	cache, err := store.Open(pipeline.CachePath())
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if flagHistoryPrune > 0 {
		n, err := cache.PruneSnapshots(flagHistoryPrune)
		if err != nil {
			return err
		}
		if !flagQuiet && !flagJSON {
			fmt.Printf("  Pruned %d snapshots\n", n)
		}
	}

	snaps, err := cache.Snapshots(budget, flagHistoryLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(snaps)
	}

	fmt.Println()
	fmt.Print(cli.RenderHistory(snaps, time.Now()))
	fmt.Println()
	return nil
}
