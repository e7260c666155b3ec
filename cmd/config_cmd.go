package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/config"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	if flagJSON {
		return printJSON(cfg)
	}

	fmt.Printf("  Config file: %s\n", config.Path())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [Ledger]")
	rpcURL, err := config.RPCURL(cfg)
	if err != nil {
		fmt.Printf("    RPC endpoint: %v\n", err)
	} else {
		fmt.Printf("    RPC endpoint: %s\n", rpcURL)
	}
	fmt.Printf("    Cluster:      %s\n", cfg.Ledger.Cluster)
	if programID, err := config.ProgramID(cfg); err == nil {
		fmt.Printf("    Program:      %s\n", programID)
	}
	fmt.Printf("    Commitment:   %s\n", cfg.Ledger.Commitment)
	fmt.Printf("    Timeout:      %s\n", cfg.Ledger.Timeout)
	fmt.Println()

	fmt.Println("  [Metadata]")
	fmt.Printf("    Enabled:   %v\n", cfg.Metadata.Enabled)
	fmt.Printf("    Gateway:   %s\n", cfg.Metadata.IPFSGateway)
	fmt.Printf("    Cache TTL: %s\n", cfg.Metadata.CacheTTL)
	fmt.Println()

	fmt.Println("  [Policy]")
	fmt.Printf("    Warning at:          %d%%\n", cfg.Policy.WarningPct)
	if cfg.Policy.ImplausibleMultiplier == 0 {
		fmt.Println("    Implausible reading: check disabled")
	} else {
		fmt.Printf("    Implausible reading: > %dx approved\n", cfg.Policy.ImplausibleMultiplier)
	}
	fmt.Println()

	fmt.Println("  [Pipeline]")
	fmt.Printf("    Workers: %d\n", cfg.Pipeline.Workers)
	if cfg.Pipeline.UseCache {
		fmt.Printf("    Cache:   %s\n", pipeline.CachePath())
		if cache, err := store.Open(pipeline.CachePath()); err == nil {
			if n, err := cache.DocumentCount(); err == nil {
				fmt.Printf("    Cached documents: %d\n", n)
			}
			_ = cache.Close()
		}
	} else {
		fmt.Println("    Cache:   disabled")
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:  %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Interval: %s\n", cfg.Daemon.Interval)
	if len(cfg.Daemon.Budgets) > 0 {
		fmt.Printf("    Budgets:  %s\n", strings.Join(cfg.Daemon.Budgets, ", "))
	} else {
		fmt.Println("    Budgets:  none")
	}
	fmt.Println()

	fmt.Println("  Run `budgetscope setup` to reconfigure.")
	return nil
}
