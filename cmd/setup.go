package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

type setupValues struct {
	cluster    string
	rpcURL     string
	programID  string
	warningPct string
	metadata   bool
	theme      string
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Start from the file, not from flag overrides.
	cfg, _ := config.Load()

	vals := setupValues{
		cluster:    cfg.Ledger.Cluster,
		rpcURL:     cfg.Ledger.RPCURL,
		programID:  cfg.Ledger.ProgramID,
		warningPct: strconv.FormatUint(cfg.Policy.WarningPct, 10),
		metadata:   cfg.Metadata.Enabled,
		theme:      cfg.Appearance.Theme,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Cluster").
				Description("RPC preset used when no custom endpoint is set.").
				Options(huh.NewOptions(config.ClusterNames()...)...).
				Value(&vals.cluster),
			huh.NewInput().
				Title("Custom RPC endpoint").
				Description("Leave blank to use the cluster preset.").
				Value(&vals.rpcURL).
				Validate(validateRPCURL),
			huh.NewInput().
				Title("Budget program id").
				Description("Leave blank for the deployed program " + address.BudgetProgram.Short() + ".").
				Value(&vals.programID).
				Validate(validateProgramID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Warning threshold (% of approved)").
				Value(&vals.warningPct).
				Validate(validateWarningPct),
			huh.NewConfirm().
				Title("Fetch approved amounts from NFT metadata?").
				Value(&vals.metadata),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(huh.NewOptions(cli.ThemeNames()...)...).
				Value(&vals.theme),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled, nothing saved.")
			return nil
		}
		return err
	}

	applySetup(&cfg, vals)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.Path())
	fmt.Println("  Run `budgetscope setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func applySetup(cfg *config.Config, v setupValues) {
	cfg.Ledger.Cluster = v.cluster
	cfg.Ledger.RPCURL = strings.TrimSpace(v.rpcURL)
	cfg.Ledger.ProgramID = strings.TrimSpace(v.programID)
	if pct, err := strconv.ParseUint(strings.TrimSpace(v.warningPct), 10, 64); err == nil {
		cfg.Policy.WarningPct = pct
	}
	cfg.Metadata.Enabled = v.metadata
	cfg.Appearance.Theme = v.theme
}

func validateRPCURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func validateProgramID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	_, err := address.Parse(s)
	return err
}

func validateWarningPct(s string) error {
	pct, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || pct < 1 || pct > 100 {
		return errors.New("must be a whole number from 1 to 100")
	}
	return nil
}
