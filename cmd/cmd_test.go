package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/config"
	"github.com/theirongolddev/budgetscope/internal/model"
)

func TestValidators(t *testing.T) {
	assert.NoError(t, validateRPCURL(""))
	assert.NoError(t, validateRPCURL("https://rpc.example.com"))
	assert.Error(t, validateRPCURL("ftp://rpc.example.com"))
	assert.Error(t, validateRPCURL("not a url"))

	assert.NoError(t, validateProgramID(""))
	assert.NoError(t, validateProgramID(address.BudgetProgram.String()))
	assert.Error(t, validateProgramID("0OIl"))

	assert.NoError(t, validateWarningPct("80"))
	assert.NoError(t, validateWarningPct(" 100 "))
	assert.Error(t, validateWarningPct("0"))
	assert.Error(t, validateWarningPct("101"))
	assert.Error(t, validateWarningPct("eighty"))
}

func TestApplySetup(t *testing.T) {
	cfg := config.DefaultConfig()
	applySetup(&cfg, setupValues{
		cluster:    config.ClusterMainnet,
		rpcURL:     " https://rpc.example.com ",
		warningPct: "75",
		metadata:   false,
		theme:      "terminal",
	})
	assert.Equal(t, config.ClusterMainnet, cfg.Ledger.Cluster)
	assert.Equal(t, "https://rpc.example.com", cfg.Ledger.RPCURL)
	assert.Equal(t, uint64(75), cfg.Policy.WarningPct)
	assert.False(t, cfg.Metadata.Enabled)
	assert.Equal(t, "terminal", cfg.Appearance.Theme)
	require.NoError(t, cfg.Validate())
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"daemon", "--detach", "--addr", ":9000", "--detach=true"})
	assert.Equal(t, []string{"daemon", "--addr", ":9000"}, got)
}

func TestDaemonCollections(t *testing.T) {
	a := address.TokenProgram.String()
	b := address.TokenMetadataProgram.String()

	appCfg = config.DefaultConfig()
	appCfg.Daemon.Budgets = []string{a}
	flagDaemonBudgets = []string{b, a}
	defer func() {
		appCfg = config.Config{}
		flagDaemonBudgets = nil
	}()

	got, err := daemonCollections()
	require.NoError(t, err)
	assert.Equal(t, []address.Address{address.TokenProgram, address.TokenMetadataProgram}, got)

	appCfg.Daemon.Budgets = nil
	flagDaemonBudgets = nil
	_, err = daemonCollections()
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ledger.RPCURL = "https://old.example.com"

	require.NoError(t, rootCmd.PersistentFlags().Set("cluster", "mainnet"))
	require.NoError(t, rootCmd.PersistentFlags().Set("workers", "3"))
	defer func() {
		flagCluster, flagWorkers = "", 0
		rootCmd.PersistentFlags().Lookup("cluster").Changed = false
		rootCmd.PersistentFlags().Lookup("workers").Changed = false
	}()

	applyFlags(rootCmd.PersistentFlags().Changed, &cfg)
	assert.Equal(t, "mainnet", cfg.Ledger.Cluster)
	assert.Empty(t, cfg.Ledger.RPCURL, "choosing a cluster drops the custom endpoint")
	assert.Equal(t, 3, cfg.Pipeline.Workers)
}

func TestRecordCodec_Strict(t *testing.T) {
	raw := codec.Rediscriminate(codec.EncodeBudget(model.BudgetRecord{Year: 2025}), "LegacyBudget")

	_, tier, err := recordCodec().DecodeBudget(raw)
	require.NoError(t, err)
	assert.Equal(t, codec.TierRaw, tier)

	flagStrict = true
	defer func() { flagStrict = false }()
	_, _, err = recordCodec().DecodeBudget(raw)
	assert.ErrorIs(t, err, codec.ErrUnknownDiscriminator)
}

func TestProgressWriter_DropsStaleCounts(t *testing.T) {
	var buf bytes.Buffer
	progress := progressWriter(&buf)

	progress(32, 32)
	progress(16, 32)
	progress(32, 32)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\n"), "nothing prints after the final line")
}
