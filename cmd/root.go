// Package cmd implements the budgetscope CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/cli"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/config"
	"github.com/theirongolddev/budgetscope/internal/ledger"
	"github.com/theirongolddev/budgetscope/internal/logging"
	"github.com/theirongolddev/budgetscope/internal/metadata"
	"github.com/theirongolddev/budgetscope/internal/pipeline"
	"github.com/theirongolddev/budgetscope/internal/store"
)

var (
	flagRPC      string
	flagCluster  string
	flagProgram  string
	flagWorkers  int
	flagNoCache  bool
	flagQuiet    bool
	flagLogLevel string
	flagJSON     bool
	flagStrict   bool
)

// Loaded by the root command before any subcommand runs.
var (
	appCfg config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "budgetscope",
	Short:         "On-ledger budget reconciliation CLI",
	Long:          "Load NFT-anchored budgets from a Solana cluster and reconcile approved amounts against live spend.",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd.Flags().Changed, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		appCfg = cfg
		cli.SetTheme(cfg.Appearance.Theme)

		logger, _, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRPC, "rpc", "", "RPC endpoint URL (overrides cluster)")
	pf.StringVarP(&flagCluster, "cluster", "c", "", "Cluster preset: mainnet, devnet, localnet")
	pf.StringVar(&flagProgram, "program", "", "Budget program id")
	pf.IntVarP(&flagWorkers, "workers", "w", 0, "Concurrent expense fetches")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip the SQLite cache (no metadata cache, no snapshots)")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flagJSON, "json", false, "Emit JSON instead of tables")
	pf.BoolVar(&flagStrict, "strict", false, "Reject records whose discriminator is not recognized")
}

// applyFlags overlays explicitly set global flags onto cfg.
func applyFlags(changed func(name string) bool, cfg *config.Config) {
	if changed("cluster") {
		cfg.Ledger.Cluster = flagCluster
		cfg.Ledger.RPCURL = ""
	}
	if changed("rpc") {
		cfg.Ledger.RPCURL = flagRPC
	}
	if changed("program") {
		cfg.Ledger.ProgramID = flagProgram
	}
	if changed("workers") {
		cfg.Pipeline.Workers = flagWorkers
	}
	if flagNoCache {
		cfg.Pipeline.UseCache = false
	}
	if changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
}

// session bundles the collaborators a command needs. Close releases them.
type session struct {
	client  *ledger.Client
	deriver *address.Deriver
	cache   *store.Cache
}

func openSession() (*session, error) {
	rpcURL, err := config.RPCURL(appCfg)
	if err != nil {
		return nil, err
	}
	programID, err := config.ProgramID(appCfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		client: ledger.NewClient(rpcURL,
			ledger.WithCommitment(appCfg.Ledger.Commitment),
			ledger.WithTimeout(appCfg.Ledger.Timeout.Duration),
		),
		deriver: address.NewDeriver(programID),
	}
	logger.Debug("session opened", zap.String("rpc", rpcURL), zap.Stringer("program", programID))

	if appCfg.Pipeline.UseCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			// the cache only saves work; run without it
			logger.Warn("cache unavailable", zap.Error(err))
		} else {
			s.cache = cache
		}
	}
	return s, nil
}

func (s *session) Close() {
	_ = s.client.Close()
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

// snapshotStore returns the cache as a snapshot store, or nil when caching is off.
func (s *session) snapshotStore() pipeline.SnapshotStore {
	if s.cache == nil {
		return nil
	}
	return s.cache
}

func (s *session) resolver() metadata.Resolver {
	if !appCfg.Metadata.Enabled {
		return nil
	}
	opts := []metadata.Option{
		metadata.WithGateway(appCfg.Metadata.IPFSGateway),
		metadata.WithTimeout(appCfg.Metadata.Timeout.Duration),
		metadata.WithLogger(logger),
	}
	if s.cache != nil {
		opts = append(opts, metadata.WithCache(s.cache, appCfg.Metadata.CacheTTL.Duration))
	}
	return metadata.NewHTTPResolver(s.client, opts...)
}

func (s *session) loader() *pipeline.Loader {
	opts := []pipeline.Option{
		pipeline.WithPolicy(appCfg.Policy),
		pipeline.WithWorkers(appCfg.Pipeline.Workers),
		pipeline.WithLogger(logger),
		pipeline.WithCodec(recordCodec()),
	}
	if r := s.resolver(); r != nil {
		opts = append(opts, pipeline.WithResolver(r))
	}
	if !flagQuiet && !flagJSON {
		opts = append(opts, pipeline.WithProgress(progressFn()))
	}
	return pipeline.NewLoader(s.deriver, s.client, opts...)
}

// recordCodec returns the codec, without the raw layout tier under --strict.
func recordCodec() *codec.Codec {
	if flagStrict {
		return codec.New(codec.WithoutRawFallback())
	}
	return codec.New()
}

// progressFn prints load progress to stderr. The loader may call it
// concurrently and out of order; counts at or below the highest seen are dropped.
func progressFn() pipeline.ProgressFunc {
	return progressWriter(os.Stderr)
}

func progressWriter(w io.Writer) pipeline.ProgressFunc {
	var (
		mu   sync.Mutex
		seen int
	)
	return func(current, total int) {
		mu.Lock()
		defer mu.Unlock()
		if current <= seen {
			return
		}
		seen = current
		if current%16 != 0 && current != total {
			return
		}
		fmt.Fprintf(w, "\r  Loading %s", cli.RenderProgressBar(current, total, 24))
		if current == total {
			fmt.Fprint(w, "\n")
		}
	}
}

// loadBudget is the shared load path of the budget-reading commands. It
// records a snapshot when the cache is available.
func loadBudget(ctx context.Context, collection address.Address, opts pipeline.LoadOptions) (*pipeline.RecordedLoad, error) {
	s, err := openSession()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if !flagQuiet && !flagJSON {
		fmt.Fprintf(os.Stderr, "  Loading budget for %s from %s\n", collection.Short(), s.client.Endpoint())
	}
	return s.loader().LoadAndRecord(ctx, collection, opts, s.snapshotStore())
}

func parseAddressArg(name, s string) (address.Address, error) {
	a, err := address.Parse(s)
	if err != nil {
		return address.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
