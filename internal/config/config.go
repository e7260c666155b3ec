package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/reconcile"
)

// Environment overrides, applied over the config file.
const (
	EnvRPCURL    = "BUDGETSCOPE_RPC_URL"
	EnvProgramID = "BUDGETSCOPE_PROGRAM_ID"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config holds all budgetscope configuration.
type Config struct {
	Ledger     LedgerConfig     `toml:"ledger"`
	Metadata   MetadataConfig   `toml:"metadata"`
	Policy     reconcile.Policy `toml:"policy"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Log        LogConfig        `toml:"log"`
	Appearance AppearanceConfig `toml:"appearance"`
	Daemon     DaemonConfig     `toml:"daemon"`
}

// LedgerConfig selects the RPC endpoint and program.
type LedgerConfig struct {
	Cluster    string   `toml:"cluster"`
	RPCURL     string   `toml:"rpc_url,omitempty"`
	ProgramID  string   `toml:"program_id,omitempty"`
	Commitment string   `toml:"commitment"`
	Timeout    Duration `toml:"timeout"`
}

// MetadataConfig controls attribute document fetching.
type MetadataConfig struct {
	Enabled     bool     `toml:"enabled"`
	IPFSGateway string   `toml:"ipfs_gateway"`
	Timeout     Duration `toml:"timeout"`
	CacheTTL    Duration `toml:"cache_ttl"`
}

// PipelineConfig controls budget loading.
type PipelineConfig struct {
	Workers  int  `toml:"workers"`
	UseCache bool `toml:"use_cache"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DaemonConfig holds background polling settings.
type DaemonConfig struct {
	Addr     string   `toml:"addr"`
	Interval Duration `toml:"interval"`
	Budgets  []string `toml:"budgets,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Ledger: LedgerConfig{
			Cluster:    ClusterDevnet,
			Commitment: "confirmed",
			Timeout:    Duration{10 * time.Second},
		},
		Metadata: MetadataConfig{
			Enabled:     true,
			IPFSGateway: "https://ipfs.io/ipfs/",
			Timeout:     Duration{10 * time.Second},
			CacheTTL:    Duration{24 * time.Hour},
		},
		Policy: reconcile.DefaultPolicy,
		Pipeline: PipelineConfig{
			Workers:  8,
			UseCache: true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Daemon: DaemonConfig{
			Addr:     "127.0.0.1:8787",
			Interval: Duration{5 * time.Minute},
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "budgetscope")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "budgetscope")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

// RPCURL returns the RPC endpoint from env var, config, or cluster preset, in that order.
func RPCURL(cfg Config) (string, error) {
	if u := os.Getenv(EnvRPCURL); u != "" {
		return u, nil
	}
	if cfg.Ledger.RPCURL != "" {
		return cfg.Ledger.RPCURL, nil
	}
	c, ok := LookupCluster(cfg.Ledger.Cluster)
	if !ok {
		return "", fmt.Errorf("%w: unknown cluster %q", ErrInvalid, cfg.Ledger.Cluster)
	}
	return c.RPCURL, nil
}

// ProgramID returns the budget program id from env var or config,
// defaulting to the deployed program.
func ProgramID(cfg Config) (address.Address, error) {
	s := os.Getenv(EnvProgramID)
	if s == "" {
		s = cfg.Ledger.ProgramID
	}
	if s == "" {
		return address.BudgetProgram, nil
	}
	id, err := address.Parse(s)
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: program_id: %w", ErrInvalid, err)
	}
	return id, nil
}

// Validate checks values that would otherwise fail deep inside a load.
func (c Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1", ErrInvalid)
	}
	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: ledger.commitment %q", ErrInvalid, c.Ledger.Commitment)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	for _, b := range c.Daemon.Budgets {
		if _, err := address.Parse(b); err != nil {
			return fmt.Errorf("%w: daemon.budgets: %w", ErrInvalid, err)
		}
	}
	return nil
}
