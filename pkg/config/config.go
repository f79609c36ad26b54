// Package config provides configuration file support for the governance core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Ledger backend names.
const (
	LedgerJSONL  = "jsonl"
	LedgerSQLite = "sqlite"
)

// Resource store backend names.
const (
	StoreFS     = "fs"
	StoreBadger = "badger"
)

// Config represents the governance configuration stored at
// .mutgate/config.yaml under the governance root.
type Config struct {
	Ledger   LedgerConfig   `yaml:"ledger"`
	Store    StoreConfig    `yaml:"store"`
	Quota    QuotaConfig    `yaml:"quota"`
	Executor ExecutorConfig `yaml:"executor"`
	Webhooks []HookConfig   `yaml:"webhooks,omitempty"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LedgerConfig selects and tunes the audit ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // jsonl, sqlite
}

// StoreConfig selects the resource persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // fs, badger
}

// QuotaConfig sets the usage thresholds for admission control.
type QuotaConfig struct {
	SoftThreshold int64 `yaml:"soft_threshold"`
	HardLimit     int64 `yaml:"hard_limit"`
}

// ExecutorConfig tunes mutation execution.
type ExecutorConfig struct {
	RestoreRetries int `yaml:"restore_retries"`
}

// HookConfig is a single webhook destination.
type HookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"` // empty means all events
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{Backend: LedgerJSONL},
		Store:  StoreConfig{Backend: StoreFS},
		Quota: QuotaConfig{
			SoftThreshold: 80_000,
			HardLimit:     100_000,
		},
		Executor: ExecutorConfig{RestoreRetries: 3},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Path returns the config file location for a governance root.
func Path(root string) string {
	return filepath.Join(root, ".mutgate", "config.yaml")
}

// Load loads configuration from .mutgate/config.yaml.
// Returns default config if file doesn't exist. Environment variables
// MUTGATE_SOFT_THRESHOLD, MUTGATE_HARD_LIMIT, MUTGATE_LEDGER_BACKEND,
// MUTGATE_STORE_BACKEND and MUTGATE_LOG_LEVEL override file values.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to .mutgate/config.yaml.
func Save(root string, cfg *Config) error {
	cfgPath := Path(root)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case LedgerJSONL, LedgerSQLite:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Store.Backend {
	case StoreFS, StoreBadger:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Quota.HardLimit <= 0 {
		return fmt.Errorf("quota hard_limit must be positive, got %d", c.Quota.HardLimit)
	}
	if c.Quota.SoftThreshold < 0 || c.Quota.SoftThreshold > c.Quota.HardLimit {
		return fmt.Errorf("quota soft_threshold %d must be within [0, hard_limit %d]",
			c.Quota.SoftThreshold, c.Quota.HardLimit)
	}
	if c.Executor.RestoreRetries < 1 {
		return fmt.Errorf("executor restore_retries must be at least 1, got %d", c.Executor.RestoreRetries)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MUTGATE_SOFT_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.SoftThreshold = n
		}
	}
	if v := os.Getenv("MUTGATE_HARD_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.HardLimit = n
		}
	}
	if v := os.Getenv("MUTGATE_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("MUTGATE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("MUTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
