package config

import "context"

// Package config provides configuration management for tablewise-insights.
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (TABLEWISE_* prefix, "." replaced by "_")
//   2. YAML config file (default: /etc/tablewise/config.yaml)
//   3. Built-in defaults
//
// Main Configuration Sections:
//
//   1. Server      - listen port, allowed websocket origins, per-client rate limit
//   2. Logging     - level, format, optional rotated log file
//   3. Audit       - optional rotated JSON audit file for automation events
//   4. Database    - SQLite action history
//   5. Forecast    - ensemble weights, model orders, seed
//   6. Churn       - scoring window and batch concurrency
//   7. Inventory   - lead time, safety stock, holding cost
//   8. Automation  - handler timeout, approval TTL, log capacity, rule table
//
// Config struct contains all configuration fields
type Config struct {
	Server struct {
		Port int
		// AllowedOrigins lists origins permitted to open WebSocket connections.
		// ["*"] allows any origin.
		AllowedOrigins    []string
		RequestsPerSecond float64
		Burst             int
		ShutdownTimeout   int // seconds
	}

	Logging struct {
		Level      string
		Format     string
		File       string // empty logs to stderr
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	Audit struct {
		Enabled       bool
		File          string
		BufferSize    int
		FlushInterval int // seconds
	}

	Database struct {
		Enabled    bool
		SQLitePath string
	}

	Forecast struct {
		SequenceLength       int
		ARLags               int
		Differencing         int
		SequentialWeight     float64
		AutoregressiveWeight float64
		DefaultHorizon       int
		MaxHorizon           int
		Seed                 uint64
		MaxConcurrency       int

		// CacheSize bounds memoized forecast results; 0 disables the cache.
		CacheSize       int
		CacheTTLSeconds int
	}

	Churn struct {
		WindowDays     int
		MaxConcurrency int
	}

	Inventory struct {
		LeadTimeDays          float64
		SafetyStockMultiplier float64
		HoldingCostRate       float64
		HistoryDays           int
		DefaultOrderingCost   float64
	}

	Automation struct {
		HandlerTimeoutSeconds int
		ApprovalTTLHours      int
		LogCapacity           int
		MaxPendingApprovals   int
		AutoExecPerMinute     int
		Rules                 []RuleConfig
	}
}

// RuleConfig is one (category, action) policy entry as written in YAML.
type RuleConfig struct {
	Category         string `mapstructure:"category" json:"category"`
	Action           string `mapstructure:"action" json:"action"`
	AutoExecute      bool   `mapstructure:"auto_execute" json:"autoExecute"`
	RequiresApproval bool   `mapstructure:"requires_approval" json:"requiresApproval"`
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Reload re-reads the config file.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}
	return mgr, nil
}
