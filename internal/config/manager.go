package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	mu         sync.RWMutex
	configPath string
	config     *Config
	viper      *viper.Viper
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("TABLEWISE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.readConfigFile(); err != nil {
		return err
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.viper == nil {
		return m.Load(ctx)
	}
	if err := m.readConfigFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// readConfigFile reads the YAML file. A missing file is not an error;
// defaults and environment variables still apply.
func (m *viperConfigManager) readConfigFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// setDefaults sets default values in viper. Every key needs a default so
// AutomaticEnv can override it.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.requests_per_second", defaults.Server.RequestsPerSecond)
	m.viper.SetDefault("server.burst", defaults.Server.Burst)
	m.viper.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	m.viper.SetDefault("audit.enabled", defaults.Audit.Enabled)
	m.viper.SetDefault("audit.file", defaults.Audit.File)
	m.viper.SetDefault("audit.buffer_size", defaults.Audit.BufferSize)
	m.viper.SetDefault("audit.flush_interval", defaults.Audit.FlushInterval)

	m.viper.SetDefault("database.enabled", defaults.Database.Enabled)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("forecast.sequence_length", defaults.Forecast.SequenceLength)
	m.viper.SetDefault("forecast.ar_lags", defaults.Forecast.ARLags)
	m.viper.SetDefault("forecast.differencing", defaults.Forecast.Differencing)
	m.viper.SetDefault("forecast.sequential_weight", defaults.Forecast.SequentialWeight)
	m.viper.SetDefault("forecast.autoregressive_weight", defaults.Forecast.AutoregressiveWeight)
	m.viper.SetDefault("forecast.default_horizon", defaults.Forecast.DefaultHorizon)
	m.viper.SetDefault("forecast.max_horizon", defaults.Forecast.MaxHorizon)
	m.viper.SetDefault("forecast.seed", defaults.Forecast.Seed)
	m.viper.SetDefault("forecast.max_concurrency", defaults.Forecast.MaxConcurrency)
	m.viper.SetDefault("forecast.cache_size", defaults.Forecast.CacheSize)
	m.viper.SetDefault("forecast.cache_ttl_seconds", defaults.Forecast.CacheTTLSeconds)

	m.viper.SetDefault("churn.window_days", defaults.Churn.WindowDays)
	m.viper.SetDefault("churn.max_concurrency", defaults.Churn.MaxConcurrency)

	m.viper.SetDefault("inventory.lead_time_days", defaults.Inventory.LeadTimeDays)
	m.viper.SetDefault("inventory.safety_stock_multiplier", defaults.Inventory.SafetyStockMultiplier)
	m.viper.SetDefault("inventory.holding_cost_rate", defaults.Inventory.HoldingCostRate)
	m.viper.SetDefault("inventory.history_days", defaults.Inventory.HistoryDays)
	m.viper.SetDefault("inventory.default_ordering_cost", defaults.Inventory.DefaultOrderingCost)

	m.viper.SetDefault("automation.handler_timeout_seconds", defaults.Automation.HandlerTimeoutSeconds)
	m.viper.SetDefault("automation.approval_ttl_hours", defaults.Automation.ApprovalTTLHours)
	m.viper.SetDefault("automation.log_capacity", defaults.Automation.LogCapacity)
	m.viper.SetDefault("automation.max_pending_approvals", defaults.Automation.MaxPendingApprovals)
	m.viper.SetDefault("automation.auto_exec_per_minute", defaults.Automation.AutoExecPerMinute)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RequestsPerSecond = m.viper.GetFloat64("server.requests_per_second")
	cfg.Server.Burst = m.viper.GetInt("server.burst")
	cfg.Server.ShutdownTimeout = m.viper.GetInt("server.shutdown_timeout")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Audit
	cfg.Audit.Enabled = m.viper.GetBool("audit.enabled")
	cfg.Audit.File = m.viper.GetString("audit.file")
	cfg.Audit.BufferSize = m.viper.GetInt("audit.buffer_size")
	cfg.Audit.FlushInterval = m.viper.GetInt("audit.flush_interval")

	// Database
	cfg.Database.Enabled = m.viper.GetBool("database.enabled")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Forecast
	cfg.Forecast.SequenceLength = m.viper.GetInt("forecast.sequence_length")
	cfg.Forecast.ARLags = m.viper.GetInt("forecast.ar_lags")
	cfg.Forecast.Differencing = m.viper.GetInt("forecast.differencing")
	cfg.Forecast.SequentialWeight = m.viper.GetFloat64("forecast.sequential_weight")
	cfg.Forecast.AutoregressiveWeight = m.viper.GetFloat64("forecast.autoregressive_weight")
	cfg.Forecast.DefaultHorizon = m.viper.GetInt("forecast.default_horizon")
	cfg.Forecast.MaxHorizon = m.viper.GetInt("forecast.max_horizon")
	cfg.Forecast.Seed = m.viper.GetUint64("forecast.seed")
	cfg.Forecast.MaxConcurrency = m.viper.GetInt("forecast.max_concurrency")
	cfg.Forecast.CacheSize = m.viper.GetInt("forecast.cache_size")
	cfg.Forecast.CacheTTLSeconds = m.viper.GetInt("forecast.cache_ttl_seconds")

	// Churn
	cfg.Churn.WindowDays = m.viper.GetInt("churn.window_days")
	cfg.Churn.MaxConcurrency = m.viper.GetInt("churn.max_concurrency")

	// Inventory
	cfg.Inventory.LeadTimeDays = m.viper.GetFloat64("inventory.lead_time_days")
	cfg.Inventory.SafetyStockMultiplier = m.viper.GetFloat64("inventory.safety_stock_multiplier")
	cfg.Inventory.HoldingCostRate = m.viper.GetFloat64("inventory.holding_cost_rate")
	cfg.Inventory.HistoryDays = m.viper.GetInt("inventory.history_days")
	cfg.Inventory.DefaultOrderingCost = m.viper.GetFloat64("inventory.default_ordering_cost")

	// Automation
	cfg.Automation.HandlerTimeoutSeconds = m.viper.GetInt("automation.handler_timeout_seconds")
	cfg.Automation.ApprovalTTLHours = m.viper.GetInt("automation.approval_ttl_hours")
	cfg.Automation.LogCapacity = m.viper.GetInt("automation.log_capacity")
	cfg.Automation.MaxPendingApprovals = m.viper.GetInt("automation.max_pending_approvals")
	cfg.Automation.AutoExecPerMinute = m.viper.GetInt("automation.auto_exec_per_minute")
	if err := m.viper.UnmarshalKey("automation.rules", &cfg.Automation.Rules); err != nil {
		return fmt.Errorf("automation.rules: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}
