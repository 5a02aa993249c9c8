package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RequestsPerSecond = 20
	cfg.Server.Burst = 40
	cfg.Server.ShutdownTimeout = 15

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30

	// Audit defaults
	cfg.Audit.Enabled = false
	cfg.Audit.File = "/var/log/tablewise/audit.log"
	cfg.Audit.BufferSize = 100
	cfg.Audit.FlushInterval = 5

	// Database defaults
	cfg.Database.Enabled = false
	cfg.Database.SQLitePath = "/var/lib/tablewise/insights.db"

	// Forecast defaults
	cfg.Forecast.SequenceLength = 7
	cfg.Forecast.ARLags = 2
	cfg.Forecast.Differencing = 1
	cfg.Forecast.SequentialWeight = 0.6
	cfg.Forecast.AutoregressiveWeight = 0.4
	cfg.Forecast.DefaultHorizon = 90
	cfg.Forecast.MaxHorizon = 365
	cfg.Forecast.Seed = 42
	cfg.Forecast.MaxConcurrency = 4
	cfg.Forecast.CacheSize = 256
	cfg.Forecast.CacheTTLSeconds = 300

	// Churn defaults
	cfg.Churn.WindowDays = 90
	cfg.Churn.MaxConcurrency = 8

	// Inventory defaults
	cfg.Inventory.LeadTimeDays = 3
	cfg.Inventory.SafetyStockMultiplier = 1.5
	cfg.Inventory.HoldingCostRate = 0.25
	cfg.Inventory.HistoryDays = 90
	cfg.Inventory.DefaultOrderingCost = 50

	// Automation defaults. An empty rule list means the built-in table.
	cfg.Automation.HandlerTimeoutSeconds = 10
	cfg.Automation.ApprovalTTLHours = 24
	cfg.Automation.LogCapacity = 1000
	cfg.Automation.MaxPendingApprovals = 10000
	cfg.Automation.AutoExecPerMinute = 30
	cfg.Automation.Rules = nil

	return cfg
}
