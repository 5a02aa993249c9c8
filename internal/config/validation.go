package config

import (
	"fmt"
	"strings"

	"github.com/tablewise/tablewise-insights/internal/automation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestsPerSecond < 0 {
		add("server.requests_per_second", "requests_per_second cannot be negative, got %.2f", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
		add("server.burst", "burst must be at least 1 when rate limiting is enabled, got %d", c.Server.Burst)
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		add("logging.format", "invalid log format '%s', must be one of: json, text", c.Logging.Format)
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.File == "" {
			add("audit.file", "file is required when audit is enabled")
		}
		if c.Audit.BufferSize < 0 {
			add("audit.buffer_size", "buffer_size cannot be negative, got %d", c.Audit.BufferSize)
		}
	}

	// Database
	if c.Database.Enabled && c.Database.SQLitePath == "" {
		add("database.sqlite_path", "sqlite_path is required when the database is enabled")
	}

	// Forecast
	if c.Forecast.SequentialWeight < 0 || c.Forecast.AutoregressiveWeight < 0 {
		add("forecast.weights", "ensemble weights cannot be negative")
	}
	if c.Forecast.Differencing < 0 || c.Forecast.Differencing > 2 {
		add("forecast.differencing", "differencing must be 0, 1 or 2, got %d", c.Forecast.Differencing)
	}
	if c.Forecast.CacheSize < 0 {
		add("forecast.cache_size", "cache_size must not be negative, got %d", c.Forecast.CacheSize)
	}
	if c.Forecast.CacheSize > 0 && c.Forecast.CacheTTLSeconds < 1 {
		add("forecast.cache_ttl_seconds", "cache_ttl_seconds must be at least 1 when the cache is enabled, got %d", c.Forecast.CacheTTLSeconds)
	}
	if c.Forecast.DefaultHorizon < 1 {
		add("forecast.default_horizon", "default_horizon must be at least 1, got %d", c.Forecast.DefaultHorizon)
	}
	if c.Forecast.MaxHorizon < c.Forecast.DefaultHorizon {
		add("forecast.max_horizon", "max_horizon must be at least default_horizon (%d), got %d", c.Forecast.DefaultHorizon, c.Forecast.MaxHorizon)
	}

	// Churn
	if c.Churn.WindowDays < 1 {
		add("churn.window_days", "window_days must be at least 1, got %d", c.Churn.WindowDays)
	}

	// Inventory
	if c.Inventory.LeadTimeDays < 0 {
		add("inventory.lead_time_days", "lead_time_days cannot be negative, got %.2f", c.Inventory.LeadTimeDays)
	}
	if c.Inventory.HoldingCostRate < 0 {
		add("inventory.holding_cost_rate", "holding_cost_rate cannot be negative, got %.2f", c.Inventory.HoldingCostRate)
	}

	// Automation
	if c.Automation.HandlerTimeoutSeconds < 1 {
		add("automation.handler_timeout_seconds", "handler timeout must be at least 1 second, got %d", c.Automation.HandlerTimeoutSeconds)
	}
	if c.Automation.ApprovalTTLHours < 1 {
		add("automation.approval_ttl_hours", "approval TTL must be at least 1 hour, got %d", c.Automation.ApprovalTTLHours)
	}
	if c.Automation.LogCapacity < 1 {
		add("automation.log_capacity", "log_capacity must be at least 1, got %d", c.Automation.LogCapacity)
	}
	for i, r := range c.Automation.Rules {
		field := fmt.Sprintf("automation.rules[%d]", i)
		if r.Category == "" {
			add(field+".category", "category is required")
		}
		if _, err := automation.ParseActionKind(r.Action); err != nil {
			add(field+".action", "%v", err)
		}
	}

	return errs
}

// RuleTable builds the automation rule table. An empty rule list yields
// the built-in defaults.
func (c *Config) RuleTable() (*automation.RuleTable, error) {
	if len(c.Automation.Rules) == 0 {
		return automation.NewRuleTable(automation.DefaultRules())
	}
	rules := make([]automation.Rule, 0, len(c.Automation.Rules))
	for _, r := range c.Automation.Rules {
		rules = append(rules, automation.Rule{
			Category:         automation.Category(r.Category),
			Action:           automation.ActionKind(r.Action),
			AutoExecute:      r.AutoExecute,
			RequiresApproval: r.RequiresApproval,
		})
	}
	return automation.NewRuleTable(rules)
}
