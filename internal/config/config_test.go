package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise-insights/internal/automation"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test server defaults
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	// Test logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Logging.File)

	// Test analytics defaults
	assert.Equal(t, 0.6, cfg.Forecast.SequentialWeight)
	assert.Equal(t, 0.4, cfg.Forecast.AutoregressiveWeight)
	assert.Equal(t, uint64(42), cfg.Forecast.Seed)
	assert.Equal(t, 365, cfg.Forecast.MaxHorizon)
	assert.Equal(t, 90, cfg.Churn.WindowDays)
	assert.Equal(t, 3.0, cfg.Inventory.LeadTimeDays)

	// Test automation defaults
	assert.Equal(t, 10, cfg.Automation.HandlerTimeoutSeconds)
	assert.Equal(t, 24, cfg.Automation.ApprovalTTLHours)
	assert.Equal(t, 1000, cfg.Automation.LogCapacity)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name:      "invalid port - too low",
			modifyFn:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name:      "invalid port - too high",
			modifyFn:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name:      "max horizon below default horizon",
			modifyFn:  func(cfg *Config) { cfg.Forecast.MaxHorizon = 30 },
			wantError: true,
			errorMsg:  "max_horizon must be at least default_horizon",
		},
		{
			name:      "invalid log level",
			modifyFn:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name:      "invalid log format",
			modifyFn:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "audit enabled without file",
			modifyFn: func(cfg *Config) {
				cfg.Audit.Enabled = true
				cfg.Audit.File = ""
			},
			wantError: true,
			errorMsg:  "file is required",
		},
		{
			name: "database enabled without path",
			modifyFn: func(cfg *Config) {
				cfg.Database.Enabled = true
				cfg.Database.SQLitePath = ""
			},
			wantError: true,
			errorMsg:  "sqlite_path is required",
		},
		{
			name:      "negative ensemble weight",
			modifyFn:  func(cfg *Config) { cfg.Forecast.SequentialWeight = -1 },
			wantError: true,
			errorMsg:  "ensemble weights cannot be negative",
		},
		{
			name:      "zero handler timeout",
			modifyFn:  func(cfg *Config) { cfg.Automation.HandlerTimeoutSeconds = 0 },
			wantError: true,
			errorMsg:  "handler timeout must be at least 1 second",
		},
		{
			name: "unknown rule action",
			modifyFn: func(cfg *Config) {
				cfg.Automation.Rules = []RuleConfig{{Category: "churn", Action: "send_fax"}}
			},
			wantError: true,
			errorMsg:  `unknown action "send_fax"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			if !tt.wantError {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			found := false
			for _, err := range errs {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				if strings.Contains(vErr.Error(), tt.errorMsg) {
					found = true
				}
			}
			assert.True(t, found, "expected error containing %q, got %v", tt.errorMsg, errs)
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  allowed_origins: ["https://dash.example.com"]

logging:
  level: "debug"
  format: "text"

forecast:
  seed: 7
  sequential_weight: 0.5
  autoregressive_weight: 0.5

automation:
  handler_timeout_seconds: 3
  rules:
    - category: inventory
      action: place_order
      auto_execute: true
    - category: inventory
      action: emergency_order
      requires_approval: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	require.NoError(t, mgr.Validate(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, uint64(7), cfg.Forecast.Seed)
	assert.Equal(t, 0.5, cfg.Forecast.SequentialWeight)
	assert.Equal(t, 3, cfg.Automation.HandlerTimeoutSeconds)
	// untouched keys keep their defaults
	assert.Equal(t, 90, cfg.Churn.WindowDays)

	require.Len(t, cfg.Automation.Rules, 2)
	assert.Equal(t, RuleConfig{Category: "inventory", Action: "place_order", AutoExecute: true}, cfg.Automation.Rules[0])

	table, err := cfg.RuleTable()
	require.NoError(t, err)
	r, ok := table.Lookup(automation.CategoryInventory, automation.ActionEmergencyOrder)
	require.True(t, ok)
	assert.True(t, r.RequiresApproval)
	_, ok = table.Lookup(automation.CategoryChurn, automation.ActionCreateTask)
	assert.False(t, ok)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("TABLEWISE_SERVER_PORT", "7070")
	t.Setenv("TABLEWISE_LOGGING_LEVEL", "warn")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
server:
  port: 8081
logging:
  level: "info"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 7070, cfg.Server.Port, "port should be overridden by environment variable")
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestConfigManagerMissingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nonexistent-config.yaml")

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, 8090, cfg.Server.Port)

	table, err := cfg.RuleTable()
	require.NoError(t, err)
	assert.Len(t, table.Rules(), len(automation.DefaultRules()))
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
server:
  port: 99999
logging:
  level: "loud"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestConfigManagerReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("churn:\n  window_days: 60\n"), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 60, mgr.Get(ctx).Churn.WindowDays)

	require.NoError(t, os.WriteFile(configPath, []byte("churn:\n  window_days: 30\n"), 0644))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 30, mgr.Get(ctx).Churn.WindowDays)
}
