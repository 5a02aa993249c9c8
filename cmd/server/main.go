package main

// Package main is the entry point for the tablewise-insights server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and TABLEWISE_* environment variables
//   - Build the forecaster, churn scorer, inventory optimizer and automation engine
//   - Attach the optional audit file and SQLite history sinks
//   - Serve the REST API, Prometheus metrics and the WebSocket activity stream
//   - Shut down gracefully on SIGINT/SIGTERM
//
// Subcommands:
//   serve     run the server (default)
//   validate  load and validate configuration, then exit
//   rules     print the effective automation rule table

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablewise/tablewise-insights/internal/analytics/churn"
	"github.com/tablewise/tablewise-insights/internal/analytics/forecast"
	"github.com/tablewise/tablewise-insights/internal/analytics/inventory"
	"github.com/tablewise/tablewise-insights/internal/audit"
	"github.com/tablewise/tablewise-insights/internal/automation"
	"github.com/tablewise/tablewise-insights/internal/cache"
	"github.com/tablewise/tablewise-insights/internal/config"
	"github.com/tablewise/tablewise-insights/internal/db"
	"github.com/tablewise/tablewise-insights/internal/logging"
	"github.com/tablewise/tablewise-insights/internal/server"
)

const defaultConfigPath = "/etc/tablewise/config.yaml"

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the insights server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	root := &cobra.Command{
		Use:           "tablewise-insights",
		Short:         "Restaurant forecasting, churn, inventory and automation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "validate",
			Short: "Validate configuration and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := loadConfig(cmd.Context(), configPath); err != nil {
					return err
				}
				fmt.Fprintln(out, "configuration is valid")
				return nil
			},
		},
		&cobra.Command{
			Use:   "rules",
			Short: "Print the effective automation rules as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				rules, err := cfg.RuleTable()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rules.Rules())
			},
		},
	)
	return root
}

func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := config.NewConfigManager(path)
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, err
	}
	return mgr.Get(ctx), nil
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.NewLogger(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logCloser.Close()
	defer logger.Sync() //nolint:errcheck

	hub := server.NewHub(cfg.Server.AllowedOrigins, logger.Named("websocket"))
	sinks := []automation.Sink{hub}

	if cfg.Audit.Enabled {
		auditCfg := audit.DefaultConfig()
		auditCfg.AuditLogPath = cfg.Audit.File
		auditCfg.BufferSize = cfg.Audit.BufferSize
		auditCfg.FlushInterval = time.Duration(cfg.Audit.FlushInterval) * time.Second
		auditLog, err := audit.NewLogger(auditCfg, logger.Named("audit"))
		if err != nil {
			return fmt.Errorf("create audit logger: %w", err)
		}
		defer auditLog.Close()
		sinks = append(sinks, auditLog)
	}

	var store db.Store
	if cfg.Database.Enabled {
		store, err = db.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("open action history: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, db.NewSink(store))
	}

	rules, err := cfg.RuleTable()
	if err != nil {
		return err
	}
	engine, err := automation.NewEngine(rules, automation.SimulatedExecutors(), automation.Options{
		HandlerTimeout:      time.Duration(cfg.Automation.HandlerTimeoutSeconds) * time.Second,
		ApprovalTTL:         time.Duration(cfg.Automation.ApprovalTTLHours) * time.Hour,
		LogCapacity:         cfg.Automation.LogCapacity,
		MaxPendingApprovals: cfg.Automation.MaxPendingApprovals,
		AutoExecPerMinute:   cfg.Automation.AutoExecPerMinute,
	}, logger.Named("automation"), sinks...)
	if err != nil {
		return fmt.Errorf("create automation engine: %w", err)
	}
	defer engine.Close()

	forecasts := cache.New[*forecast.Result]("forecast", cfg.Forecast.CacheSize,
		time.Duration(cfg.Forecast.CacheTTLSeconds)*time.Second)

	srv, err := server.NewServer(cfg, server.Components{
		Forecaster: forecast.New(forecast.Options{
			SequenceLength:       cfg.Forecast.SequenceLength,
			ARLags:               cfg.Forecast.ARLags,
			Differencing:         cfg.Forecast.Differencing,
			SequentialWeight:     cfg.Forecast.SequentialWeight,
			AutoregressiveWeight: cfg.Forecast.AutoregressiveWeight,
			DefaultHorizon:       cfg.Forecast.DefaultHorizon,
			MaxHorizon:           cfg.Forecast.MaxHorizon,
			Seed:                 cfg.Forecast.Seed,
			MaxConcurrency:       cfg.Forecast.MaxConcurrency,
		}, logger.Named("forecast")),
		Scorer: churn.New(churn.Options{
			WindowDays:     cfg.Churn.WindowDays,
			MaxConcurrency: cfg.Churn.MaxConcurrency,
		}, logger.Named("churn")),
		Optimizer: inventory.New(inventory.Options{
			LeadTimeDays:          cfg.Inventory.LeadTimeDays,
			SafetyStockMultiplier: cfg.Inventory.SafetyStockMultiplier,
			HoldingCostRate:       cfg.Inventory.HoldingCostRate,
			HistoryDays:           cfg.Inventory.HistoryDays,
			DefaultOrderingCost:   cfg.Inventory.DefaultOrderingCost,
		}, logger.Named("inventory")),
		Engine:        engine,
		Store:         store,
		Hub:           hub,
		ForecastCache: forecasts,
	}, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
