// Command queueloss measures the financial cost of queueing at fixed-capacity
// service points and tracks the ROI of the actions it recommends.
//
// Usage:
//
//	queueloss ingest sample --from 2026-03-01 --to 2026-03-07 --out demo.csv
//	queueloss analyze --csv demo.csv --from 2026-03-01 --to 2026-03-07
//	queueloss ledger implement <action-id> --cost 150
//	queueloss ledger record <action-id> --before 2026-03-01:2026-03-07 --after 2026-03-08:2026-03-14
//	queueloss report summary --end 2026-03-14
//	queueloss serve
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"queueloss/internal/config"
	"queueloss/internal/observability"
)

// app carries what every subcommand needs. It is filled by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	envFile    string
	csvPath    string

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "queueloss",
		Short:         "Queueing-theory loss engine for fixed-capacity service points",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default: search queueloss.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&a.csvPath, "csv", "", "measurement CSV ingested before the command runs")

	rootCmd.AddCommand(a.analyzeCmd())
	rootCmd.AddCommand(a.compareCmd())
	rootCmd.AddCommand(a.qualityCmd())
	rootCmd.AddCommand(a.sizeCmd())
	rootCmd.AddCommand(a.ingestCmd())
	rootCmd.AddCommand(a.ledgerCmd())
	rootCmd.AddCommand(a.reportCmd())
	rootCmd.AddCommand(a.serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) init() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg)
	slog.SetDefault(a.logger)

	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(cfg.Server.MetricsNamespace, a.registry)
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}
