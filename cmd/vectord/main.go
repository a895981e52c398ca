// Vectord is a vector-store daemon backed by Cloud SQL for PostgreSQL.
//
// It connects with IAM database authentication (no passwords anywhere in
// its configuration), serves semantic search and ingestion tools over the
// Model Context Protocol on stdio, and supports two physical schemas
// selected by configuration.
//
// Usage:
//
//	# Start with a config file
//	vectord serve --config /etc/vectord/config.yaml
//
//	# Configure via environment
//	VECTORD_STORE_BACKEND=standard VECTORD_DATABASE_INSTANCE=proj:region:db vectord serve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/app"
	"github.com/fyrsmithlabs/vectord/internal/config"
	"github.com/fyrsmithlabs/vectord/internal/logging"
	"github.com/fyrsmithlabs/vectord/internal/mcp"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "vectord",
	Short:   "Vector store daemon for Cloud SQL with IAM authentication",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon on the stdio MCP transport",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (optional, env vars always apply)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			cfg.Server.ShutdownTimeout.Duration())
		defer shutdownCancel()
		application.Close(shutdownCtx)
	}()

	if cfg.Server.Telemetry {
		metricsSrv := newMetricsServer(cfg.Server.TelemetryAddr)
		go func() {
			logger.Info("serving metrics", zap.String("addr", cfg.Server.TelemetryAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
				cfg.Server.ShutdownTimeout.Duration())
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "vectord",
		Version: version,
		Logger:  logger,
	}, application.Store, application.Embedder, application.Chunker, application.Workers)
	if err != nil {
		return fmt.Errorf("initializing MCP server: %w", err)
	}

	logger.Info("daemon starting",
		zap.String("version", version),
		zap.String("backend", cfg.Store.Backend))

	err = server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("daemon stopped")
	return nil
}
