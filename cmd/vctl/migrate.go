package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectord/internal/config"
	"github.com/fyrsmithlabs/vectord/internal/credentials"
	"github.com/fyrsmithlabs/vectord/internal/database"
	"github.com/fyrsmithlabs/vectord/internal/logging"
	"github.com/fyrsmithlabs/vectord/internal/migration"
)

var (
	migrateDryRun  bool
	migrateExecute bool
	migrateBatch   int
	migrateAnalyze bool
)

// partialFailureError marks a run that committed some batches before
// halting; the process exits 2 so operators can distinguish it from a
// fatal error that touched nothing.
type partialFailureError struct{ err error }

func (e *partialFailureError) Error() string { return e.err.Error() }
func (e *partialFailureError) Unwrap() error { return e.err }

// exitCodeFor maps command errors to process exit codes.
func exitCodeFor(err error) (int, bool) {
	var partial *partialFailureError
	if errors.As(err, &partial) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2, true
	}
	return 0, false
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "validate and plan without writing anything")
	migrateCmd.Flags().BoolVar(&migrateExecute, "execute", false, "perform the migration")
	migrateCmd.Flags().IntVar(&migrateBatch, "batch-size", 100, "number of rows per transaction")
	migrateCmd.Flags().BoolVar(&migrateAnalyze, "analyze", false, "refresh planner statistics after a successful run")
	migrateCmd.MarkFlagsMutuallyExclusive("dry-run", "execute")
	migrateCmd.MarkFlagsOneRequired("dry-run", "execute")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the legacy chunk table to the standard schema",
	Long: `Migrate rows from the legacy chunk_vectors table into the standard
collection/embeddings schema of the same database.

The migration is idempotent: rows are upserted by external id, so a
partially completed run can simply be re-run. Each batch commits in its
own transaction; a write error rolls back only the failing batch.

Exit codes: 0 success, 2 partial failure (some batches committed), 1 fatal.

Examples:
  # See what would be migrated
  vctl migrate --dry-run

  # Run it
  vctl migrate --execute

  # Larger batches, refresh planner statistics afterwards
  vctl migrate --execute --batch-size 500 --analyze`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

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

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	resolver := credentials.NewResolver(logger)
	engine, err := database.New(ctx, &cfg.Database, resolver, logger)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer engine.Close()

	fmt.Printf("Migration: chunk_vectors -> %s\n", cfg.Store.Collection)
	fmt.Printf("  Instance: %s\n", cfg.Database.Instance)
	fmt.Printf("  Database: %s\n", cfg.Database.Name)
	fmt.Printf("  Batch size: %d\n", migrateBatch)
	if migrateDryRun {
		fmt.Printf("  Mode: DRY RUN (no changes will be made)\n")
	}
	fmt.Println()

	executor := migration.New(
		migration.NewPgSource(engine.Pool()),
		migration.NewPgTarget(engine.Pool(), cfg.Store.Collection),
		migration.Options{
			DryRun:    migrateDryRun,
			BatchSize: migrateBatch,
			Analyze:   migrateAnalyze,
		},
		logger,
		printProgress,
	)

	summary, runErr := executor.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	if runErr != nil {
		if summary != nil && summary.Processed > 0 {
			return &partialFailureError{err: runErr}
		}
		return runErr
	}
	return nil
}

func printProgress(p migration.Progress) {
	fmt.Printf("  batch %d: %d/%d rows (%.0f%%), eta %s\n",
		p.Batch, p.Processed, p.Total,
		float64(p.Processed)/float64(p.Total)*100,
		p.ETA.Round(time.Second))
}

// printSummary always emits the structured summary, success or not.
func printSummary(s *migration.Summary) {
	fmt.Println()
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshaling summary:", err)
		return
	}
	fmt.Println(string(out))
}
