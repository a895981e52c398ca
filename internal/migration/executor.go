// Package migration implements the one-shot, validated ETL from the legacy
// chunk_vectors schema to the standard collection/embeddings schema.
//
// The executor is deliberately sequential: one batch in memory at a time,
// one transaction per batch, rollback scoped to the failing batch. Writes
// are upserts keyed on (collection, external_id) with DO NOTHING conflict
// handling, so any number of re-runs can never grow the target beyond the
// true source count.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// State is the executor's lifecycle position.
type State string

const (
	StateIdle           State = "idle"
	StateValidating     State = "validating"
	StatePlanned        State = "planned"
	StateMigrating      State = "migrating"
	StatePostValidating State = "post-validating"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// defaultBatchSize is the number of legacy rows read and written per
// transaction when no override is given.
const defaultBatchSize = 100

// spotCheckSize is the fixed random sample compared row-by-row after an
// execute run.
const spotCheckSize = 10

// LegacyRow is one row read from the legacy table.
type LegacyRow struct {
	// ID is the legacy primary key; batches are ordered by it.
	ID         int64
	SourceID   string
	ChunkIndex int
	ChunkText  string
	Embedding  []float32

	// Extra carries every remaining legacy column keyed by column name,
	// NULLs dropped. These fold into the target metadata map.
	Extra map[string]any
}

// Source reads the legacy schema.
type Source interface {
	// Count returns the total number of legacy rows.
	Count(ctx context.Context) (int64, error)

	// ReadBatch returns up to limit rows with ID greater than afterID,
	// ordered by ID.
	ReadBatch(ctx context.Context, afterID int64, limit int) ([]LegacyRow, error)

	// Sample returns up to n uniformly random rows.
	Sample(ctx context.Context, n int) ([]LegacyRow, error)
}

// Target writes and verifies the standard schema.
type Target interface {
	// Validate checks that the target tables and the vector extension
	// exist. Called before any row is touched.
	Validate(ctx context.Context) error

	// UpsertBatch writes one batch inside a single transaction using an
	// upsert keyed by external id; conflicting ids are no-ops. Returns
	// the number of rows actually inserted. On error the transaction is
	// rolled back in full.
	UpsertBatch(ctx context.Context, records []vectorstore.Record) (int64, error)

	// Count returns the number of records in the target collection.
	Count(ctx context.Context) (int64, error)

	// Fetch returns the target record for an external id, or nil when
	// absent.
	Fetch(ctx context.Context, externalID string) (*vectorstore.Record, error)

	// Analyze refreshes the target's query-planner statistics.
	Analyze(ctx context.Context) error
}

// Options configure a run.
type Options struct {
	// DryRun validates and plans without writing anything.
	DryRun bool

	// BatchSize overrides the default of 100 when positive.
	BatchSize int

	// Analyze runs planner-statistics refresh after a successful run.
	Analyze bool
}

// Summary is the structured result of a run. It is always produced, even
// on partial failure, and reports exactly what succeeded and what did not.
type Summary struct {
	State         State         `json:"state"`
	DryRun        bool          `json:"dry_run"`
	SourceCount   int64         `json:"source_count"`
	TargetCount   int64         `json:"target_count"`
	Processed     int64         `json:"processed"`
	NewlyMigrated int64         `json:"newly_migrated"`
	Batches       int           `json:"batches"`
	BatchSize     int           `json:"batch_size"`
	PlannedBatches int          `json:"planned_batches"`
	Elapsed       time.Duration `json:"elapsed"`
	SpotChecked   int           `json:"spot_checked"`
	SpotMatched   int           `json:"spot_matched"`
	MatchRatio    float64       `json:"match_ratio"`
	FailedBatch   int           `json:"failed_batch,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Executor drives a single migration run.
type Executor struct {
	source   Source
	target   Target
	opts     Options
	logger   *zap.Logger
	progress ProgressFunc

	state State
}

// New creates an Executor. progress may be nil.
func New(source Source, target Target, opts Options, logger *zap.Logger, progress ProgressFunc) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	return &Executor{
		source:   source,
		target:   target,
		opts:     opts,
		logger:   logger,
		progress: progress,
		state:    StateIdle,
	}
}

// State returns the executor's current lifecycle state.
func (e *Executor) State() State { return e.state }

// Run executes the migration. The returned Summary is non-nil whenever
// validation passed, including on partial failure; the error carries the
// failing detail.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		DryRun:    e.opts.DryRun,
		BatchSize: e.opts.BatchSize,
	}

	e.state = StateValidating
	sourceCount, err := e.validate(ctx)
	if err != nil {
		e.state = StateFailed
		return nil, err
	}
	summary.SourceCount = sourceCount
	summary.PlannedBatches = int((sourceCount + int64(e.opts.BatchSize) - 1) / int64(e.opts.BatchSize))

	if e.opts.DryRun {
		e.state = StatePlanned
		summary.State = StatePlanned
		summary.TargetCount, err = e.target.Count(ctx)
		if err != nil {
			e.state = StateFailed
			return nil, fmt.Errorf("counting target rows: %w", err)
		}
		summary.Elapsed = time.Since(start)
		e.logger.Info("dry run complete",
			zap.Int64("source_count", summary.SourceCount),
			zap.Int64("target_count", summary.TargetCount),
			zap.Int("planned_batches", summary.PlannedBatches))
		return summary, nil
	}

	e.state = StateMigrating
	if err := e.migrate(ctx, start, summary); err != nil {
		e.state = StateFailed
		summary.State = StateFailed
		summary.Error = err.Error()
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	e.state = StatePostValidating
	if err := e.postValidate(ctx, summary); err != nil {
		e.state = StateFailed
		summary.State = StateFailed
		summary.Error = err.Error()
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	if e.opts.Analyze {
		if err := e.target.Analyze(ctx); err != nil {
			// Planner stats are an optimization, not part of the data
			// integrity contract.
			e.logger.Warn("planner statistics refresh failed", zap.Error(err))
		}
	}

	e.state = StateDone
	summary.State = StateDone
	summary.Elapsed = time.Since(start)
	return summary, nil
}

// validate checks prerequisites and returns the source count. Any failure
// here is fatal before a single row is touched.
func (e *Executor) validate(ctx context.Context) (int64, error) {
	if err := e.target.Validate(ctx); err != nil {
		return 0, fmt.Errorf("target validation failed: %w", err)
	}
	count, err := e.source.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("source validation failed: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("source validation failed: legacy table is empty, nothing to migrate")
	}
	return count, nil
}

// migrate runs the batch loop. The stop signal is checked only at the top
// of the loop; an in-flight batch always fully commits or fully rolls back.
func (e *Executor) migrate(ctx context.Context, start time.Time, summary *Summary) error {
	reporter := newProgressReporter(summary.SourceCount, start, e.progress)
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migration stopped before batch %d: %w", summary.Batches+1, err)
		}

		rows, err := e.source.ReadBatch(ctx, afterID, e.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("reading batch %d: %w", summary.Batches+1, err)
		}
		if len(rows) == 0 {
			break
		}

		records := make([]vectorstore.Record, len(rows))
		for i, row := range rows {
			records[i] = MapRow(row)
		}

		inserted, err := e.target.UpsertBatch(ctx, records)
		if err != nil {
			summary.FailedBatch = summary.Batches + 1
			return fmt.Errorf("batch %d rolled back after write error (rows with legacy id %d..%d): %w",
				summary.FailedBatch, rows[0].ID, rows[len(rows)-1].ID, err)
		}

		summary.Batches++
		summary.Processed += int64(len(rows))
		summary.NewlyMigrated += inserted
		afterID = rows[len(rows)-1].ID

		RowsTotal.WithLabelValues("migrated").Add(float64(inserted))
		RowsTotal.WithLabelValues("skipped").Add(float64(int64(len(rows)) - inserted))

		reporter.report(e.logger, summary.Batches, summary.Processed)

		if len(rows) < e.opts.BatchSize {
			break
		}
	}
	return nil
}

// postValidate compares counts and spot-checks a random sample. A
// discrepancy is recorded in the summary for the operator, not fatal.
func (e *Executor) postValidate(ctx context.Context, summary *Summary) error {
	targetCount, err := e.target.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting target rows: %w", err)
	}
	summary.TargetCount = targetCount

	if targetCount != summary.SourceCount {
		e.logger.Warn("source and target counts differ",
			zap.Int64("source_count", summary.SourceCount),
			zap.Int64("target_count", targetCount))
	}

	sample, err := e.source.Sample(ctx, spotCheckSize)
	if err != nil {
		return fmt.Errorf("sampling source rows: %w", err)
	}

	for _, row := range sample {
		summary.SpotChecked++
		record, err := e.target.Fetch(ctx, vectorstore.LegacyExternalID(row.SourceID, row.ChunkIndex))
		if err != nil {
			return fmt.Errorf("fetching spot-check row %s#%d: %w", row.SourceID, row.ChunkIndex, err)
		}
		if record != nil && spotCheckMatches(row, *record) {
			summary.SpotMatched++
		}
	}
	if summary.SpotChecked > 0 {
		summary.MatchRatio = float64(summary.SpotMatched) / float64(summary.SpotChecked)
	}
	return nil
}

// spotCheckMatches byte-compares document text and structurally compares
// metadata between a source row and its migrated record.
//
// Metadata read back from the target arrives through the JSONB codec, so
// numbers decode as float64 regardless of the Go type they were written
// as. Both sides are canonicalized through a JSON round-trip before the
// structural compare; otherwise chunk_index (an int on the source side)
// would never match its float64 reading and every sampled row would be
// reported as a mismatch.
func spotCheckMatches(row LegacyRow, record vectorstore.Record) bool {
	if !bytes.Equal([]byte(row.ChunkText), []byte(record.Document)) {
		return false
	}
	want, err := canonicalMetadata(MapRow(row).Metadata)
	if err != nil {
		return false
	}
	got, err := canonicalMetadata(record.Metadata)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(want, got)
}

// canonicalMetadata round-trips a metadata map through JSON, yielding the
// value domain the JSONB column stores.
func canonicalMetadata(m map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MapRow maps a legacy row to the standard record shape.
//
// First-class renames: source_id + chunk_index become the external id,
// chunk_text becomes document, embedding carries over. Every other legacy
// column lands in metadata under its original column name; NULLs were
// already dropped when the row was read. source_id and chunk_index are
// also mirrored into metadata so filters keep working after the cutover.
func MapRow(row LegacyRow) vectorstore.Record {
	metadata := make(map[string]any, len(row.Extra)+2)
	for k, v := range row.Extra {
		metadata[k] = v
	}
	metadata["source_id"] = row.SourceID
	metadata["chunk_index"] = row.ChunkIndex

	return vectorstore.Record{
		ExternalID: vectorstore.LegacyExternalID(row.SourceID, row.ChunkIndex),
		Document:   row.ChunkText,
		Vector:     row.Embedding,
		Metadata:   metadata,
	}
}
