package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// PgTarget writes migrated rows into the standard schema.
type PgTarget struct {
	pool       *pgxpool.Pool
	collection string

	mu           sync.Mutex
	collectionID *uuid.UUID
}

// NewPgTarget wraps a pool as a migration Target writing into the named
// collection.
func NewPgTarget(pool *pgxpool.Pool, collection string) *PgTarget {
	return &PgTarget{pool: pool, collection: collection}
}

// Validate checks that the standard tables and the vector extension exist.
func (t *PgTarget) Validate(ctx context.Context) error {
	for _, table := range []string{"collections", "embeddings"} {
		var exists bool
		err := t.pool.QueryRow(ctx,
			`SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s does not exist, run the standard backend once to create the schema", table)
		}
	}

	var hasVector bool
	err := t.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&hasVector)
	if err != nil {
		return fmt.Errorf("checking vector extension: %w", err)
	}
	if !hasVector {
		return errors.New("vector extension is not installed")
	}
	return nil
}

// ensureCollection lazily creates the target collection and caches its id.
func (t *PgTarget) ensureCollection(ctx context.Context) (uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.collectionID != nil {
		return *t.collectionID, nil
	}

	var id uuid.UUID
	err := t.pool.QueryRow(ctx,
		`INSERT INTO collections (id, name) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		uuid.New(), t.collection,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensuring collection %q: %w", t.collection, err)
	}
	t.collectionID = &id
	return id, nil
}

// UpsertBatch writes one batch in a single transaction. Conflicting
// external ids are left untouched, which makes re-runs of a partially
// completed migration safe.
func (t *PgTarget) UpsertBatch(ctx context.Context, records []vectorstore.Record) (int64, error) {
	collID, err := t.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO embeddings (id, collection_id, external_id, document, embedding, cmetadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (collection_id, external_id) DO NOTHING`,
			uuid.New(), collID, rec.ExternalID, rec.Document,
			pgvector.NewVector(rec.Vector), rec.Metadata)
	}

	var inserted int64
	results := tx.SendBatch(ctx, batch)
	for _, rec := range records {
		ct, execErr := results.Exec()
		if execErr != nil {
			_ = results.Close()
			return 0, fmt.Errorf("upserting %q: %w", rec.ExternalID, execErr)
		}
		inserted += ct.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return inserted, nil
}

func (t *PgTarget) Count(ctx context.Context) (int64, error) {
	var count int64
	err := t.pool.QueryRow(ctx,
		`SELECT count(*) FROM embeddings e
		 JOIN collections c ON c.id = e.collection_id
		 WHERE c.name = $1`, t.collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting target rows: %w", err)
	}
	return count, nil
}

func (t *PgTarget) Fetch(ctx context.Context, externalID string) (*vectorstore.Record, error) {
	var (
		rec       vectorstore.Record
		embedding pgvector.Vector
	)
	err := t.pool.QueryRow(ctx,
		`SELECT e.external_id, e.document, e.embedding, e.cmetadata
		 FROM embeddings e
		 JOIN collections c ON c.id = e.collection_id
		 WHERE c.name = $1 AND e.external_id = $2`,
		t.collection, externalID,
	).Scan(&rec.ExternalID, &rec.Document, &embedding, &rec.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", externalID, err)
	}
	rec.Vector = embedding.Slice()
	return &rec, nil
}

func (t *PgTarget) Analyze(ctx context.Context) error {
	if _, err := t.pool.Exec(ctx, `ANALYZE embeddings`); err != nil {
		return fmt.Errorf("analyzing embeddings: %w", err)
	}
	return nil
}
