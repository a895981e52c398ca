package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// StandardConfig holds configuration for the standard schema backend.
type StandardConfig struct {
	// Collection is the collection name in the registry.
	Collection string

	// VectorSize is the fixed embedding dimensionality.
	VectorSize int
}

// Validate validates the configuration.
func (c *StandardConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// StandardStore implements Store over the standard two-table schema:
// a collection registry plus an embeddings table with a vector column and
// a (collection_id, external_id) uniqueness guarantee. Deleting a
// collection cascades to its records.
type StandardStore struct {
	pool   *pgxpool.Pool
	config StandardConfig
	logger *zap.Logger

	// collectionID caches the lazily created collection's id.
	mu           sync.Mutex
	collectionID *uuid.UUID
}

// NewStandardStore creates a StandardStore. The pool is owned by the
// connection engine; the store never closes it.
func NewStandardStore(pool *pgxpool.Pool, config StandardConfig, logger *zap.Logger) (*StandardStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: connection pool is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &StandardStore{pool: pool, config: config, logger: logger}, nil
}

// EnsureSchema creates the extension, tables, and similarity index.
func (s *StandardStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS collections (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id UUID PRIMARY KEY,
			collection_id UUID NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			external_id TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			cmetadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (collection_id, external_id)
		)`, s.config.VectorSize),
		`CREATE INDEX IF NOT EXISTS embeddings_embedding_idx
			ON embeddings USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring standard schema: %w", err)
		}
	}
	return nil
}

// ensureCollection lazily creates the collection and caches its id.
func (s *StandardStore) ensureCollection(ctx context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != nil {
		return *s.collectionID, nil
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO collections (id, name) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		uuid.New(), s.config.Collection,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensuring collection %q: %w", s.config.Collection, err)
	}
	s.collectionID = &id
	return id, nil
}

func (s *StandardStore) Add(ctx context.Context, records []Record, policy ConflictPolicy) (ids []string, err error) {
	defer observeOp("add", time.Now(), &err)

	if policy == "" {
		policy = ConflictSkip
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: unknown conflict policy %q", ErrInvalidConfig, policy)
	}
	if len(records) == 0 {
		return nil, nil
	}
	for i, rec := range records {
		if len(rec.Vector) != s.config.VectorSize {
			return nil, fmt.Errorf("%w: record %d (external_id %q) has dimension %d, collection expects %d",
				ErrDimensionMismatch, i, rec.ExternalID, len(rec.Vector), s.config.VectorSize)
		}
	}

	collID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	upsert := `INSERT INTO embeddings (id, collection_id, external_id, document, embedding, cmetadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection_id, external_id) DO NOTHING`
	if policy == ConflictUpdate {
		upsert = `INSERT INTO embeddings (id, collection_id, external_id, document, embedding, cmetadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection_id, external_id) DO UPDATE
		SET document = EXCLUDED.document, embedding = EXCLUDED.embedding, cmetadata = EXCLUDED.cmetadata`
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	ids = make([]string, len(records))
	for i, rec := range records {
		externalID := rec.ExternalID
		if externalID == "" {
			externalID = uuid.NewString()
		}
		ids[i] = externalID
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		batch.Queue(upsert, uuid.New(), collID, externalID, rec.Document,
			pgvector.NewVector(rec.Vector), metadata)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		ct, execErr := results.Exec()
		if execErr != nil {
			_ = results.Close()
			return nil, fmt.Errorf("upserting record %q: %w", ids[i], execErr)
		}
		if policy == ConflictError && ct.RowsAffected() == 0 {
			_ = results.Close()
			return nil, fmt.Errorf("%w: %q", ErrConflict, ids[i])
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("closing batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return ids, nil
}

// standardFieldExpr resolves a filter field into the JSONB metadata map.
func standardFieldExpr(field string) (string, error) {
	return fmt.Sprintf("e.cmetadata ->> '%s'", field), nil
}

func (s *StandardStore) Search(ctx context.Context, query []float32, k int, filter Filter) (results []SearchResult, err error) {
	defer observeOp("search", time.Now(), &err)

	if len(query) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(query), s.config.VectorSize)
	}
	if k <= 0 {
		k = 10
	}

	args := []any{pgvector.NewVector(query), s.config.Collection}
	predicates, filterArgs, err := filter.buildPredicates(standardFieldExpr, len(args))
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)

	sql := `SELECT e.external_id, e.document, e.cmetadata, e.embedding <=> $1 AS distance
		FROM embeddings e
		JOIN collections c ON c.id = e.collection_id
		WHERE c.name = $2`
	for _, p := range predicates {
		sql += " AND " + p
	}
	args = append(args, k)
	sql += fmt.Sprintf(" ORDER BY e.embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	results = []SearchResult{}
	for rows.Next() {
		var (
			r        SearchResult
			distance float64
			metadata map[string]any
		)
		if err := rows.Scan(&r.ExternalID, &r.Document, &metadata, &distance); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Metadata = metadata
		r.Score = scoreFromDistance(distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return results, nil
}

func (s *StandardStore) Delete(ctx context.Context, ids []string, filter Filter) (removed int64, err error) {
	defer observeOp("delete", time.Now(), &err)

	if len(ids) == 0 && len(filter) == 0 {
		return 0, errors.New("delete requires external ids or a filter")
	}

	args := []any{s.config.Collection}
	sql := `DELETE FROM embeddings e USING collections c
		WHERE e.collection_id = c.id AND c.name = $1`
	if len(ids) > 0 {
		args = append(args, ids)
		sql += fmt.Sprintf(" AND e.external_id = ANY($%d)", len(args))
	}
	predicates, filterArgs, err := filter.buildPredicates(standardFieldExpr, len(args))
	if err != nil {
		return 0, err
	}
	args = append(args, filterArgs...)
	for _, p := range predicates {
		sql += " AND " + p
	}

	ct, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *StandardStore) Stats(ctx context.Context) (stats *Stats, err error) {
	defer observeOp("stats", time.Now(), &err)

	var count, unique int64
	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT coalesce(e.cmetadata ->> 'source_id', e.external_id))
		 FROM embeddings e
		 JOIN collections c ON c.id = e.collection_id
		 WHERE c.name = $1`,
		s.config.Collection,
	).Scan(&count, &unique)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return newStats(count, unique), nil
}

// Close is a no-op: the pool belongs to the connection engine.
func (s *StandardStore) Close() error { return nil }

// newStats derives the average from the two counts, shared by backends so
// the shapes stay identical.
func newStats(count, unique int64) *Stats {
	stats := &Stats{Count: count, UniqueEntities: unique}
	if unique > 0 {
		stats.AvgRecordsPerEntity = float64(count) / float64(unique)
	}
	return stats
}

// observeOp records operation metrics; errp is read after the method's
// named return is set.
func observeOp(op string, start time.Time, errp *error) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "success"
	if errp != nil && *errp != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(op, result).Inc()
}
