package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// legacyIDSeparator joins source id and chunk index into an external id.
const legacyIDSeparator = "#"

// LegacyExternalID renders the external id a legacy row is addressed by.
// The migration executor uses the same function so ids survive the schema
// change byte-for-byte.
func LegacyExternalID(sourceID string, chunkIndex int) string {
	return sourceID + legacyIDSeparator + strconv.Itoa(chunkIndex)
}

// parseLegacyExternalID splits an external id back into its parts. Ids
// without a separator map to chunk index 0.
func parseLegacyExternalID(externalID string) (string, int) {
	idx := strings.LastIndex(externalID, legacyIDSeparator)
	if idx < 0 {
		return externalID, 0
	}
	n, err := strconv.Atoi(externalID[idx+1:])
	if err != nil {
		return externalID, 0
	}
	return externalID[:idx], n
}

// LegacyConfig holds configuration for the legacy schema backend.
type LegacyConfig struct {
	// VectorSize is the fixed embedding dimensionality.
	VectorSize int
}

// Validate validates the configuration.
func (c *LegacyConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// LegacyStore implements Store over the legacy single-table schema,
// chunk_vectors, where a record is addressed by (source_id, chunk_index).
// Output shapes are identical to StandardStore; the schema difference is
// reconciled here and nowhere above this package.
type LegacyStore struct {
	pool   *pgxpool.Pool
	config LegacyConfig
	logger *zap.Logger
}

// NewLegacyStore creates a LegacyStore. The pool is owned by the
// connection engine; the store never closes it.
func NewLegacyStore(pool *pgxpool.Pool, config LegacyConfig, logger *zap.Logger) (*LegacyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: connection pool is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &LegacyStore{pool: pool, config: config, logger: logger}, nil
}

// EnsureSchema creates the extension and the legacy table.
func (s *LegacyStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_vectors (
			id BIGSERIAL PRIMARY KEY,
			source_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			source_type TEXT,
			source_uri TEXT,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (source_id, chunk_index)
		)`, s.config.VectorSize),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring legacy schema: %w", err)
		}
	}
	return nil
}

func (s *LegacyStore) Add(ctx context.Context, records []Record, policy ConflictPolicy) (ids []string, err error) {
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

	upsert := `INSERT INTO chunk_vectors (source_id, chunk_index, chunk_text, embedding, source_type, source_uri)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, chunk_index) DO NOTHING`
	if policy == ConflictUpdate {
		upsert = `INSERT INTO chunk_vectors (source_id, chunk_index, chunk_text, embedding, source_type, source_uri)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, chunk_index) DO UPDATE
		SET chunk_text = EXCLUDED.chunk_text, embedding = EXCLUDED.embedding,
		    source_type = EXCLUDED.source_type, source_uri = EXCLUDED.source_uri`
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
			externalID = LegacyExternalID(fmt.Sprintf("doc-%d", time.Now().UnixNano()), i)
		}
		ids[i] = externalID

		sourceID, chunkIndex := parseLegacyExternalID(externalID)
		batch.Queue(upsert, sourceID, chunkIndex, rec.Document,
			pgvector.NewVector(rec.Vector),
			metaString(rec.Metadata, "source_type"),
			metaString(rec.Metadata, "source_uri"))
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

// legacyFieldExpr resolves filter fields onto the legacy table's physical
// columns. Anything else is a malformed filter, reported by field name.
func legacyFieldExpr(field string) (string, error) {
	switch field {
	case "source_id", "source_type", "source_uri":
		return field, nil
	case "chunk_index":
		return "chunk_index::text", nil
	default:
		return "", fmt.Errorf("%w: unknown metadata field %q", ErrMalformedFilter, field)
	}
}

func (s *LegacyStore) Search(ctx context.Context, query []float32, k int, filter Filter) (results []SearchResult, err error) {
	defer observeOp("search", time.Now(), &err)

	if len(query) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(query), s.config.VectorSize)
	}
	if k <= 0 {
		k = 10
	}

	args := []any{pgvector.NewVector(query)}
	predicates, filterArgs, err := filter.buildPredicates(legacyFieldExpr, len(args))
	if err != nil {
		return nil, err
	}
	args = append(args, filterArgs...)

	sql := `SELECT source_id, chunk_index, chunk_text, source_type, source_uri, ingested_at,
		embedding <=> $1 AS distance
		FROM chunk_vectors` + whereClause(predicates)
	args = append(args, k)
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	results = []SearchResult{}
	for rows.Next() {
		var (
			sourceID   string
			chunkIndex int
			document   string
			sourceType *string
			sourceURI  *string
			ingestedAt time.Time
			distance   float64
		)
		if err := rows.Scan(&sourceID, &chunkIndex, &document, &sourceType, &sourceURI, &ingestedAt, &distance); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}

		metadata := map[string]any{
			"source_id":   sourceID,
			"chunk_index": chunkIndex,
			"ingested_at": ingestedAt.UTC().Format(time.RFC3339),
		}
		if sourceType != nil {
			metadata["source_type"] = *sourceType
		}
		if sourceURI != nil {
			metadata["source_uri"] = *sourceURI
		}

		results = append(results, SearchResult{
			ExternalID: LegacyExternalID(sourceID, chunkIndex),
			Document:   document,
			Score:      scoreFromDistance(distance),
			Metadata:   metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	return results, nil
}

func (s *LegacyStore) Delete(ctx context.Context, ids []string, filter Filter) (removed int64, err error) {
	defer observeOp("delete", time.Now(), &err)

	if len(ids) == 0 && len(filter) == 0 {
		return 0, errors.New("delete requires external ids or a filter")
	}

	var args []any
	var predicates []string
	if len(ids) > 0 {
		args = append(args, ids)
		predicates = append(predicates,
			fmt.Sprintf("source_id || '%s' || chunk_index::text = ANY($%d)", legacyIDSeparator, len(args)))
	}
	filterPredicates, filterArgs, err := filter.buildPredicates(legacyFieldExpr, len(args))
	if err != nil {
		return 0, err
	}
	args = append(args, filterArgs...)
	predicates = append(predicates, filterPredicates...)

	ct, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors`+whereClause(predicates), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *LegacyStore) Stats(ctx context.Context) (stats *Stats, err error) {
	defer observeOp("stats", time.Now(), &err)

	var count, unique int64
	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(DISTINCT source_id) FROM chunk_vectors`,
	).Scan(&count, &unique)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return newStats(count, unique), nil
}

// Close is a no-op: the pool belongs to the connection engine.
func (s *LegacyStore) Close() error { return nil }

// metaString pulls a string value out of a metadata map, nil when absent.
func metaString(metadata map[string]any, key string) *string {
	if metadata == nil {
		return nil
	}
	v, ok := metadata[key]
	if !ok {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}
