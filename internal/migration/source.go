package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgSource reads legacy rows from chunk_vectors.
type PgSource struct {
	pool *pgxpool.Pool
}

// NewPgSource wraps a pool as a migration Source.
func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunk_vectors`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting legacy rows: %w", err)
	}
	return count, nil
}

func (s *PgSource) ReadBatch(ctx context.Context, afterID int64, limit int) ([]LegacyRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, chunk_index, chunk_text, embedding,
		       source_type, source_uri, ingested_at
		FROM chunk_vectors
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading legacy batch after id %d: %w", afterID, err)
	}
	defer rows.Close()
	return scanLegacyRows(rows)
}

func (s *PgSource) Sample(ctx context.Context, n int) ([]LegacyRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, chunk_index, chunk_text, embedding,
		       source_type, source_uri, ingested_at
		FROM chunk_vectors
		ORDER BY random()
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("sampling legacy rows: %w", err)
	}
	defer rows.Close()
	return scanLegacyRows(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanLegacyRows(rows pgxRows) ([]LegacyRow, error) {
	var out []LegacyRow
	for rows.Next() {
		var (
			row        LegacyRow
			embedding  pgvector.Vector
			sourceType *string
			sourceURI  *string
			ingestedAt *time.Time
		)
		if err := rows.Scan(&row.ID, &row.SourceID, &row.ChunkIndex, &row.ChunkText,
			&embedding, &sourceType, &sourceURI, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scanning legacy row: %w", err)
		}
		row.Embedding = embedding.Slice()
		row.Extra = make(map[string]any, 3)
		if sourceType != nil {
			row.Extra["source_type"] = *sourceType
		}
		if sourceURI != nil {
			row.Extra["source_uri"] = *sourceURI
		}
		if ingestedAt != nil {
			row.Extra["ingested_at"] = ingestedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating legacy rows: %w", err)
	}
	return out, nil
}
