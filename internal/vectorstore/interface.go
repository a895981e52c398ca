// Package vectorstore defines the uniform contract over the two physical
// vector schemas and its Postgres implementations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the collection's fixed dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrMalformedFilter indicates a filter referencing an unusable field.
	ErrMalformedFilter = errors.New("malformed metadata filter")

	// ErrConflict is returned by Add under ConflictError policy when an
	// external id already exists.
	ErrConflict = errors.New("external id already exists")
)

// Store is the uniform contract both backends implement.
//
// Format parity is a hard requirement: a caller must not be able to tell
// from any output shape whether the legacy or the standard schema is
// active. Collections are created lazily on first write.
//
// Implementations:
//   - StandardStore: collection registry + embeddings table (pgvector)
//   - LegacyStore: single chunk_vectors table (pgvector)
type Store interface {
	// Add upserts records keyed by external id and returns the ids
	// actually used. Records without an external id are assigned one.
	// The conflict policy decides what an existing external id means:
	// skip (default), update, or error.
	Add(ctx context.Context, records []Record, policy ConflictPolicy) ([]string, error)

	// Search returns up to k records ranked by similarity to the query
	// vector, scores in [0,1] descending. The filter is a conjunction of
	// metadata equality / membership predicates; a filter matching
	// nothing yields an empty slice, never an error.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes records by external ids and/or filter and returns
	// the number removed.
	Delete(ctx context.Context, ids []string, filter Filter) (int64, error)

	// Stats reports record count, distinct source entities, and the
	// average number of records per entity.
	Stats(ctx context.Context) (*Stats, error)

	// EnsureSchema creates the backend's tables, indexes, and the vector
	// extension if they are absent. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Close releases store-local resources. The connection pool is owned
	// by the engine, not the store.
	Close() error
}
