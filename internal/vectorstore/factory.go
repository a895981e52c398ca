// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/config"
)

// NewStore creates the process's single Store from configuration.
//
// The backend value is evaluated exactly once, at startup, before any
// connection is used for store work:
//   - "standard": collection registry + embeddings table
//   - "legacy": single chunk_vectors table
//
// Anything else fails construction with an error enumerating the valid
// values. The returned store is wrapped with the retry policy, so callers
// never see raw transient driver errors.
//
// Example:
//
//	store, err := vectorstore.NewStore(&cfg.Store, engine.Pool(), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg *config.StoreConfig, pool *pgxpool.Pool, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case config.BackendStandard:
		store, err = NewStandardStore(pool, StandardConfig{
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
		}, logger)

	case config.BackendLegacy:
		store, err = NewLegacyStore(pool, LegacyConfig{
			VectorSize: cfg.VectorSize,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported store backend: %q (supported: %s, %s)",
			cfg.Backend, config.BackendLegacy, config.BackendStandard)
	}

	if err != nil {
		return nil, err
	}
	return NewRetryingStore(store, NewRetryer(logger)), nil
}
