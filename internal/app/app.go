// Package app assembles the daemon's long-lived components in dependency
// order and tears them down in reverse.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/chunker"
	"github.com/fyrsmithlabs/vectord/internal/config"
	"github.com/fyrsmithlabs/vectord/internal/credentials"
	"github.com/fyrsmithlabs/vectord/internal/database"
	"github.com/fyrsmithlabs/vectord/internal/embeddings"
	"github.com/fyrsmithlabs/vectord/internal/pool"
	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// App holds every component with process lifetime. Construction is
// fail-fast: an invalid backend name, unresolved identity, or unreachable
// instance surfaces here, before any request is served.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Resolver *credentials.Resolver
	Engine   *database.Engine
	Store    vectorstore.Store
	Embedder embeddings.Embedder
	Chunker  *chunker.Chunker
	Workers  *pool.Pool

	closeOnce sync.Once
}

// New builds the application. The backend selector was already validated
// during config load; everything after it follows the dependency chain
// credentials, engine, store, schema.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	resolver := credentials.NewResolver(logger)

	engine, err := database.New(ctx, &cfg.Database, resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing database engine: %w", err)
	}

	store, err := vectorstore.NewStore(&cfg.Store, engine.Pool(), logger)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("initializing %s store: %w", cfg.Store.Backend, err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("ensuring %s schema: %w", cfg.Store.Backend, err)
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	splitter, err := chunker.New(cfg.Chunker)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("initializing chunker: %w", err)
	}

	workers, err := pool.New(cfg.Server.Workers, cfg.Database.AcquireTimeout.Duration(), logger)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("initializing worker pool: %w", err)
	}

	logger.Info("application ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("collection", cfg.Store.Collection),
		zap.Int("workers", cfg.Server.Workers))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Resolver: resolver,
		Engine:   engine,
		Store:    store,
		Embedder: embedder,
		Chunker:  splitter,
		Workers:  workers,
	}, nil
}

// Close releases components in reverse construction order. Safe to call
// more than once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		if a.Workers != nil {
			if err := a.Workers.Drain(ctx); err != nil {
				a.Logger.Warn("worker pool did not drain", zap.Error(err))
			}
		}
		if a.Store != nil {
			if err := a.Store.Close(); err != nil {
				a.Logger.Warn("closing store", zap.Error(err))
			}
		}
		if a.Engine != nil {
			a.Engine.Close()
		}
		a.Logger.Info("application stopped")
	})
}
