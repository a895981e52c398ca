// Package database provides the pooled, IAM-authenticated connection engine
// for the Cloud SQL instance backing vectord.
//
// Physical connections are opened through the Cloud SQL Go connector with
// IAM authentication; the connector refreshes tokens before expiry, so the
// engine never manages credential lifetime itself. There is no password
// anywhere in this package.
package database

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/config"
	"github.com/fyrsmithlabs/vectord/internal/credentials"
)

// Engine owns the connection pool and the Cloud SQL dialer.
//
// The pool is the only shared mutable resource besides the store singleton;
// it is created once at startup and torn down at shutdown via Close.
type Engine struct {
	pool   *pgxpool.Pool
	dialer *cloudsqlconn.Dialer
	logger *zap.Logger

	closeOnce sync.Once
}

// New resolves an IAM principal, builds the dialer and pool, and verifies
// connectivity with a ping. Identity and permission failures surface
// immediately; they are never retried.
func New(ctx context.Context, cfg *config.DatabaseConfig, resolver *credentials.Resolver, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	identity, err := resolver.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving database principal: %w", err)
	}

	dialer, err := cloudsqlconn.NewDialer(ctx,
		cloudsqlconn.WithIAMAuthN(),
		cloudsqlconn.WithLazyRefresh(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Cloud SQL dialer: %w", err)
	}

	poolCfg, err := poolConfig(cfg, dialer, credentials.DatabaseUser(identity.Identity))
	if err != nil {
		_ = dialer.Close()
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = dialer.Close()
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	engine := &Engine{pool: pool, dialer: dialer, logger: logger}

	// Fail fast: one liveness check before the engine is handed out.
	if err := pool.Ping(ctx); err != nil {
		engine.logConnectionAttempt(identity, cfg, false, err)
		engine.Close()
		return nil, fmt.Errorf("connecting to %s as %s (method %s): %w; "+
			"if this is a permission error, grant the principal the Cloud SQL Instance User role "+
			"and a matching database IAM user", cfg.Instance, identity.Identity, identity.Method, err)
	}
	engine.logConnectionAttempt(identity, cfg, true, nil)

	return engine, nil
}

// poolConfig translates the vectord pool tuning knobs into pgxpool settings.
func poolConfig(cfg *config.DatabaseConfig, dialer *cloudsqlconn.Dialer, dbUser string) (*pgxpool.Config, error) {
	dsn := fmt.Sprintf("user=%s dbname=%s", dbUser, cfg.Name)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}

	var dialOpts []cloudsqlconn.DialOption
	if cfg.PrivateIP {
		dialOpts = append(dialOpts, cloudsqlconn.WithPrivateIP())
	}
	instance := cfg.Instance
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instance, dialOpts...)
	}

	// Fixed size plus bounded overflow; connections are recycled after
	// RecycleAge and live-checked before each acquire (pre-ping).
	// AcquireTimeout is enforced upstream at the worker gate; here only
	// the physical handshake is bounded.
	poolCfg.MinConns = int32(cfg.PoolSize)
	poolCfg.MaxConns = int32(cfg.PoolSize + cfg.MaxOverflow)
	poolCfg.MaxConnLifetime = cfg.RecycleAge.Duration()
	poolCfg.ConnConfig.ConnectTimeout = cfg.DialTimeout.Duration()
	poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	return poolCfg, nil
}

// Pool returns the reusable pool handle.
func (e *Engine) Pool() *pgxpool.Pool {
	return e.pool
}

// Ping verifies a live connection can be acquired.
func (e *Engine) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// Close releases all pooled connections and the dialer. Safe to call more
// than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.pool.Close()
		if err := e.dialer.Close(); err != nil {
			e.logger.Warn("closing Cloud SQL dialer", zap.Error(err))
		}
	})
}

// logConnectionAttempt emits the per-connection-attempt observability
// record: resolved identity, detection method, validity, target, outcome.
func (e *Engine) logConnectionAttempt(identity *credentials.Result, cfg *config.DatabaseConfig, ok bool, err error) {
	fields := []zap.Field{
		zap.String("identity", identity.Identity),
		zap.String("method", string(identity.Method)),
		zap.Bool("valid", identity.Valid),
		zap.String("instance", cfg.Instance),
		zap.String("database", cfg.Name),
		zap.Bool("success", ok),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		e.logger.Error("database connection attempt failed", fields...)
		return
	}
	e.logger.Info("database connection established", fields...)
}
