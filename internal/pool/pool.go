// Package pool bounds the number of blocking database operations running
// concurrently on behalf of tool calls.
package pool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool is a weighted-semaphore gate. Callers block in Do until a slot is
// free, their context ends, or the acquire timeout elapses, so a burst of
// tool calls cannot exhaust the database pool behind it or queue without
// bound in front of it.
type Pool struct {
	sem            *semaphore.Weighted
	workers        int64
	acquireTimeout time.Duration
	logger         *zap.Logger
}

// New creates a Pool with the given number of slots. acquireTimeout bounds
// how long Do queues for a slot; zero means wait as long as the caller's
// context allows.
func New(workers int, acquireTimeout time.Duration, logger *zap.Logger) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", workers)
	}
	if acquireTimeout < 0 {
		return nil, fmt.Errorf("acquire timeout cannot be negative, got %s", acquireTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:            semaphore.NewWeighted(int64(workers)),
		workers:        int64(workers),
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}, nil
}

// Do runs fn while holding one slot. It blocks until a slot is free; a
// cancelled context or an elapsed acquire timeout while waiting returns an
// error without running fn. The timeout bounds only the wait, never fn.
func (p *Pool) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	waitStart := time.Now()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("no worker slot for %s within %s: %w", op, p.acquireTimeout, err)
		}
		return fmt.Errorf("waiting for a worker slot for %s: %w", op, err)
	}
	defer p.sem.Release(1)

	wait := time.Since(waitStart)
	AcquireDuration.WithLabelValues(op).Observe(wait.Seconds())
	if wait > 100*time.Millisecond {
		p.logger.Debug("operation queued behind worker limit",
			zap.String("op", op),
			zap.Duration("waited", wait))
	}
	return fn(ctx)
}

// Drain blocks until every slot is free, or ctx ends. Used during
// shutdown so in-flight operations finish before the engine closes.
func (p *Pool) Drain(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.workers); err != nil {
		return fmt.Errorf("draining worker pool: %w", err)
	}
	p.sem.Release(p.workers)
	return nil
}
