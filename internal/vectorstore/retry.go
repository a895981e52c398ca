package vectorstore

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrorKind is the classifier's verdict on a database error.
type ErrorKind string

const (
	// KindTransient errors are expected to resolve on retry: timeouts,
	// pool exhaustion, deadlocks, connection resets.
	KindTransient ErrorKind = "transient"
	// KindPermanent errors never benefit from retry: authentication,
	// missing schema objects, constraint violations.
	KindPermanent ErrorKind = "permanent"
)

// Classifier decides whether an error is worth retrying.
type Classifier func(error) ErrorKind

// DefaultClassifier classifies Postgres and network errors.
//
// SQLSTATE classes: 40xxx (deadlock, serialization) and 57Pxx (admin
// shutdown, crash) plus 53xxx (insufficient resources, includes pool
// exhaustion on the server side) are transient. 28xxx (auth), 42501
// (permission), 3D/3F/42P01 (missing objects), 23xxx (constraints), and
// 22xxx (bad input) are permanent. Unknown database errors default to
// permanent so a genuine bug is surfaced instead of hammered.
func DefaultClassifier(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return KindTransient
		case strings.HasPrefix(pgErr.Code, "57P"), strings.HasPrefix(pgErr.Code, "53"):
			return KindTransient
		case strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "42501":
			return KindPermanent
		case pgErr.Code == "42P01", strings.HasPrefix(pgErr.Code, "3D"), strings.HasPrefix(pgErr.Code, "3F"):
			return KindPermanent
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			return KindPermanent
		default:
			return KindPermanent
		}
	}

	// Context expiry on the caller's side is permanent from the wrapper's
	// point of view: no further attempts are issued after cancellation.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return KindPermanent
	}
	return KindPermanent
}

// retryDelays is the fixed backoff ladder between attempts.
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// maxAttempts bounds total attempts, first call included.
const maxAttempts = 3

// Retryer retries transient failures around engine and adapter calls.
type Retryer struct {
	classify Classifier
	logger   *zap.Logger

	// sleep is swapped out by tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a Retryer with the default classifier.
func NewRetryer(logger *zap.Logger) *Retryer {
	return NewRetryerWithClassifier(logger, DefaultClassifier)
}

// NewRetryerWithClassifier creates a Retryer with a custom classifier.
func NewRetryerWithClassifier(logger *zap.Logger, classify Classifier) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{
		classify: classify,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do invokes fn up to maxAttempts times. Permanent errors propagate on
// first occurrence; transient errors are retried after 1s then 2s then 4s.
// Cancellation during backoff stops further attempts.
func (r *Retryer) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("operation recovered after retries",
					zap.String("op", op),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		lastErr = err

		kind := r.classify(err)
		RetryAttemptsTotal.WithLabelValues(op, string(kind)).Inc()
		if kind == KindPermanent {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := retryDelays[attempt-1]
		r.logger.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// DoValue is Do for calls returning a value.
func DoValue[T any](ctx context.Context, r *Retryer, op string, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func() error {
		var innerErr error
		out, innerErr = fn()
		return innerErr
	})
	return out, err
}

// retryingStore decorates a Store with the retry policy. The factory wraps
// every backend it builds, so callers never see raw transient failures.
type retryingStore struct {
	inner   Store
	retryer *Retryer
}

// NewRetryingStore wraps a store with transparent retries.
func NewRetryingStore(inner Store, retryer *Retryer) Store {
	return &retryingStore{inner: inner, retryer: retryer}
}

func (s *retryingStore) Add(ctx context.Context, records []Record, policy ConflictPolicy) ([]string, error) {
	return DoValue(ctx, s.retryer, "add", func() ([]string, error) {
		return s.inner.Add(ctx, records, policy)
	})
}

func (s *retryingStore) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	return DoValue(ctx, s.retryer, "search", func() ([]SearchResult, error) {
		return s.inner.Search(ctx, query, k, filter)
	})
}

func (s *retryingStore) Delete(ctx context.Context, ids []string, filter Filter) (int64, error) {
	return DoValue(ctx, s.retryer, "delete", func() (int64, error) {
		return s.inner.Delete(ctx, ids, filter)
	})
}

func (s *retryingStore) Stats(ctx context.Context) (*Stats, error) {
	return DoValue(ctx, s.retryer, "stats", func() (*Stats, error) {
		return s.inner.Stats(ctx)
	})
}

func (s *retryingStore) EnsureSchema(ctx context.Context) error {
	return s.retryer.Do(ctx, "ensure_schema", func() error {
		return s.inner.EnsureSchema(ctx)
	})
}

func (s *retryingStore) Close() error {
	return s.inner.Close()
}
