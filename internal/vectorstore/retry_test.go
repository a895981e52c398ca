package vectorstore

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRetryer returns a retryer whose sleeps are recorded, not slept.
func newTestRetryer(t *testing.T) (*Retryer, *[]time.Duration) {
	t.Helper()
	r := NewRetryer(nil)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays
}

func TestRetryTransientTwiceThenSuccess(t *testing.T) {
	r, delays := newTestRetryer(t)

	calls := 0
	err := r.Do(context.Background(), "search", func() error {
		calls++
		if calls < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestRetryPermanentFailsImmediately(t *testing.T) {
	r, delays := newTestRetryer(t)

	permErr := &pgconn.PgError{Code: "42501", Message: "permission denied"}
	calls := 0
	err := r.Do(context.Background(), "add", func() error {
		calls++
		return permErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are never retried")
	assert.Empty(t, *delays)
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	r, delays := newTestRetryer(t)

	transient := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	calls := 0
	err := r.Do(context.Background(), "delete", func() error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestRetryStopsOnCancellation(t *testing.T) {
	r := NewRetryer(nil)
	r.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Do(ctx, "search", func() error {
			calls++
			cancel() // cancel while the wrapper is about to back off
			return syscall.ECONNREFUSED
		})
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "no further attempts after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation during backoff")
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	r, _ := newTestRetryer(t)

	calls := 0
	got, err := DoValue(context.Background(), r, "stats", func() (int, error) {
		calls++
		if calls == 1 {
			return 0, syscall.ECONNRESET
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindTransient},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, KindTransient},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindTransient},
		{"too many connections", &pgconn.PgError{Code: "53300"}, KindTransient},
		{"invalid password", &pgconn.PgError{Code: "28P01"}, KindPermanent},
		{"permission denied", &pgconn.PgError{Code: "42501"}, KindPermanent},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, KindPermanent},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindPermanent},
		{"bad input", &pgconn.PgError{Code: "22P02"}, KindPermanent},
		{"connection reset", syscall.ECONNRESET, KindTransient},
		{"connection refused", syscall.ECONNREFUSED, KindTransient},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("down")}, KindTransient},
		{"context canceled", context.Canceled, KindPermanent},
		{"deadline exceeded", context.DeadlineExceeded, KindPermanent},
		{"unknown error", errors.New("mystery"), KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier(tt.err))
		})
	}
}

// flakyStore fails a configurable number of times per op before handing off
// to a canned response.
type flakyStore struct {
	failures int
	calls    int
	results  []SearchResult
}

func (f *flakyStore) Add(ctx context.Context, records []Record, policy ConflictPolicy) ([]string, error) {
	return nil, nil
}

func (f *flakyStore) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, syscall.ECONNRESET
	}
	return f.results, nil
}

func (f *flakyStore) Delete(ctx context.Context, ids []string, filter Filter) (int64, error) {
	return 0, nil
}
func (f *flakyStore) Stats(ctx context.Context) (*Stats, error)    { return &Stats{}, nil }
func (f *flakyStore) EnsureSchema(ctx context.Context) error       { return nil }
func (f *flakyStore) Close() error                                 { return nil }

func TestRetryingStoreSearch(t *testing.T) {
	inner := &flakyStore{failures: 2, results: []SearchResult{{ExternalID: "a#0", Score: 0.9}}}
	retryer, delays := newTestRetryer(t)
	store := NewRetryingStore(inner, retryer)

	results, err := store.Search(context.Background(), []float32{1, 2}, 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "a#0", results[0].ExternalID)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}
