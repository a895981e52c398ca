package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy is a test double with a canned response.
type stubStrategy struct {
	method   Method
	identity string
	err      error
	calls    int
}

func (s *stubStrategy) Method() Method { return s.method }

func (s *stubStrategy) Detect(ctx context.Context) (string, error) {
	s.calls++
	return s.identity, s.err
}

func TestDetectFirstValidWins(t *testing.T) {
	first := &stubStrategy{method: MethodMetadata, identity: "svc@project.iam.gserviceaccount.com"}
	second := &stubStrategy{method: MethodADC, identity: "other@example.com"}
	r := NewResolverWithStrategies(nil, first, second)

	res, err := r.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "svc@project.iam.gserviceaccount.com", res.Identity)
	assert.Equal(t, MethodMetadata, res.Method)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, second.calls, "later strategies must not run once one succeeds")
}

func TestDetectSkipsPlaceholder(t *testing.T) {
	// The metadata server reports "default" when the service account alias
	// is unconfigured; the resolver must never accept it as valid.
	first := &stubStrategy{method: MethodMetadata, identity: "default"}
	second := &stubStrategy{method: MethodGcloud, identity: "ops@example.com"}
	r := NewResolverWithStrategies(nil, first, second)

	res, err := r.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", res.Identity)
	assert.Equal(t, MethodGcloud, res.Method)
}

func TestDetectSkipsFailingStrategies(t *testing.T) {
	first := &stubStrategy{method: MethodMetadata, err: errors.New("metadata unreachable")}
	second := &stubStrategy{method: MethodADC, identity: ""}
	third := &stubStrategy{method: MethodGcloud, identity: "ops@example.com"}
	r := NewResolverWithStrategies(nil, first, second, third)

	res, err := r.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodGcloud, res.Method)
}

func TestDetectExhaustedChain(t *testing.T) {
	r := NewResolverWithStrategies(nil,
		&stubStrategy{method: MethodMetadata, identity: "default"},
		&stubStrategy{method: MethodADC},
		&stubStrategy{method: MethodGcloud, identity: "not-a-principal"},
	)

	res, err := r.Detect(context.Background())
	require.ErrorIs(t, err, ErrNoIdentity)
	assert.Nil(t, res)

	// Terminal state is still recorded for diagnostics.
	last := r.Last()
	require.NotNil(t, last)
	assert.Equal(t, MethodUnresolved, last.Method)
	assert.False(t, last.Valid)
}

func TestLastDoesNotRerunDetection(t *testing.T) {
	s := &stubStrategy{method: MethodMetadata, identity: "svc@project.iam.gserviceaccount.com"}
	r := NewResolverWithStrategies(nil, s)

	_, err := r.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, s.calls)

	for i := 0; i < 3; i++ {
		last := r.Last()
		require.NotNil(t, last)
		assert.True(t, last.Valid)
	}
	assert.Equal(t, 1, s.calls)
}

func TestValidIdentity(t *testing.T) {
	assert.True(t, ValidIdentity("svc@project.iam.gserviceaccount.com"))
	assert.True(t, ValidIdentity("user@example.com"))
	assert.False(t, ValidIdentity(""))
	assert.False(t, ValidIdentity("default"))
	assert.False(t, ValidIdentity("no-separator"))
}

func TestDatabaseUser(t *testing.T) {
	assert.Equal(t, "svc@project.iam",
		DatabaseUser("svc@project.iam.gserviceaccount.com"))
	assert.Equal(t, "user@example.com", DatabaseUser("user@example.com"))
}

func TestGcloudStrategyUnsetAccount(t *testing.T) {
	s := &gcloudStrategy{run: func(ctx context.Context) (string, error) {
		return "(unset)\n", nil
	}}
	identity, err := s.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, identity)
}

func TestADCStrategyServiceAccount(t *testing.T) {
	s := &adcStrategy{findCredentials: func(ctx context.Context) ([]byte, error) {
		return []byte(`{"type":"service_account","client_email":"svc@p.iam.gserviceaccount.com"}`), nil
	}}
	identity, err := s.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "svc@p.iam.gserviceaccount.com", identity)
}

func TestMetadataStrategyOffGCE(t *testing.T) {
	s := &metadataStrategy{
		onGCE: func() bool { return false },
		email: func(ctx context.Context) (string, error) {
			t.Fatal("email must not be queried off GCE")
			return "", nil
		},
	}
	identity, err := s.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, identity)
}
