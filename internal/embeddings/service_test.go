package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectord/internal/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewService(config.EmbeddingsConfig{BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresBaseURL(t *testing.T) {
	_, err := NewService(config.EmbeddingsConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedDocuments(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}, {0.3, 0.4}})
	})

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := svc.EmbedDocuments(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQuery(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Inputs)

		json.NewEncoder(w).Encode([][]float32{{0.5, 0.6}})
	})

	vector, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vector)
}

func TestEmbedQueryServerError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := svc.EmbedQuery(context.Background(), "hello")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestEmbedSendsAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([][]float32{{1}})
	}))
	t.Cleanup(server.Close)

	cfg := config.EmbeddingsConfig{BaseURL: server.URL}
	require.NoError(t, cfg.APIKey.UnmarshalText([]byte("sekrit")))
	svc, err := NewService(cfg)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
}
