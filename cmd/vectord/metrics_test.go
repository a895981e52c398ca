package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

func TestMetricsServerServesRegisteredCollectors(t *testing.T) {
	// Touch a collector so its series exists in the default registry.
	vectorstore.OperationsTotal.WithLabelValues("search", "success").Inc()

	srv := newMetricsServer("127.0.0.1:0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vectord_store_operations_total")
}

func TestMetricsServerUnknownPath(t *testing.T) {
	srv := newMetricsServer("127.0.0.1:0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
