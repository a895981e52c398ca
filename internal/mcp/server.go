// Package mcp exposes the vector store over the Model Context Protocol.
//
// The tool handlers are boundary-thin: chunk, embed, then hand off to the
// Store. All blocking database work runs through the bounded worker pool
// so a burst of tool calls cannot starve the connection pool.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/chunker"
	"github.com/fyrsmithlabs/vectord/internal/embeddings"
	"github.com/fyrsmithlabs/vectord/internal/pool"
	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "vectord")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vectord",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server serves the semantic_search and ingest_document tools.
type Server struct {
	mcp      *mcp.Server
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter *chunker.Chunker
	workers  *pool.Pool
	logger   *zap.Logger
}

// NewServer creates an MCP server over the given components.
func NewServer(
	cfg *Config,
	store vectorstore.Store,
	embedder embeddings.Embedder,
	splitter *chunker.Chunker,
	workers *pool.Pool,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if workers == nil {
		return nil, fmt.Errorf("worker pool is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		store:    store,
		embedder: embedder,
		splitter: splitter,
		workers:  workers,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
