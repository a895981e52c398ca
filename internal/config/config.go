// Package config provides configuration loading for vectord.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Validation is fail-fast: an invalid backend value or missing
// database coordinates abort startup before any connection attempt.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Backend values accepted by the store selector.
const (
	BackendLegacy   = "legacy"
	BackendStandard = "standard"
)

// Config holds the complete vectord configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	// Workers bounds the number of blocking store operations that may run
	// concurrently on behalf of tool calls.
	Workers         int      `koanf:"workers"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// Telemetry toggles the Prometheus /metrics endpoint. The MCP surface
	// runs on stdio, so metrics need their own listener.
	Telemetry bool `koanf:"telemetry"`

	// TelemetryAddr is the listen address for /metrics.
	TelemetryAddr string `koanf:"telemetry_addr"`
}

// DatabaseConfig holds Cloud SQL instance coordinates and pool tuning.
type DatabaseConfig struct {
	// Instance is the Cloud SQL instance connection name
	// (project:region:instance).
	Instance string `koanf:"instance"`

	// Name is the database name.
	Name string `koanf:"name"`

	// PoolSize is the steady-state connection count.
	PoolSize int `koanf:"pool_size"`

	// MaxOverflow is how many connections beyond PoolSize the pool may
	// open under load.
	MaxOverflow int `koanf:"max_overflow"`

	// RecycleAge bounds how long a physical connection is reused.
	RecycleAge Duration `koanf:"recycle_age"`

	// AcquireTimeout bounds how long an operation may queue for capacity
	// before it is rejected. Enforced at the worker gate in front of the
	// pool (pgxpool itself queues acquirers indefinitely).
	AcquireTimeout Duration `koanf:"acquire_timeout"`

	// DialTimeout bounds the physical connection handshake.
	DialTimeout Duration `koanf:"dial_timeout"`

	// PrivateIP dials the instance's private address instead of public.
	PrivateIP bool `koanf:"private_ip"`
}

// StoreConfig selects and parameterizes the vector store backend.
type StoreConfig struct {
	// Backend selects the physical schema: "legacy" or "standard".
	Backend string `koanf:"backend"`

	// Collection is the target collection name (standard backend) or the
	// logical corpus name (legacy backend).
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimensionality. Every write must match.
	VectorSize int `koanf:"vector_size"`
}

// EmbeddingsConfig holds the external embedding service coordinates.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// ChunkerConfig holds text splitter settings.
type ChunkerConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// LoggingConfig holds logger settings (level/format detail lives in
// internal/logging; this only carries what the loader reads from env).
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Workers == 0 {
		c.Server.Workers = 8
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Server.TelemetryAddr == "" {
		c.Server.TelemetryAddr = "127.0.0.1:9090"
	}
	if c.Database.PoolSize == 0 {
		c.Database.PoolSize = 5
	}
	if c.Database.MaxOverflow == 0 {
		c.Database.MaxOverflow = 2
	}
	if c.Database.RecycleAge == 0 {
		c.Database.RecycleAge = Duration(30 * time.Minute)
	}
	if c.Database.AcquireTimeout == 0 {
		c.Database.AcquireTimeout = Duration(30 * time.Second)
	}
	if c.Database.DialTimeout == 0 {
		c.Database.DialTimeout = Duration(10 * time.Second)
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendStandard
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "vectord_default"
	}
	if c.Store.VectorSize == 0 {
		c.Store.VectorSize = 768
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8080"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-base-en-v1.5"
	}
	if c.Chunker.ChunkSize == 0 {
		c.Chunker.ChunkSize = 1000
	}
	if c.Chunker.ChunkOverlap == 0 {
		c.Chunker.ChunkOverlap = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration.
//
// The backend value is checked here, before any dialer or pool is built, so
// a typo fails the process at startup rather than on first request.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendLegacy, BackendStandard:
	default:
		return fmt.Errorf("invalid store backend %q (valid values: %s, %s)",
			c.Store.Backend, BackendLegacy, BackendStandard)
	}

	if c.Database.Instance == "" {
		return errors.New("database instance connection name is required (project:region:instance)")
	}
	if c.Database.Name == "" {
		return errors.New("database name is required")
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("pool size must be >= 1, got %d", c.Database.PoolSize)
	}
	if c.Database.MaxOverflow < 0 {
		return fmt.Errorf("max overflow must be >= 0, got %d", c.Database.MaxOverflow)
	}
	if c.Database.RecycleAge.Duration() <= 0 {
		return errors.New("recycle age must be positive")
	}
	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.Store.VectorSize)
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server workers must be >= 1, got %d", c.Server.Workers)
	}
	if c.Server.Telemetry && c.Server.TelemetryAddr == "" {
		return errors.New("telemetry address is required when telemetry is enabled")
	}
	return nil
}
