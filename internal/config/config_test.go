package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Database.Instance = "my-project:us-central1:vectors"
	cfg.Database.Name = "ragdb"
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, BackendStandard, cfg.Store.Backend)
	assert.Equal(t, "vectord_default", cfg.Store.Collection)
	assert.Equal(t, 768, cfg.Store.VectorSize)
	assert.Equal(t, 5, cfg.Database.PoolSize)
	assert.Equal(t, 2, cfg.Database.MaxOverflow)
	assert.Equal(t, 30*time.Minute, cfg.Database.RecycleAge.Duration())
	assert.Equal(t, 30*time.Second, cfg.Database.AcquireTimeout.Duration())
	assert.Equal(t, 10*time.Second, cfg.Database.DialTimeout.Duration())
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
}

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"legacy is valid", BackendLegacy, false},
		{"standard is valid", BackendStandard, false},
		{"empty is invalid", "", true},
		{"typo is invalid", "standrad", true},
		{"unknown is invalid", "qdrant", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Store.Backend = tt.backend

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				// The error must enumerate the valid values for operators.
				assert.Contains(t, err.Error(), BackendLegacy)
				assert.Contains(t, err.Error(), BackendStandard)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDatabaseCoordinates(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Instance = ""
	require.Error(t, cfg.Validate())
	assert.Contains(t, cfg.Validate().Error(), "instance connection name")

	cfg = validConfig()
	cfg.Database.Name = ""
	require.Error(t, cfg.Validate())
}

func TestValidatePoolTuning(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PoolSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Database.MaxOverflow = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Database.RecycleAge = Duration(-time.Second)
	assert.Error(t, cfg.Validate())
}

func TestValidateChunker(t *testing.T) {
	cfg := validConfig()
	cfg.Chunker.ChunkSize = 100
	cfg.Chunker.ChunkOverlap = 100
	assert.Error(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: legacy
  collection: docs
  vector_size: 384
database:
  instance: proj:region:inst
  name: vectors
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendLegacy, cfg.Store.Backend)
	assert.Equal(t, "docs", cfg.Store.Collection)
	assert.Equal(t, 384, cfg.Store.VectorSize)
	assert.Equal(t, "proj:region:inst", cfg.Database.Instance)
	// Defaults still applied for unset fields.
	assert.Equal(t, 5, cfg.Database.PoolSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: legacy
database:
  instance: proj:region:inst
  name: vectors
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("VECTORD_STORE_BACKEND", "standard")
	t.Setenv("VECTORD_DATABASE_POOL_SIZE", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendStandard, cfg.Store.Backend)
	assert.Equal(t, 12, cfg.Database.PoolSize)
}

func TestLoadTelemetryDefaultsOn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  instance: proj:region:inst
  name: vectors
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Server.Telemetry)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.TelemetryAddr)

	// An explicit false must win over the default.
	t.Setenv("VECTORD_SERVER_TELEMETRY", "false")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Server.Telemetry)
}

func TestLoadInvalidBackendFailsBeforeAnyConnection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  backend: nosuch
database:
  instance: proj:region:inst
  name: vectors
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid store backend")
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
}
