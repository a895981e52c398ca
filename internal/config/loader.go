// Package config provides configuration loading for vectord.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces vectord environment variables.
	envPrefix = "VECTORD_"
)

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VECTORD_STORE_BACKEND, VECTORD_DATABASE_INSTANCE, ...)
//  2. YAML config file (~/.config/vectord/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables are mapped section-first:
//
//	VECTORD_STORE_BACKEND        -> store.backend
//	VECTORD_DATABASE_INSTANCE    -> database.instance
//	VECTORD_DATABASE_POOL_SIZE   -> database.pool_size
//	VECTORD_EMBEDDINGS_BASE_URL  -> embeddings.base_url
//
// Validation runs before Load returns, so callers get a fully checked config
// or an error, never a half-usable one.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// True-by-default booleans live here: ApplyDefaults cannot distinguish
	// an explicit false from an unset zero value, a defaults layer can.
	if err := k.Load(confmap.Provider(map[string]any{
		"server.telemetry": true,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "vectord", "config.yaml")
	}

	// Load from YAML file if it exists. Open once and stat via the file
	// descriptor to avoid a TOCTOU race between stat and read.
	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. The transformer splits on the
	// first underscore after the prefix: section, then field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
