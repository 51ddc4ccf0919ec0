package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single configuration file loaded from the config dir.
const configFileName = "condenser.yaml"

// DefaultConfig returns the complete built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Batch:        DefaultBatchConfig(),
		Segmentation: DefaultSegmentationConfig(),
		Merging:      DefaultMergingConfig(),
		Provider:     DefaultProviderConfig(),
		Retention:    DefaultRetentionConfig(),
		Server:       DefaultServerConfig(),
	}
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read condenser.yaml from configDir (missing file → pure defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized",
		"provider", stats.Provider,
		"concurrency_limit", stats.ConcurrencyLimit,
		"max_segment_length", stats.MaxSegmentLength,
		"merge_strategy", stats.MergeStrategy)

	return cfg, nil
}

// load reads and merges the configuration file (internal, not exported).
func load(configDir string) (*Config, error) {
	defaults := DefaultConfig()

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("No configuration file found, using built-in defaults", "path", path)
			return defaults, nil
		}
		return nil, NewLoadError(configFileName, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("%w: %w", ErrInvalidYAML, err))
	}

	// User values win; zero-valued and missing fields fall back to defaults.
	if err := mergo.Merge(&user, *defaults); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("merging defaults: %w", err))
	}

	return &user, nil
}
