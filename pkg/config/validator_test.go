package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, validate(DefaultConfig()))
}

func TestValidate_Batch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"concurrency below one", func(c *Config) { c.Batch.DefaultConcurrentLimit = 0 }, "default_concurrent_limit"},
		{"concurrency above max", func(c *Config) { c.Batch.DefaultConcurrentLimit = 5 }, "default_concurrent_limit"},
		{"negative retries", func(c *Config) { c.Batch.MaxRetries = -1 }, "max_retries"},
		{"multiplier below one", func(c *Config) { c.Batch.BackoffMultiplier = 0.5 }, "backoff_multiplier"},
		{"jitter out of range", func(c *Config) { c.Batch.JitterPct = 1.0 }, "jitter_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.field)
		})
	}
}

func TestValidate_Segmentation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Segmentation.MaxSegmentLength = 400
	err := validate(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "max_segment_length")

	cfg = DefaultConfig()
	cfg.Segmentation.MaxSegmentLength = 5001
	assert.Error(t, validate(cfg))

	cfg = DefaultConfig()
	cfg.Segmentation.SentenceEndMarkers = nil
	assert.Error(t, validate(cfg))
}

func TestValidate_Merging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merging.DefaultStrategy = "aggressive"
	err := validate(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "default_strategy")

	cfg = DefaultConfig()
	cfg.Merging.TargetLengthRatio = 1.5
	assert.Error(t, validate(cfg))
}

func TestValidate_Provider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.AIProvider = "anthropic"
	err := validate(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "ai_provider")

	cfg = DefaultConfig()
	cfg.Provider.Ollama.Model = ""
	assert.Error(t, validate(cfg))

	cfg = DefaultConfig()
	cfg.Provider.AIProvider = "openai"
	cfg.Provider.OpenAI.Endpoint = ""
	assert.Error(t, validate(cfg))
}
