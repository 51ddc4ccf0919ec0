package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644))
	return dir
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Batch.DefaultConcurrentLimit)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentLimit)
	assert.Equal(t, 3, cfg.Batch.MaxRetries)
	assert.Equal(t, 2048, cfg.Segmentation.TriggerLength)
	assert.Equal(t, 2000, cfg.Segmentation.MaxSegmentLength)
	assert.Equal(t, "balanced", cfg.Merging.DefaultStrategy)
	assert.Equal(t, "ollama", cfg.Provider.AIProvider)
	assert.Equal(t, time.Hour, cfg.Retention.BatchTTL)
	assert.True(t, cfg.Segmentation.Preserve())
	assert.True(t, cfg.Segmentation.LLMAssist())
	assert.True(t, cfg.Batch.RealtimeUpdates())
}

func TestInitialize_UserOverrides(t *testing.T) {
	dir := writeConfig(t, `
batch_processing:
  default_concurrent_limit: 3
  max_retries: 1
text_segmentation:
  max_segment_length: 1500
  preserve_paragraphs: false
summary_merging:
  default_strategy: concise
provider:
  ai_provider: openai
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Batch.DefaultConcurrentLimit)
	assert.Equal(t, 1, cfg.Batch.MaxRetries)
	// Untouched fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.Batch.DefaultTimeout)
	assert.Equal(t, 1500, cfg.Segmentation.MaxSegmentLength)
	assert.False(t, cfg.Segmentation.Preserve())
	assert.Equal(t, "concise", cfg.Merging.DefaultStrategy)
	assert.Equal(t, "openai", cfg.Provider.AIProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.OpenAI.Model)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "batch_processing: [not a mapping")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, configFileName)
}

func TestInitialize_ValidationFailure(t *testing.T) {
	dir := writeConfig(t, `
batch_processing:
  default_concurrent_limit: 9
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "default_concurrent_limit")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CONDENSER_TEST_MODEL", "llama3.1:70b")

	out := ExpandEnv([]byte("model: ${CONDENSER_TEST_MODEL}"))
	assert.Equal(t, "model: llama3.1:70b", string(out))

	// Missing variables without a default expand to empty.
	out = ExpandEnv([]byte("key: ${CONDENSER_TEST_UNSET_VAR}"))
	assert.Equal(t, "key: ", string(out))

	// The default applies when the variable is unset or empty.
	out = ExpandEnv([]byte("host: ${CONDENSER_TEST_UNSET_VAR:-localhost}"))
	assert.Equal(t, "host: localhost", string(out))
	t.Setenv("CONDENSER_TEST_EMPTY", "")
	out = ExpandEnv([]byte("host: ${CONDENSER_TEST_EMPTY:-fallback:8080}"))
	assert.Equal(t, "host: fallback:8080", string(out))

	// A set variable wins over its default.
	out = ExpandEnv([]byte("model: ${CONDENSER_TEST_MODEL:-gemma}"))
	assert.Equal(t, "model: llama3.1:70b", string(out))

	// Unbraced $ passes through untouched.
	out = ExpandEnv([]byte(`pattern: "^secret.*$" price: $5`))
	assert.Equal(t, `pattern: "^secret.*$" price: $5`, string(out))
}
