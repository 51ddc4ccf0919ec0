package config

import "time"

// BatchConfig contains batch scheduler and retry configuration.
// These values control concurrency, per-call timeouts, and retry backoff.
type BatchConfig struct {
	// DefaultConcurrentLimit is the semaphore width for provider calls
	// within one batch.
	DefaultConcurrentLimit int `yaml:"default_concurrent_limit"`

	// MaxConcurrentLimit caps any per-request concurrency override.
	MaxConcurrentLimit int `yaml:"max_concurrent_limit"`

	// MaxRetries is the number of retries after the first attempt.
	// Attempts per task never exceed MaxRetries + 1.
	MaxRetries int `yaml:"max_retries"`

	// BackoffMultiplier is the exponential backoff multiplier between retries.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// BaseDelay is the first inter-retry delay.
	BaseDelay time.Duration `yaml:"base_delay"`

	// JitterPct is the randomization applied to each retry delay
	// (0.2 means ±20%).
	JitterPct float64 `yaml:"jitter_pct"`

	// DefaultTimeout bounds a single provider call.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// LongTimeout is used instead of DefaultTimeout when segment content
	// exceeds LongTimeoutThreshold characters.
	LongTimeout          time.Duration `yaml:"long_timeout"`
	LongTimeoutThreshold int           `yaml:"long_timeout_threshold"`

	// BatchTimeout is the soft wall-clock limit for one batch.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// CancellationAwait bounds how long a graceful cancel waits for a safe
	// checkpoint before behaving as forced.
	CancellationAwait time.Duration `yaml:"cancellation_await"`

	// UpdateInterval is the minimum period between forced progress emissions.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// EnableRealtimeUpdates toggles WebSocket progress delivery.
	EnableRealtimeUpdates *bool `yaml:"enable_realtime_updates"`
}

// RealtimeUpdates resolves the EnableRealtimeUpdates flag (default true).
func (c *BatchConfig) RealtimeUpdates() bool {
	return c.EnableRealtimeUpdates == nil || *c.EnableRealtimeUpdates
}

// DefaultBatchConfig returns the built-in batch defaults.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		DefaultConcurrentLimit: 2,
		MaxConcurrentLimit:     4,
		MaxRetries:             3,
		BackoffMultiplier:      2.0,
		BaseDelay:              1 * time.Second,
		JitterPct:              0.2,
		DefaultTimeout:         30 * time.Second,
		LongTimeout:            60 * time.Second,
		LongTimeoutThreshold:   4000,
		BatchTimeout:           15 * time.Minute,
		CancellationAwait:      15 * time.Second,
		UpdateInterval:         2 * time.Second,
	}
}
