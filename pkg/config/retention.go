package config

import "time"

// RetentionConfig controls in-memory batch retention and record cleanup.
type RetentionConfig struct {
	// BatchTTL is how long terminal batches stay in memory before the
	// cleanup loop destroys them.
	BatchTTL time.Duration `yaml:"batch_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// RecordRetentionDays is how many days finished summary records are
	// kept in the store before deletion. Zero disables record pruning.
	RecordRetentionDays int `yaml:"record_retention_days"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		BatchTTL:        1 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}
