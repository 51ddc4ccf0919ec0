// Package config loads, merges, and validates configuration for the
// condenser service. Configuration comes from a directory containing
// condenser.yaml plus environment variables expanded into the YAML.
package config

// Config is the fully resolved service configuration.
type Config struct {
	Batch        *BatchConfig        `yaml:"batch_processing"`
	Segmentation *SegmentationConfig `yaml:"text_segmentation"`
	Merging      *MergingConfig      `yaml:"summary_merging"`
	Provider     *ProviderConfig     `yaml:"provider"`
	Retention    *RetentionConfig    `yaml:"retention"`
	Server       *ServerConfig       `yaml:"server"`
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Provider         string
	ConcurrencyLimit int
	MaxSegmentLength int
	MergeStrategy    string
}

// Stats returns counts and key values of the loaded configuration.
func (c *Config) Stats() Stats {
	return Stats{
		Provider:         c.Provider.AIProvider,
		ConcurrencyLimit: c.Batch.DefaultConcurrentLimit,
		MaxSegmentLength: c.Segmentation.MaxSegmentLength,
		MergeStrategy:    c.Merging.DefaultStrategy,
	}
}
