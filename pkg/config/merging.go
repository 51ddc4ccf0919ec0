package config

// MergingConfig controls how per-segment summaries are combined.
type MergingConfig struct {
	// DefaultStrategy is one of "concise", "balanced", "detailed", "custom".
	DefaultStrategy string `yaml:"default_strategy"`

	// TargetLengthRatio is the target output/input length ratio.
	TargetLengthRatio float64 `yaml:"target_length_ratio"`

	// LengthTolerance is the accepted deviation around the target length.
	LengthTolerance float64 `yaml:"length_tolerance"`

	// MinTargetLength / MaxTargetLength / DefaultTargetLength bound the
	// absolute output length in characters.
	MinTargetLength     int `yaml:"min_target_length"`
	MaxTargetLength     int `yaml:"max_target_length"`
	DefaultTargetLength int `yaml:"default_target_length"`

	// SimilarityThreshold is the Jaccard score above which adjacent segment
	// summaries are collapsed.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// ContextWindow is how many neighboring segments dedup considers.
	ContextWindow int `yaml:"context_window"`

	// MinSegmentsForLLM gates the optional LLM coherence pass.
	MinSegmentsForLLM int `yaml:"min_segments_for_llm"`

	// FallbackToRuleBased keeps the rule-based output on LLM errors.
	FallbackToRuleBased *bool `yaml:"fallback_to_rule_based"`

	// Quality minima; the rule-based draft is returned when not met.
	MinCoherence    float64 `yaml:"min_coherence"`
	MinCompleteness float64 `yaml:"min_completeness"`
	MinConciseness  float64 `yaml:"min_conciseness"`
	MinAccuracy     float64 `yaml:"min_accuracy"`
}

// Fallback resolves FallbackToRuleBased (default true).
func (c *MergingConfig) Fallback() bool {
	return c.FallbackToRuleBased == nil || *c.FallbackToRuleBased
}

// DefaultMergingConfig returns the built-in merging defaults.
func DefaultMergingConfig() *MergingConfig {
	return &MergingConfig{
		DefaultStrategy:     "balanced",
		TargetLengthRatio:   0.6,
		LengthTolerance:     0.15,
		MinTargetLength:     100,
		MaxTargetLength:     2000,
		DefaultTargetLength: 800,
		SimilarityThreshold: 0.8,
		ContextWindow:       3,
		MinSegmentsForLLM:   5,
		MinCoherence:        0.7,
		MinCompleteness:     0.8,
		MinConciseness:      0.6,
		MinAccuracy:         0.75,
	}
}
