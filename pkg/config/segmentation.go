package config

// SegmentationConfig controls how documents are split into segments.
type SegmentationConfig struct {
	// TriggerLength is the document length (chars) above which segmentation
	// kicks in. Shorter documents become a single segment.
	TriggerLength int `yaml:"trigger_length"`

	// MaxSegmentLength bounds segment content length in characters.
	// Special structures (code, tables) may exceed it up to 1.5x.
	MaxSegmentLength int `yaml:"max_segment_length"`

	// ContextLimitBuffer is the lower bound factor for hard-splitting an
	// oversized sentence at a terminator (split window [max*buffer, max]).
	ContextLimitBuffer float64 `yaml:"context_limit_buffer"`

	// PreserveParagraphs splits on blank-line boundaries first.
	PreserveParagraphs *bool `yaml:"preserve_paragraphs"`

	// EnableLLMSegmentation enables the LLM-assisted path with silent
	// fallback to the rule-based splitter.
	EnableLLMSegmentation *bool `yaml:"enable_llm_segmentation"`

	// SentenceEndMarkers are the terminators recognized when splitting.
	SentenceEndMarkers []string `yaml:"sentence_end_markers"`

	// GenerateAutoTitles derives segment titles from the first sentence.
	GenerateAutoTitles *bool `yaml:"generate_auto_titles"`
}

// Preserve resolves PreserveParagraphs (default true).
func (c *SegmentationConfig) Preserve() bool {
	return c.PreserveParagraphs == nil || *c.PreserveParagraphs
}

// LLMAssist resolves EnableLLMSegmentation (default true).
func (c *SegmentationConfig) LLMAssist() bool {
	return c.EnableLLMSegmentation == nil || *c.EnableLLMSegmentation
}

// AutoTitles resolves GenerateAutoTitles (default true).
func (c *SegmentationConfig) AutoTitles() bool {
	return c.GenerateAutoTitles == nil || *c.GenerateAutoTitles
}

// DefaultSegmentationConfig returns the built-in segmentation defaults.
func DefaultSegmentationConfig() *SegmentationConfig {
	return &SegmentationConfig{
		TriggerLength:      2048,
		MaxSegmentLength:   2000,
		ContextLimitBuffer: 0.8,
		SentenceEndMarkers: []string{".", "。", "!", "！", "?", "？"},
	}
}
