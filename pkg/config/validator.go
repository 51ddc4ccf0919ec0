package config

import "fmt"

// validStrategies are the accepted summary merging strategies.
var validStrategies = map[string]bool{
	"concise":  true,
	"balanced": true,
	"detailed": true,
	"custom":   true,
}

// validProviders are the accepted backend selections.
var validProviders = map[string]bool{
	"ollama": true,
	"openai": true,
}

// validate checks the merged configuration for out-of-range or
// inconsistent values.
func validate(cfg *Config) error {
	if err := validateBatch(cfg.Batch); err != nil {
		return err
	}
	if err := validateSegmentation(cfg.Segmentation); err != nil {
		return err
	}
	if err := validateMerging(cfg.Merging); err != nil {
		return err
	}
	if err := validateProvider(cfg.Provider); err != nil {
		return err
	}
	return nil
}

func validateBatch(c *BatchConfig) error {
	if c.DefaultConcurrentLimit < 1 {
		return NewValidationError("batch_processing", "default_concurrent_limit",
			fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidValue, c.DefaultConcurrentLimit))
	}
	if c.DefaultConcurrentLimit > c.MaxConcurrentLimit {
		return NewValidationError("batch_processing", "default_concurrent_limit",
			fmt.Errorf("%w: exceeds max_concurrent_limit %d", ErrInvalidValue, c.MaxConcurrentLimit))
	}
	if c.MaxRetries < 0 {
		return NewValidationError("batch_processing", "max_retries",
			fmt.Errorf("%w: must be >= 0, got %d", ErrInvalidValue, c.MaxRetries))
	}
	if c.BackoffMultiplier < 1 {
		return NewValidationError("batch_processing", "backoff_multiplier",
			fmt.Errorf("%w: must be >= 1, got %v", ErrInvalidValue, c.BackoffMultiplier))
	}
	if c.JitterPct < 0 || c.JitterPct >= 1 {
		return NewValidationError("batch_processing", "jitter_pct",
			fmt.Errorf("%w: must be in [0, 1), got %v", ErrInvalidValue, c.JitterPct))
	}
	return nil
}

func validateSegmentation(c *SegmentationConfig) error {
	if c.MaxSegmentLength < 500 || c.MaxSegmentLength > 5000 {
		return NewValidationError("text_segmentation", "max_segment_length",
			fmt.Errorf("%w: must be in [500, 5000], got %d", ErrInvalidValue, c.MaxSegmentLength))
	}
	if c.TriggerLength < 1 {
		return NewValidationError("text_segmentation", "trigger_length",
			fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidValue, c.TriggerLength))
	}
	if c.ContextLimitBuffer <= 0 || c.ContextLimitBuffer > 1 {
		return NewValidationError("text_segmentation", "context_limit_buffer",
			fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidValue, c.ContextLimitBuffer))
	}
	if len(c.SentenceEndMarkers) == 0 {
		return NewValidationError("text_segmentation", "sentence_end_markers",
			fmt.Errorf("%w: at least one marker required", ErrInvalidValue))
	}
	return nil
}

func validateMerging(c *MergingConfig) error {
	if !validStrategies[c.DefaultStrategy] {
		return NewValidationError("summary_merging", "default_strategy",
			fmt.Errorf("%w: unknown strategy %q", ErrInvalidValue, c.DefaultStrategy))
	}
	if c.TargetLengthRatio <= 0 || c.TargetLengthRatio > 1 {
		return NewValidationError("summary_merging", "target_length_ratio",
			fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidValue, c.TargetLengthRatio))
	}
	if c.LengthTolerance <= 0 || c.LengthTolerance >= 1 {
		return NewValidationError("summary_merging", "length_tolerance",
			fmt.Errorf("%w: must be in (0, 1), got %v", ErrInvalidValue, c.LengthTolerance))
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return NewValidationError("summary_merging", "similarity_threshold",
			fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidValue, c.SimilarityThreshold))
	}
	if c.MinTargetLength > c.MaxTargetLength {
		return NewValidationError("summary_merging", "min_target_length",
			fmt.Errorf("%w: exceeds max_target_length %d", ErrInvalidValue, c.MaxTargetLength))
	}
	return nil
}

func validateProvider(c *ProviderConfig) error {
	if !validProviders[c.AIProvider] {
		return NewValidationError("provider", "ai_provider",
			fmt.Errorf("%w: unknown provider %q", ErrInvalidValue, c.AIProvider))
	}
	switch c.AIProvider {
	case "ollama":
		if c.Ollama.Endpoint == "" {
			return NewValidationError("provider", "ollama.endpoint",
				fmt.Errorf("%w: endpoint required", ErrInvalidValue))
		}
		if c.Ollama.Model == "" {
			return NewValidationError("provider", "ollama.model",
				fmt.Errorf("%w: model required", ErrInvalidValue))
		}
	case "openai":
		if c.OpenAI.Endpoint == "" {
			return NewValidationError("provider", "openai.endpoint",
				fmt.Errorf("%w: endpoint required", ErrInvalidValue))
		}
		if c.OpenAI.Model == "" {
			return NewValidationError("provider", "openai.model",
				fmt.Errorf("%w: model required", ErrInvalidValue))
		}
	}
	return nil
}
