package config

import "time"

// ProviderConfig selects and configures the summarization backend.
type ProviderConfig struct {
	// AIProvider is "ollama" (local model server) or "openai" (hosted).
	AIProvider string `yaml:"ai_provider"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OllamaConfig configures the local model server backend.
type OllamaConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	PromptTemplate string        `yaml:"prompt_template"`
	Timeout        time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures the hosted OpenAI-compatible backend.
// The API key is read from the environment variable named by APIKeyEnv.
type OpenAIConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Model          string        `yaml:"model"`
	PromptTemplate string        `yaml:"prompt_template"`
	Timeout        time.Duration `yaml:"timeout"`
}

// DefaultProviderConfig returns the built-in provider defaults.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		AIProvider: "ollama",
		Ollama: OllamaConfig{
			Endpoint: "http://localhost:11434",
			Model:    "llama3.1",
			Timeout:  120 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Endpoint:  "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o-mini",
			Timeout:   120 * time.Second,
		},
	}
}
