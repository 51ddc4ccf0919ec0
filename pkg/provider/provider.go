// Package provider defines the summarization backend contract and its two
// concrete implementations: a local model server (ollama) and a hosted
// OpenAI-compatible service. Both are safe for concurrent use.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/condenserhq/condenser/pkg/config"
)

// Summarizer is the opaque provider capability. Implementations classify
// every failure into the Kind taxonomy before returning it.
type Summarizer interface {
	// Summarize returns a summary of the given text. The context bounds
	// the call and carries cancellation.
	Summarize(ctx context.Context, text string) (string, error)

	// Health probes the backend. A nil return means the provider is
	// reachable and serving.
	Health(ctx context.Context) error

	// Name identifies the provider for logging and health reporting.
	Name() string
}

// defaultPromptTemplate is used when no template is configured. The %s verb
// receives the document text.
const defaultPromptTemplate = "Summarize the following text concisely. " +
	"Preserve key facts, figures, and proper nouns. " +
	"Begin immediately with the summary, no preamble.\n\n%s"

// New selects and constructs the configured provider.
func New(cfg *config.ProviderConfig) (Summarizer, error) {
	switch cfg.AIProvider {
	case "ollama":
		return NewOllama(cfg.Ollama)
	case "openai":
		return NewOpenAI(cfg.OpenAI)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.AIProvider)
	}
}

// buildPrompt renders a prompt template against the document text.
// Templates use the %s verb; templates without it get the text appended.
func buildPrompt(template, text string) string {
	if template == "" {
		template = defaultPromptTemplate
	}
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, text)
	}
	return template + "\n\n" + text
}
