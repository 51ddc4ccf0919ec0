package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/condenserhq/condenser/pkg/config"
)

// Ollama is the local model server backend. It talks to the ollama HTTP API
// with streaming disabled so a summarize call is a single request/response.
type Ollama struct {
	endpoint       string
	model          string
	promptTemplate string
	httpClient     *http.Client
}

// NewOllama creates the local model server provider.
func NewOllama(cfg config.OllamaConfig) (*Ollama, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ollama: endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("ollama: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Ollama{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		model:          cfg.Model,
		promptTemplate: cfg.PromptTemplate,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Summarizer.
func (o *Ollama) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Summarize implements Summarizer.
func (o *Ollama) Summarize(ctx context.Context, text string) (string, error) {
	const op = "ollama.summarize"

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.model,
		Prompt: buildPrompt(o.promptTemplate, text),
		Stream: false,
	})
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", NewError(kind, op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewError(KindProtocol, op, fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != "" {
		return "", NewError(KindUnavailable, op, errors.New(out.Error))
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", NewError(KindProtocol, op, errors.New("empty response from model"))
	}

	return strings.TrimSpace(out.Response), nil
}

// Health implements Summarizer by listing local models.
func (o *Ollama) Health(ctx context.Context) error {
	const op = "ollama.health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return NewError(KindInternal, op, err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return NewError(KindUnavailable, op, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
