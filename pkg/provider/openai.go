package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/condenserhq/condenser/pkg/config"
)

// OpenAI is the hosted OpenAI-compatible backend. Any service exposing the
// chat completions API works, so the endpoint is configurable.
type OpenAI struct {
	endpoint       string
	apiKey         string
	model          string
	promptTemplate string
	httpClient     *http.Client
}

// NewOpenAI creates the hosted provider. The API key is resolved once at
// construction from the environment variable named in the config.
func NewOpenAI(cfg config.OpenAIConfig) (*OpenAI, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("openai: endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key environment variable %s is not set", cfg.APIKeyEnv)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAI{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:         apiKey,
		model:          cfg.Model,
		promptTemplate: cfg.PromptTemplate,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

// Name implements Summarizer.
func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const openaiSystemPrompt = "You are a summarization engine. Produce faithful, concise summaries of the text you are given."

// Summarize implements Summarizer.
func (o *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	const op = "openai.summarize"

	body, err := json.Marshal(chatCompletionRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: openaiSystemPrompt},
			{Role: "user", Content: buildPrompt(o.promptTemplate, text)},
		},
	})
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", NewError(kind, op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewError(KindProtocol, op, fmt.Errorf("decoding response: %w", err))
	}
	if out.Error != nil {
		return "", NewError(KindUnavailable, op, errors.New(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", NewError(KindProtocol, op, errors.New("response has no choices"))
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", NewError(KindProtocol, op, errors.New("empty completion from model"))
	}

	return content, nil
}

// Health implements Summarizer by listing available models, which also
// verifies the API key.
func (o *OpenAI) Health(ctx context.Context) error {
	const op = "openai.health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/models", nil)
	if err != nil {
		return NewError(KindInternal, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

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
