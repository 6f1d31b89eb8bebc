package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/models"
)

// OllamaClient calls an Ollama server's /api/chat endpoint without streaming.
type OllamaClient struct {
	client *resty.Client
	model  string
	logger *zap.Logger
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) OllamaOption {
	return func(c *OllamaClient) {
		if l != nil {
			c.logger = l
		}
	}
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaClient creates a client for model served at baseURL.
func NewOllamaClient(baseURL, model string, timeout time.Duration, opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		model:  model,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Chat sends messages and returns the trimmed assistant reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	var out chatResponse
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:    c.model,
			Messages: messages,
			Options:  chatOptions{NumPredict: opts.MaxTokens, Temperature: opts.Temperature},
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("%w: ollama request failed: %v", models.ErrGenerationUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: ollama returned %d: %s", models.ErrGenerationUnavailable, resp.StatusCode(), resp.String())
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", models.ErrGenerationUnavailable, out.Error)
	}

	answer := strings.TrimSpace(out.Message.Content)
	c.logger.Debug("Generated answer",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Int("answer_runes", len([]rune(answer))),
		zap.Duration("took", time.Since(start)))
	return answer, nil
}

// Ping checks that the server is reachable and has the configured model pulled.
func (c *OllamaClient) Ping(ctx context.Context) error {
	var out tagsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/tags")
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable: %v", models.ErrGenerationUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: ollama returned %d", models.ErrGenerationUnavailable, resp.StatusCode())
	}
	for _, m := range out.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q is not available", models.ErrGenerationUnavailable, c.model)
}
