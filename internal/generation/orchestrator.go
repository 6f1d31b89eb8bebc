// Package generation produces a grounded answer from an assembled context.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/llm"
	"github.com/hyperjump/spravka/internal/models"
)

const defaultMaxTokens = 1024

// Orchestrator builds the grounding prompt and calls the generation client.
type Orchestrator struct {
	client      llm.Client
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator over client using the sampling settings in cfg.
func NewOrchestrator(client llm.Client, cfg config.GenerationConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      zap.NewNop(),
	}
	if o.maxTokens <= 0 {
		o.maxTokens = defaultMaxTokens
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer asks the model to answer query from assembled. On failure it returns the tagged
// error text alongside an error wrapping models.ErrGenerationUnavailable, so callers can
// still show something.
func (o *Orchestrator) Answer(ctx context.Context, query string, assembled *models.AssembledContext) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: UserPrompt(query, assembled.ContextText)},
	}
	start := time.Now()
	answer, err := o.client.Chat(ctx, messages, llm.Options{MaxTokens: o.maxTokens, Temperature: o.temperature})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		if !errors.Is(err, models.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, err)
		}
		o.logger.Warn("Generation failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return ErrorPrefix + err.Error(), err
	}

	o.logger.Debug("Answer generated",
		zap.Int("sources", len(assembled.Sources)),
		zap.Duration("took", time.Since(start)))
	return answer, nil
}
