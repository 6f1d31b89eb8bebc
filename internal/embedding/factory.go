package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/config"
)

// New builds the configured provider, wraps it in an LRU cache when cache_size > 0 and
// applies the query and passage prefixes.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var model Model
	switch cfg.Provider {
	case "ollama":
		model = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout, WithLogger(logger))
	case "onnx":
		m, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		model = m
	case "mock":
		model = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(model, cfg.CacheSize)
		if err != nil {
			_ = model.Close()
			return nil, err
		}
		model = cached
	}
	logger.Info("Embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("cache_size", cfg.CacheSize))
	return WithPrefixes(model, cfg.QueryPrefix, cfg.PassagePrefix), nil
}
