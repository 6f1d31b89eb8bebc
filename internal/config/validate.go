package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hyperjump/spravka/internal/models"
)

var validate = validator.New()

// Validate checks struct tags and the chunking invariant (0 <= overlap < max_length).
// Chunking violations wrap models.ErrMalformedChunkingConfig.
func Validate(cfg *Config) error {
	if err := ValidateChunking(cfg.Retrieval.ChunkMaxLength, cfg.Retrieval.ChunkOverlap); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Retrieval.SemanticWeight+cfg.Retrieval.BM25Weight == 0 {
		return fmt.Errorf("invalid config: semantic_weight and bm25_weight cannot both be zero")
	}
	return nil
}

// ValidateChunking reports whether maxLength and overlap describe a terminating window.
func ValidateChunking(maxLength, overlap int) error {
	if maxLength <= 0 {
		return fmt.Errorf("%w: chunk_max_length must be positive, got %d", models.ErrMalformedChunkingConfig, maxLength)
	}
	if overlap < 0 || overlap >= maxLength {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, %d)", models.ErrMalformedChunkingConfig, overlap, maxLength)
	}
	return nil
}
