package models

import "errors"

// Error kinds. Callers branch with errors.Is; producers wrap with fmt.Errorf("...: %w", err).
var (
	// ErrUnsupportedFormat is returned for documents whose extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmbeddingUnavailable is returned when the embedding service fails or times out.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexUnavailable is returned when the vector index or chunk store fails or times out.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrGenerationUnavailable is returned when the generation service fails or times out.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrMalformedChunkingConfig is returned when overlap >= maxLength (or either is out of range).
	ErrMalformedChunkingConfig = errors.New("malformed chunking config")
	// ErrNotFound is returned when an instruction, tag or chunk does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("query cannot be empty")
)
