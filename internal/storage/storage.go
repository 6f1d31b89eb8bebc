// Package storage defines the persistence interface for chunks and their embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/spravka/internal/models"
)

// Storage defines chunk and embedding persistence operations. It is the durable side of the
// vector store; the in-memory index is rebuilt from it at startup.
type Storage interface {
	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	ListChunks(ctx context.Context) ([]*models.Chunk, error)
	GetChunksByInstructionID(ctx context.Context, instructionID string) ([]*models.Chunk, error)
	DeleteChunksByInstructionID(ctx context.Context, instructionID string) (int64, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) (int64, error)
	DeleteAllChunks(ctx context.Context) (int64, error)
	SetActiveByInstructionID(ctx context.Context, instructionID string, active bool) (int64, error)

	// Stats
	CountChunks(ctx context.Context) (int64, error)
	CountActiveChunks(ctx context.Context) (int64, error)

	Close() error
}
