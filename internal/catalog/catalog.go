// Package catalog keeps instruction metadata: titles, active status, tags, images and
// change history. Chunk text and embeddings live in the storage package.
package catalog

import (
	"context"

	"github.com/hyperjump/spravka/internal/models"
)

// Catalog is the metadata store contract. The retrieval core reads only active status and
// tag and image associations; the rest serves administration.
type Catalog interface {
	AddInstruction(ctx context.Context, inst *models.Instruction) error
	GetInstruction(ctx context.Context, id string) (*models.Instruction, error)
	ListInstructions(ctx context.Context, activeOnly bool) ([]*models.Instruction, error)
	ListByTag(ctx context.Context, tag string) ([]*models.Instruction, error)
	ListByDocID(ctx context.Context, docID string) ([]*models.Instruction, error)
	SetActive(ctx context.Context, id string, active bool, changedBy string) error
	DeleteInstruction(ctx context.Context, id string) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
	AddTag(ctx context.Context, name, category string) error
	History(ctx context.Context, id string) ([]*models.HistoryEntry, error)
	Stats(ctx context.Context) (*models.CatalogStats, error)
	Clear(ctx context.Context) error
	PruneTags(ctx context.Context) (int, error)
	Close() error
}
