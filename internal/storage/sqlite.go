// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/spravka/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		instruction_id TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		author TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_instruction_id ON chunks(instruction_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_active ON chunks(active);
	`
	_, err := db.Exec(schema)
	return err
}

const chunkColumns = `id, document_id, instruction_id, filename, file_path, title, content,
	chunk_index, total_chunks, active, author, tags, images, embedding, created_at`

// UpsertChunks writes chunks in one transaction. An existing id is replaced in place, keeping
// its original position in insertion order.
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			instruction_id = excluded.instruction_id,
			filename = excluded.filename,
			file_path = excluded.file_path,
			title = excluded.title,
			content = excluded.content,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			active = excluded.active,
			author = excluded.author,
			tags = excluded.tags,
			images = excluded.images,
			embedding = excluded.embedding`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.InstructionID, c.Filename, c.FilePath, c.Title, c.Text,
			c.ChunkIndex, c.TotalChunks, c.Active, c.Author, joinList(c.Tags), joinList(c.Images),
			EncodeEmbedding(c.Embedding), c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var c models.Chunk
	var tags, images string
	var blob []byte
	if err := row.Scan(&c.ID, &c.DocumentID, &c.InstructionID, &c.Filename, &c.FilePath, &c.Title, &c.Text,
		&c.ChunkIndex, &c.TotalChunks, &c.Active, &c.Author, &tags, &images, &blob, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Tags = splitList(tags)
	c.Images = splitList(images)
	if len(blob) > 0 {
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		c.Embedding = vec
	}
	return &c, nil
}

func (s *SQLiteStorage) queryChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk returns a chunk by ID, or an error wrapping models.ErrNotFound.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListChunks returns every chunk in insertion order.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]*models.Chunk, error) {
	return s.queryChunks(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY seq`)
}

// GetChunksByInstructionID returns all chunks of an instruction ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByInstructionID(ctx context.Context, instructionID string) ([]*models.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE instruction_id = ? ORDER BY chunk_index`, instructionID)
}

// DeleteChunksByInstructionID removes all chunks of an instruction and returns how many were removed.
func (s *SQLiteStorage) DeleteChunksByInstructionID(ctx context.Context, instructionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE instruction_id = ?`, instructionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteChunksByDocumentID removes all chunks produced from a file.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllChunks empties the chunk table.
func (s *SQLiteStorage) DeleteAllChunks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetActiveByInstructionID flips the active flag on all chunks of an instruction.
func (s *SQLiteStorage) SetActiveByInstructionID(ctx context.Context, instructionID string, active bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET active = ? WHERE instruction_id = ?`, active, instructionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// CountActiveChunks returns the number of chunks with active = 1.
func (s *SQLiteStorage) CountActiveChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE active = 1`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
