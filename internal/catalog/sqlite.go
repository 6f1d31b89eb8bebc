package catalog

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

// DefaultTagCategory is the category of the tags seeded into a new catalog.
const DefaultTagCategory = "система"

// DefaultTags are seeded on first open.
var DefaultTags = []string{"ЕГАИС", "1С", "SQL"}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates the catalog database at dbPath.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS instructions (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		title TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_format TEXT NOT NULL,
		source_type TEXT NOT NULL,
		separator_index INTEGER,
		active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		author TEXT NOT NULL DEFAULT 'Admin',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS instruction_tags (
		instruction_id TEXT NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (instruction_id, tag_id),
		FOREIGN KEY (instruction_id) REFERENCES instructions(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS instruction_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instruction_id TEXT NOT NULL,
		image_path TEXT NOT NULL,
		image_index INTEGER NOT NULL,
		placeholder TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (instruction_id) REFERENCES instructions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS instruction_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instruction_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		backup_path TEXT NOT NULL DEFAULT '',
		changed_by TEXT NOT NULL DEFAULT '',
		change_description TEXT NOT NULL DEFAULT '',
		changed_at TIMESTAMP NOT NULL,
		FOREIGN KEY (instruction_id) REFERENCES instructions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_instructions_doc_id ON instructions(doc_id);
	CREATE INDEX IF NOT EXISTS idx_instructions_active ON instructions(active);
	CREATE INDEX IF NOT EXISTS idx_instructions_title ON instructions(title);
	CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	// user_version marks a seeded catalog so pruned default tags stay pruned.
	var seeded int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&seeded); err != nil {
		return err
	}
	if seeded > 0 {
		return nil
	}
	for _, name := range DefaultTags {
		if _, err := db.Exec(`INSERT OR IGNORE INTO tags (name, category) VALUES (?, ?)`,
			name, DefaultTagCategory); err != nil {
			return fmt.Errorf("failed to seed tag %s: %w", name, err)
		}
	}
	_, err := db.Exec(`PRAGMA user_version = 1`)
	return err
}

const instructionColumns = `id, doc_id, title, file_path, file_format, source_type, separator_index,
	active, version, author, created_at, updated_at`

// AddInstruction writes an instruction with its tags and images in one transaction.
// Unknown tags are created without a category.
func (c *SQLiteCatalog) AddInstruction(ctx context.Context, inst *models.Instruction) error {
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = inst.CreatedAt
	}
	if inst.Version == 0 {
		inst.Version = 1
	}
	if inst.Author == "" {
		inst.Author = "Admin"
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sep sql.NullInt64
	if inst.SeparatorIndex != nil {
		sep = sql.NullInt64{Int64: int64(*inst.SeparatorIndex), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instructions (`+instructionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.DocID, inst.Title, inst.FilePath, inst.FileFormat, string(inst.SourceType), sep,
		inst.Active, inst.Version, inst.Author, inst.CreatedAt, inst.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert instruction %s: %w", inst.ID, err)
	}

	for _, name := range inst.Tags {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("failed to create tag %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO instruction_tags (instruction_id, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`, inst.ID, name); err != nil {
			return fmt.Errorf("failed to tag instruction %s: %w", inst.ID, err)
		}
	}

	for _, img := range inst.Images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instruction_images (instruction_id, image_path, image_index, placeholder)
			 VALUES (?, ?, ?, ?)`, inst.ID, img.Path, img.Index, img.Placeholder); err != nil {
			return fmt.Errorf("failed to add image to instruction %s: %w", inst.ID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstruction(row rowScanner) (*models.Instruction, error) {
	var inst models.Instruction
	var sourceType string
	var sep sql.NullInt64
	if err := row.Scan(&inst.ID, &inst.DocID, &inst.Title, &inst.FilePath, &inst.FileFormat, &sourceType,
		&sep, &inst.Active, &inst.Version, &inst.Author, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.SourceType = models.SourceType(sourceType)
	if sep.Valid {
		v := int(sep.Int64)
		inst.SeparatorIndex = &v
	}
	return &inst, nil
}

// GetInstruction returns an instruction with tags and images, or an error wrapping
// models.ErrNotFound.
func (c *SQLiteCatalog) GetInstruction(ctx context.Context, id string) (*models.Instruction, error) {
	inst, err := scanInstruction(c.db.QueryRowContext(ctx,
		`SELECT `+instructionColumns+` FROM instructions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instruction %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := c.loadRelations(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *SQLiteCatalog) queryInstructions(ctx context.Context, query string, args ...any) ([]*models.Instruction, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []*models.Instruction
	for rows.Next() {
		inst, err := scanInstruction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, inst := range out {
		if err := c.loadRelations(ctx, inst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *SQLiteCatalog) loadRelations(ctx context.Context, inst *models.Instruction) error {
	tagRows, err := c.db.QueryContext(ctx,
		`SELECT t.name FROM tags t
		 JOIN instruction_tags it ON t.id = it.tag_id
		 WHERE it.instruction_id = ?
		 ORDER BY t.name`, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	inst.Tags = []string{}
	for tagRows.Next() {
		var name string
		if err := tagRows.Scan(&name); err != nil {
			tagRows.Close()
			return err
		}
		inst.Tags = append(inst.Tags, name)
	}
	tagRows.Close()

	imgRows, err := c.db.QueryContext(ctx,
		`SELECT image_path, image_index, placeholder FROM instruction_images
		 WHERE instruction_id = ? ORDER BY image_index`, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	defer imgRows.Close()
	inst.Images = nil
	for imgRows.Next() {
		var img models.Image
		if err := imgRows.Scan(&img.Path, &img.Index, &img.Placeholder); err != nil {
			return err
		}
		inst.Images = append(inst.Images, img)
	}
	return imgRows.Err()
}

// ListInstructions returns instructions, newest first.
func (c *SQLiteCatalog) ListInstructions(ctx context.Context, activeOnly bool) ([]*models.Instruction, error) {
	query := `SELECT ` + instructionColumns + ` FROM instructions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	return c.queryInstructions(ctx, query)
}

// ListByTag returns active instructions carrying tag, newest first.
func (c *SQLiteCatalog) ListByTag(ctx context.Context, tag string) ([]*models.Instruction, error) {
	return c.queryInstructions(ctx,
		`SELECT i.id, i.doc_id, i.title, i.file_path, i.file_format, i.source_type, i.separator_index,
			i.active, i.version, i.author, i.created_at, i.updated_at
		 FROM instructions i
		 JOIN instruction_tags it ON i.id = it.instruction_id
		 JOIN tags t ON it.tag_id = t.id
		 WHERE t.name = ? AND i.active = 1
		 ORDER BY i.created_at DESC, i.rowid DESC`, tag)
}

// ListByDocID returns the instructions cut from one file in file order.
func (c *SQLiteCatalog) ListByDocID(ctx context.Context, docID string) ([]*models.Instruction, error) {
	return c.queryInstructions(ctx,
		`SELECT `+instructionColumns+` FROM instructions WHERE doc_id = ? ORDER BY rowid`, docID)
}

// SetActive flips the active flag, bumps the version and records the change in history.
func (c *SQLiteCatalog) SetActive(ctx context.Context, id string, active bool, changedBy string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE instructions SET active = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		active, now, id)
	if err != nil {
		return fmt.Errorf("failed to update instruction %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("instruction %s: %w", id, models.ErrNotFound)
	}

	description := "instruction deactivated"
	if active {
		description = "instruction activated"
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO instruction_history (instruction_id, version, changed_by, change_description, changed_at)
		 SELECT id, version, ?, ?, ? FROM instructions WHERE id = ?`,
		changedBy, description, now, id); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return tx.Commit()
}

// DeleteInstruction removes an instruction; tags links, images and history cascade.
func (c *SQLiteCatalog) DeleteInstruction(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM instructions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instruction %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("instruction %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListTags returns all tags ordered by name.
func (c *SQLiteCatalog) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, category FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []*models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Category); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// AddTag creates a tag. Adding an existing name is a no-op.
func (c *SQLiteCatalog) AddTag(ctx context.Context, name, category string) error {
	if name == "" {
		return fmt.Errorf("tag name cannot be empty")
	}
	_, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name, category) VALUES (?, ?)`, name, category)
	return err
}

// History returns the change history of an instruction, oldest first.
func (c *SQLiteCatalog) History(ctx context.Context, id string) ([]*models.HistoryEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, instruction_id, version, backup_path, changed_by, change_description, changed_at
		 FROM instruction_history WHERE instruction_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.ID, &h.InstructionID, &h.Version, &h.BackupPath, &h.ChangedBy,
			&h.Description, &h.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// Stats counts instructions by status and tags.
func (c *SQLiteCatalog) Stats(ctx context.Context) (*models.CatalogStats, error) {
	var st models.CatalogStats
	if err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(active = 1), 0), COALESCE(SUM(active = 0), 0) FROM instructions`,
	).Scan(&st.Active, &st.Inactive); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&st.Tags); err != nil {
		return nil, err
	}
	st.Total = st.Active + st.Inactive
	return &st, nil
}

// Clear removes every instruction and its associations. Tags are kept.
func (c *SQLiteCatalog) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"instruction_images", "instruction_tags", "instruction_history", "instructions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// PruneTags deletes tags no instruction uses and returns how many were removed.
func (c *SQLiteCatalog) PruneTags(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM instruction_tags)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tags: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
