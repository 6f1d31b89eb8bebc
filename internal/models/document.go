// Package models defines core data structures for instructions, chunks, queries, and answers.
package models

import "time"

// SourceType describes how an instruction was cut out of its file.
type SourceType string

const (
	// SourceSingleFile means the whole file is one instruction.
	SourceSingleFile SourceType = "single_file"
	// SourceMultiInstruction means the file holds several instructions separated by "---" lines.
	SourceMultiInstruction SourceType = "multi_instruction"
)

// Chunk is a bounded slice of an instruction's text, the unit of indexing and retrieval.
type Chunk struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	DocumentID    string    `json:"document_id"`
	InstructionID string    `json:"instruction_id"`
	Filename      string    `json:"filename"`
	FilePath      string    `json:"file_path,omitempty"`
	Title         string    `json:"title"`
	ChunkIndex    int       `json:"chunk_index"`
	TotalChunks   int       `json:"total_chunks"`
	Active        bool      `json:"active"`
	Author        string    `json:"author,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Images        []string  `json:"images,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Embedding     []float32 `json:"-"`
}

// GroupID returns the instruction id, or the document id for chunks written without one.
func (c *Chunk) GroupID() string {
	if c.InstructionID != "" {
		return c.InstructionID
	}
	return c.DocumentID
}

// HasTag reports whether the chunk carries tag (case-sensitive, as stored).
func (c *Chunk) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Instruction is a logical answer unit; one file may contain one or many.
type Instruction struct {
	ID             string     `json:"id"`
	DocID          string     `json:"doc_id"`
	Title          string     `json:"title"`
	FilePath       string     `json:"file_path"`
	FileFormat     string     `json:"file_format"`
	SourceType     SourceType `json:"source_type"`
	SeparatorIndex *int       `json:"separator_index,omitempty"`
	Active         bool       `json:"active"`
	Version        int        `json:"version"`
	Author         string     `json:"author"`
	Tags           []string   `json:"tags"`
	Images         []Image    `json:"images,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ImagePaths returns image paths in declared order.
func (i *Instruction) ImagePaths() []string {
	if len(i.Images) == 0 {
		return nil
	}
	paths := make([]string, len(i.Images))
	for n, img := range i.Images {
		paths[n] = img.Path
	}
	return paths
}

// Image is a screenshot referenced from an instruction by a [[image: path]] marker.
type Image struct {
	Path        string `json:"path"`
	Index       int    `json:"index"`
	Placeholder string `json:"placeholder"`
}

// Tag labels instructions, optionally grouped by category.
type Tag struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// HistoryEntry records a change to an instruction.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	InstructionID string    `json:"instruction_id"`
	Version       int       `json:"version"`
	BackupPath    string    `json:"backup_path,omitempty"`
	ChangedBy     string    `json:"changed_by"`
	Description   string    `json:"description"`
	ChangedAt     time.Time `json:"changed_at"`
}

// CatalogStats summarizes the metadata catalog.
type CatalogStats struct {
	Active   int64 `json:"active_instructions"`
	Inactive int64 `json:"inactive_instructions"`
	Total    int64 `json:"total_instructions"`
	Tags     int64 `json:"total_tags"`
}
