package models

// Candidate is a chunk scored for one query. Transient, never persisted.
// SemanticScore and LexicalScore are nil when the chunk was absent from that list.
type Candidate struct {
	ChunkID            string   `json:"chunk_id"`
	Chunk              *Chunk   `json:"-"`
	Distance           float64  `json:"distance"`
	SemanticScore      *float64 `json:"semantic_score,omitempty"`
	LexicalScore       *float64 `json:"lexical_score,omitempty"`
	NormalizedSemantic float64  `json:"normalized_semantic"`
	NormalizedLexical  float64  `json:"normalized_lexical"`
	HybridScore        float64  `json:"hybrid_score"`
}

// SourceAttribution describes one chunk that went into the context.
type SourceAttribution struct {
	Index             int      `json:"index"`
	ChunkID           string   `json:"chunk_id"`
	DocumentID        string   `json:"doc_id"`
	InstructionID     string   `json:"instruction_id"`
	Filename          string   `json:"filename"`
	Title             string   `json:"title"`
	Distance          float64  `json:"distance"`
	Images            []string `json:"images"`
	IsBestInstruction bool     `json:"is_best"`
}

// AssembledContext is the serialized grounding context plus attribution.
// BestInstructionID is empty when there were no candidates.
type AssembledContext struct {
	ContextText       string               `json:"context"`
	Sources           []*SourceAttribution `json:"sources"`
	ImagePaths        []string             `json:"images"`
	BestInstructionID string               `json:"best_instruction_id,omitempty"`
}

// Retrieval is the outcome of retrieval and assembly without generation.
type Retrieval struct {
	Query       string           `json:"query"`
	Mode        SearchMode       `json:"mode"`
	Candidates  []*Candidate     `json:"candidates"`
	Context     *AssembledContext `json:"assembled"`
	Suggestions []string         `json:"suggestions,omitempty"`
	QueryTime   int64            `json:"query_time_ms"`
}

// Answer is the response to a question. It is always well formed: on generation failure
// Answer holds a tagged error text and GenerationError is set, while sources survive.
type Answer struct {
	Query                string               `json:"query"`
	Answer               string               `json:"answer"`
	Context              string               `json:"context"`
	Sources              []*SourceAttribution `json:"sources"`
	Images               []string             `json:"images"`
	BestInstructionID    string               `json:"best_instruction_id,omitempty"`
	BestInstructionTitle string               `json:"best_instruction_title,omitempty"`
	Mode                 SearchMode           `json:"mode"`
	GenerationError      string               `json:"generation_error,omitempty"`
	Suggestions          []string             `json:"suggestions,omitempty"`
	QueryTime            int64                `json:"query_time_ms"`
}

// PipelineStats summarizes the knowledge base.
type PipelineStats struct {
	TotalChunks       int64        `json:"total_chunks"`
	ActiveChunks      int          `json:"active_chunks"`
	Collection        string       `json:"collection_name"`
	VectorIndexSize   int          `json:"vector_index_size"`
	LexicalGeneration uint64       `json:"lexical_generation"`
	Catalog           CatalogStats `json:"catalog"`
}
