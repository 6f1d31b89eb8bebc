// Package cli provides output formatting and the HTTP client used by the spravka command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/server"
	"github.com/hyperjump/spravka/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a generated answer with its sources.
func WriteAnswer(w io.Writer, a *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "\n%s\n\n", a.Answer)
	if a.GenerationError != "" {
		fmt.Fprintf(w, "generation error: %s\n\n", a.GenerationError)
	}
	if a.BestInstructionTitle != "" {
		fmt.Fprintf(w, "Instruction: %s (%s)\n", a.BestInstructionTitle, a.BestInstructionID)
	}
	for _, img := range a.Images {
		fmt.Fprintf(w, "Image: %s\n", img)
	}
	if len(a.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range a.Sources {
			writeSource(w, s)
		}
	}
	writeSuggestions(w, a.Suggestions)
	fmt.Fprintf(w, "\n(%s, %dms)\n", a.Mode, a.QueryTime)
	return nil
}

// WriteRetrieval writes ranked candidates and the assembled context sources.
func WriteRetrieval(w io.Writer, r *models.Retrieval, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	fmt.Fprintf(w, "\nFound %d candidates in %dms (%s)\n\n", len(r.Candidates), r.QueryTime, r.Mode)
	for i, c := range r.Candidates {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Semantic: %.4f, BM25: %.4f) | Distance: %.4f\n",
			i+1, c.HybridScore, c.NormalizedSemantic, c.NormalizedLexical, c.Distance)
		fmt.Fprintf(w, "Chunk: %s\n", c.ChunkID)
		if c.Chunk != nil {
			if c.Chunk.Title != "" {
				fmt.Fprintf(w, "Title: %s\n", c.Chunk.Title)
			}
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.OneLine(c.Chunk.Text), 200))
		}
		fmt.Fprintln(w)
	}
	if r.Context != nil && r.Context.BestInstructionID != "" {
		fmt.Fprintf(w, "Best instruction: %s\n", r.Context.BestInstructionID)
	}
	writeSuggestions(w, r.Suggestions)
	return nil
}

func writeSource(w io.Writer, s *models.SourceAttribution) {
	marker := " "
	if s.IsBestInstruction {
		marker = "*"
	}
	fmt.Fprintf(w, " %s [%d] %s: %s (distance %.4f)\n", marker, s.Index, s.Filename, s.Title, s.Distance)
}

func writeSuggestions(w io.Writer, suggestions []string) {
	if len(suggestions) > 0 {
		fmt.Fprintf(w, "\nDid you mean: %s\n", strings.Join(suggestions, ", "))
	}
}

// WriteInstructions writes catalog entries one per line.
func WriteInstructions(w io.Writer, list []*models.Instruction, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No instructions.")
		return nil
	}
	for _, inst := range list {
		state := "active"
		if !inst.Active {
			state = "inactive"
		}
		fmt.Fprintf(w, "%s  %-8s v%d  %s", inst.ID, state, inst.Version, inst.Title)
		if len(inst.Tags) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(inst.Tags, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteTags writes tags grouped with their category.
func WriteTags(w io.Writer, tags []*models.Tag, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, tags)
	}
	for _, t := range tags {
		if t.Category != "" {
			fmt.Fprintf(w, "%s (%s)\n", t.Name, t.Category)
		} else {
			fmt.Fprintln(w, t.Name)
		}
	}
	return nil
}

// WriteIngest reports an ingest result.
func WriteIngest(w io.Writer, r *server.IngestResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, r)
	}
	if r.Files > 0 || len(r.InstructionIDs) == 0 {
		fmt.Fprintf(w, "Ingested %d file(s) from %s\n", r.Files, r.Path)
		return nil
	}
	fmt.Fprintf(w, "Ingested %s: %d instruction(s), %d chunk(s)", r.Path, len(r.InstructionIDs), r.Chunks)
	if r.Replaced > 0 {
		fmt.Fprintf(w, ", replaced %d chunk(s)", r.Replaced)
	}
	fmt.Fprintln(w)
	for i, id := range r.InstructionIDs {
		title := ""
		if i < len(r.Titles) {
			title = r.Titles[i]
		}
		fmt.Fprintf(w, "  %s  %s\n", id, title)
	}
	return nil
}

// WriteStatus writes knowledge base statistics and disk usage.
func WriteStatus(w io.Writer, s *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	if st := s.Stats; st != nil {
		fmt.Fprintf(w, "collection:         %s\n", st.Collection)
		fmt.Fprintf(w, "chunks:             %d   # %d active\n", st.TotalChunks, st.ActiveChunks)
		fmt.Fprintf(w, "vector_index_size:  %d\n", st.VectorIndexSize)
		fmt.Fprintf(w, "instructions:       %d   # %d active, %d inactive\n",
			st.Catalog.Total, st.Catalog.Active, st.Catalog.Inactive)
		fmt.Fprintf(w, "tags:               %d\n", st.Catalog.Tags)
	}
	fmt.Fprintf(w, "disk_usage_bytes:   %d\n", s.DiskUsageBytes)
	for _, u := range s.DiskUsage {
		if u.Path != "" {
			fmt.Fprintf(w, "  %-8s %10d  %s\n", u.Name, u.Bytes, u.Path)
		}
	}
	if len(s.Config) > 0 {
		fmt.Fprintln(w, "\n# configuration")
		for _, k := range []string{
			"embedding_provider", "embedding_model", "embedding_dimensions", "generation_model",
			"chunk_max_length", "chunk_overlap", "top_k", "mode", "semantic_weight", "bm25_weight",
		} {
			if v, ok := s.Config[k]; ok {
				fmt.Fprintf(w, "%-20s %v\n", k+":", v)
			}
		}
	}
	return nil
}
