package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/server"
	"github.com/hyperjump/spravka/internal/storage"
)

func sampleAnswer() *models.Answer {
	return &models.Answer{
		Query:                "расхождения",
		Answer:               "Оформите акт расхождений в УТМ.",
		BestInstructionID:    "egais",
		BestInstructionTitle: "Расхождения в ЕГАИС",
		Images:               []string{"images/akt.png"},
		Sources: []*models.SourceAttribution{
			{Index: 1, ChunkID: "egais_chunk_0", Filename: "egais.md", Title: "Расхождения в ЕГАИС", Distance: 0.12, IsBestInstruction: true},
			{Index: 2, ChunkID: "sql_chunk_0", Filename: "sql.md", Title: "Резервное копирование", Distance: 0.4},
		},
		Mode:      models.ModeHybrid,
		QueryTime: 42,
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"text", "json"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("compact"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Оформите акт расхождений в УТМ.",
		"Instruction: Расхождения в ЕГАИС (egais)",
		"Image: images/akt.png",
		" * [1] egais.md: Расхождения в ЕГАИС",
		"   [2] sql.md: Резервное копирование",
		"(hybrid, 42ms)",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Answer
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.BestInstructionID != "egais" || len(decoded.Sources) != 2 || !decoded.Sources[0].IsBestInstruction {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteAnswer_GenerationErrorAndSuggestions(t *testing.T) {
	a := &models.Answer{Answer: "[ОШИБКА] ...", GenerationError: "generation unavailable", Suggestions: []string{"расхождения"}}
	var buf bytes.Buffer
	_ = WriteAnswer(&buf, a, OutputText)
	if !strings.Contains(buf.String(), "generation error: generation unavailable") ||
		!strings.Contains(buf.String(), "Did you mean: расхождения") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestWriteRetrieval_Text(t *testing.T) {
	r := &models.Retrieval{
		Query: "акт",
		Mode:  models.ModeHybrid,
		Candidates: []*models.Candidate{{
			ChunkID:     "egais_chunk_0",
			Chunk:       &models.Chunk{Title: "Расхождения в ЕГАИС", Text: "Акт\nрасхождений " + strings.Repeat("текст ", 100)},
			HybridScore: 0.9,
			Distance:    0.1,
		}},
		Context:   &models.AssembledContext{BestInstructionID: "egais"},
		QueryTime: 7,
	}
	var buf bytes.Buffer
	if err := WriteRetrieval(&buf, r, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 1 candidates in 7ms", "Rank: 1 | Score: 0.9000", "Title: Расхождения в ЕГАИС", "Акт расхождений", "...", "Best instruction: egais"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteInstructionsAndTags(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteInstructions(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No instructions.") {
		t.Errorf("empty list output = %q", buf.String())
	}

	buf.Reset()
	_ = WriteInstructions(&buf, []*models.Instruction{
		{ID: "i1", Title: "ЕГАИС", Active: true, Version: 2, Tags: []string{"ЕГАИС", "1С"}},
		{ID: "i2", Title: "Старое", Active: false, Version: 1},
	}, OutputText)
	out := buf.String()
	if !strings.Contains(out, "i1  active   v2  ЕГАИС  [ЕГАИС, 1С]") || !strings.Contains(out, "i2  inactive v1  Старое") {
		t.Errorf("instructions output:\n%s", out)
	}

	buf.Reset()
	_ = WriteTags(&buf, []*models.Tag{{Name: "1С", Category: "системы"}, {Name: "ЕГАИС"}}, OutputText)
	if buf.String() != "1С (системы)\nЕГАИС\n" {
		t.Errorf("tags output = %q", buf.String())
	}
}

func TestWriteIngest(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteIngest(&buf, &server.IngestResponse{
		Path: "/docs/egais.md", InstructionIDs: []string{"a", "b"}, Titles: []string{"Первая", "Вторая"}, Chunks: 3, Replaced: 2,
	}, OutputText)
	out := buf.String()
	if !strings.Contains(out, "2 instruction(s), 3 chunk(s), replaced 2 chunk(s)") || !strings.Contains(out, "  b  Вторая") {
		t.Errorf("ingest output:\n%s", out)
	}

	buf.Reset()
	_ = WriteIngest(&buf, &server.IngestResponse{Path: "/docs", Files: 4}, OutputText)
	if !strings.Contains(buf.String(), "Ingested 4 file(s) from /docs") {
		t.Errorf("directory ingest output = %q", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	s := &server.StatusResponse{
		Stats: &models.PipelineStats{
			TotalChunks: 10, ActiveChunks: 8, Collection: "instructions", VectorIndexSize: 10,
			Catalog: models.CatalogStats{Total: 3, Active: 2, Inactive: 1, Tags: 4},
		},
		DiskUsage:      []storage.PathUsage{{Name: "chunks", Path: "/data/chunks.db", Bytes: 2048}},
		DiskUsageBytes: 2048,
		Config:         map[string]any{"mode": "hybrid", "top_k": 5},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"chunks:             10   # 8 active", "instructions:       3   # 2 active, 1 inactive", "/data/chunks.db", "mode:", "hybrid"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
}
