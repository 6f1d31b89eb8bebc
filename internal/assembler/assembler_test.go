package assembler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/spravka/internal/models"
)

func cand(id, inst, filename string, distance float64, images ...string) *models.Candidate {
	return &models.Candidate{
		ChunkID:  id,
		Distance: distance,
		Chunk: &models.Chunk{
			ID:            id,
			Text:          "текст " + id,
			DocumentID:    "file:" + filename,
			InstructionID: inst,
			Filename:      filename,
			Title:         "Инструкция " + inst,
			Images:        images,
		},
	}
}

func TestAssemble_Empty(t *testing.T) {
	got := Assemble(nil, 5)
	if got.ContextText != NoContextText {
		t.Errorf("context = %q", got.ContextText)
	}
	if len(got.Sources) != 0 || len(got.ImagePaths) != 0 || got.BestInstructionID != "" {
		t.Errorf("empty assembly = %+v", got)
	}
}

func TestAssemble_BestInstructionByMeanDistance(t *testing.T) {
	tests := []struct {
		name     string
		cands    []*models.Candidate
		wantBest string
		wantImgs []string
	}{
		{
			name: "A has lower mean",
			cands: []*models.Candidate{
				cand("b0", "B", "b.md", 0.10, "b.png"),
				cand("a0", "A", "a.md", 0.20, "a1.png"),
				cand("a1", "A", "a.md", 0.22, "a2.png"),
				cand("b1", "B", "b.md", 0.50),
			},
			wantBest: "A",
			wantImgs: []string{"a1.png", "a2.png"},
		},
		{
			name: "B has lower mean",
			cands: []*models.Candidate{
				cand("a0", "A", "a.md", 0.30, "a.png"),
				cand("b0", "B", "b.md", 0.10, "b.png"),
			},
			wantBest: "B",
			wantImgs: []string{"b.png"},
		},
		{
			name: "tie goes to first group",
			cands: []*models.Candidate{
				cand("a0", "A", "a.md", 0.25, "a.png"),
				cand("b0", "B", "b.md", 0.25, "b.png"),
			},
			wantBest: "A",
			wantImgs: []string{"a.png"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assemble(tt.cands, 10)
			if got.BestInstructionID != tt.wantBest {
				t.Errorf("best = %s, want %s", got.BestInstructionID, tt.wantBest)
			}
			if !reflect.DeepEqual(got.ImagePaths, tt.wantImgs) {
				t.Errorf("images = %v, want %v", got.ImagePaths, tt.wantImgs)
			}
			for _, s := range got.Sources {
				if s.IsBestInstruction != (s.InstructionID == tt.wantBest) {
					t.Errorf("source %d is_best = %v", s.Index, s.IsBestInstruction)
				}
			}
		})
	}
}

func TestAssemble_ImagePathsDeduplicated(t *testing.T) {
	got := Assemble([]*models.Candidate{
		cand("s0", "S", "s.md", 0.10, "s1.png", "s2.png"),
		cand("s1", "S", "s.md", 0.12, "s1.png", "s2.png"),
		cand("t0", "T", "t.md", 0.40, "t.png"),
		cand("s2", "S", "s.md", 0.15, "s1.png", "s2.png"),
	}, 5)
	if got.BestInstructionID != "S" {
		t.Fatalf("best = %s, want S", got.BestInstructionID)
	}
	if want := []string{"s1.png", "s2.png"}; !reflect.DeepEqual(got.ImagePaths, want) {
		t.Errorf("images = %v, want %v", got.ImagePaths, want)
	}
	for _, src := range got.Sources {
		if src.InstructionID == "S" && len(src.Images) != 2 {
			t.Errorf("source %s images = %v", src.ChunkID, src.Images)
		}
	}
}

func TestAssemble_ContextFormat(t *testing.T) {
	unnamed := cand("x0", "X", "", 0.4)
	unnamed.Chunk.Title = ""
	got := Assemble([]*models.Candidate{cand("a0", "A", "a.md", 0.1), unnamed}, 0)

	want := "[Document 1: a.md]\nтекст a0\n" + "\n---\n" + "[Document 2: Неизвестный документ]\nтекст x0\n"
	if got.ContextText != want {
		t.Errorf("context =\n%q\nwant\n%q", got.ContextText, want)
	}
	if got.Sources[1].Filename != UnknownFilename || got.Sources[1].Title != UnknownFilename {
		t.Errorf("fallbacks = %+v", got.Sources[1])
	}
	if got.Sources[0].Title != "Инструкция A" || got.Sources[0].Index != 1 || got.Sources[1].Index != 2 {
		t.Errorf("sources = %+v %+v", got.Sources[0], got.Sources[1])
	}
}

func TestAssemble_TruncatesToTopKInRankedOrder(t *testing.T) {
	cands := []*models.Candidate{
		cand("c0", "C", "c.md", 0.3),
		cand("a0", "A", "a.md", 0.1),
		cand("b0", "B", "b.md", 0.2),
	}
	got := Assemble(cands, 2)
	if len(got.Sources) != 2 || got.Sources[0].ChunkID != "c0" || got.Sources[1].ChunkID != "a0" {
		t.Errorf("sources = %+v", got.Sources)
	}
	if strings.Contains(got.ContextText, "b0") {
		t.Error("candidate beyond topK leaked into context")
	}
}

func TestAssemble_GroupFallsBackToDocumentID(t *testing.T) {
	c := cand("d0", "", "legacy.md", 0.2)
	got := Assemble([]*models.Candidate{c}, 5)
	if got.BestInstructionID != "file:legacy.md" || got.Sources[0].InstructionID != "file:legacy.md" {
		t.Errorf("group = %s / %s", got.BestInstructionID, got.Sources[0].InstructionID)
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	cands := []*models.Candidate{
		cand("a0", "A", "a.md", 0.2, "a.png"),
		cand("b0", "B", "b.md", 0.1, "b.png"),
	}
	first := Assemble(cands, 5)
	first.Sources[0].Images[0] = "mutated.png"
	second := Assemble(cands, 5)
	if second.Sources[0].Images[0] != "a.png" || cands[0].Chunk.Images[0] != "a.png" {
		t.Error("assembly shares image slices with its input")
	}
	third := Assemble(cands, 5)
	if !reflect.DeepEqual(second, third) {
		t.Error("repeated assembly differs")
	}
}
