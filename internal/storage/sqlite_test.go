package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/spravka/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(id, inst string, idx int) *models.Chunk {
	return &models.Chunk{
		ID:            id,
		Text:          "Текст " + id,
		DocumentID:    "file:doc",
		InstructionID: inst,
		Filename:      "kassa.md",
		Title:         "Касса",
		ChunkIndex:    idx,
		TotalChunks:   2,
		Active:        true,
		Tags:          []string{"ЕГАИС", "1С"},
		Images:        []string{"img/a.png", "img/b.png"},
		Embedding:     []float32{0.25, -1, 3.5},
	}
}

func TestSQLiteStorage_UpsertAndGet(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	chunks := []*models.Chunk{testChunk("i1_chunk_0", "i1", 0), testChunk("i1_chunk_1", "i1", 1)}
	if err := store.UpsertChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if chunks[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetChunk(ctx, "i1_chunk_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "Текст i1_chunk_1" || got.ChunkIndex != 1 || !got.Active {
		t.Errorf("got %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "ЕГАИС" {
		t.Errorf("tags = %v", got.Tags)
	}
	if len(got.Images) != 2 || got.Images[1] != "img/b.png" {
		t.Errorf("images = %v", got.Images)
	}
	if len(got.Embedding) != 3 || got.Embedding[2] != 3.5 {
		t.Errorf("embedding = %v", got.Embedding)
	}

	if _, err := store.GetChunk(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing chunk: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_UpsertKeepsInsertionOrder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_ = store.UpsertChunks(ctx, []*models.Chunk{testChunk("a", "i1", 0), testChunk("b", "i1", 1)})
	replaced := testChunk("a", "i1", 0)
	replaced.Text = "новый текст"
	if err := store.UpsertChunks(ctx, []*models.Chunk{replaced}); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("ListChunks order = %v", all)
	}
	if all[0].Text != "новый текст" {
		t.Errorf("upsert did not replace text: %q", all[0].Text)
	}
}

func TestSQLiteStorage_ActiveAndDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_ = store.UpsertChunks(ctx, []*models.Chunk{
		testChunk("i1_chunk_0", "i1", 0),
		testChunk("i1_chunk_1", "i1", 1),
		testChunk("i2_chunk_0", "i2", 0),
	})

	n, err := store.SetActiveByInstructionID(ctx, "i1", false)
	if err != nil || n != 2 {
		t.Fatalf("SetActiveByInstructionID = %d, %v", n, err)
	}
	active, _ := store.CountActiveChunks(ctx)
	if active != 1 {
		t.Errorf("active chunks = %d, want 1", active)
	}

	byInst, _ := store.GetChunksByInstructionID(ctx, "i1")
	if len(byInst) != 2 || byInst[0].Active {
		t.Errorf("GetChunksByInstructionID = %+v", byInst)
	}

	n, err = store.DeleteChunksByInstructionID(ctx, "i1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteChunksByInstructionID = %d, %v", n, err)
	}
	total, _ := store.CountChunks(ctx)
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}

	n, _ = store.DeleteChunksByDocumentID(ctx, "file:doc")
	if n != 1 {
		t.Errorf("DeleteChunksByDocumentID removed %d, want 1", n)
	}
}

func TestEmbeddingCodec(t *testing.T) {
	in := []float32{1, -0.5, 0, 42.125}
	out, err := DecodeEmbedding(EncodeEmbedding(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("odd-length blob should fail")
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v", got)
	}
	got := splitList("a, b,,c")
	if len(got) != 3 || got[1] != "b" {
		t.Errorf("splitList = %v", got)
	}
}
