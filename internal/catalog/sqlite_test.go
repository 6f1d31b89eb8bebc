package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/spravka/internal/models"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "meta", "catalog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteCatalog: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testInstruction(id, docID, title string, tags ...string) *models.Instruction {
	return &models.Instruction{
		ID:         id,
		DocID:      docID,
		Title:      title,
		FilePath:   "/docs/" + title + ".md",
		FileFormat: "md",
		SourceType: models.SourceSingleFile,
		Active:     true,
		Author:     "Тестовый автор",
		Tags:       tags,
	}
}

func TestSQLiteCatalog_SeedsDefaultTags(t *testing.T) {
	c := newTestCatalog(t)
	tags, err := c.ListTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != len(DefaultTags) {
		t.Fatalf("got %d tags, want %d", len(tags), len(DefaultTags))
	}
	for _, tag := range tags {
		if tag.Category != DefaultTagCategory {
			t.Errorf("tag %s category = %q", tag.Name, tag.Category)
		}
	}
}

func TestSQLiteCatalog_AddAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	sep := 1
	inst := testInstruction("inst-1", "file:abc", "Расхождения в ЕГАИС", "ЕГАИС", "остатки")
	inst.SourceType = models.SourceMultiInstruction
	inst.SeparatorIndex = &sep
	inst.Images = []models.Image{
		{Path: "img/b.png", Index: 1, Placeholder: "[[image: img/b.png]]"},
		{Path: "img/a.png", Index: 0, Placeholder: "[[image: img/a.png]]"},
	}
	if err := c.AddInstruction(ctx, inst); err != nil {
		t.Fatalf("AddInstruction: %v", err)
	}

	got, err := c.GetInstruction(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetInstruction: %v", err)
	}
	if got.Title != inst.Title || got.SourceType != models.SourceMultiInstruction || got.Version != 1 {
		t.Errorf("got %+v", got)
	}
	if got.SeparatorIndex == nil || *got.SeparatorIndex != 1 {
		t.Errorf("SeparatorIndex = %v", got.SeparatorIndex)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v", got.Tags)
	}
	paths := got.ImagePaths()
	if len(paths) != 2 || paths[0] != "img/a.png" {
		t.Errorf("images not ordered by index: %v", paths)
	}

	tags, _ := c.ListTags(ctx)
	if len(tags) != len(DefaultTags)+1 {
		t.Errorf("unknown tag not created, have %d tags", len(tags))
	}

	if _, err := c.GetInstruction(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing instruction error = %v", err)
	}
	if err := c.AddInstruction(ctx, inst); err == nil {
		t.Error("duplicate id should fail")
	}
}

func TestSQLiteCatalog_ListingAndTags(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for i, inst := range []*models.Instruction{
		testInstruction("a", "file:1", "Первая", "ЕГАИС"),
		testInstruction("b", "file:1", "Вторая", "1С"),
		testInstruction("c", "file:2", "Третья", "ЕГАИС"),
	} {
		inst.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := c.AddInstruction(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.SetActive(ctx, "c", false, "admin"); err != nil {
		t.Fatal(err)
	}

	all, _ := c.ListInstructions(ctx, false)
	if len(all) != 3 || all[0].ID != "c" {
		t.Errorf("ListInstructions(false) should be newest first: %v", ids(all))
	}
	active, _ := c.ListInstructions(ctx, true)
	if len(active) != 2 {
		t.Errorf("ListInstructions(true) = %v", ids(active))
	}
	byTag, _ := c.ListByTag(ctx, "ЕГАИС")
	if len(byTag) != 1 || byTag[0].ID != "a" {
		t.Errorf("ListByTag should skip inactive: %v", ids(byTag))
	}
	byDoc, _ := c.ListByDocID(ctx, "file:1")
	if len(byDoc) != 2 || byDoc[0].ID != "a" || byDoc[1].ID != "b" {
		t.Errorf("ListByDocID = %v", ids(byDoc))
	}
}

func TestSQLiteCatalog_SetActiveWritesHistory(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	_ = c.AddInstruction(ctx, testInstruction("x", "file:x", "Инструкция"))

	if err := c.SetActive(ctx, "x", false, "оператор"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetActive(ctx, "x", true, "оператор"); err != nil {
		t.Fatal(err)
	}
	got, _ := c.GetInstruction(ctx, "x")
	if !got.Active || got.Version != 3 {
		t.Errorf("active=%v version=%d", got.Active, got.Version)
	}
	hist, err := c.History(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Version != 2 || hist[1].Version != 3 || hist[0].ChangedBy != "оператор" {
		t.Errorf("history = %+v", hist)
	}

	if err := c.SetActive(ctx, "missing", true, ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("SetActive on missing = %v", err)
	}
}

func TestSQLiteCatalog_DeleteCascades(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	inst := testInstruction("del", "file:d", "Удаляемая", "SQL")
	inst.Images = []models.Image{{Path: "p.png", Index: 0}}
	_ = c.AddInstruction(ctx, inst)
	_ = c.SetActive(ctx, "del", false, "")

	if err := c.DeleteInstruction(ctx, "del"); err != nil {
		t.Fatal(err)
	}
	if hist, _ := c.History(ctx, "del"); len(hist) != 0 {
		t.Errorf("history not cascaded: %d", len(hist))
	}
	var links int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM instruction_tags`).Scan(&links)
	if links != 0 {
		t.Errorf("tag links not cascaded: %d", links)
	}
	if err := c.DeleteInstruction(ctx, "del"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestSQLiteCatalog_StatsAndClear(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	_ = c.AddInstruction(ctx, testInstruction("1", "file:1", "Один"))
	_ = c.AddInstruction(ctx, testInstruction("2", "file:2", "Два"))
	_ = c.SetActive(ctx, "2", false, "")
	if err := c.AddTag(ctx, "Кассы", "оборудование"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddTag(ctx, "Кассы", "другое"); err != nil {
		t.Errorf("duplicate tag should be ignored: %v", err)
	}
	if err := c.AddTag(ctx, "", ""); err == nil {
		t.Error("empty tag name should fail")
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := models.CatalogStats{Active: 1, Inactive: 1, Total: 2, Tags: int64(len(DefaultTags) + 1)}
	if *st != want {
		t.Errorf("Stats = %+v, want %+v", *st, want)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ = c.Stats(ctx)
	if st.Total != 0 || st.Tags != want.Tags {
		t.Errorf("after Clear: %+v", *st)
	}
}

func ids(list []*models.Instruction) []string {
	out := make([]string, len(list))
	for i, inst := range list {
		out[i] = inst.ID
	}
	return out
}

func TestSQLiteCatalog_PruneTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.AddInstruction(ctx, testInstruction("1", "file:1", "Остатки", "ЕГАИС", "УТМ")); err != nil {
		t.Fatal(err)
	}

	n, err := c.PruneTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(DefaultTags)-1 {
		t.Errorf("pruned %d tags, want %d", n, len(DefaultTags)-1)
	}
	tags, _ := c.ListTags(ctx)
	if len(tags) != 2 {
		t.Errorf("tags after prune = %d, want 2", len(tags))
	}
	if n, _ := c.PruneTags(ctx); n != 0 {
		t.Errorf("second prune removed %d", n)
	}
	_ = c.Close()

	reopened, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	tags, _ = reopened.ListTags(ctx)
	if len(tags) != 2 {
		t.Errorf("reopen reseeded tags: got %d, want 2", len(tags))
	}
}
