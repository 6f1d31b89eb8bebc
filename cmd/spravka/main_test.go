package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/server"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"расхождения в ЕГАИС", "-top-k", "3"},
			expected: []string{"-top-k", "3", "расхождения в ЕГАИС"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-mode", "semantic", "акт"},
			expected: []string{"-mode", "semantic", "акт"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"акт расхождений"},
			expected: []string{"акт расхождений"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"акт", "расхождений", "-tag", "ЕГАИС"},
			expected: []string{"-tag", "ЕГАИС", "акт", "расхождений"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"расхождения"}, "расхождения"},
		{"multiple words", []string{"акт", "расхождений"}, "акт расхождений"},
		{"single quoted phrase", []string{"акт расхождений"}, "акт расхождений"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitTags(t *testing.T) {
	got := splitTags(" ЕГАИС, УТМ,, 1С ")
	if !reflect.DeepEqual(got, []string{"ЕГАИС", "УТМ", "1С"}) {
		t.Errorf("splitTags = %v", got)
	}
	if splitTags("") != nil {
		t.Error("empty input should give no tags")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPathAndEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPRAVKA_SERVER_PORT", "9191")

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9191 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_rejectsBadEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPRAVKA_TOP_K", "five")

	if _, _, err := loadConfig(configPath); err == nil || !strings.Contains(err.Error(), "SPRAVKA_TOP_K") {
		t.Errorf("loadConfig err = %v, want SPRAVKA_TOP_K parse error", err)
	}
}

func TestLocalBackend(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/chunks.db"
  catalog_path: "./data/metadata.db"
  title_index_path: "./data/titles"
  vector_snapshot_path: "./data/vectors.bin"
embedding:
  provider: mock
  dimensions: 32
retrieval:
  chunk_max_length: 300
  chunk_overlap: 30
watch:
  extensions: [".md"]
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(dir, "egais.md")
	if err := os.WriteFile(doc, []byte("# Расхождения в ЕГАИС\n\nОформите акт расхождений в УТМ."), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	b := &localBackend{c: c}

	ingested, err := b.Ingest(ctx, &server.IngestRequest{Path: doc, Tags: []string{"ЕГАИС"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(ingested.InstructionIDs) != 1 {
		t.Fatalf("ingest = %+v", ingested)
	}
	id := ingested.InstructionIDs[0]

	result, err := b.Search(ctx, &models.QueryRequest{Query: "акт расхождений"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Candidates) != 1 || result.Context.BestInstructionID != id {
		t.Errorf("search = %+v", result)
	}

	if err := b.SetActive(ctx, id, false); err != nil {
		t.Fatal(err)
	}
	list, err := b.Instructions(ctx, true, "", "")
	if err != nil || len(list) != 0 {
		t.Errorf("active instructions = %v, %v", list, err)
	}
	found, err := b.Instructions(ctx, false, "", "расхождения")
	if err != nil || len(found) != 1 || found[0].ID != id {
		t.Errorf("title search = %v, %v", found, err)
	}

	status, err := b.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Stats.TotalChunks != 1 || status.Stats.ActiveChunks != 0 {
		t.Errorf("stats = %+v", status.Stats)
	}
	if err := b.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	c.Close()

	// Reopening picks the data back up from disk.
	c2, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if c2.Store.Count() != 0 {
		t.Errorf("deleted chunks reloaded: %d", c2.Store.Count())
	}
}
