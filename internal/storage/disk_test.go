package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "chunks.db")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "titles.bleve")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644)
	_ = os.WriteFile(filepath.Join(sub, "b"), []byte("c"), 0644)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{f1}, 5},
		{"directory", []string{sub}, 3},
		{"file and directory", []string{f1, sub}, 8},
		{"missing path skipped", []string{f1, filepath.Join(dir, "nonexistent"), sub}, 8},
		{"empty path skipped", []string{"", f1}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}

func TestDiskUsage_CountsSQLiteSideFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	_ = os.WriteFile(db, []byte("1234"), 0644)
	_ = os.WriteFile(db+"-wal", []byte("56"), 0644)
	snapshot := filepath.Join(dir, "vectors.bin")
	_ = os.WriteFile(snapshot, []byte("x"), 0644)

	usage, total, err := DiskUsage(map[string]string{
		"vectors": snapshot,
		"catalog": db,
		"titles":  filepath.Join(dir, "missing"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
	if len(usage) != 3 || usage[0].Name != "catalog" || usage[0].Bytes != 6 {
		t.Errorf("usage = %+v", usage)
	}
	if usage[1].Name != "titles" || usage[1].Bytes != 0 {
		t.Errorf("missing path usage = %+v", usage[1])
	}
}
