package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// PathUsage is the on-disk size of one named data path.
type PathUsage struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// DiskUsage reports the size of each named path (chunk database, catalog, title index,
// vector snapshot) ordered by name, and their total. SQLite side files (-wal, -shm) are
// counted with their database. Missing paths report 0.
func DiskUsage(paths map[string]string) ([]PathUsage, int64, error) {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	usage := make([]PathUsage, 0, len(names))
	var total int64
	for _, name := range names {
		p := paths[name]
		if p == "" {
			usage = append(usage, PathUsage{Name: name})
			continue
		}
		n, err := DiskUsageBytes(p, p+"-wal", p+"-shm")
		if err != nil {
			return nil, 0, err
		}
		usage = append(usage, PathUsage{Name: name, Path: p, Bytes: n})
		total += n
	}
	return usage, total, nil
}

// DiskUsageBytes returns the total size in bytes of the given files or directories.
// Empty and missing paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		n, err := dirSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
