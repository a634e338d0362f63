// Package backup provides bounded numbered-backup rotation for bookkeeping
// files that must never be silently clobbered: stage logfiles, array_job_id
// files on resubmission, and nested run indexes.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultCount is the default number of numbered backups kept.
const DefaultCount = 5

// Rotate moves path aside to path.1 before a rewrite, shifting existing
// backups up (path.1 -> path.2, ...) and discarding the one beyond count.
// A missing path is not an error; the caller is then writing fresh.
func Rotate(path string, count int) error {
	if count < 1 {
		return fmt.Errorf("backup count must be positive, got %d", count)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}

	// Shift from the oldest down so no backup is overwritten before it has
	// been moved. The one past the bound falls off.
	if err := os.Remove(numbered(path, count)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discarding oldest backup: %w", err)
	}
	for n := count - 1; n >= 1; n-- {
		src := numbered(path, n)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("checking backup %s: %w", src, err)
		}
		if err := os.Rename(src, numbered(path, n+1)); err != nil {
			return fmt.Errorf("shifting backup %s: %w", src, err)
		}
	}

	if err := os.Rename(path, numbered(path, 1)); err != nil {
		return fmt.Errorf("rotating %s: %w", path, err)
	}
	return nil
}

// List returns the existing numbered backups of path, newest first
// (path.1 before path.2).
func List(path string) ([]string, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	type numberedBackup struct {
		path string
		n    int
	}
	var backups []numberedBackup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(e.Name(), base+".")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		backups = append(backups, numberedBackup{path: filepath.Join(dir, e.Name()), n: n})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].n < backups[j].n })
	out := make([]string, len(backups))
	for i, b := range backups {
		out[i] = b.path
	}
	return out, nil
}

func numbered(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}
