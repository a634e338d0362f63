package slurm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akapelrud/discharge-parametric-studies/internal/backup"
)

// ReportFile is the per-run report a simulation writes; a rerun rotates the
// old report away instead of clobbering it.
const ReportFile = "report.txt"

// FindInputsFile returns the single *.inputs file of a run directory.
func FindInputsFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading run directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".inputs") {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("missing *.inputs file in run directory %s", dir)
}

// RotateReport shifts an existing report file into the numbered backups.
func RotateReport(dir string, backups int) error {
	return backup.Rotate(filepath.Join(dir, ReportFile), backups)
}
