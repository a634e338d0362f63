package study

import (
	"fmt"
	"path/filepath"

	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// LookupUpstream resolves the upstream run directory a study task depends
// on: it reads the study's own index entry for the task, projects it onto
// the upstream index's key order, and scans the upstream index for the
// matching run.
func LookupUpstream(stageDir, upstream string, task int) (string, error) {
	idx, err := space.ReadIndexFile(filepath.Join(stageDir, space.IndexFile))
	if err != nil {
		return "", err
	}
	tuple, ok := idx.Runs[task]
	if !ok {
		return "", fmt.Errorf("run %d is not in the index of %s (%d entries)",
			task, stageDir, len(idx.Runs))
	}

	upDir := filepath.Join(stageDir, upstream)
	upIdx, err := space.ReadIndexFile(filepath.Join(upDir, space.IndexFile))
	if err != nil {
		return "", fmt.Errorf("upstream %q: %w", upstream, err)
	}

	comb := space.Combination{Index: task, Names: idx.Keys, Values: tuple}
	sub, err := space.Project(comb, upIdx.Keys)
	if err != nil {
		return "", fmt.Errorf("upstream %q: %w", upstream, err)
	}

	run, err := upIdx.Lookup(sub)
	if err != nil {
		return "", fmt.Errorf("upstream %q: %w", upstream, err)
	}
	return slurm.FindRunDir(upDir, upIdx.Prefix, run)
}
