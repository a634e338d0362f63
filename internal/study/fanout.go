package study

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/akapelrud/discharge-parametric-studies/internal/inputs"
	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// FanoutOptions control the subdivision of one run into a voltage sub-array.
type FanoutOptions struct {
	// LoField, HiField and StepsField name the input-file fields holding the
	// voltage range. The number of voltages is steps+2: the lo and hi
	// endpoints plus the intermediate steps.
	LoField    string
	HiField    string
	StepsField string

	// SetField is the input-file field written per sub-run with its voltage.
	SetField string

	// Key is the parameter name recorded in the nested index.
	Key string

	// Prefix is the sub-run directory name prefix.
	Prefix string

	// Backups bounds the numbered backups kept when an earlier fan-out's
	// index or job id is rewritten.
	Backups int

	// JobScript, when set together with Submitter, is submitted as the
	// sub-array job from the run directory.
	JobScript string
	JobName   string
	Submitter *slurm.Submitter

	Log *slog.Logger
}

// Fanout subdivides a run directory into one sub-run per voltage: the
// voltage range is read from the run's input file, a nested index is
// written (rotating any index from an earlier fan-out), and each sub-run
// gets a copy of the input file with its voltage applied. The two stages of
// an inception sweep use this to follow one parameter combination with a
// per-voltage evaluation array.
func Fanout(ctx context.Context, runDir string, opts FanoutOptions) (*space.Index, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	inputsFile, err := slurm.FindInputsFile(runDir)
	if err != nil {
		return nil, err
	}
	inputsPath := filepath.Join(runDir, inputsFile)

	lo, err := inputs.ReadFloatField(inputsPath, opts.LoField)
	if err != nil {
		return nil, err
	}
	hi, err := inputs.ReadFloatField(inputsPath, opts.HiField)
	if err != nil {
		return nil, err
	}
	steps, err := inputs.ReadFloatField(inputsPath, opts.StepsField)
	if err != nil {
		return nil, err
	}
	if steps < 0 || hi < lo {
		return nil, fmt.Errorf("%w: voltage range %g..%g with %g steps",
			space.ErrConfiguration, lo, hi, steps)
	}

	n := int(steps) + 2
	tuples := make([][]any, n)
	for i := range tuples {
		tuples[i] = []any{lo + float64(i)*(hi-lo)/float64(n-1)}
	}
	log.Info("fanning out run", "dir", runDir, "voltages", n, "lo", lo, "hi", hi)

	idx := space.NewIndex(opts.Prefix, []string{opts.Key}, tuples)
	if err := space.RewriteIndexFile(filepath.Join(runDir, space.IndexFile), idx, opts.Backups); err != nil {
		return nil, err
	}

	for _, run := range idx.RunNumbers() {
		dir := filepath.Join(runDir, idx.RunName(run))
		// A re-drive after a rotated index reuses the directories.
		if err := os.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("creating sub-run directory: %w", err)
		}
		if err := copyFile(inputsPath, dir); err != nil {
			return nil, err
		}
		voltage := idx.Runs[run][0]
		if err := inputs.SetField(filepath.Join(dir, inputsFile), opts.SetField, voltage); err != nil {
			return nil, fmt.Errorf("sub-run %s: %w", idx.RunName(run), err)
		}
	}

	if opts.Submitter == nil || opts.JobScript == "" {
		return idx, nil
	}
	jobID, err := opts.Submitter.Submit(ctx, slurm.Job{
		Name:      opts.JobName,
		Dir:       runDir,
		Script:    opts.JobScript,
		ArraySize: n,
	})
	if err != nil {
		return nil, err
	}
	log.Info("submitted sub-array", "dir", runDir, "job_id", jobID)
	if err := slurm.WriteJobID(runDir, jobID, opts.Backups); err != nil {
		return nil, err
	}
	return idx, nil
}
