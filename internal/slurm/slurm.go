// Package slurm submits generated stages as Slurm array jobs and gives
// array tasks what they need to find their own run directory.
package slurm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/akapelrud/discharge-parametric-studies/internal/backup"
)

// JobIDFile holds the array job id of a stage's latest submission, written
// into the stage directory so dependent stages and resubmissions can find it.
const JobIDFile = "array_job_id"

// TaskEnv is the environment variable Slurm sets to the array task index.
const TaskEnv = "SLURM_ARRAY_TASK_ID"

var (
	// ErrNoJobID reports sbatch output that did not contain a job id.
	ErrNoJobID = fmt.Errorf("no job id in sbatch output")

	// ErrRunDirNotFound reports a task index with no matching run directory.
	ErrRunDirNotFound = fmt.Errorf("run directory not found")

	submittedPattern = regexp.MustCompile(`Submitted batch job (?P<job_id>[0-9]+)`)
)

// Job describes one stage's array submission.
type Job struct {
	// Name is the job name shown in the queue, normally the stage identifier.
	Name string

	// Dir is the stage directory the job runs in.
	Dir string

	// Script is the jobscript path passed to sbatch, relative to Dir.
	Script string

	// ArraySize is the number of runs; tasks are indexed 0 to ArraySize-1.
	ArraySize int

	// Dependencies are array job ids this job waits for with afterok.
	Dependencies []string
}

// Args returns the sbatch argument list for the job.
func (j Job) Args() []string {
	args := []string{
		"--chdir=" + j.Dir,
		"--job-name=" + j.Name,
		fmt.Sprintf("--array=0-%d", j.ArraySize-1),
	}
	if len(j.Dependencies) > 0 {
		args = append(args, "--dependency=afterok:"+strings.Join(j.Dependencies, ":"))
	}
	return append(args, j.Script)
}

// Submitter runs sbatch. With DryRun set, Submit prints the command instead
// and reports a placeholder job id.
type Submitter struct {
	Sbatch string
	DryRun bool
	Stdout io.Writer
}

// Submit submits the job and returns the array job id sbatch reported.
func (s *Submitter) Submit(ctx context.Context, job Job) (string, error) {
	if job.ArraySize < 1 {
		return "", fmt.Errorf("job %s has no runs to submit", job.Name)
	}

	if s.DryRun {
		out := s.Stdout
		if out == nil {
			out = os.Stdout
		}
		fmt.Fprintf(out, "%s %s\n", s.Sbatch, strings.Join(job.Args(), " "))
		return "DRY-RUN", nil
	}

	cmd := exec.CommandContext(ctx, s.Sbatch, job.Args()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("sbatch %s: %w: %s", job.Name, err, strings.TrimSpace(stderr.String()))
	}

	jobID, err := ParseJobID(stdout.String())
	if err != nil {
		return "", fmt.Errorf("sbatch %s: %w", job.Name, err)
	}
	return jobID, nil
}

// ParseJobID extracts the array job id from sbatch's stdout.
func ParseJobID(output string) (string, error) {
	m := submittedPattern.FindStringSubmatch(output)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoJobID, strings.TrimSpace(output))
	}
	return m[submittedPattern.SubexpIndex("job_id")], nil
}

// WriteJobID records jobID in dir, rotating any id from an earlier
// submission into a numbered backup.
func WriteJobID(dir, jobID string, backups int) error {
	path := filepath.Join(dir, JobIDFile)
	if err := backup.Rotate(path, backups); err != nil {
		return fmt.Errorf("rotating %s: %w", JobIDFile, err)
	}
	if err := os.WriteFile(path, []byte(jobID+"\n"), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", JobIDFile, err)
	}
	return nil
}

// ReadJobID returns the recorded array job id of a stage directory.
func ReadJobID(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, JobIDFile))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", JobIDFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// JobIDHistory returns the job ids of earlier submissions, newest first,
// read from the rotated array_job_id backups.
func JobIDHistory(dir string) ([]string, error) {
	paths, err := backup.List(filepath.Join(dir, JobIDFile))
	if err != nil {
		return nil, fmt.Errorf("listing %s backups: %w", JobIDFile, err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(p), err)
		}
		ids = append(ids, strings.TrimSpace(string(data)))
	}
	return ids, nil
}

// TaskID returns the array task index from the environment.
func TaskID() (int, error) {
	v, ok := os.LookupEnv(TaskEnv)
	if !ok {
		return 0, fmt.Errorf("%s is not set; not running inside an array task", TaskEnv)
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", TaskEnv, err)
	}
	return id, nil
}

// FindRunDir locates the run directory for a task index inside stageDir.
// Run numbers may be zero padded, so "run_007" matches task 7.
func FindRunDir(stageDir, prefix string, task int) (string, error) {
	pattern, err := regexp.Compile(
		"^" + regexp.QuoteMeta(prefix) + "0*" + strconv.Itoa(task) + "$")
	if err != nil {
		return "", fmt.Errorf("matching run directories: %w", err)
	}

	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return "", fmt.Errorf("reading stage directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() && pattern.MatchString(entry.Name()) {
			return filepath.Join(stageDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: task %d under %s", ErrRunDirNotFound, task, stageDir)
}
