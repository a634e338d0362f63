package slurm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJobArgs(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want []string
	}{
		{
			name: "plain array job",
			job: Job{
				Name:      "pressure_study",
				Dir:       "/data/pressure_study",
				Script:    "jobscript.sh",
				ArraySize: 15,
			},
			want: []string{
				"--chdir=/data/pressure_study",
				"--job-name=pressure_study",
				"--array=0-14",
				"jobscript.sh",
			},
		},
		{
			name: "with dependencies",
			job: Job{
				Name:         "voltage_study",
				Dir:          "/data/voltage_study",
				Script:       "jobscript.sh",
				ArraySize:    4,
				Dependencies: []string{"1234", "5678"},
			},
			want: []string{
				"--chdir=/data/voltage_study",
				"--job-name=voltage_study",
				"--array=0-3",
				"--dependency=afterok:1234:5678",
				"jobscript.sh",
			},
		},
		{
			name: "single run",
			job: Job{
				Name:      "chemistry_db",
				Dir:       "/data/chemistry_db",
				Script:    "jobscript.sh",
				ArraySize: 1,
			},
			want: []string{
				"--chdir=/data/chemistry_db",
				"--job-name=chemistry_db",
				"--array=0-0",
				"jobscript.sh",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.job.Args()); diff != "" {
				t.Errorf("Args() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseJobID(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"plain", "Submitted batch job 123456\n", "123456", false},
		{"with noise", "some warning\nSubmitted batch job 42\n", "42", false},
		{"empty", "", "", true},
		{"no id", "sbatch: error: invalid partition\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJobID(tt.output)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJobID) {
					t.Fatalf("err = %v, want ErrNoJobID", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseJobID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubmit_DryRun(t *testing.T) {
	var buf bytes.Buffer
	s := &Submitter{Sbatch: "sbatch", DryRun: true, Stdout: &buf}

	jobID, err := s.Submit(context.Background(), Job{
		Name: "pressure_study", Dir: "/data/pressure_study",
		Script: "jobscript.sh", ArraySize: 15,
	})
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "DRY-RUN" {
		t.Errorf("jobID = %q", jobID)
	}
	want := "sbatch --chdir=/data/pressure_study --job-name=pressure_study --array=0-14 jobscript.sh\n"
	if buf.String() != want {
		t.Errorf("dry-run output = %q, want %q", buf.String(), want)
	}
}

func TestSubmit_EmptyArray(t *testing.T) {
	s := &Submitter{Sbatch: "sbatch", DryRun: true, Stdout: new(bytes.Buffer)}
	_, err := s.Submit(context.Background(), Job{Name: "empty", ArraySize: 0})
	if err == nil {
		t.Fatal("expected error for empty array")
	}
}

func TestSubmit_FakeSbatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}

	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-sbatch")
	script := "#!/bin/sh\necho \"Submitted batch job 987654\"\n"
	if err := os.WriteFile(fake, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	s := &Submitter{Sbatch: fake}
	jobID, err := s.Submit(context.Background(), Job{
		Name: "pressure_study", Dir: dir, Script: "jobscript.sh", ArraySize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "987654" {
		t.Errorf("jobID = %q, want 987654", jobID)
	}
}

func TestJobIDFile_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()

	if err := WriteJobID(dir, "111", 5); err != nil {
		t.Fatal(err)
	}
	if err := WriteJobID(dir, "222", 5); err != nil {
		t.Fatal(err)
	}

	got, err := ReadJobID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != "222" {
		t.Errorf("ReadJobID = %q, want 222", got)
	}

	old, err := os.ReadFile(filepath.Join(dir, JobIDFile+".1"))
	if err != nil {
		t.Fatalf("earlier submission not rotated: %v", err)
	}
	if strings.TrimSpace(string(old)) != "111" {
		t.Errorf("rotated job id = %q, want 111", old)
	}

	history, err := JobIDHistory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0] != "111" {
		t.Errorf("JobIDHistory = %v, want [111]", history)
	}
}

func TestTaskID(t *testing.T) {
	t.Setenv(TaskEnv, "7")
	id, err := TaskID()
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Errorf("TaskID = %d, want 7", id)
	}
}

func TestTaskID_Malformed(t *testing.T) {
	t.Setenv(TaskEnv, "seven")
	if _, err := TaskID(); err == nil {
		t.Error("expected error for non-numeric task id")
	}
}

func TestFindRunDir(t *testing.T) {
	stageDir := t.TempDir()
	for _, name := range []string{"run_0", "run_007", "run_10", "db", "run_1x"} {
		if err := os.Mkdir(filepath.Join(stageDir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// A file with a matching name must be skipped.
	if err := os.WriteFile(filepath.Join(stageDir, "run_3"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		task    int
		want    string
		wantErr bool
	}{
		{0, "run_0", false},
		{7, "run_007", false},
		{10, "run_10", false},
		{1, "", true},
		{3, "", true},
	}

	for _, tt := range tests {
		got, err := FindRunDir(stageDir, "run_", tt.task)
		if tt.wantErr {
			if !errors.Is(err, ErrRunDirNotFound) {
				t.Errorf("task %d: err = %v, want ErrRunDirNotFound", tt.task, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("task %d: %v", tt.task, err)
		}
		if got != filepath.Join(stageDir, tt.want) {
			t.Errorf("task %d: dir = %q, want %q", tt.task, got, tt.want)
		}
	}
}
