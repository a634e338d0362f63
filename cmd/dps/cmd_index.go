package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akapelrud/discharge-parametric-studies/internal/runsdb"
	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [stage-dir]",
		Short: "Show the run index of a stage",
		Long: `Show a stage's run index: the mapping between run number and value tuple.

Reads index.json from the stage directory (default "."). With --db, reads
the run catalog database instead; combined with --stage it shows one
stage, otherwise it lists the recorded stages.

Examples:
  dps index data/study0
  dps index --db runs.db
  dps index --db runs.db --stage photoion --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dbPath, _ := cmd.Flags().GetString("db")
			stage, _ := cmd.Flags().GetString("stage")

			if dbPath != "" {
				return runCatalogIndex(cmd, dbPath, stage, jsonOut)
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			idx, err := space.ReadIndexFile(filepath.Join(dir, space.IndexFile))
			if err != nil {
				return err
			}

			jobID, err := slurm.ReadJobID(dir)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			history, err := slurm.JobIDHistory(dir)
			if err != nil {
				return err
			}
			return printIndex(idx, jobID, history, jsonOut)
		},
	}

	cmd.Flags().String("db", "", "Run catalog database to read instead of index.json")
	cmd.Flags().String("stage", "", "Stage to show from the catalog")
	return cmd
}

func runCatalogIndex(cmd *cobra.Command, dbPath, stage string, jsonOut bool) error {
	catalog, err := runsdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer catalog.Close()

	ctx := cmd.Context()
	if stage == "" {
		stages, err := catalog.Stages(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"stages": stages})
		}
		for _, s := range stages {
			fmt.Println(s)
		}
		return nil
	}

	idx, err := catalog.StageIndex(ctx, stage)
	if err != nil {
		return fmt.Errorf("stage %q: %w", stage, err)
	}
	jobID, err := catalog.LastSubmission(ctx, stage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("stage %q: %w", stage, err)
	}
	return printIndex(idx, jobID, nil, jsonOut)
}

func printIndex(idx *space.Index, jobID string, history []string, jsonOut bool) error {
	if jsonOut {
		out := map[string]any{"index": idx}
		if jobID != "" {
			out["job_id"] = jobID
		}
		if len(history) > 0 {
			out["previous_job_ids"] = history
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	fmt.Printf("prefix: %s\nkeys:   %v\n", idx.Prefix, idx.Keys)
	if jobID != "" {
		fmt.Printf("job:    %s\n", jobID)
	}
	if len(history) > 0 {
		fmt.Printf("previous jobs: %s\n", strings.Join(history, " "))
	}
	for _, run := range idx.RunNumbers() {
		fmt.Printf("%s%d: %v\n", idx.Prefix, run, idx.Runs[run])
	}
	return nil
}
