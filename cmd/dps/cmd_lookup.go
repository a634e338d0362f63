package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/study"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <upstream> [task]",
		Short: "Resolve the upstream run directory for a study task",
		Long: `Resolve which upstream (database) run a study task depends on.

Run from inside a study stage directory. The task's value tuple is read
from the study's index.json, projected onto the upstream's key order, and
matched against the upstream index linked into the stage directory. The
matching run directory is printed.

The task index defaults to SLURM_ARRAY_TASK_ID, for use inside jobscripts:
  cd "$(dps lookup inception_stepper)"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			stageDir, _ := cmd.Flags().GetString("stage-dir")

			var task int
			var err error
			if len(args) == 2 {
				task, err = strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("parsing task index: %w", err)
				}
			} else {
				task, err = slurm.TaskID()
				if err != nil {
					return err
				}
			}

			dir, err := study.LookupUpstream(stageDir, args[0], task)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"upstream": args[0],
					"task":     task,
					"run_dir":  dir,
				})
			}
			fmt.Println(dir)
			return nil
		},
	}

	cmd.Flags().String("stage-dir", ".", "Study stage directory")
	return cmd
}
