package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
	"github.com/akapelrud/discharge-parametric-studies/internal/study"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Run one array task of a generated stage",
		Long: `Run the simulation for the current Slurm array task.

Meant to be invoked from a jobscript inside a stage directory. The task
index comes from SLURM_ARRAY_TASK_ID; the run directory is resolved through
the stage's index.json and the simulation binary through structure.json.
The simulation's exit code is forwarded unchanged.

Example jobscript line:
  dps task`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mpirun, _ := cmd.Flags().GetString("mpirun")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			backups, _ := cmd.Flags().GetInt("backups")

			task, err := slurm.TaskID()
			if err != nil {
				return err
			}

			idx, err := space.ReadIndexFile(space.IndexFile)
			if err != nil {
				return err
			}
			structure, err := study.ReadStructure(".")
			if err != nil {
				return err
			}
			program := filepath.Join("..", structure.Program)

			runDir, err := slurm.FindRunDir(".", idx.Prefix, task)
			if err != nil {
				return err
			}
			if err := os.Chdir(runDir); err != nil {
				return fmt.Errorf("entering run directory: %w", err)
			}

			inputsFile, err := slurm.FindInputsFile(".")
			if err != nil {
				return err
			}

			// A rerun of the same task keeps the earlier report around.
			if err := slurm.RotateReport(".", backups); err != nil {
				return err
			}

			seed := fmt.Sprintf("Random.seed=%d", task)
			if dryRun {
				fmt.Printf("%s %s %s %s\n", mpirun, program, inputsFile, seed)
				return nil
			}

			sim := exec.CommandContext(cmd.Context(), mpirun, program, inputsFile, seed)
			sim.Stdout = os.Stdout
			sim.Stderr = os.Stderr
			if err := sim.Run(); err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					// Forward the simulation's exit code to Slurm so afterok
					// dependencies see the real outcome.
					os.Exit(exitErr.ExitCode())
				}
				return fmt.Errorf("running simulation in %s: %w", filepath.Base(runDir), err)
			}
			return nil
		},
	}

	cmd.Flags().String("mpirun", "mpirun", "MPI launcher binary")
	cmd.Flags().Bool("dry-run", false, "Print the simulation command instead of running it")
	cmd.Flags().Int("backups", 5, "Numbered backups kept for an existing report file")
	return cmd
}
