package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akapelrud/discharge-parametric-studies/internal/logging"
	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/study"
)

func newFanoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fanout [run-dir]",
		Short: "Subdivide a run into a voltage sub-array",
		Long: `Subdivide one run directory into per-voltage sub-runs.

The voltage range is read from the run's input file (lo, hi and step count;
the number of voltages is steps+2). Each sub-run gets a copy of the input
file with its voltage applied, and a nested index.json records the voltage
per sub-run, rotating any index from an earlier fan-out. With --jobscript
the sub-array is submitted from the run directory.

Meant to follow an inception-stepper run that mapped out the voltage range.

Examples:
  dps fanout
  dps fanout run_3 --jobscript sic_jobscript.sh --job-name sic_sweep`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig(cmd)
			if err != nil {
				return err
			}
			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				cfg.Slurm.DryRun = true
			}

			runDir := "."
			if len(args) == 1 {
				runDir = args[0]
			}

			opts := study.FanoutOptions{
				Backups: cfg.Setup.Backups,
				Log:     logging.NewLogger(cfg.Logging.Level, os.Stderr),
			}
			opts.LoField, _ = cmd.Flags().GetString("lo-field")
			opts.HiField, _ = cmd.Flags().GetString("hi-field")
			opts.StepsField, _ = cmd.Flags().GetString("steps-field")
			opts.SetField, _ = cmd.Flags().GetString("set-field")
			opts.Key, _ = cmd.Flags().GetString("key")
			opts.Prefix, _ = cmd.Flags().GetString("prefix")
			opts.JobScript, _ = cmd.Flags().GetString("jobscript")
			opts.JobName, _ = cmd.Flags().GetString("job-name")
			if opts.JobScript != "" {
				opts.Submitter = &slurm.Submitter{
					Sbatch: cfg.Slurm.Sbatch,
					DryRun: cfg.Slurm.DryRun,
					Stdout: os.Stdout,
				}
			}

			idx, err := study.Fanout(cmd.Context(), runDir, opts)
			if err != nil {
				return err
			}
			fmt.Printf("%d sub-runs under %s\n", len(idx.Runs), runDir)
			return nil
		},
	}

	cmd.Flags().String("lo-field", "DischargeInceptionStepper.voltage_lo",
		"Input-file field holding the lowest voltage")
	cmd.Flags().String("hi-field", "DischargeInceptionStepper.voltage_hi",
		"Input-file field holding the highest voltage")
	cmd.Flags().String("steps-field", "DischargeInceptionStepper.voltage_steps",
		"Input-file field holding the intermediate step count")
	cmd.Flags().String("set-field", "StreamerIntegralCriterion.potential",
		"Input-file field written per sub-run")
	cmd.Flags().String("key", "voltage", "Parameter name recorded in the nested index")
	cmd.Flags().String("prefix", "sic_", "Sub-run directory prefix")
	cmd.Flags().String("jobscript", "", "Jobscript to submit as the sub-array")
	cmd.Flags().String("job-name", "sic_sweep", "Slurm job name for the sub-array")
	cmd.Flags().Bool("dry-run", false, "Print the sbatch command instead of submitting")
	return cmd
}
