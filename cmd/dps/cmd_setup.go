package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akapelrud/discharge-parametric-studies/internal/config"
	"github.com/akapelrud/discharge-parametric-studies/internal/logging"
	"github.com/akapelrud/discharge-parametric-studies/internal/runsdb"
	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/study"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup <run-definition>",
		Short: "Generate the study tree and submit the array jobs",
		Long: `Generate the study tree for a run definition and submit each stage
as a Slurm array job.

The run definition (JSON or YAML) declares databases and studies. Database
run sets are derived from the studies that reference them; studies are
submitted with afterok dependencies on their databases.

Examples:
  dps setup runs.json
  dps setup runs.yaml --output-dir /scratch/study_results --dim 3
  dps setup runs.json --dry-run        # generate the tree, print sbatch commands`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig(cmd)
			if err != nil {
				return err
			}

			outputDir, _ := cmd.Flags().GetString("output-dir")
			if outputDir == "" {
				outputDir = cfg.Setup.OutputDir
			}
			if outputDir == "" {
				outputDir = filepath.Join(filepath.Dir(args[0]), "study_results")
			}
			if dim, _ := cmd.Flags().GetInt("dim"); dim != 0 {
				cfg.Setup.Dimensionality = dim
			}
			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				cfg.Slurm.DryRun = true
			}
			noSubmit, _ := cmd.Flags().GetBool("no-submit")
			logFile, _ := cmd.Flags().GetString("logfile")

			if err := cfg.Validate(); err != nil {
				return err
			}

			def, err := study.Load(args[0])
			if err != nil {
				return err
			}

			session, err := logging.OpenSessionFile(logFile, cfg.Setup.Backups)
			if err != nil {
				return err
			}
			defer session.Close()
			log := logging.Tee(cfg.Logging.Level, os.Stderr, session)

			opts := study.Options{
				OutputDir:        outputDir,
				Dim:              cfg.Setup.Dimensionality,
				Backups:          cfg.Setup.Backups,
				ArraySizeWarning: cfg.Slurm.ArraySizeWarning,
				Log:              log,
			}
			if !noSubmit {
				opts.Submitter = &slurm.Submitter{
					Sbatch: cfg.Slurm.Sbatch,
					DryRun: cfg.Slurm.DryRun,
					Stdout: os.Stdout,
				}
			}
			if cfg.Setup.CatalogPath != "" {
				catalog, err := runsdb.Open(resolveCatalogPath(cfg, outputDir))
				if err != nil {
					return err
				}
				defer catalog.Close()
				opts.Catalog = catalog
			}

			if err := study.Setup(cmd.Context(), def, opts); err != nil {
				return fmt.Errorf("setup failed: %w", err)
			}
			log.Info("setup complete", "output_dir", outputDir)
			return nil
		},
	}

	cmd.Flags().String("output-dir", "", "Output directory for the study tree")
	cmd.Flags().Int("dim", 0, "Simulation dimensionality (overrides config)")
	cmd.Flags().Bool("dry-run", false, "Print sbatch commands instead of submitting")
	cmd.Flags().Bool("no-submit", false, "Generate the tree without submitting anything")
	cmd.Flags().String("logfile", "dps_setup.log", "Session log file (rotated)")
	return cmd
}

// loadToolConfig resolves the tool configuration for a command invocation:
// an explicit --config file, otherwise the default locations, with the
// --log-level flag taking precedence over both.
func loadToolConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// resolveCatalogPath anchors a relative catalog path next to the output
// directory. The catalog cannot live inside it: the output directory must
// not exist before setup runs.
func resolveCatalogPath(cfg *config.Config, outputDir string) string {
	if filepath.IsAbs(cfg.Setup.CatalogPath) {
		return cfg.Setup.CatalogPath
	}
	return filepath.Join(filepath.Dir(outputDir), cfg.Setup.CatalogPath)
}
