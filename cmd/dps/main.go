package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dps",
		Short: "Discharge parametric studies - parameter sweep configurator",
		Long: `dps expands parameter-space definitions into Slurm-ready study trees.

A run definition declares databases and studies, each with a parameter
space. dps enumerates every combination, generates one run directory per
combination with the values written into the copied input files, and
submits the stages as chained array jobs.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Tool config file (default ~/.dps/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, warn")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSetupCmd(),
		newTaskCmd(),
		newFanoutCmd(),
		newLookupCmd(),
		newIndexCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
