// Package config provides unified configuration loading for dps.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config contains all dps tool settings that are not part of a run
// definition file. A run definition says what to generate; Config says how
// the tool behaves while generating it.
type Config struct {
	// Setup contains settings for study tree generation.
	Setup SetupConfig `json:"setup" yaml:"setup"`

	// Slurm contains settings for job submission.
	Slurm SlurmConfig `json:"slurm" yaml:"slurm"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SetupConfig configures study tree generation.
type SetupConfig struct {
	// OutputDir is the directory the stage trees are created in.
	// Defaults to a "data" directory next to the run definition file.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`

	// Dimensionality is substituted for the {DIMENSIONALITY} placeholder in
	// stage program names.
	Dimensionality int `json:"dimensionality" yaml:"dimensionality"`

	// RunPrefix names run directories, followed by the run number.
	RunPrefix string `json:"run_prefix" yaml:"run_prefix"`

	// Backups is how many numbered backups of rewritten bookkeeping files
	// (logs, job id files) are kept.
	Backups int `json:"backups" yaml:"backups"`

	// CatalogPath is the SQLite run catalog location, relative to OutputDir
	// unless absolute. Empty disables the catalog.
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty"`
}

// SlurmConfig configures how array jobs are submitted.
type SlurmConfig struct {
	// Sbatch is the submission binary to invoke.
	Sbatch string `json:"sbatch" yaml:"sbatch"`

	// ArraySizeWarning is the combination count above which setup warns that
	// the array may exceed the cluster's MaxArraySize.
	ArraySizeWarning int `json:"array_size_warning" yaml:"array_size_warning"`

	// DryRun prints submission commands instead of executing them.
	DryRun bool `json:"dry_run" yaml:"dry_run"`
}

// LoggingConfig configures dps logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "warn".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Setup: SetupConfig{
			Dimensionality: 2,
			RunPrefix:      "run_",
			Backups:        5,
			CatalogPath:    "runs.db",
		},
		Slurm: SlurmConfig{
			Sbatch:           "sbatch",
			ArraySizeWarning: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment
// variables. Order: defaults -> ~/.dps/config.yaml -> environment variables.
func Load() (*Config, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".dps", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Setup.Dimensionality < 1 || c.Setup.Dimensionality > 3 {
		return fmt.Errorf("dimensionality must be 1, 2 or 3, got %d", c.Setup.Dimensionality)
	}

	if c.Setup.RunPrefix == "" {
		return fmt.Errorf("run_prefix must not be empty")
	}

	if c.Setup.Backups < 1 {
		return fmt.Errorf("backups must be positive, got %d", c.Setup.Backups)
	}

	if c.Slurm.Sbatch == "" {
		return fmt.Errorf("sbatch binary must not be empty")
	}

	if c.Slurm.ArraySizeWarning < 1 {
		return fmt.Errorf("array_size_warning must be positive, got %d", c.Slurm.ArraySizeWarning)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "warn": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, warn, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DPS_OUTPUT_DIR"); v != "" {
		config.Setup.OutputDir = v
	}

	if v := os.Getenv("DPS_SBATCH"); v != "" {
		config.Slurm.Sbatch = v
	}

	if v := os.Getenv("DPS_DRY_RUN"); v != "" {
		config.Slurm.DryRun = v == "true" || v == "1"
	}

	if v := os.Getenv("DPS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
