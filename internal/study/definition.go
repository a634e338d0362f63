// Package study turns a run definition into an on-disk study tree: one
// directory per stage, one numbered run directory per parameter combination,
// every combination's values written into the copied target files, and the
// stages chained together as dependent Slurm array jobs.
package study

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// DefaultRunPrefix names run directories when a stage does not override it.
const DefaultRunPrefix = "run_"

// Stage is one database or study block of a run definition.
type Stage struct {
	// Identifier names the stage; it becomes the Slurm job name and the key
	// dependent stages reference it by.
	Identifier string `json:"identifier" yaml:"identifier"`

	// Program is the simulation binary path. A {DIMENSIONALITY} placeholder
	// is substituted with the configured dimensionality.
	Program string `json:"program" yaml:"program"`

	// ProgramOptions is passed through to structure.json for the jobscript.
	ProgramOptions string `json:"program_options,omitempty" yaml:"program_options,omitempty"`

	// OutputDirectory is the stage directory name under the output root.
	OutputDirectory string `json:"output_directory" yaml:"output_directory"`

	// OutputDirPrefix overrides the run-directory prefix for this stage.
	OutputDirPrefix string `json:"output_dir_prefix,omitempty" yaml:"output_dir_prefix,omitempty"`

	// JobScript is submitted to Slurm for every run of the stage.
	JobScript string `json:"job_script" yaml:"job_script"`

	// JobScriptDependencies are extra files the jobscript needs, copied into
	// the stage directory.
	JobScriptDependencies []string `json:"job_script_dependencies,omitempty" yaml:"job_script_dependencies,omitempty"`

	// RequiredFiles are copied into every run directory; the parameter
	// targets must be among them.
	RequiredFiles []string `json:"required_files" yaml:"required_files"`

	// Space is the stage's parameter space, in declaration order.
	Space *space.Space `json:"parameter_space" yaml:"parameter_space"`
}

// Definition is a parsed run definition: the databases and the studies that
// depend on them.
type Definition struct {
	Databases []*Stage `json:"databases,omitempty" yaml:"databases,omitempty"`
	Studies   []*Stage `json:"studies" yaml:"studies"`
}

// Load parses a run definition from a JSON or YAML file and validates it.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run definition: %w", err)
	}

	var def Definition
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing run definition %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing run definition %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported run definition extension %q",
			space.ErrConfiguration, ext)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition for structural problems before anything is
// created on disk.
func (d *Definition) Validate() error {
	if len(d.Studies) == 0 {
		return fmt.Errorf("%w: no studies present in run definition", space.ErrConfiguration)
	}

	databases := make(map[string]bool, len(d.Databases))
	for _, db := range d.Databases {
		if err := db.validate("database"); err != nil {
			return err
		}
		if databases[db.Identifier] {
			return fmt.Errorf("%w: duplicate database identifier %q",
				space.ErrConfiguration, db.Identifier)
		}
		databases[db.Identifier] = true
	}

	seen := make(map[string]bool, len(d.Studies))
	for _, st := range d.Studies {
		if err := st.validate("study"); err != nil {
			return err
		}
		if seen[st.Identifier] || databases[st.Identifier] {
			return fmt.Errorf("%w: duplicate study identifier %q",
				space.ErrConfiguration, st.Identifier)
		}
		seen[st.Identifier] = true

		for _, spec := range st.Space.Specs() {
			if spec.Upstream != "" && !databases[spec.Upstream] {
				return fmt.Errorf("%w: study %q parameter %q references unknown database %q",
					space.ErrConfiguration, st.Identifier, spec.Name, spec.Upstream)
			}
		}
	}
	return nil
}

func (st *Stage) validate(kind string) error {
	missing := func(field string) error {
		name := st.Identifier
		if name == "" {
			name = "(unnamed)"
		}
		return fmt.Errorf("%w: %s %q is missing field %q",
			space.ErrConfiguration, kind, name, field)
	}

	switch {
	case st.Identifier == "":
		return missing("identifier")
	case st.Program == "":
		return missing("program")
	case st.OutputDirectory == "":
		return missing("output_directory")
	case st.JobScript == "":
		return missing("job_script")
	case len(st.RequiredFiles) == 0:
		return missing("required_files")
	case st.Space == nil || st.Space.Len() == 0:
		return missing("parameter_space")
	}
	return nil
}

// Prefix returns this stage's run-directory prefix.
func (st *Stage) Prefix() string {
	if st.OutputDirPrefix != "" {
		return st.OutputDirPrefix
	}
	return DefaultRunPrefix
}

// ResolveProgram returns the program path with the dimensionality substituted.
func (st *Stage) ResolveProgram(dim int) string {
	return strings.ReplaceAll(st.Program, "{DIMENSIONALITY}", strconv.Itoa(dim))
}

// sizingNames returns the names of the parameters whose value tuples make up
// the stage's run index, in declaration order.
func (st *Stage) sizingNames() []string {
	var out []string
	for _, spec := range st.Space.Sizing() {
		out = append(out, spec.Name)
	}
	return out
}

// upstreamGroup is the set of a study's parameters unified with one database,
// in declaration order.
type upstreamGroup struct {
	Database string
	Params   []string
}

// upstreamGroups collects the study's database-tagged parameters grouped by
// database, preserving first-reference order.
func (st *Stage) upstreamGroups() []upstreamGroup {
	var groups []upstreamGroup
	byName := make(map[string]int)
	for _, spec := range st.Space.Specs() {
		if spec.Upstream == "" {
			continue
		}
		i, ok := byName[spec.Upstream]
		if !ok {
			i = len(groups)
			byName[spec.Upstream] = i
			groups = append(groups, upstreamGroup{Database: spec.Upstream})
		}
		groups[i].Params = append(groups[i].Params, spec.Name)
	}
	return groups
}
