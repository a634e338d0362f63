package study

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// StructureFile is the per-stage copy of the stage definition, cleaned of
// absolute paths, that jobscripts and postprocessing read back.
const StructureFile = "structure.json"

// Structure is the cleaned stage definition written to structure.json.
// File references are reduced to basenames because everything has been
// copied into the stage directory by the time it is written.
type Structure struct {
	Identifier            string       `json:"identifier"`
	Program               string       `json:"program"`
	ProgramOptions        string       `json:"program_options"`
	JobScript             string       `json:"job_script"`
	JobScriptDependencies []string     `json:"job_script_dependencies"`
	RequiredFiles         []string     `json:"required_files"`
	ParameterSpace        *space.Space `json:"parameter_space"`
	SpaceOrder            []string     `json:"space_order"`
	Dim                   int          `json:"dim"`
	OutputDirPrefix       string       `json:"output_dir_prefix"`
}

// newStructure builds the cleaned definition for a stage.
func newStructure(st *Stage, dim int) *Structure {
	return &Structure{
		Identifier:            st.Identifier,
		Program:               filepath.Base(st.ResolveProgram(dim)),
		ProgramOptions:        st.ProgramOptions,
		JobScript:             filepath.Base(st.JobScript),
		JobScriptDependencies: basenames(st.JobScriptDependencies),
		RequiredFiles:         basenames(st.RequiredFiles),
		ParameterSpace:        st.Space,
		SpaceOrder:            st.Space.Names(),
		Dim:                   dim,
		OutputDirPrefix:       st.Prefix(),
	}
}

// ReadStructure loads a stage's structure.json.
func ReadStructure(stageDir string) (*Structure, error) {
	data, err := os.ReadFile(filepath.Join(stageDir, StructureFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", StructureFile, err)
	}
	var s Structure
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", StructureFile, err)
	}
	return &s, nil
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

// writeExclusiveJSON persists v as indented JSON, refusing to overwrite.
// Stage bookkeeping files are written once at setup time; finding one
// already there means the tree is being regenerated in place.
func writeExclusiveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
