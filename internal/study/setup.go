package study

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/akapelrud/discharge-parametric-studies/internal/document"
	"github.com/akapelrud/discharge-parametric-studies/internal/runsdb"
	"github.com/akapelrud/discharge-parametric-studies/internal/slurm"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// ParametersFile records each run's name-to-value combination.
const ParametersFile = "parameters.json"

// Options control a Setup pass.
type Options struct {
	// OutputDir is the root the stage directories are created under. It must
	// not exist yet; an existing tree is never regenerated in place.
	OutputDir string

	// Dim is substituted into {DIMENSIONALITY} program placeholders.
	Dim int

	// Backups bounds the numbered backups kept for rewritten bookkeeping
	// files.
	Backups int

	// ArraySizeWarning is the run count above which a warning is logged.
	ArraySizeWarning int

	// Submitter submits each stage as a Slurm array job. Nil skips
	// submission and leaves the generated tree behind.
	Submitter *slurm.Submitter

	// Catalog, when non-nil, mirrors every stage's run index.
	Catalog *runsdb.Catalog

	Log *slog.Logger
}

// dbState tracks a database stage across the setup pass: its run set grows
// as dependent studies are analyzed, and its job id is needed for afterok
// chaining once submitted.
type dbState struct {
	stage  *Stage
	dir    string
	keys   []string
	tuples [][]any
	jobID  string
}

type studyState struct {
	stage  *Stage
	dir    string
	combs  []space.Combination
	groups []upstreamGroup
}

// Setup materializes the whole definition: database stages first (their run
// sets derived from the studies that reference them), then the studies,
// chained behind their databases with afterok dependencies.
func Setup(ctx context.Context, def *Definition, opts Options) error {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := def.Validate(); err != nil {
		return err
	}

	if parent := filepath.Dir(opts.OutputDir); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fmt.Errorf("creating output parent directory: %w", err)
		}
	}
	// An existing tree means runs may already be queued against it.
	if err := os.Mkdir(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	log.Info("created output directory", "dir", opts.OutputDir)

	databases := make(map[string]*dbState, len(def.Databases))
	dbOrder := make([]*dbState, 0, len(def.Databases))
	for _, db := range def.Databases {
		dir, err := setupEnv(log, db, "database", opts.OutputDir, opts.Dim)
		if err != nil {
			return err
		}
		state := &dbState{stage: db, dir: dir, keys: db.sizingNames()}
		databases[db.Identifier] = state
		dbOrder = append(dbOrder, state)
	}

	var studies []*studyState
	for _, st := range def.Studies {
		dir, err := setupEnv(log, st, "study", opts.OutputDir, opts.Dim)
		if err != nil {
			return err
		}

		combs, err := st.Space.Combinations()
		if err != nil {
			return fmt.Errorf("study %q: %w", st.Identifier, err)
		}
		log.Info("enumerated study combinations",
			"study", st.Identifier,
			"order", st.Space.Names(),
			"combinations", len(combs))

		groups := st.upstreamGroups()
		for _, g := range groups {
			db := databases[g.Database]
			if err := checkUpstreamCoverage(st, g, db); err != nil {
				return err
			}
			// The database's own run set is the union of every dependent
			// study's projected combinations, in the database's key order.
			tuples, err := space.CombinationSet(combs, db.keys)
			if err != nil {
				return fmt.Errorf("study %q against database %q: %w",
					st.Identifier, g.Database, err)
			}
			db.tuples = mergeTuples(db.tuples, tuples)
			log.Debug("projected study onto database",
				"study", st.Identifier, "database", g.Database,
				"tuples", len(tuples))
		}

		studies = append(studies, &studyState{stage: st, dir: dir, combs: combs, groups: groups})
	}

	for _, db := range dbOrder {
		space.SortTuples(db.tuples)
		jobID, err := scheduleStage(ctx, log, db.stage, db.dir, db.keys, db.tuples, nil, opts)
		if err != nil {
			return err
		}
		db.jobID = jobID
	}

	for _, st := range studies {
		var deps []string
		for _, g := range st.groups {
			db := databases[g.Database]
			// Expose the database tree inside the study directory so
			// jobscripts resolve upstream runs with a relative path.
			link := filepath.Join(st.dir, g.Database)
			target := filepath.Join("..", db.stage.OutputDirectory)
			if err := os.Symlink(target, link); err != nil {
				return fmt.Errorf("linking database %q into study %q: %w",
					g.Database, st.stage.Identifier, err)
			}
			if db.jobID != "" {
				deps = append(deps, db.jobID)
			}
		}

		tuples := make([][]any, len(st.combs))
		for i, c := range st.combs {
			tuples[i] = c.Values
		}
		if _, err := scheduleStage(ctx, log, st.stage, st.dir,
			st.stage.sizingNames(), tuples, deps, opts); err != nil {
			return err
		}
	}

	return nil
}

// checkUpstreamCoverage verifies that a study's database-tagged parameters
// cover the database's full key set; a partial unification would leave
// upstream parameters with no defined value.
func checkUpstreamCoverage(st *Stage, g upstreamGroup, db *dbState) error {
	used := make(map[string]bool, len(g.Params))
	for _, p := range g.Params {
		used[p] = true
	}
	for _, key := range db.keys {
		if !used[key] {
			return fmt.Errorf("%w: study %q depends on database %q but does not bind its parameter %q",
				space.ErrConfiguration, st.Identifier, g.Database, key)
		}
	}
	if len(g.Params) != len(db.keys) {
		return fmt.Errorf("%w: study %q binds %d parameters to database %q, which has %d",
			space.ErrConfiguration, st.Identifier, len(g.Params), g.Database, len(db.keys))
	}
	return nil
}

func mergeTuples(have, add [][]any) [][]any {
	for _, tuple := range add {
		dup := false
		for _, h := range have {
			if document.EqualTuples(h, tuple) {
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, tuple)
		}
	}
	return have
}

// setupEnv creates a stage directory and copies in everything the stage's
// jobs need: jobscript (plus a stable jobscript_symlink), program, required
// files, jobscript dependencies, and the cleaned structure.json.
func setupEnv(log *slog.Logger, st *Stage, kind, outputDir string, dim int) (string, error) {
	stageDir := filepath.Join(outputDir, st.OutputDirectory)
	log.Info("setting up stage", "kind", kind, "identifier", st.Identifier, "dir", stageDir)

	if err := os.Mkdir(stageDir, 0755); err != nil {
		return "", fmt.Errorf("creating stage directory for %q: %w", st.Identifier, err)
	}

	if err := copyFile(st.JobScript, stageDir); err != nil {
		return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
	}
	if err := os.Symlink(filepath.Base(st.JobScript),
		filepath.Join(stageDir, "jobscript_symlink")); err != nil {
		return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
	}

	program := st.ResolveProgram(dim)
	if err := copyFile(program, stageDir); err != nil {
		return "", fmt.Errorf("stage %q program: %w", st.Identifier, err)
	}

	for _, f := range st.RequiredFiles {
		if err := copyFile(f, stageDir); err != nil {
			return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
		}
	}
	if len(st.JobScriptDependencies) == 0 {
		log.Warn("stage has no job_script_dependencies", "identifier", st.Identifier)
	}
	for _, f := range st.JobScriptDependencies {
		if err := copyFile(f, stageDir); err != nil {
			return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
		}
	}

	if err := writeExclusiveJSON(filepath.Join(stageDir, StructureFile),
		newStructure(st, dim)); err != nil {
		return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
	}

	return stageDir, nil
}

// scheduleStage enumerates a stage's runs: writes the index, builds every
// run directory, and submits the array job.
func scheduleStage(ctx context.Context, log *slog.Logger, st *Stage, dir string,
	keys []string, tuples [][]any, deps []string, opts Options) (string, error) {

	if len(tuples) < 1 {
		return "", fmt.Errorf("%w: stage %q has no runs", space.ErrConfiguration, st.Identifier)
	}
	if opts.ArraySizeWarning > 0 && len(tuples) > opts.ArraySizeWarning {
		log.Warn("run count exceeds the array size limit of some clusters",
			"identifier", st.Identifier, "runs", len(tuples), "limit", opts.ArraySizeWarning)
	}

	idx := space.NewIndex(st.Prefix(), keys, tuples)
	if err := space.WriteIndexFile(filepath.Join(dir, space.IndexFile), idx); err != nil {
		return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
	}

	for i, tuple := range tuples {
		comb := space.Combination{Index: i, Names: keys, Values: tuple}
		if err := setupRunDir(log, st, dir, idx.RunName(i), comb, opts.Dim); err != nil {
			return "", fmt.Errorf("stage %q run %d: %w", st.Identifier, i, err)
		}
	}

	if opts.Catalog != nil {
		if err := opts.Catalog.RecordStage(ctx, st.Identifier, idx); err != nil {
			return "", err
		}
	}

	if opts.Submitter == nil {
		log.Info("submission skipped", "identifier", st.Identifier, "runs", len(tuples))
		return "", nil
	}

	jobID, err := opts.Submitter.Submit(ctx, slurm.Job{
		Name:         st.Identifier,
		Dir:          dir,
		Script:       filepath.Base(st.JobScript),
		ArraySize:    len(tuples),
		Dependencies: deps,
	})
	if err != nil {
		return "", err
	}
	log.Info("submitted array job", "identifier", st.Identifier, "job_id", jobID,
		"runs", len(tuples), "dependencies", deps)

	if err := slurm.WriteJobID(dir, jobID, opts.Backups); err != nil {
		return "", fmt.Errorf("stage %q: %w", st.Identifier, err)
	}
	if opts.Catalog != nil {
		if err := opts.Catalog.RecordSubmission(ctx, st.Identifier, jobID); err != nil {
			return "", err
		}
	}
	return jobID, nil
}

// setupRunDir builds one run directory: required files copied in, a program
// symlink pointing one level up, parameters.json, and the combination's
// values written into the copied targets.
func setupRunDir(log *slog.Logger, st *Stage, stageDir, runName string,
	comb space.Combination, dim int) error {

	runDir := filepath.Join(stageDir, runName)
	if err := os.Mkdir(runDir, 0755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	log.Debug("run directory", "name", runName, "values", comb.Values)

	for _, f := range st.RequiredFiles {
		if err := copyFile(f, runDir); err != nil {
			return err
		}
	}

	// The program itself lives once in the stage directory; each run links
	// to it so jobscripts can exec a fixed name.
	program := filepath.Base(st.ResolveProgram(dim))
	if err := os.Symlink(filepath.Join("..", program),
		filepath.Join(runDir, "program")); err != nil {
		return err
	}

	if err := writeExclusiveJSON(filepath.Join(runDir, ParametersFile),
		comb.Map(st.Space)); err != nil {
		return err
	}

	writer := NewCombinationWriter(runDir)
	for _, spec := range st.Space.Specs() {
		value, ok := comb.Value(spec.Name)
		if !ok {
			continue
		}
		if err := writer.Apply(spec, value); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// copyFile copies src into the directory dstDir under src's basename,
// preserving the file mode. Symlinked sources are followed.
func copyFile(src, dstDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}

	dst := filepath.Join(dstDir, filepath.Base(src))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
