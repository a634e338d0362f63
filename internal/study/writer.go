package study

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/akapelrud/discharge-parametric-studies/internal/document"
	"github.com/akapelrud/discharge-parametric-studies/internal/inputs"
	"github.com/akapelrud/discharge-parametric-studies/internal/pathspec"
	"github.com/akapelrud/discharge-parametric-studies/internal/space"
)

// CombinationWriter applies one combination's values to the target files
// copied into a run directory. Structured targets are parsed once per
// distinct target and held in memory until Flush, so several parameters
// addressing the same document mutate one tree.
type CombinationWriter struct {
	dir   string
	cache map[string]any
}

// NewCombinationWriter returns a writer rooted at the run directory dir.
func NewCombinationWriter(dir string) *CombinationWriter {
	return &CombinationWriter{dir: dir, cache: make(map[string]any)}
}

// Apply writes value into spec's target. Dummy parameters and targets with
// an unrecognized extension are skipped.
func (w *CombinationWriter) Apply(spec *space.Spec, value any) error {
	if spec.Dummy {
		return nil
	}

	switch filepath.Ext(spec.Target) {
	case ".json":
		doc, err := w.load(spec.Target)
		if err != nil {
			return err
		}
		// A root-sequence append reallocates the root, so the cache entry
		// is refreshed from the returned document.
		doc, err = pathspec.Write(doc, spec.URI, value)
		w.cache[spec.Target] = doc
		if err != nil {
			return fmt.Errorf("parameter %q in %s: %w", spec.Name, spec.Target, err)
		}
	case ".inputs":
		field, ok := spec.RawURI.(string)
		if !ok {
			return fmt.Errorf("%w: parameter %q: input-file targets take a plain field name uri",
				space.ErrConfiguration, spec.Name)
		}
		path := filepath.Join(w.dir, spec.Target)
		if err := inputs.SetField(path, field, value); err != nil {
			return fmt.Errorf("parameter %q: %w", spec.Name, err)
		}
	}
	return nil
}

// Flush writes every cached document back to its target file.
func (w *CombinationWriter) Flush() error {
	targets := make([]string, 0, len(w.cache))
	for t := range w.cache {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		path := filepath.Join(w.dir, target)
		if err := document.WriteFile(path, w.cache[target]); err != nil {
			return fmt.Errorf("writing back %s: %w", target, err)
		}
	}
	return nil
}

func (w *CombinationWriter) load(target string) (any, error) {
	if doc, ok := w.cache[target]; ok {
		return doc, nil
	}
	doc, err := document.ParseFile(filepath.Join(w.dir, target))
	if err != nil {
		return nil, fmt.Errorf("parsing target %s: %w", target, err)
	}
	w.cache[target] = doc
	return doc, nil
}
