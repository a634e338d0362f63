package space

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/akapelrud/discharge-parametric-studies/internal/backup"
	"github.com/akapelrud/discharge-parametric-studies/internal/document"
)

// IndexFile is the per-stage run index filename consumed by jobscripts and
// dependent stages.
const IndexFile = "index.json"

// ErrUpstreamRunNotFound reports a cross-stage lookup that matched no entry
// of the upstream index: either the stages' value lists disagree or their
// comparison semantics drifted apart.
var ErrUpstreamRunNotFound = errors.New("upstream run not found")

// Index is the persisted mapping between run number and value tuple for one
// stage. It is written once at enumeration time and read-only afterwards;
// run-directory numbering is derived from it, so it must never be
// regenerated with a different ordering once runs have been submitted.
type Index struct {
	// Prefix is the run-directory name prefix, e.g. "run_".
	Prefix string

	// Keys lists the parameter names in declaration order; tuple elements
	// line up with it positionally.
	Keys []string

	// Runs maps run number to value tuple.
	Runs map[int][]any
}

// NewIndex builds an index from enumerated tuples, numbering them in order.
func NewIndex(prefix string, keys []string, tuples [][]any) *Index {
	runs := make(map[int][]any, len(tuples))
	for i, t := range tuples {
		runs[i] = t
	}
	return &Index{Prefix: prefix, Keys: keys, Runs: runs}
}

// RunName returns the run-directory name for a run number.
func (x *Index) RunName(run int) string {
	return x.Prefix + strconv.Itoa(run)
}

// RunNumbers returns the run numbers in ascending order.
func (x *Index) RunNumbers() []int {
	out := make([]int, 0, len(x.Runs))
	for n := range x.Runs {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Lookup scans the index for the run whose value tuple equals the given one.
// Comparison uses document equality, the same semantics tuples were built
// with, so numeric values match regardless of textual representation.
func (x *Index) Lookup(tuple []any) (int, error) {
	for _, n := range x.RunNumbers() {
		if document.EqualTuples(x.Runs[n], tuple) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: no run matches tuple %v in index with keys %v (%d entries)",
		ErrUpstreamRunNotFound, tuple, x.Keys, len(x.Runs))
}

// indexWire is the JSON layout of index.json. Run numbers serialize as
// string keys because JSON objects cannot have integer keys.
type indexWire struct {
	Prefix string           `json:"prefix"`
	Keys   []string         `json:"keys"`
	Index  map[string][]any `json:"index"`
}

// MarshalJSON implements json.Marshaler. The index object is emitted by
// hand so run numbers appear in numeric order ("0","1","2",...,"10") rather
// than the lexical order map marshaling would produce; jobscripts in other
// languages diff these files against older ones.
func (x *Index) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"prefix":`)
	prefix, err := json.Marshal(x.Prefix)
	if err != nil {
		return nil, err
	}
	buf.Write(prefix)
	buf.WriteString(`,"keys":`)
	keys, err := json.Marshal(x.Keys)
	if err != nil {
		return nil, err
	}
	buf.Write(keys)
	buf.WriteString(`,"index":{`)
	for i, n := range x.RunNumbers() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(n)))
		buf.WriteByte(':')
		tuple, err := json.Marshal(x.Runs[n])
		if err != nil {
			return nil, err
		}
		buf.Write(tuple)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (x *Index) UnmarshalJSON(data []byte) error {
	var w indexWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	x.Prefix = w.Prefix
	x.Keys = w.Keys
	x.Runs = make(map[int][]any, len(w.Index))
	for k, t := range w.Index {
		n, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("index entry %q: run numbers must be integers: %w", k, err)
		}
		x.Runs[n] = t
	}
	return nil
}

// WriteIndexFile persists the index to path. The file is created
// exclusively: an existing index is a hard error, because silently
// regenerating it could renumber already-submitted runs. Callers that
// legitimately rewrite a nested index rotate the old file away first.
func WriteIndexFile(path string, x *Index) error {
	data, err := json.MarshalIndent(x, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing index file: %w", err)
	}
	// The index is the durable contract dependent jobs read first; make
	// sure it is on disk before any scheduler dependency is declared.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}
	return nil
}

// RewriteIndexFile persists a secondary, nested index inside a run directory
// that fans out into a further sub-array. Unlike the top-level stage index a
// previous file may exist from an earlier attempt; it is rotated to numbered
// backups first, never clobbered.
func RewriteIndexFile(path string, x *Index, backups int) error {
	if err := backup.Rotate(path, backups); err != nil {
		return fmt.Errorf("rotating previous index: %w", err)
	}
	return WriteIndexFile(path, x)
}

// ReadIndexFile loads an index from path.
func ReadIndexFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	var x Index
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("parsing index file %s: %w", path, err)
	}
	return &x, nil
}
