// Package document handles the dynamic JSON-shaped documents the configurator
// rewrites: nested trees of mappings, sequences and scalars decoded into
// interface values (nil, bool, float64, string, []any, map[string]any).
// Every consumer type-checks explicitly at each level; nothing is coerced.
package document

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parse decodes a JSON document from r, stripping C++-style // comments
// first. Simulation chemistry files are commented JSON, which encoding/json
// rejects as-is. Comments are cut at the first // on each line, so string
// values containing // are not supported in commented files.
func Parse(r io.Reader) (any, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(sb.String()), &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return doc, nil
}

// ParseFile reads and parses a commented-JSON document from path.
func ParseFile(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile serializes doc as indented JSON to path.
// The write is atomic: temp file in the same directory, then rename.
// Comments from the source document are not preserved.
func WriteFile(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing document temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming document file: %w", err)
	}
	return nil
}
