// Package space models a named parameter space: an ordered set of parameter
// definitions, the cartesian enumeration of their value lists into runs, and
// the persisted run index that dependent stages resolve against. Declaration
// order is load-bearing everywhere: it fixes the enumeration order and the
// key order of persisted indexes, which run-directory numbering is derived
// from.
package space

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/akapelrud/discharge-parametric-studies/internal/pathspec"
)

// ErrConfiguration reports a malformed parameter-space definition. It is
// always raised during construction, before any run directory exists.
var ErrConfiguration = errors.New("configuration error")

// Spec is one named parameter definition.
type Spec struct {
	Name string

	// Target is the file, relative to the run directory, that the value is
	// written into. Empty for dummy parameters.
	Target string

	// URI locates the value inside the target document. Nil for dummy
	// parameters and for plain key=value input-file targets, where RawURI
	// holds the field name instead.
	URI *pathspec.Expression

	// RawURI preserves the uri payload exactly as declared, for dumping the
	// definition back out to structure.json.
	RawURI any

	// Disparate marks a uri whose top-level sequence is a list of
	// independent paths rather than a single chained path.
	Disparate bool

	// Values is the ordered value list; its length is this parameter's
	// contribution to the combination count. Empty for upstream-fed
	// database parameters, whose combinations arrive by projection.
	Values []any

	// Upstream names the database stage this parameter is unified with.
	Upstream string

	// Dummy parameters carry bookkeeping metadata only; they are written to
	// parameters.json verbatim but never into a document.
	Dummy bool
}

// Space is an ordered mapping of parameter name to Spec.
type Space struct {
	names []string
	specs map[string]*Spec
}

// rawSpec is the wire form of one parameter definition.
type rawSpec struct {
	Target    string `json:"target,omitempty" yaml:"target,omitempty"`
	URI       any    `json:"uri,omitempty" yaml:"uri,omitempty"`
	Values    []any  `json:"values,omitempty" yaml:"values,omitempty"`
	Database  string `json:"database,omitempty" yaml:"database,omitempty"`
	Disparate bool   `json:"disparate,omitempty" yaml:"disparate,omitempty"`
	Dummy     bool   `json:"dummy,omitempty" yaml:"dummy,omitempty"`
}

// Names returns the parameter names in declaration order (space_order).
func (s *Space) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of parameters.
func (s *Space) Len() int { return len(s.names) }

// Get returns the named Spec, or nil.
func (s *Space) Get(name string) *Spec {
	if s.specs == nil {
		return nil
	}
	return s.specs[name]
}

// Specs returns all parameter definitions in declaration order.
func (s *Space) Specs() []*Spec {
	out := make([]*Spec, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.specs[name])
	}
	return out
}

// add validates and installs one parameter definition.
func (s *Space) add(name string, raw rawSpec) error {
	if s.specs == nil {
		s.specs = make(map[string]*Spec)
	}
	if _, exists := s.specs[name]; exists {
		return fmt.Errorf("%w: duplicate parameter name %q", ErrConfiguration, name)
	}

	spec := &Spec{
		Name:      name,
		Target:    raw.Target,
		RawURI:    raw.URI,
		Disparate: raw.Disparate,
		Values:    raw.Values,
		Upstream:  raw.Database,
		Dummy:     raw.Dummy,
	}

	// A parameter with neither target nor uri carries metadata only.
	if raw.Target == "" && raw.URI == nil {
		spec.Dummy = true
	}

	switch {
	case spec.Dummy:
		if raw.Target != "" || raw.URI != nil {
			return fmt.Errorf("%w: parameter %q is marked dummy but has a target or uri",
				ErrConfiguration, name)
		}
		if len(raw.Values) > 1 {
			// A dummy value is broadcast to every run; there is no defined
			// per-run selection among several.
			return fmt.Errorf("%w: dummy parameter %q has %d values, at most 1 is supported",
				ErrConfiguration, name, len(raw.Values))
		}
	default:
		if raw.Target == "" {
			return fmt.Errorf("%w: parameter %q has a uri but no target", ErrConfiguration, name)
		}
		if raw.URI == nil {
			return fmt.Errorf("%w: parameter %q has a target but no uri", ErrConfiguration, name)
		}
		// Input-file targets address a single key=value field by name; only
		// structured documents get a parsed path expression.
		if uriStr, ok := raw.URI.(string); ok && uriStr == "" {
			return fmt.Errorf("%w: parameter %q has an empty uri", ErrConfiguration, name)
		}
		expr, err := pathspec.Parse(raw.URI, raw.Disparate)
		if err != nil {
			return fmt.Errorf("%w: parameter %q: %v", ErrConfiguration, name, err)
		}
		spec.URI = expr

		for i, v := range raw.Values {
			if err := expr.CheckValue(v); err != nil {
				return fmt.Errorf("%w: parameter %q value %d: %v", ErrConfiguration, name, i, err)
			}
		}
	}

	s.names = append(s.names, name)
	s.specs[name] = spec
	return nil
}

// UnmarshalJSON decodes a parameter_space object, preserving key order by
// scanning tokens instead of decoding into a map.
func (s *Space) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: parameter_space: %v", ErrConfiguration, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: parameter_space must be an object", ErrConfiguration)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: parameter_space: %v", ErrConfiguration, err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: parameter_space: unexpected token %v", ErrConfiguration, keyTok)
		}
		var raw rawSpec
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: parameter %q: %v", ErrConfiguration, name, err)
		}
		if err := s.add(name, raw); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: parameter_space: %v", ErrConfiguration, err)
	}
	return nil
}

// UnmarshalYAML decodes a parameter_space mapping; yaml.v3 nodes keep
// document order, so declaration order survives here too.
func (s *Space) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: parameter_space must be a mapping", ErrConfiguration)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var raw rawSpec
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("%w: parameter %q: %v", ErrConfiguration, name, err)
		}
		if err := s.add(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes the space back out in declaration order, reproducing
// the raw field layout of the run definition.
func (s *Space) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(keyData)
		buf.WriteByte(':')

		spec := s.specs[name]
		raw := rawSpec{
			Target:    spec.Target,
			URI:       spec.RawURI,
			Values:    spec.Values,
			Database:  spec.Upstream,
			Disparate: spec.Disparate,
		}
		if spec.Dummy && spec.Target == "" && spec.RawURI == nil {
			raw.Dummy = spec.Dummy
		}
		specData, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		buf.Write(specData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
