// Package pathspec locates and rewrites values inside nested JSON-shaped
// documents. A path expression is an ordered list of steps: plain field names
// descend into mappings, requirement tokens ('+["field"="value"]' or
// '*["field"="value"]') search sequences of mappings for a matching element,
// and a nested sequence branches the path into several alternatives that each
// receive one element of a value list.
package pathspec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for path resolution failures. Callers match with errors.Is.
var (
	// ErrPathNotFound reports a missing mapping field on read, or a hard
	// requirement ('+[...]') with no matching sequence element.
	ErrPathNotFound = errors.New("path not found")

	// ErrTypeMismatch reports a step applied to a node of the wrong kind,
	// e.g. a field name reaching a sequence or a requirement reaching a
	// scalar.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrArityMismatch reports a branch value list whose length disagrees
	// with the branch count, or a scalar where a value list is required.
	ErrArityMismatch = errors.New("arity mismatch")
)

// step is one element of a path expression: Key, Predicate or Branch.
type step interface {
	fmt.Stringer
	pathStep()
}

// Key descends into a mapping field, creating an empty mapping on write.
type Key string

func (k Key) pathStep()      {}
func (k Key) String() string { return string(k) }

// Predicate searches a sequence of mappings for an element whose Field member
// matches Value under the step's comparator. A hard requirement fails when no
// element matches; an optional one appends {Field: Value} and descends into it.
type Predicate struct {
	Field    string
	Value    string
	HasValue bool // false when the token names only a field, no equality test
	Optional bool // '*[...]' creates on miss, '+[...]' fails
	Hint     string

	compare Comparator
}

func (p Predicate) pathStep() {}

func (p Predicate) String() string {
	var sb strings.Builder
	if p.Optional {
		sb.WriteByte('*')
	} else {
		sb.WriteByte('+')
	}
	sb.WriteString(`["` + p.Field + `"`)
	if p.HasValue {
		sb.WriteByte('=')
		if p.Hint != "" {
			sb.WriteString("<" + p.Hint + ">")
		}
		sb.WriteString(`"` + p.Value + `"`)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Branch fans the path out over alternative sub-expressions. At write time
// the value at this depth must be a sequence with one element per
// alternative; element i is written through alternative i followed by the
// steps after the branch.
type Branch struct {
	Alts []*Expression
}

func (b Branch) pathStep() {}

func (b Branch) String() string {
	parts := make([]string, len(b.Alts))
	for i, a := range b.Alts {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

// Expression is a parsed path expression.
type Expression struct {
	steps []step
}

// Branching reports whether the expression contains at least one branch step
// and therefore requires sequence-shaped values on writes.
func (e *Expression) Branching() bool {
	for _, s := range e.steps {
		if _, ok := s.(Branch); ok {
			return true
		}
	}
	return false
}

// Dims returns the number of leaf paths the expression fans out to: the sum
// over branch alternatives, 1 for a branch-free expression.
func (e *Expression) Dims() int {
	return dims(e.steps)
}

func dims(steps []step) int {
	for i, s := range steps {
		if b, ok := s.(Branch); ok {
			rest := steps[i+1:]
			n := 0
			for _, alt := range b.Alts {
				n += dims(append(append([]step{}, alt.steps...), rest...))
			}
			return n
		}
	}
	return 1
}

func (e *Expression) String() string {
	parts := make([]string, len(e.steps))
	for i, s := range e.steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// CheckValue verifies that a value payload matches the expression's branch
// arity at every branching depth, without touching any document. Used at
// parameter-space construction time so malformed definitions fail before any
// run directory exists.
func (e *Expression) CheckValue(value any) error {
	return checkValue(e.steps, value)
}

func checkValue(steps []step, value any) error {
	for i, s := range steps {
		b, ok := s.(Branch)
		if !ok {
			continue
		}
		seq, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%w: branch %s needs a value list, got %T",
				ErrArityMismatch, b, value)
		}
		if len(seq) != len(b.Alts) {
			return fmt.Errorf("%w: branch %s has %d alternatives but value list has %d elements",
				ErrArityMismatch, b, len(b.Alts), len(seq))
		}
		rest := steps[i+1:]
		for j, alt := range b.Alts {
			sub := append(append([]step{}, alt.steps...), rest...)
			if err := checkValue(sub, seq[j]); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}
