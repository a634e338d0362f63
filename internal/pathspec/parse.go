package pathspec

import (
	"fmt"
	"regexp"
	"strings"
)

// requirementPattern matches '+["field"=<hint>"value"]' tokens. The
// '=<hint>"value"' part is optional, as is the <hint> within it.
var requirementPattern = regexp.MustCompile(
	`^(?P<req_type>\+|\*)\[\s*"(?P<field>.+?)"\s*` +
		`(?:=\s*(?:<(?P<hint>.+?)?>)?\s*"(?P<value>.+?)")?` +
		`\s*\]$`)

// Parse turns a raw uri payload from a run definition into an Expression.
// The payload is a plain string (single field), a sequence of field names,
// requirement tokens and branch sequences, or - when disparate is set - a
// sequence of independent uris that behaves like a single top-level branch.
func Parse(raw any, disparate bool) (*Expression, error) {
	if disparate {
		seq, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("disparate uri must be a sequence, got %T", raw)
		}
		alts := make([]*Expression, len(seq))
		for i, elem := range seq {
			sub, err := Parse(elem, false)
			if err != nil {
				return nil, fmt.Errorf("disparate uri element %d: %w", i, err)
			}
			alts[i] = sub
		}
		return &Expression{steps: []step{Branch{Alts: alts}}}, nil
	}

	switch v := raw.(type) {
	case string:
		s, err := parseElement(v)
		if err != nil {
			return nil, err
		}
		return &Expression{steps: []step{s}}, nil
	case []any:
		steps, err := parseSequence(v)
		if err != nil {
			return nil, err
		}
		return &Expression{steps: steps}, nil
	default:
		return nil, fmt.Errorf("uri must be a string or sequence, got %T", raw)
	}
}

func parseSequence(seq []any) ([]step, error) {
	steps := make([]step, 0, len(seq))
	for i, elem := range seq {
		switch v := elem.(type) {
		case string:
			s, err := parseElement(v)
			if err != nil {
				return nil, fmt.Errorf("uri element %d: %w", i, err)
			}
			steps = append(steps, s)
		case []any:
			b, err := parseBranch(v)
			if err != nil {
				return nil, fmt.Errorf("uri element %d: %w", i, err)
			}
			steps = append(steps, b)
		default:
			return nil, fmt.Errorf("uri element %d: unsupported type %T", i, elem)
		}
	}
	return steps, nil
}

// parseBranch parses a sequence of alternative sub-paths. An alternative is a
// single field name or token, or a sequence of them; deeper nesting is
// rejected, matching the documented three-level uri limit.
func parseBranch(seq []any) (Branch, error) {
	alts := make([]*Expression, len(seq))
	for i, alt := range seq {
		switch v := alt.(type) {
		case string:
			s, err := parseElement(v)
			if err != nil {
				return Branch{}, fmt.Errorf("branch alternative %d: %w", i, err)
			}
			alts[i] = &Expression{steps: []step{s}}
		case []any:
			steps := make([]step, 0, len(v))
			for j, e := range v {
				es, ok := e.(string)
				if !ok {
					return Branch{}, fmt.Errorf(
						"branch alternative %d element %d: nested sequences are not allowed beyond the 3rd level", i, j)
				}
				s, err := parseElement(es)
				if err != nil {
					return Branch{}, fmt.Errorf("branch alternative %d element %d: %w", i, j, err)
				}
				steps = append(steps, s)
			}
			alts[i] = &Expression{steps: steps}
		default:
			return Branch{}, fmt.Errorf("branch alternative %d: unsupported type %T", i, alt)
		}
	}
	return Branch{Alts: alts}, nil
}

// parseElement classifies a single string element as a requirement token or a
// plain field name. Anything opening like a token must parse as one.
func parseElement(s string) (step, error) {
	if !strings.HasPrefix(s, "+[") && !strings.HasPrefix(s, "*[") {
		return Key(s), nil
	}

	m := requirementPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("match requirement %q is malformed", s)
	}

	p := Predicate{
		Optional: m[requirementPattern.SubexpIndex("req_type")] == "*",
		Field:    m[requirementPattern.SubexpIndex("field")],
		Hint:     m[requirementPattern.SubexpIndex("hint")],
	}
	if value := m[requirementPattern.SubexpIndex("value")]; value != "" {
		p.Value = value
		p.HasValue = true
	}

	cmp, err := lookupComparator(p.Hint)
	if err != nil {
		return nil, fmt.Errorf("match requirement %q: %w", s, err)
	}
	p.compare = cmp
	return p, nil
}
