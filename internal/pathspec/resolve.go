package pathspec

import "fmt"

// Read resolves the expression against doc and returns the leaf value.
// Branching expressions cannot be read; reads never create anything, so an
// optional requirement with no match fails just like a hard one.
func Read(doc any, e *Expression) (any, error) {
	if e.Branching() {
		return nil, fmt.Errorf("%w: cannot read through a branching path %s", ErrTypeMismatch, e)
	}

	cur := doc
	for _, s := range e.steps {
		switch st := s.(type) {
		case Key:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: field %q reached a %T, expected a mapping", ErrTypeMismatch, st, cur)
			}
			v, present := m[string(st)]
			if !present {
				return nil, fmt.Errorf("%w: no field %q", ErrPathNotFound, st)
			}
			cur = v
		case Predicate:
			seq, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: requirement %s reached a %T, expected a sequence", ErrTypeMismatch, st, cur)
			}
			idx, err := st.match(seq)
			if err != nil {
				return nil, err
			}
			if idx < 0 {
				return nil, fmt.Errorf("%w: no sequence element matches %s", ErrPathNotFound, st)
			}
			cur = seq[idx]
		}
	}
	return cur, nil
}

// Write resolves the expression against doc and writes value at the leaf,
// returning the document root. Intermediate mapping fields are created when
// absent, optional requirements append their {field: value} element on miss,
// and each branch consumes one element of the value list at its depth. An
// append to a sequence reallocates it, so when the document root is itself
// the scanned sequence the returned root differs from doc; callers must keep
// the returned value. Branch application is sequential and not transactional:
// if a later alternative fails, earlier alternatives stay written and the
// document is left well-formed but partially updated.
func Write(doc any, e *Expression, value any) (any, error) {
	if err := e.CheckValue(value); err != nil {
		return doc, err
	}
	root := doc
	cur := cursor{
		get: func() any { return root },
		set: func(v any) error { root = v; return nil },
	}
	err := write(cur, e.steps, value)
	return root, err
}

// cursor addresses one node through its parent container. Nodes are fetched
// lazily because appending to a sequence reallocates it: a branch alternative
// must observe the elements its siblings created, so every access goes back
// through the parent chain instead of holding a possibly stale slice header.
type cursor struct {
	get func() any
	set func(v any) error
}

func write(cur cursor, steps []step, value any) error {
	for i, s := range steps {
		switch st := s.(type) {
		case Key:
			m, ok := cur.get().(map[string]any)
			if !ok {
				return fmt.Errorf("%w: field %q reached a %T, expected a mapping", ErrTypeMismatch, st, cur.get())
			}
			if i == len(steps)-1 {
				m[string(st)] = value // leaf write
				return nil
			}
			name := string(st)
			if _, present := m[name]; !present {
				m[name] = map[string]any{}
			}
			cur = cursor{
				get: func() any { return m[name] },
				set: func(v any) error { m[name] = v; return nil },
			}

		case Predicate:
			seq, ok := cur.get().([]any)
			if !ok {
				return fmt.Errorf("%w: requirement %s reached a %T, expected a sequence", ErrTypeMismatch, st, cur.get())
			}
			if i == len(steps)-1 {
				return fmt.Errorf("%w: path must end in a field name, not requirement %s", ErrTypeMismatch, st)
			}
			idx, err := st.match(seq)
			if err != nil {
				return err
			}
			if idx < 0 {
				if !st.Optional {
					return fmt.Errorf("%w: no sequence element matches hard requirement %s", ErrPathNotFound, st)
				}
				elem := map[string]any{}
				if st.HasValue {
					elem[st.Field] = st.Value
				} else {
					elem[st.Field] = nil
				}
				seq = append(seq, elem)
				if err := cur.set(seq); err != nil {
					return err
				}
				idx = len(seq) - 1
			}
			parent, elemIdx := cur, idx
			cur = cursor{
				get: func() any { return parent.get().([]any)[elemIdx] },
				set: func(v any) error { parent.get().([]any)[elemIdx] = v; return nil },
			}

		case Branch:
			values, ok := value.([]any)
			if !ok || len(values) != len(st.Alts) {
				// CheckValue catches this up front; kept for direct callers.
				return fmt.Errorf("%w: branch %s expects a value list of length %d",
					ErrArityMismatch, st, len(st.Alts))
			}
			rest := steps[i+1:]
			for j, alt := range st.Alts {
				sub := append(append([]step{}, alt.steps...), rest...)
				if err := write(cur, sub, values[j]); err != nil {
					return fmt.Errorf("branch alternative %d (%s): %w", j, alt, err)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("%w: empty path expression", ErrTypeMismatch)
}

// match scans seq in order for the first mapping element satisfying the
// requirement and returns its index, or -1 when nothing matches. Non-mapping
// elements and mappings without the field are skipped, mirroring how
// heterogeneous chemistry lists are traversed.
func (p Predicate) match(seq []any) (int, error) {
	for i, elem := range seq {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		got, present := m[p.Field]
		if !present {
			continue
		}
		if !p.HasValue {
			return i, nil
		}
		matched, err := p.compare(p.Value, got)
		if err != nil {
			return -1, fmt.Errorf("requirement %s element %d: %w", p, i, err)
		}
		if matched {
			return i, nil
		}
	}
	return -1, nil
}
