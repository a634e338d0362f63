package space

import (
	"fmt"
	"sort"

	"github.com/akapelrud/discharge-parametric-studies/internal/document"
)

// Combination is one fully resolved assignment of values to all sizing
// parameters, identified by its enumeration index. Names follow declaration
// order.
type Combination struct {
	Index  int
	Names  []string
	Values []any
}

// Value returns the value assigned to the named parameter.
func (c Combination) Value(name string) (any, bool) {
	for i, n := range c.Names {
		if n == name {
			return c.Values[i], true
		}
	}
	return nil, false
}

// Map returns the combination as a name-to-value mapping including the
// broadcast value of every dummy parameter, the form written to each run's
// parameters.json.
func (c Combination) Map(s *Space) map[string]any {
	out := make(map[string]any, len(c.Names))
	for i, n := range c.Names {
		out[n] = c.Values[i]
	}
	for _, spec := range s.Specs() {
		if spec.Dummy && len(spec.Values) > 0 {
			out[spec.Name] = spec.Values[0]
		}
	}
	return out
}

// Sizing returns the parameters that contribute to the cartesian product:
// every non-dummy spec, in declaration order.
func (s *Space) Sizing() []*Spec {
	var out []*Spec
	for _, spec := range s.Specs() {
		if !spec.Dummy {
			out = append(out, spec)
		}
	}
	return out
}

// Total returns the combination count: the product of the sizing parameters'
// value list lengths. A sizing parameter with no values makes the space
// unenumerable and yields zero.
func (s *Space) Total() int {
	total := 1
	for _, spec := range s.Sizing() {
		total *= len(spec.Values)
	}
	if len(s.Sizing()) == 0 {
		return 0
	}
	return total
}

// Combination computes the value tuple at enumeration index i without
// materializing the full product. Enumeration is row-major over declaration
// order: the first-declared parameter is the slowest-varying. This ordering
// is a durable contract; dependent stages recompute it independently and
// run-directory numbering is derived from it.
func (s *Space) Combination(i int) (Combination, error) {
	sizing := s.Sizing()
	total := s.Total()
	if i < 0 || i >= total {
		return Combination{}, fmt.Errorf("combination index %d out of range [0, %d)", i, total)
	}

	names := make([]string, len(sizing))
	values := make([]any, len(sizing))
	stride := total
	rem := i
	for k, spec := range sizing {
		stride /= len(spec.Values)
		pos := rem / stride
		rem %= stride
		names[k] = spec.Name
		values[k] = spec.Values[pos]
	}
	return Combination{Index: i, Names: names, Values: values}, nil
}

// Combinations enumerates the whole product in index order.
func (s *Space) Combinations() ([]Combination, error) {
	total := s.Total()
	if total < 1 {
		return nil, fmt.Errorf("%w: parameter space has no combinations", ErrConfiguration)
	}
	out := make([]Combination, total)
	for i := 0; i < total; i++ {
		c, err := s.Combination(i)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Project extracts from c the sub-tuple of values for the given upstream key
// order. The result follows upstreamOrder, not c's own order, so it can be
// compared directly against entries of the upstream stage's index.
func Project(c Combination, upstreamOrder []string) ([]any, error) {
	out := make([]any, len(upstreamOrder))
	for i, name := range upstreamOrder {
		v, ok := c.Value(name)
		if !ok {
			return nil, fmt.Errorf("combination %d has no parameter %q required by the upstream key order %v",
				c.Index, name, upstreamOrder)
		}
		out[i] = v
	}
	return out, nil
}

// CombinationSet projects every combination onto the given key order and
// returns the deduplicated sub-tuples in deterministic sorted order. This is
// how a database stage derives its own run set from the studies that depend
// on it.
func CombinationSet(combs []Combination, order []string) ([][]any, error) {
	var set [][]any
	for _, c := range combs {
		tuple, err := Project(c, order)
		if err != nil {
			return nil, err
		}
		dup := false
		for _, have := range set {
			if document.EqualTuples(have, tuple) {
				dup = true
				break
			}
		}
		if !dup {
			set = append(set, tuple)
		}
	}
	SortTuples(set)
	return set, nil
}

// SortTuples orders value tuples element-wise for a stable enumeration:
// numbers by value, strings lexically, mixed kinds by a fixed kind rank.
func SortTuples(tuples [][]any) {
	sort.SliceStable(tuples, func(i, j int) bool {
		return compareTuples(tuples[i], tuples[j]) < 0
	})
}

func compareTuples(a, b []any) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankBool:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case rankNumber:
		av, bv := toFloat(a), toFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case rankString:
		av, bv := a.(string), b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case rankSequence:
		return compareTuples(a.([]any), b.([]any))
	}
	return 0
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankSequence
	rankOther
)

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case float64, float32, int, int64:
		return rankNumber
	case string:
		return rankString
	case []any:
		return rankSequence
	}
	return rankOther
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
