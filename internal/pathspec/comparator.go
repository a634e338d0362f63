package pathspec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akapelrud/discharge-parametric-studies/internal/reaction"
)

// Comparator decides whether a document value matches a requirement value.
// want is the literal from the requirement token; got is the value found in
// the document. Comparators are selected by the <hint> embedded in the token
// and resolved once at parse time.
type Comparator func(want string, got any) (bool, error)

var (
	comparatorsMu sync.RWMutex
	comparators   = map[string]Comparator{
		"":           literalComparator,
		"chem_react": reactionComparator,
	}
)

// RegisterComparator installs a semantic comparator under the given hint
// name. Registering an empty name or a nil comparator panics; these are
// programming errors, not configuration errors.
func RegisterComparator(hint string, c Comparator) {
	if hint == "" || c == nil {
		panic("pathspec: invalid comparator registration")
	}
	comparatorsMu.Lock()
	defer comparatorsMu.Unlock()
	comparators[hint] = c
}

func lookupComparator(hint string) (Comparator, error) {
	comparatorsMu.RLock()
	defer comparatorsMu.RUnlock()
	c, ok := comparators[hint]
	if !ok {
		return nil, fmt.Errorf("unknown comparator hint %q (have %v)", hint, comparatorNames())
	}
	return c, nil
}

// comparatorNames is called with comparatorsMu held.
func comparatorNames() []string {
	names := make([]string, 0, len(comparators))
	for name := range comparators {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// literalComparator matches string fields by literal equality.
func literalComparator(want string, got any) (bool, error) {
	s, ok := got.(string)
	return ok && s == want, nil
}

// reactionComparator matches chemistry reaction specifiers by reactant sets,
// so textual reordering of species does not defeat the match.
func reactionComparator(want string, got any) (bool, error) {
	s, ok := got.(string)
	if !ok {
		return false, nil
	}
	return reaction.Match(want, s)
}
