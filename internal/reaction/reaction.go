// Package reaction compares plasma chemistry reaction specifiers of the form
// "A + B -> C + D". Two reactions match when the sets of reactants on each
// side are equal; ordering and multiplicity are ignored, so
// "Y + (O2) -> e + O2+" matches "(O2) + Y -> O2+ + e".
package reaction

import (
	"fmt"
	"regexp"
	"strings"
)

var sideSplit = regexp.MustCompile(`\s+\+\s+`)

// parsed holds the reactant sets of one reaction equation.
type parsed struct {
	lhs map[string]struct{}
	rhs map[string]struct{}
}

// parse splits a reaction string on "->" and collects the reactant sets of
// both sides. It fails when the string contains no "->" separator.
func parse(s string) (parsed, error) {
	lhs, rhs, ok := strings.Cut(s, "->")
	if !ok {
		return parsed{}, fmt.Errorf("%q is not a valid reaction containing \"->\"", s)
	}
	return parsed{
		lhs: reactantSet(lhs),
		rhs: reactantSet(rhs),
	}, nil
}

// Match reports whether the suggested reaction equals the expected one under
// set comparison of each side.
func Match(expected, suggested string) (bool, error) {
	exp, err := parse(expected)
	if err != nil {
		return false, fmt.Errorf("expected reaction: %w", err)
	}
	sug, err := parse(suggested)
	if err != nil {
		return false, fmt.Errorf("suggested reaction: %w", err)
	}
	return setsEqual(exp.lhs, sug.lhs) && setsEqual(exp.rhs, sug.rhs), nil
}

// reactantSet splits one side of a reaction on " + " delimiters.
// Species names may themselves contain '+' (e.g. "O2+"), which is why the
// delimiter requires surrounding whitespace.
func reactantSet(side string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range sideSplit.Split(strings.TrimSpace(side), -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = struct{}{}
		}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
