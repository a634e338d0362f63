package pathspec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, raw any) *Expression {
	t.Helper()
	e, err := Parse(raw, false)
	if err != nil {
		t.Fatalf("Parse(%v) error = %v", raw, err)
	}
	return e
}

func TestParse_PlainKeys(t *testing.T) {
	e := mustParse(t, []any{"gas", "law", "my_ideal_gas", "pressure"})
	if e.Branching() {
		t.Error("Branching() = true for plain key path")
	}
	if got := e.String(); got != "gas/law/my_ideal_gas/pressure" {
		t.Errorf("String() = %q", got)
	}
}

func TestParse_ScalarURI(t *testing.T) {
	e := mustParse(t, "pressure")
	if e.Dims() != 1 {
		t.Errorf("Dims() = %d, want 1", e.Dims())
	}
}

func TestParse_RequirementTokens(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		optional bool
		field    string
		value    string
		hasValue bool
		hint     string
	}{
		{"hard with value", `+["reaction"="A -> B"]`, false, "reaction", "A -> B", true, ""},
		{"optional with value", `*["species"="e"]`, true, "species", "e", true, ""},
		{"field only", `+["efficiency"]`, false, "efficiency", "", false, ""},
		{"typed value", `+["reaction"=<chem_react>"Y + (O2) -> e + O2+"]`, false,
			"reaction", "Y + (O2) -> e + O2+", true, "chem_react"},
		{"spaces tolerated", `+[ "reaction" = "A -> B" ]`, false, "reaction", "A -> B", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := parseElement(tt.token)
			if err != nil {
				t.Fatalf("parseElement(%q) error = %v", tt.token, err)
			}
			p, ok := s.(Predicate)
			if !ok {
				t.Fatalf("parseElement(%q) = %T, want Predicate", tt.token, s)
			}
			if p.Optional != tt.optional || p.Field != tt.field ||
				p.Value != tt.value || p.HasValue != tt.hasValue || p.Hint != tt.hint {
				t.Errorf("parseElement(%q) = %+v", tt.token, p)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"unterminated token", []any{`+["reaction"`}},
		{"missing quotes", []any{`+[reaction]`}},
		{"unknown hint", []any{`+["reaction"=<no_such_hint>"A -> B"]`}},
		{"too deeply nested", []any{"a", []any{[]any{[]any{"b"}}}}},
		{"non-string scalar element", []any{"a", 5.0}},
		{"numeric uri", 42.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.raw, false); err == nil {
				t.Errorf("Parse(%v) expected error", tt.raw)
			}
		})
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	doc := map[string]any{}
	e := mustParse(t, []any{"gas", "law", "my_ideal_gas", "pressure"})

	if _, err := Write(doc, e, 1e5); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read(doc, e)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != 1e5 {
		t.Errorf("Read() = %v, want 1e5", got)
	}

	// Intermediate mappings were created on demand.
	want := map[string]any{
		"gas": map[string]any{
			"law": map[string]any{
				"my_ideal_gas": map[string]any{"pressure": 1e5},
			},
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_OverwritesExisting(t *testing.T) {
	doc := map[string]any{"gas": map[string]any{"pressure": 1e5}}
	e := mustParse(t, []any{"gas", "pressure"})
	if _, err := Write(doc, e, 2e5); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _ := Read(doc, e)
	if got != 2e5 {
		t.Errorf("Read() = %v, want 2e5", got)
	}
}

func TestRead_Missing(t *testing.T) {
	doc := map[string]any{"gas": map[string]any{}}
	e := mustParse(t, []any{"gas", "pressure"})
	_, err := Read(doc, e)
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Read() error = %v, want ErrPathNotFound", err)
	}
}

func TestWrite_TypeMismatch(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		uri  []any
	}{
		{"field name into sequence", map[string]any{"list": []any{}}, []any{"list", "field"}},
		{"requirement into mapping", map[string]any{"obj": map[string]any{}}, []any{"obj", `+["f"]`}},
		{"field into scalar", map[string]any{"x": 1.0}, []any{"x", "y"}},
		{"requirement as leaf", map[string]any{"list": []any{}}, []any{"list", `*["f"]`, `+["g"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustParse(t, tt.uri)
			_, err := Write(tt.doc, e, 1.0)
			if !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("Write() error = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestWrite_HardRequirementMissing(t *testing.T) {
	doc := map[string]any{
		"reactions": []any{
			map[string]any{"reaction": "A -> B"},
		},
	}
	e := mustParse(t, []any{"reactions", `+["reaction"="C -> D"]`, "rate"})
	_, err := Write(doc, e, 1.0)
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Write() error = %v, want ErrPathNotFound", err)
	}
}

func TestWrite_OptionalRequirementCreates(t *testing.T) {
	doc := map[string]any{"reactions": []any{}}
	e := mustParse(t, []any{"reactions", `*["reaction"="C -> D"]`, "rate"})

	if _, err := Write(doc, e, 0.5); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	seq := doc["reactions"].([]any)
	if len(seq) != 1 {
		t.Fatalf("created %d elements, want 1", len(seq))
	}
	want := map[string]any{"reaction": "C -> D", "rate": 0.5}
	if diff := cmp.Diff(want, seq[0]); diff != "" {
		t.Errorf("created element mismatch (-want +got):\n%s", diff)
	}

	// A second write through a hard requirement must now find the element
	// instead of failing, and the optional form must not duplicate it.
	hard := mustParse(t, []any{"reactions", `+["reaction"="C -> D"]`, "rate"})
	if _, err := Write(doc, hard, 0.7); err != nil {
		t.Fatalf("Write() through hard requirement error = %v", err)
	}
	if _, err := Write(doc, e, 0.9); err != nil {
		t.Fatalf("second optional Write() error = %v", err)
	}
	seq = doc["reactions"].([]any)
	if len(seq) != 1 {
		t.Errorf("after re-runs have %d elements, want 1", len(seq))
	}
	if rate := seq[0].(map[string]any)["rate"]; rate != 0.9 {
		t.Errorf("rate = %v, want 0.9", rate)
	}
}

func TestWrite_OptionalRequirementAppendsToRootSequence(t *testing.T) {
	// Documents whose root is the scanned sequence itself, for example a
	// bare reaction list file. The append reallocates the root, so the
	// result is observed through Write's return value.
	doc := any([]any{
		map[string]any{"reaction": "A -> B", "rate": 0.1},
	})
	e := mustParse(t, []any{`*["reaction"="C -> D"]`, "rate"})

	doc, err := Write(doc, e, 0.5)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	seq, ok := doc.([]any)
	if !ok {
		t.Fatalf("returned root is %T, want []any", doc)
	}
	if len(seq) != 2 {
		t.Fatalf("root sequence has %d elements, want 2", len(seq))
	}
	want := map[string]any{"reaction": "C -> D", "rate": 0.5}
	if diff := cmp.Diff(want, seq[1]); diff != "" {
		t.Errorf("appended element mismatch (-want +got):\n%s", diff)
	}

	got, err := Read(doc, mustParse(t, []any{`+["reaction"="C -> D"]`, "rate"}))
	if err != nil {
		t.Fatalf("Read() after root append error = %v", err)
	}
	if got != 0.5 {
		t.Errorf("Read() = %v, want 0.5", got)
	}
}

func TestWrite_FieldOnlyRequirement(t *testing.T) {
	doc := map[string]any{
		"entries": []any{
			map[string]any{"other": 1.0},
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}
	e := mustParse(t, []any{"entries", `+["name"]`, "flag"})
	if _, err := Write(doc, e, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// First element carrying the field wins.
	first := doc["entries"].([]any)[1].(map[string]any)
	if first["flag"] != true {
		t.Errorf("flag not written to first matching element: %v", first)
	}
}

func TestWrite_SkipsNonMappingElements(t *testing.T) {
	doc := map[string]any{
		"entries": []any{"scalar", 3.0, map[string]any{"name": "x"}},
	}
	e := mustParse(t, []any{"entries", `+["name"="x"]`, "v"})
	if _, err := Write(doc, e, 1.0); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func TestWrite_ChemReactComparator(t *testing.T) {
	doc := map[string]any{
		"photoionization": []any{
			// Species order differs from the requirement below.
			map[string]any{"reaction": "(O2) + Y -> O2+ + e", "efficiency": 0.1},
		},
	}
	e := mustParse(t, []any{
		"photoionization",
		`+["reaction"=<chem_react>"Y + (O2) -> e + O2+"]`,
		"efficiency",
	})
	if _, err := Write(doc, e, 1.0); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := doc["photoionization"].([]any)[0].(map[string]any)["efficiency"]
	if got != 1.0 {
		t.Errorf("efficiency = %v, want 1.0", got)
	}
}

func TestWrite_BranchFanOut(t *testing.T) {
	doc := map[string]any{
		"photoionization": []any{
			map[string]any{"reaction": "Y + (O2) -> e + O2+", "efficiency": 0.3},
		},
	}
	e := mustParse(t, []any{
		"photoionization",
		[]any{
			[]any{`+["reaction"=<chem_react>"Y + (O2) -> e + O2+"]`},
			[]any{`*["reaction"=<chem_react>"Y + (O2) -> (null)"]`},
		},
		"efficiency",
	})
	if !e.Branching() {
		t.Fatal("Branching() = false")
	}
	if e.Dims() != 2 {
		t.Fatalf("Dims() = %d, want 2", e.Dims())
	}

	if _, err := Write(doc, e, []any{1.0, 0.0}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	seq := doc["photoionization"].([]any)
	if len(seq) != 2 {
		t.Fatalf("sequence has %d elements, want 2", len(seq))
	}
	first := seq[0].(map[string]any)
	if first["efficiency"] != 1.0 {
		t.Errorf("existing element efficiency = %v, want 1.0", first["efficiency"])
	}
	created := seq[1].(map[string]any)
	want := map[string]any{"reaction": "Y + (O2) -> (null)", "efficiency": 0.0}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Errorf("created element mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_BranchHardRequirementMissing(t *testing.T) {
	doc := map[string]any{"photoionization": []any{}}
	e := mustParse(t, []any{
		"photoionization",
		[]any{
			[]any{`+["reaction"="A -> B"]`},
			[]any{`*["reaction"="C -> D"]`},
		},
		"efficiency",
	})
	_, err := Write(doc, e, []any{1.0, 0.0})
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Write() error = %v, want ErrPathNotFound", err)
	}
}

func TestWrite_BranchArityMismatch(t *testing.T) {
	doc := map[string]any{"photoionization": []any{}}
	e := mustParse(t, []any{
		"photoionization",
		[]any{
			[]any{`*["reaction"="A -> B"]`},
			[]any{`*["reaction"="C -> D"]`},
		},
		"efficiency",
	})

	tests := []struct {
		name  string
		value any
	}{
		{"scalar for branch", 1.0},
		{"short list", []any{1.0}},
		{"long list", []any{1.0, 0.0, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Write(doc, e, tt.value)
			if !errors.Is(err, ErrArityMismatch) {
				t.Errorf("Write() error = %v, want ErrArityMismatch", err)
			}
			// Arity failures are detected before any mutation.
			if n := len(doc["photoionization"].([]any)); n != 0 {
				t.Errorf("document mutated on arity mismatch: %d elements", n)
			}
		})
	}
}

func TestWrite_BranchPartialMutationAccepted(t *testing.T) {
	doc := map[string]any{
		"photoionization": []any{
			map[string]any{"reaction": "A -> B"},
		},
	}
	e := mustParse(t, []any{
		"photoionization",
		[]any{
			[]any{`+["reaction"="A -> B"]`},
			[]any{`+["reaction"="C -> D"]`}, // hard, absent: fails after first applied
		},
		"efficiency",
	})
	_, err := Write(doc, e, []any{1.0, 0.0})
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("Write() error = %v, want ErrPathNotFound", err)
	}
	// The first alternative's write sticks; callers re-copy the pristine
	// template before retrying.
	first := doc["photoionization"].([]any)[0].(map[string]any)
	if first["efficiency"] != 1.0 {
		t.Errorf("first alternative not applied before failure: %v", first)
	}
}

func TestParse_Disparate(t *testing.T) {
	e, err := Parse([]any{
		[]any{"gas", "pressure"},
		[]any{"transport", "pressure"},
	}, true)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if e.Dims() != 2 {
		t.Fatalf("Dims() = %d, want 2", e.Dims())
	}

	doc := map[string]any{}
	if _, err := Write(doc, e, []any{1e5, 2e5}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := map[string]any{
		"gas":       map[string]any{"pressure": 1e5},
		"transport": map[string]any{"pressure": 2e5},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_BranchingRejected(t *testing.T) {
	e := mustParse(t, []any{"a", []any{"b", "c"}})
	_, err := Read(map[string]any{}, e)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Read() error = %v, want ErrTypeMismatch", err)
	}
}

func TestCheckValue(t *testing.T) {
	plain := mustParse(t, []any{"a", "b"})
	if err := plain.CheckValue(1.0); err != nil {
		t.Errorf("CheckValue() on plain path error = %v", err)
	}
	if err := plain.CheckValue([]any{1.0, 2.0}); err != nil {
		t.Errorf("CheckValue() list on plain path error = %v; list values are legal leaves", err)
	}

	branching := mustParse(t, []any{"a", []any{"b", "c"}})
	if err := branching.CheckValue([]any{1.0, 2.0}); err != nil {
		t.Errorf("CheckValue() error = %v", err)
	}
	if err := branching.CheckValue(1.0); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("CheckValue() error = %v, want ErrArityMismatch", err)
	}
	if err := branching.CheckValue([]any{1.0}); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("CheckValue() error = %v, want ErrArityMismatch", err)
	}
}
