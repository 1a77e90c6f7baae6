package kb

import (
	"strings"
	"testing"

	"dav/internal/fol"
	"dav/internal/parse"
)

func mustRules(t *testing.T, src string) ([]fol.Rule, []fol.PredicateProperty) {
	t.Helper()
	p, err := parse.NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	stmts, errs := p.ParseAll()
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	var rules []fol.Rule
	var props []fol.PredicateProperty
	for _, st := range stmts {
		if st.Rule != nil {
			rules = append(rules, *st.Rule)
		}
		if st.Property != nil {
			props = append(props, *st.Property)
		}
	}
	return rules, props
}

const sampleKB = `
rule r1 { eat(E, X, Y) ^ man(X) => apple(Y) }
rule r2 { tree(T, Y) => apple(Y) }
rule r3 { farmer(X) => man(X) }
property parent/2 { asymmetric, irreflexive }
`

func compileSample(t *testing.T) (*KnowledgeBase, *fol.PredicateLibrary) {
	t.Helper()
	rules, props := mustRules(t, sampleKB)
	lib := fol.NewPredicateLibrary()
	base, err := Compile(lib, rules, props, "basic")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return base, lib
}

func TestIndices(t *testing.T) {
	base, _ := compileSample(t)

	rhs := base.AxiomsWithRHS("apple/1")
	if len(rhs) != 2 {
		t.Fatalf("AxiomsWithRHS(apple/1) = %v", rhs)
	}
	if rhs[0] != 0 || rhs[1] != 1 {
		t.Errorf("rhs ids not ascending: %v", rhs)
	}

	lhs := base.AxiomsWithLHS("man/1")
	if len(lhs) != 1 || lhs[0] != 0 {
		t.Errorf("AxiomsWithLHS(man/1) = %v", lhs)
	}

	if got := base.AxiomsWithLHS("absent/9"); len(got) != 0 {
		t.Errorf("missing arity should be empty, got %v", got)
	}
}

func TestGetAxiomPanicsOnUnknownID(t *testing.T) {
	base, _ := compileSample(t)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown axiom id")
		}
	}()
	base.GetAxiom(99)
}

func TestDistances(t *testing.T) {
	base, _ := compileSample(t)

	// eat and apple are joined by r1 directly.
	if d := base.Distance("eat/3", "apple/1"); d != 1.0 {
		t.Errorf("Distance(eat, apple) = %v", d)
	}
	// farmer reaches apple through man (r3 then r1).
	if d := base.Distance("farmer/1", "apple/1"); d != 2.0 {
		t.Errorf("Distance(farmer, apple) = %v", d)
	}
	// Same side of the same rule: zero distance.
	if d := base.Distance("eat/3", "man/1"); d != 0.0 {
		t.Errorf("Distance(eat, man) = %v", d)
	}
	// Symmetry.
	if base.Distance("apple/1", "farmer/1") != base.Distance("farmer/1", "apple/1") {
		t.Error("distance not symmetric")
	}
	// parent never appears in a rule.
	if d := base.Distance("parent/2", "apple/1"); d != Unreachable {
		t.Errorf("unreachable pair = %v", d)
	}
	if d := base.Distance("apple/1", "apple/1"); d != 0 {
		t.Errorf("self distance = %v", d)
	}
}

func TestProperties(t *testing.T) {
	base, lib := compileSample(t)
	pid := lib.Lookup("parent/2")
	if pid == fol.InvalidPredicateID {
		t.Fatal("parent/2 not interned")
	}
	props := base.Property(pid)
	if !props.Has(fol.Asymmetric) || !props.Has(fol.Irreflexive) {
		t.Errorf("properties = %v", props)
	}
	if props.Has(fol.Transitive) {
		t.Error("transitive should be absent")
	}
	if base.Property(fol.PredicateID(1000)) != nil {
		t.Error("unknown pid should have nil properties")
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	base, _ := compileSample(t)
	dir := t.TempDir()
	if err := base.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	lib2 := fol.NewPredicateLibrary()
	reloaded, err := Open(dir, lib2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if reloaded.AxiomCount() != base.AxiomCount() {
		t.Fatalf("axiom count %d != %d", reloaded.AxiomCount(), base.AxiomCount())
	}
	for id := 0; id < base.AxiomCount(); id++ {
		a := base.GetAxiom(fol.RuleID(id))
		b := reloaded.GetAxiom(fol.RuleID(id))
		if a.Name != b.Name || !a.LHS.Equal(b.LHS) || !a.RHS.Equal(b.RHS) {
			t.Errorf("axiom %d changed across reload: %v vs %v", id, a, b)
		}
	}

	// Distance queries must reproduce bit-for-bit.
	pairs := [][2]string{
		{"eat/3", "apple/1"},
		{"farmer/1", "apple/1"},
		{"eat/3", "man/1"},
		{"parent/2", "apple/1"},
	}
	for _, p := range pairs {
		want := base.Distance(p[0], p[1])
		got := reloaded.Distance(p[0], p[1])
		if want != got {
			t.Errorf("Distance(%s, %s) = %v after reload, want %v", p[0], p[1], got, want)
		}
	}

	pid := lib2.Lookup("parent/2")
	if !reloaded.Property(pid).Has(fol.Asymmetric) {
		t.Error("properties lost across reload")
	}
}

func TestAxiomDistanceProviders(t *testing.T) {
	rules, _ := mustRules(t, "rule r { p(x) => { q(x) } : 2.5 }")
	lib := fol.NewPredicateLibrary()

	basic, err := Compile(lib, rules, nil, "basic")
	if err != nil {
		t.Fatal(err)
	}
	if d := basic.AxiomDistance(basic.GetAxiom(0)); d != 1.0 {
		t.Errorf("basic AxiomDistance = %v", d)
	}

	cost, err := Compile(fol.NewPredicateLibrary(), rules, nil, "cost")
	if err != nil {
		t.Fatal(err)
	}
	if d := cost.AxiomDistance(cost.GetAxiom(0)); d != 2.5 {
		t.Errorf("cost AxiomDistance = %v", d)
	}
}
