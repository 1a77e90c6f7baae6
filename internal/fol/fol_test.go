package fol

import (
	"sync"
	"testing"
)

func TestTermClassification(t *testing.T) {
	cases := []struct {
		symbol   string
		variable bool
	}{
		{"x", true},
		{"_g1", true},
		{"abc", true},
		{"X", false},
		{"John", false},
		{"\"quoted\"", false},
		{"Sk3", false},
	}
	for _, c := range cases {
		if got := NewTerm(c.symbol).IsVariable(); got != c.variable {
			t.Errorf("IsVariable(%q) = %v, want %v", c.symbol, got, c.variable)
		}
	}
}

func TestFreshTerms(t *testing.T) {
	v := FreshVariable(7)
	if !v.IsVariable() || !v.IsFresh() {
		t.Errorf("fresh variable %q misclassified", v)
	}
	s := SkolemConstant(2)
	if !s.IsConstant() || !s.IsFresh() {
		t.Errorf("skolem constant %q misclassified", s)
	}
}

func TestAtomParamFloat(t *testing.T) {
	a := NewAtom("apple", NewTerm("x"))
	a.Param = "1.4"
	if v, ok := a.ParamFloat(); !ok || v != 1.4 {
		t.Errorf("ParamFloat = %v, %v", v, ok)
	}
	a.Param = "label:3"
	if v, ok := a.ParamFloat(); !ok || v != 3 {
		t.Errorf("ParamFloat with prefix token = %v, %v", v, ok)
	}
	a.Param = "nothing"
	if _, ok := a.ParamFloat(); ok {
		t.Error("expected no numeric token")
	}
}

func TestEqualityAtoms(t *testing.T) {
	eq := NewEquality(NewTerm("x"), NewTerm("y"))
	if !eq.IsEquality() || eq.IsInequality() {
		t.Fatalf("equality misclassified: %v", eq)
	}
	ne := NewInequality(NewTerm("x"), NewTerm("y"))
	if !ne.IsInequality() || ne.IsEquality() {
		t.Fatalf("inequality misclassified: %v", ne)
	}
	if eq.Arity() != "=/2" {
		t.Errorf("Arity = %q", eq.Arity())
	}
}

func TestPredicateLibraryInterning(t *testing.T) {
	lib := NewPredicateLibrary()
	id1 := lib.Intern("man", 1)
	id2 := lib.Intern("man", 1)
	if id1 != id2 {
		t.Fatalf("interning not stable: %d vs %d", id1, id2)
	}
	if lib.Intern("man", 2) == id1 {
		t.Fatal("arity must distinguish predicates")
	}
	if lib.ArityOf(id1) != "man/1" {
		t.Errorf("ArityOf = %q", lib.ArityOf(id1))
	}
	if lib.Lookup("no/9") != InvalidPredicateID {
		t.Error("missing arity should yield InvalidPredicateID")
	}
}

func TestPredicateLibraryConcurrentInterning(t *testing.T) {
	lib := NewPredicateLibrary()
	var wg sync.WaitGroup
	ids := make([]PredicateID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = lib.Intern("eat", 3)
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("racing interns disagreed: %v", ids)
		}
	}
}

func TestUnify(t *testing.T) {
	a := NewAtom("eat", NewTerm("E"), NewTerm("x"), NewTerm("z"))
	b := NewAtom("eat", NewTerm("E"), NewTerm("y"), NewTerm("w"))
	u := Unify(a, b)
	if u == nil {
		t.Fatal("expected unifier")
	}
	if len(u.Pairs()) != 2 {
		t.Fatalf("Pairs = %v", u.Pairs())
	}

	c := NewAtom("eat", NewTerm("A"), NewTerm("x"), NewTerm("z"))
	if Unify(a, c) != nil {
		t.Error("distinct constants must not unify")
	}
	if Unify(a, NewAtom("man", NewTerm("x"))) != nil {
		t.Error("predicate mismatch must not unify")
	}
}

func TestUnifySwapped(t *testing.T) {
	a := NewAtom("near", NewTerm("A"), NewTerm("x"))
	b := NewAtom("near", NewTerm("y"), NewTerm("A"))
	if UnifySwapped(a, b) == nil {
		t.Fatal("swapped unification should succeed")
	}
	if UnifySwapped(a, NewAtom("near", NewTerm("y"), NewTerm("B"))) != nil {
		t.Error("swapped constants conflict")
	}
}

func TestParseProperty(t *testing.T) {
	p, err := ParseProperty("right-unique")
	if err != nil || p != RightUnique {
		t.Fatalf("ParseProperty = %v, %v", p, err)
	}
	if _, err := ParseProperty("reflexive"); err == nil {
		t.Error("unknown property must error")
	}
}
