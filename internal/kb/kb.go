// Package kb implements the compiled knowledge base: axiom storage with
// LHS/RHS arity indices, predicate properties, and the predicate-pair
// distance oracle the A* enumerator uses as its heuristic.
//
// A compiled base persists as a single SQLite database. After Open the
// whole base lives in memory and every query is a read-only map lookup, so
// one base can be shared across worker goroutines.
package kb

import (
	"fmt"
	"sort"

	"dav/internal/fol"
)

// Unreachable is the distance reported for predicate pairs with no path.
const Unreachable = -1.0

type distKey [2]fol.PredicateID

func newDistKey(a, b fol.PredicateID) distKey {
	if a > b {
		a, b = b, a
	}
	return distKey{a, b}
}

// KnowledgeBase is a read-only compiled rule base.
type KnowledgeBase struct {
	lib      *fol.PredicateLibrary
	axioms   []fol.Rule
	lhsIndex map[string][]fol.RuleID
	rhsIndex map[string][]fol.RuleID
	props    map[fol.PredicateID]fol.PropertySet
	dists    map[distKey]float64

	// distanceProvider selects how much distance one axiom contributes:
	// "basic" charges 1.0 per hop, "cost" charges the axiom's numeric
	// parameter when present.
	distanceProvider string
}

// AxiomCount returns the number of compiled axioms.
func (b *KnowledgeBase) AxiomCount() int { return len(b.axioms) }

// Library returns the predicate library the base was compiled against.
func (b *KnowledgeBase) Library() *fol.PredicateLibrary { return b.lib }

// GetAxiom returns the axiom with the given id. Unknown ids are a
// programming error.
func (b *KnowledgeBase) GetAxiom(id fol.RuleID) fol.Rule {
	if id < 0 || int(id) >= len(b.axioms) {
		panic(fmt.Sprintf("kb: unknown axiom id %d", id))
	}
	return b.axioms[id]
}

// AxiomsWithLHS returns ids of axioms whose LHS contains the arity,
// ascending. Missing arities yield an empty list.
func (b *KnowledgeBase) AxiomsWithLHS(arity string) []fol.RuleID {
	return b.lhsIndex[arity]
}

// AxiomsWithRHS is the RHS counterpart of AxiomsWithLHS.
func (b *KnowledgeBase) AxiomsWithRHS(arity string) []fol.RuleID {
	return b.rhsIndex[arity]
}

// Property returns the declared property set of a predicate, or nil.
func (b *KnowledgeBase) Property(pid fol.PredicateID) fol.PropertySet {
	return b.props[pid]
}

// PropertyOf looks a predicate up by its atom.
func (b *KnowledgeBase) PropertyOf(a fol.Atom) fol.PropertySet {
	if a.PID == fol.InvalidPredicateID {
		return b.props[b.lib.Lookup(a.Arity())]
	}
	return b.props[a.PID]
}

// Distance returns the heuristic distance between two arity keys, or
// Unreachable. The relation is symmetric.
func (b *KnowledgeBase) Distance(arityA, arityB string) float64 {
	if arityA == arityB {
		return 0
	}
	pa := b.lib.Lookup(arityA)
	pb := b.lib.Lookup(arityB)
	if pa == fol.InvalidPredicateID || pb == fol.InvalidPredicateID {
		return Unreachable
	}
	if d, ok := b.dists[newDistKey(pa, pb)]; ok {
		return d
	}
	return Unreachable
}

// AxiomDistance returns the distance one application of the axiom
// contributes to a reachability path.
func (b *KnowledgeBase) AxiomDistance(r fol.Rule) float64 {
	if b.distanceProvider == "cost" {
		if w, ok := r.RHS.ParamFloat(); ok {
			return w
		}
		if w, ok := r.LHS.ParamFloat(); ok {
			return w
		}
	}
	return 1.0
}

// sortedArities returns the index keys in a stable order; used by the
// persistence layer and by tests.
func sortedArities(m map[string][]fol.RuleID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
