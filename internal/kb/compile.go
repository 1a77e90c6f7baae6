package kb

import (
	"fmt"
	"sort"

	"dav/internal/fol"
	"dav/internal/logging"
)

// Compile builds an in-memory knowledge base from parsed rules and property
// declarations. Every predicate is interned into lib; rules receive dense
// ids in input order. Rules referencing an unknown property keyword have
// already been rejected by the parser, so compilation only fails on
// structural problems.
func Compile(lib *fol.PredicateLibrary, rules []fol.Rule, props []fol.PredicateProperty, distanceProvider string) (*KnowledgeBase, error) {
	timer := logging.StartTimer(logging.CategoryKB, "Compile")
	defer timer.Stop()

	base := &KnowledgeBase{
		lib:              lib,
		lhsIndex:         make(map[string][]fol.RuleID),
		rhsIndex:         make(map[string][]fol.RuleID),
		props:            make(map[fol.PredicateID]fol.PropertySet),
		dists:            make(map[distKey]float64),
		distanceProvider: distanceProvider,
	}

	for i := range rules {
		r := rules[i]
		r.ID = fol.RuleID(len(base.axioms))
		lib.InternRule(&r)
		if r.LHS.Empty() || r.RHS.Empty() {
			return nil, fmt.Errorf("kb: rule %q has an empty side", r.Name)
		}
		base.axioms = append(base.axioms, r)

		for _, key := range sideArities(r.LHS) {
			base.lhsIndex[key] = appendUnique(base.lhsIndex[key], r.ID)
		}
		for _, key := range sideArities(r.RHS) {
			base.rhsIndex[key] = appendUnique(base.rhsIndex[key], r.ID)
		}
	}

	for _, p := range props {
		pid := lib.Intern(p.Predicate, p.ArityN)
		merged := base.props[pid]
		if merged == nil {
			merged = make(fol.PropertySet)
		}
		for prop := range p.Props {
			merged[prop] = true
		}
		base.props[pid] = merged
	}

	base.computeDistances()
	logging.Get(logging.CategoryKB).Info(
		"compiled %d axioms, %d properties, %d distance entries",
		len(base.axioms), len(base.props), len(base.dists))
	return base, nil
}

// sideArities lists the non-equality arity keys of one rule side, deduped,
// preserving first appearance.
func sideArities(c fol.Conjunction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.Atoms {
		if a.Predicate == fol.EqualityPredicate {
			continue
		}
		key := a.Arity()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func appendUnique(ids []fol.RuleID, id fol.RuleID) []fol.RuleID {
	if n := len(ids); n > 0 && ids[n-1] == id {
		return ids
	}
	return append(ids, id)
}

// computeDistances runs Floyd-Warshall over the predicate graph induced by
// the rule base: each axiom connects every LHS predicate to every RHS
// predicate at the axiom's distance.
func (b *KnowledgeBase) computeDistances() {
	pids := make(map[fol.PredicateID]bool)
	type edge struct {
		a, b fol.PredicateID
		d    float64
	}
	var edges []edge

	for _, r := range b.axioms {
		d := b.AxiomDistance(r)
		for _, la := range r.LHS.Atoms {
			if la.Predicate == fol.EqualityPredicate {
				continue
			}
			for _, ra := range r.RHS.Atoms {
				if ra.Predicate == fol.EqualityPredicate {
					continue
				}
				edges = append(edges, edge{la.PID, ra.PID, d})
				pids[la.PID] = true
				pids[ra.PID] = true
			}
			// Predicates sharing the LHS are zero distance apart: proving
			// one brings the whole side along. RHS predicates are not
			// linked to each other this way.
			for _, lb := range r.LHS.Atoms {
				if lb.Predicate != fol.EqualityPredicate && la.PID != lb.PID {
					edges = append(edges, edge{la.PID, lb.PID, 0})
				}
			}
		}
	}

	order := make([]fol.PredicateID, 0, len(pids))
	for pid := range pids {
		order = append(order, pid)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	dist := b.dists
	get := func(a, c fol.PredicateID) (float64, bool) {
		if a == c {
			return 0, true
		}
		d, ok := dist[newDistKey(a, c)]
		return d, ok
	}
	set := func(a, c fol.PredicateID, d float64) {
		if a != c {
			dist[newDistKey(a, c)] = d
		}
	}

	for _, e := range edges {
		if cur, ok := get(e.a, e.b); !ok || e.d < cur {
			set(e.a, e.b, e.d)
		}
	}
	for _, k := range order {
		for _, i := range order {
			di, ok := get(i, k)
			if !ok {
				continue
			}
			for _, j := range order {
				dj, ok := get(k, j)
				if !ok {
					continue
				}
				if cur, ok := get(i, j); !ok || di+dj < cur {
					set(i, j, di+dj)
				}
			}
		}
	}
}
