package pg

import (
	"dav/internal/fol"
)

// generateUnificationAssumptions adds one UNIFY edge between the new node
// and every pre-existing node with the same predicate, sign, and arity,
// unless the pair is ancestor-related or has been considered before. For
// symmetric predicates the argument-swapped identification is tried as
// well.
func (g *Graph) generateUnificationAssumptions(n NodeID) {
	atom := g.nodes[n].Atom
	if atom.Predicate == fol.EqualityPredicate {
		return
	}
	symmetric := g.properties(atom).Has(fol.Symmetric)
	for _, m := range g.pidToNodes[atom.PID].Sorted() {
		if m >= n {
			continue
		}
		other := g.nodes[m].Atom
		if other.Negated != atom.Negated || other.Naf != atom.Naf {
			continue
		}
		if g.considered[pairKey(n, m)] {
			continue
		}
		g.considered[pairKey(n, m)] = true
		if g.nodes[n].Evidence.Has(m) || g.nodes[m].Evidence.Has(n) {
			continue
		}

		if u := fol.Unify(atom, other); u != nil {
			g.addUnifyEdge(m, n, u)
		}
		if symmetric {
			if u := fol.UnifySwapped(atom, other); u != nil && !u.Empty() {
				g.addUnifyEdge(m, n, u)
			}
		}
	}
}

// addUnifyEdge materializes one unification assumption: the tail holds the
// two candidate nodes, the head holds the generated equality literals (or
// is nil when the atoms are already identical). Differing term pairs join
// the same unification cluster.
func (g *Graph) addUnifyEdge(m, n NodeID, u *fol.Unifier) EdgeID {
	tail := g.addHypernode([]NodeID{m, n})

	head := NilHypernode
	if !u.Empty() {
		evidence := make(NodeSet)
		evidence.Add(m)
		evidence.Add(n)
		evidence.AddAll(g.nodes[m].Evidence)
		evidence.AddAll(g.nodes[n].Evidence)

		var eqNodes []NodeID
		for _, pair := range u.Pairs() {
			g.clusters.Union(pair[0], pair[1])
			eqNodes = append(eqNodes, g.findOrCreateEqualityNode(pair[0], pair[1], false, evidence))
		}
		head = g.addHypernode(eqNodes)
		g.unifyHypernodes[head] = true
		for _, eq := range eqNodes {
			if g.nodes[eq].Master == NilHypernode {
				g.nodes[eq].Master = head
			}
		}
	}
	return g.addEdge(UnifyEdge, tail, head, fol.InvalidRuleID)
}

// findOrCreateEqualityNode returns the hypothesis node carrying
// (t1 = t2) or (t1 != t2), creating it at depth -1 on first use. Term
// order is canonicalized so both directions share one node.
func (g *Graph) findOrCreateEqualityNode(t1, t2 fol.Term, negated bool, evidence NodeSet) NodeID {
	if t2.Symbol < t1.Symbol {
		t1, t2 = t2, t1
	}
	key := t1.Symbol + "\x00" + t2.Symbol
	if negated {
		key = "!" + key
	}
	if id, ok := g.eqNodes[key]; ok {
		if evidence != nil {
			g.nodes[id].Evidence.AddAll(evidence)
		}
		return id
	}
	atom := fol.NewEquality(t1, t2)
	atom.Negated = negated
	var ev NodeSet
	if evidence != nil {
		ev = evidence.Clone()
	}
	id := g.addNode(atom, HypothesisNode, -1, ev, NilHypernode)
	g.eqNodes[key] = id

	// An equality and its negation on the same pair are unconditionally
	// exclusive.
	counterKey := key
	if negated {
		counterKey = key[1:]
	} else {
		counterKey = "!" + key
	}
	if counter, ok := g.eqNodes[counterKey]; ok {
		g.muex.Add(MutualExclusion{N1: counter, N2: id, Kind: ExcludeAlways})
	}
	return id
}

// generateMutualExclusions records the exclusions the new node enters
// into, as dictated by negation counterparts and predicate properties.
func (g *Graph) generateMutualExclusions(n NodeID) {
	node := &g.nodes[n]
	a := node.Atom
	if a.Predicate == fol.EqualityPredicate {
		return
	}
	props := g.properties(a)

	// Irreflexive binary predicates conflict with themselves when both
	// arguments may denote the same entity.
	if props.Has(fol.Irreflexive) && len(a.Terms) == 2 && !a.Negated {
		t1, t2 := a.Terms[0], a.Terms[1]
		switch {
		case t1 == t2:
			g.muex.Add(MutualExclusion{N1: n, N2: n, Kind: ExcludeAlways})
		case t1.IsConstant() && t2.IsConstant():
			// Distinct constants never collide.
		default:
			cond := g.findOrCreateEqualityNode(t1, t2, true, NewNodeSet(n))
			g.muex.Add(MutualExclusion{N1: n, N2: n, Kind: ExcludeUnless, Condition: []NodeID{cond}})
		}
	}

	for _, m := range g.pidToNodes[a.PID].Sorted() {
		if m >= n {
			continue
		}
		other := &g.nodes[m]
		b := other.Atom

		// Negation counterparts: p(t...) against !p(s...).
		if b.Negated != a.Negated && b.Naf == a.Naf {
			g.addCounterpartExclusion(n, m, a, b)
		}

		if b.Negated != a.Negated || b.Naf != a.Naf {
			continue
		}

		// Asymmetric predicates: p(x,y) against p(y,x).
		if props.Has(fol.Asymmetric) && len(a.Terms) == 2 && len(b.Terms) == 2 {
			g.addSwappedExclusion(n, m, a, b)
		}

		// Right-unique predicates: p(x, y1) against p(x, y2) forces
		// y1 = y2. Generated when the leading arguments are identical;
		// PostProcess extends this to cluster-equal leads.
		if props.Has(fol.RightUnique) && len(a.Terms) >= 2 && len(b.Terms) == len(a.Terms) {
			g.addRightUniqueExclusion(n, m, a, b)
		}
	}
}

// addCounterpartExclusion handles a positive/negative pair of the same
// predicate: they exclude each other when their arguments co-refer, so
// coexistence requires the differing argument pairs to stay distinct.
func (g *Graph) addCounterpartExclusion(n, m NodeID, a, b fol.Atom) {
	var cond []NodeID
	for i := range a.Terms {
		t1, t2 := a.Terms[i], b.Terms[i]
		if t1 == t2 {
			continue
		}
		if t1.IsConstant() && t2.IsConstant() {
			return // can never co-refer
		}
		cond = append(cond, g.findOrCreateEqualityNode(t1, t2, true, NewNodeSet(n, m)))
	}
	if len(cond) == 0 {
		g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeAlways})
		return
	}
	g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeUnless, Condition: cond})
}

// addSwappedExclusion handles an asymmetric predicate pair matched with
// arguments reversed.
func (g *Graph) addSwappedExclusion(n, m NodeID, a, b fol.Atom) {
	var cond []NodeID
	pairs := [][2]fol.Term{{a.Terms[0], b.Terms[1]}, {a.Terms[1], b.Terms[0]}}
	for _, p := range pairs {
		if p[0] == p[1] {
			continue
		}
		if p[0].IsConstant() && p[1].IsConstant() {
			return
		}
		cond = append(cond, g.findOrCreateEqualityNode(p[0], p[1], true, NewNodeSet(n, m)))
	}
	if len(cond) == 0 {
		g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeAlways})
		return
	}
	g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeUnless, Condition: cond})
}

// addRightUniqueExclusion applies when the leading arguments are already
// identical: the trailing arguments must unify for both to hold.
func (g *Graph) addRightUniqueExclusion(n, m NodeID, a, b fol.Atom) {
	lead := len(a.Terms) - 1
	for i := 0; i < lead; i++ {
		if a.Terms[i] != b.Terms[i] {
			return
		}
	}
	t1, t2 := a.Terms[lead], b.Terms[lead]
	if t1 == t2 {
		return
	}
	if t1.IsConstant() && t2.IsConstant() {
		g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeAlways})
		return
	}
	cond := g.findOrCreateEqualityNode(t1, t2, false, NewNodeSet(n, m))
	g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeUnless, Condition: []NodeID{cond}})
}
