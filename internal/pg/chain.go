package pg

import (
	"fmt"

	"dav/internal/fol"
	"dav/internal/logging"
)

// BackwardChain applies the axiom abductively: the tail instantiates the
// RHS, the head hypothesizes the LHS.
func (g *Graph) BackwardChain(tail []NodeID, axiom fol.Rule) (HypernodeID, error) {
	return g.Chain(tail, axiom, true)
}

// ForwardChain applies the axiom deductively.
func (g *Graph) ForwardChain(tail []NodeID, axiom fol.Rule) (HypernodeID, error) {
	return g.Chain(tail, axiom, false)
}

// Chain applies an axiom to the tail nodes and grows the graph with the
// instantiated opposite side. The tail must match the axiom's RHS when
// backward (or LHS when forward) up to a variable mapping; fresh variables
// in the hypothesized side are renamed to globally unique names, and
// existential variables introduced by forward chaining become Skolem
// constants. A chain already recorded for the same tail and axiom returns
// the existing head.
func (g *Graph) Chain(tail []NodeID, axiom fol.Rule, backward bool) (HypernodeID, error) {
	if g.frozen {
		return NilHypernode, ErrGraphFrozen
	}

	matched := axiom.RHS
	produced := axiom.LHS
	kind := HypothesizeEdge
	if !backward {
		matched, produced = axiom.LHS, axiom.RHS
		kind = ImplicateEdge
	}

	matchAtoms := nonEqualityAtoms(matched)
	if len(matchAtoms) != len(tail) {
		return NilHypernode, fmt.Errorf("%w: axiom %q wants %d literals, got %d",
			ErrChainMismatch, axiom.Name, len(matchAtoms), len(tail))
	}

	// Bind axiom variables against the tail atoms.
	assign := make(map[fol.Term]fol.Term)
	for i, sideAtom := range matchAtoms {
		node := &g.nodes[tail[i]]
		if node.Atom.Predicate != sideAtom.Predicate ||
			len(node.Atom.Terms) != len(sideAtom.Terms) ||
			node.Atom.Negated != sideAtom.Negated ||
			node.Atom.Naf != sideAtom.Naf {
			return NilHypernode, fmt.Errorf("%w: literal %d of axiom %q", ErrChainMismatch, i, axiom.Name)
		}
		for j, at := range sideAtom.Terms {
			nt := node.Atom.Terms[j]
			if at.IsConstant() {
				if at != nt {
					return NilHypernode, fmt.Errorf("%w: constant %s of axiom %q", ErrChainMismatch, at, axiom.Name)
				}
				continue
			}
			if prev, ok := assign[at]; ok {
				if prev != nt {
					return NilHypernode, fmt.Errorf("%w: variable %s bound twice in axiom %q", ErrChainMismatch, at, axiom.Name)
				}
				continue
			}
			assign[at] = nt
		}
	}

	// No tail node may be an ancestor of another: chaining over such a
	// pair would loop the evidence relation.
	for i := 1; i < len(tail); i++ {
		for j := 0; j < i; j++ {
			a, b := tail[i], tail[j]
			if g.nodes[a].Evidence.Has(b) || g.nodes[b].Evidence.Has(a) {
				return NilHypernode, fmt.Errorf("%w: nodes %d and %d", ErrChainCycle, a, b)
			}
		}
	}

	// Idempotence: one chain per (ordered tail, axiom, direction).
	tailHN := g.addHypernode(tail)
	for _, e := range g.hypernodeToEdges[tailHN] {
		edge := &g.edges[e]
		if edge.Tail == tailHN && edge.Kind == kind && edge.Axiom == axiom.ID {
			return edge.Head, nil
		}
	}

	// Rename unbound variables of the produced side. Backward chaining
	// introduces fresh universals; forward chaining skolemizes.
	for _, a := range produced.Atoms {
		for _, t := range a.Terms {
			if !t.IsVariable() {
				continue
			}
			if _, ok := assign[t]; ok {
				continue
			}
			if backward {
				g.freshCount++
				assign[t] = fol.FreshVariable(g.freshCount)
			} else {
				g.skolemCount++
				assign[t] = fol.SkolemConstant(g.skolemCount)
			}
		}
	}

	depth := 0
	evidence := make(NodeSet)
	for _, n := range tail {
		if d := g.nodes[n].Depth; d >= depth {
			depth = d
		}
		evidence.Add(n)
		evidence.AddAll(g.nodes[n].Evidence)
	}
	depth++

	newNodes := make([]NodeID, 0, len(produced.Atoms))
	for _, a := range produced.Atoms {
		inst := a.Substitute(assign)
		newNodes = append(newNodes, g.addNode(inst, HypothesisNode, depth, evidence.Clone(), NilHypernode))
	}

	headHN := g.addHypernode(newNodes)
	for _, n := range newNodes {
		g.nodes[n].Master = headHN
	}
	g.addEdge(kind, tailHN, headHN, axiom.ID)

	for _, n := range newNodes {
		g.generateMutualExclusions(n)
		g.generateUnificationAssumptions(n)
	}

	logging.Get(logging.CategoryGraph).Debug(
		"chain %s axiom=%s tail=%v head=%d depth=%d", kind, axiom.Name, tail, headHN, depth)
	return headHN, nil
}

// nonEqualityAtoms lists the atoms of a side that chain targets must
// instantiate; equality literals are side conditions, not targets.
func nonEqualityAtoms(c fol.Conjunction) []fol.Atom {
	out := make([]fol.Atom, 0, len(c.Atoms))
	for _, a := range c.Atoms {
		if a.Predicate != fol.EqualityPredicate {
			out = append(out, a)
		}
	}
	return out
}
