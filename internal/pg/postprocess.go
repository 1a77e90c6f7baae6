package pg

import (
	"dav/internal/fol"
	"dav/internal/logging"
)

// PostProcess completes the graph after enumeration: unification edges are
// closed transitively, property-driven exclusions are propagated through
// the term clusters, and the graph freezes. Running it on a frozen graph
// is a no-op.
func (g *Graph) PostProcess() {
	if g.frozen {
		return
	}
	timer := logging.StartTimer(logging.CategoryGraph, "PostProcess")
	defer timer.Stop()

	g.addTransitiveUnifications()
	g.propagateExclusions()
	g.frozen = true
}

// addTransitiveUnifications ensures that whenever a~b and b~c edges exist,
// the a~c edge exists too, or the pair is recorded as never-unifiable.
// Pairs where one node is an ancestor of the other get neither.
func (g *Graph) addTransitiveUnifications() {
	// Component analysis per predicate over the existing UNIFY edges.
	adj := make(map[NodeID][]NodeID)
	for i := range g.edges {
		e := &g.edges[i]
		if !e.IsUnify() {
			continue
		}
		pair := g.Hypernode(e.Tail)
		adj[pair[0]] = append(adj[pair[0]], pair[1])
		adj[pair[1]] = append(adj[pair[1]], pair[0])
	}

	visited := make(map[NodeID]bool)
	for _, start := range g.allNodesSorted(adj) {
		if visited[start] {
			continue
		}
		var component []NodeID
		stack := []NodeID{start}
		visited[start] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, n)
			for _, m := range adj[n] {
				if !visited[m] {
					visited[m] = true
					stack = append(stack, m)
				}
			}
		}

		for i := 1; i < len(component); i++ {
			for j := 0; j < i; j++ {
				a, b := component[j], component[i]
				if a > b {
					a, b = b, a
				}
				if g.hasUnifyEdgeBetween(a, b) {
					continue
				}
				g.considered[pairKey(a, b)] = true
				na, nb := g.nodes[a].Atom, g.nodes[b].Atom
				if g.nodes[a].Evidence.Has(b) || g.nodes[b].Evidence.Has(a) {
					continue
				}
				if u := fol.Unify(na, nb); u != nil {
					g.addUnifyEdge(a, b, u)
				} else {
					g.muex.Add(MutualExclusion{N1: a, N2: b, Kind: ExcludeUnification})
				}
			}
		}
	}
}

// hasUnifyEdgeBetween reports whether a UNIFY edge with exactly this tail
// pair exists.
func (g *Graph) hasUnifyEdgeBetween(a, b NodeID) bool {
	hn := g.FindHypernodeWithOrderedNodes([]NodeID{a, b})
	if hn == NilHypernode {
		return false
	}
	for _, e := range g.hypernodeToEdges[hn] {
		edge := &g.edges[e]
		if edge.IsUnify() && edge.Tail == hn {
			return true
		}
	}
	return false
}

func (g *Graph) allNodesSorted(adj map[NodeID][]NodeID) []NodeID {
	set := make(NodeSet, len(adj))
	for n := range adj {
		set.Add(n)
	}
	return set.Sorted()
}

// propagateExclusions re-runs the property-driven exclusion rules with
// cluster equality substituting for syntactic identity: two terms in the
// same unification cluster may denote the same entity, so property
// conflicts latent behind candidate unifications surface here.
func (g *Graph) propagateExclusions() {
	if g.base == nil {
		return
	}
	for pid, set := range g.pidToNodes {
		props := g.base.Property(pid)
		if props == nil {
			continue
		}
		nodes := set.Sorted()
		for i := 1; i < len(nodes); i++ {
			for j := 0; j < i; j++ {
				g.propagatePairExclusion(nodes[j], nodes[i], props)
			}
		}
	}
}

func (g *Graph) propagatePairExclusion(m, n NodeID, props fol.PropertySet) {
	a, b := g.nodes[m].Atom, g.nodes[n].Atom
	if a.Negated != b.Negated || a.Naf != b.Naf || a.Negated {
		return
	}

	// Asymmetric (optionally transitive): arguments that may co-refer
	// through the clusters surface the swapped exclusion here.
	if props.Has(fol.Asymmetric) && len(a.Terms) == 2 && len(b.Terms) == 2 {
		if g.clusters.SameCluster(a.Terms[0], b.Terms[1]) &&
			g.clusters.SameCluster(a.Terms[1], b.Terms[0]) {
			g.addSwappedExclusion(n, m, a, b)
		}
	}

	// Right-unique: leads that may co-refer force trailing equality.
	if props.Has(fol.RightUnique) && len(a.Terms) >= 2 && len(b.Terms) == len(a.Terms) {
		lead := len(a.Terms) - 1
		coRefer := true
		for i := 0; i < lead; i++ {
			if a.Terms[i] != b.Terms[i] && !g.clusters.SameCluster(a.Terms[i], b.Terms[i]) {
				coRefer = false
				break
			}
		}
		if !coRefer {
			return
		}
		t1, t2 := a.Terms[lead], b.Terms[lead]
		if t1 == t2 {
			return
		}
		if t1.IsConstant() && t2.IsConstant() {
			g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeAlways})
			return
		}
		cond := g.findOrCreateEqualityNode(t1, t2, false, NewNodeSet(m, n))
		g.muex.Add(MutualExclusion{N1: m, N2: n, Kind: ExcludeUnless, Condition: []NodeID{cond}})
	}
}
