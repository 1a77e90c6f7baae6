package ilp

import (
	"fmt"
	"sort"

	"dav/internal/pg"
)

// ConvertBaseline emits the encoding every converter shares: variables for
// all nodes, hypernodes, and edges, the justification-structure
// constraints, exclusive chains, transitive unification consistency,
// mutual exclusions, and choice groups.
func (p *Problem) ConvertBaseline() {
	g := p.Graph

	one := 1.0
	for i := 0; i < g.NodeCount(); i++ {
		n := pg.NodeID(i)
		v := p.AddNodeVariable(n)
		node := g.Node(n)
		switch node.Kind {
		case pg.ObservableNode:
			if !g.IsChoiceNode(n) {
				p.vars[v].Fixed = &one
			}
		case pg.RequiredNode, pg.LabelNode:
			p.vars[v].Fixed = &one
		}
	}
	for i := 0; i < g.HypernodeCount(); i++ {
		p.AddHypernodeVariable(pg.HypernodeID(i))
	}
	for i := 0; i < g.EdgeCount(); i++ {
		p.AddEdgeVariable(pg.EdgeID(i))
	}

	for i := 0; i < g.NodeCount(); i++ {
		p.addNodeDependsOnHypernodes(pg.NodeID(i))
	}
	for i := 0; i < g.HypernodeCount(); i++ {
		p.addHypernodeDependsOnParents(pg.HypernodeID(i))
	}
	for i := 0; i < g.EdgeCount(); i++ {
		p.addChainConditions(pg.EdgeID(i))
	}

	p.addExclusiveChains()
	p.addTransitiveUnifications()
	p.addMutualExclusions()
	p.addChoiceGroups()
	p.addRequirementSatisfaction()
}

// addRequirementSatisfaction forces every requirement to be proved: at
// least one unification between the requirement and another node must be
// active. A requirement nothing can unify with makes the problem
// infeasible, which reports as "no explanation".
func (p *Problem) addRequirementSatisfaction() {
	for _, req := range p.Graph.Requirements() {
		c := Constraint{Name: fmt.Sprintf("require(n:%d)", req), Op: OpGE, Bound: 1}
		seen := make(map[pg.EdgeID]bool)
		for _, hn := range p.Graph.HypernodesWithNode(req) {
			for _, e := range p.Graph.EdgesWithHypernode(hn) {
				edge := p.Graph.Edge(e)
				if edge.IsUnify() && edge.Tail == hn && !seen[e] {
					seen[e] = true
					c.AddTerm(p.edgeVar[e], 1)
				}
			}
		}
		p.AddConstraint(c)
	}
}

// addNodeDependsOnHypernodes bounds a hypothesis node by the hypernodes
// containing it: node <= sum(hn). Depth-0 nodes justify themselves.
func (p *Problem) addNodeDependsOnHypernodes(n pg.NodeID) {
	node := p.Graph.Node(n)
	if node.Kind != pg.HypothesisNode {
		return
	}
	hns := p.Graph.HypernodesWithNode(n)
	if len(hns) == 0 {
		return
	}
	c := Constraint{Name: fmt.Sprintf("node-dep(n:%d)", n), Op: OpLE, Bound: 0}
	c.AddTerm(p.nodeVar[n], 1)
	for _, hn := range hns {
		c.AddTerm(p.hnVar[hn], -1)
	}
	p.AddConstraint(c)
}

// addHypernodeDependsOnParents bounds a hypernode by the edges that can
// produce it: hn <= sum(parental edges). Hypernodes nothing produces
// (observation tails) are free.
func (p *Problem) addHypernodeDependsOnParents(hn pg.HypernodeID) {
	var parents []pg.EdgeID
	for _, e := range p.Graph.EdgesWithHypernode(hn) {
		if p.Graph.Edge(e).Head == hn {
			parents = append(parents, e)
		}
	}
	if len(parents) == 0 {
		return
	}
	c := Constraint{Name: fmt.Sprintf("hn-dep(hn:%d)", hn), Op: OpLE, Bound: 0}
	c.AddTerm(p.hnVar[hn], 1)
	for _, e := range parents {
		c.AddTerm(p.edgeVar[e], -1)
	}
	p.AddConstraint(c)
}

// addChainConditions bounds an edge by everything required to fire it:
// its tail hypernode, the tail member nodes, its head hypernode, and for
// unification the masters of both endpoints.
func (p *Problem) addChainConditions(e pg.EdgeID) {
	edge := p.Graph.Edge(e)
	ev := p.edgeVar[e]

	bound := func(name string, v VariableID) {
		c := Constraint{Name: name, Op: OpLE, Bound: 0}
		c.AddTerm(ev, 1)
		c.AddTerm(v, -1)
		p.AddConstraint(c)
	}

	bound(fmt.Sprintf("edge-tail(e:%d)", e), p.hnVar[edge.Tail])
	if edge.Head >= 0 {
		bound(fmt.Sprintf("edge-head(e:%d)", e), p.hnVar[edge.Head])
	}
	for _, n := range p.Graph.Hypernode(edge.Tail) {
		bound(fmt.Sprintf("edge-tailnode(e:%d,n:%d)", e, n), p.nodeVar[n])
	}
	// Firing the edge asserts its conclusion: the head literals (the
	// hypothesized side, or the equalities a unification assumes) hold.
	for _, n := range p.Graph.Hypernode(edge.Head) {
		bound(fmt.Sprintf("edge-headnode(e:%d,n:%d)", e, n), p.nodeVar[n])
	}
	if edge.IsUnify() {
		for _, n := range p.Graph.Hypernode(edge.Tail) {
			if master := p.Graph.Node(n).Master; master >= 0 {
				bound(fmt.Sprintf("edge-master(e:%d,hn:%d)", e, master), p.hnVar[master])
			}
		}
	}
}

// addExclusiveChains allows at most one outgoing HYPOTHESIZE edge per
// hypernode: alternative abductive explanations of one conjunction
// compete.
func (p *Problem) addExclusiveChains() {
	for hn := 0; hn < p.Graph.HypernodeCount(); hn++ {
		var out []pg.EdgeID
		for _, e := range p.Graph.EdgesWithHypernode(pg.HypernodeID(hn)) {
			edge := p.Graph.Edge(e)
			if edge.Tail == pg.HypernodeID(hn) && edge.Kind == pg.HypothesizeEdge {
				out = append(out, e)
			}
		}
		if len(out) < 2 {
			continue
		}
		c := Constraint{Name: fmt.Sprintf("exclusive-chains(hn:%d)", hn), Op: OpLE, Bound: 1}
		for _, e := range out {
			c.AddTerm(p.edgeVar[e], 1)
		}
		p.AddConstraint(c)
	}
}

// addTransitiveUnifications keeps unification consistent: with a~b and
// b~c active, the a~c edge must be active too; absent an a~c edge the
// pair of unifications is forbidden.
func (p *Problem) addTransitiveUnifications() {
	g := p.Graph

	// partner -> unify edge per node.
	partners := make(map[pg.NodeID]map[pg.NodeID]pg.EdgeID)
	link := func(a, b pg.NodeID, e pg.EdgeID) {
		m := partners[a]
		if m == nil {
			m = make(map[pg.NodeID]pg.EdgeID)
			partners[a] = m
		}
		if _, ok := m[b]; !ok {
			m[b] = e
		}
	}
	for i := 0; i < g.EdgeCount(); i++ {
		e := pg.EdgeID(i)
		edge := g.Edge(e)
		if !edge.IsUnify() {
			continue
		}
		pair := g.Hypernode(edge.Tail)
		link(pair[0], pair[1], e)
		link(pair[1], pair[0], e)
	}

	hubs := make([]pg.NodeID, 0, len(partners))
	for b := range partners {
		hubs = append(hubs, b)
	}
	sort.Slice(hubs, func(i, j int) bool { return hubs[i] < hubs[j] })

	for _, b := range hubs {
		m := partners[b]
		as := make([]pg.NodeID, 0, len(m))
		for a := range m {
			as = append(as, a)
		}
		sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
		for i := range as {
			for j := 0; j < i; j++ {
				a, c := as[i], as[j]
				if a > c {
					a, c = c, a
				}
				eab := m[as[i]]
				ebc := m[as[j]]
				c3 := Constraint{
					Name:  fmt.Sprintf("trans-unify(%d,%d,%d)", a, b, c),
					Op:    OpLE,
					Bound: 1,
				}
				c3.AddTerm(p.edgeVar[eab], 1)
				c3.AddTerm(p.edgeVar[ebc], 1)
				if eac, ok := partners[a][c]; ok {
					c3.AddTerm(p.edgeVar[eac], -1)
				}
				p.AddConstraint(c3)
			}
		}
	}
}

// addMutualExclusions renders the exclusion table: hard pairs cut both
// nodes, conditional pairs force their condition literals active.
func (p *Problem) addMutualExclusions() {
	zero := 0.0
	for _, m := range p.Graph.MutualExclusions().All() {
		switch {
		case m.N1 == m.N2 && m.Kind == pg.ExcludeAlways:
			p.vars[p.nodeVar[m.N1]].Fixed = &zero
		case m.N1 == m.N2 && m.Kind == pg.ExcludeUnless:
			for _, u := range m.Condition {
				c := Constraint{Name: fmt.Sprintf("self-excl(n:%d)", m.N1), Op: OpLE, Bound: 0}
				c.AddTerm(p.nodeVar[m.N1], 1)
				c.AddTerm(p.nodeVar[u], -1)
				p.AddConstraint(c)
			}
		case m.Kind == pg.ExcludeAlways:
			c := Constraint{Name: fmt.Sprintf("excl(n:%d,n:%d)", m.N1, m.N2), Op: OpLE, Bound: 1}
			c.AddTerm(p.nodeVar[m.N1], 1)
			c.AddTerm(p.nodeVar[m.N2], 1)
			p.AddConstraint(c)
		case m.Kind == pg.ExcludeUnless:
			for _, u := range m.Condition {
				c := Constraint{Name: fmt.Sprintf("excl-unless(n:%d,n:%d)", m.N1, m.N2), Op: OpLE, Bound: 1}
				c.AddTerm(p.nodeVar[m.N1], 1)
				c.AddTerm(p.nodeVar[m.N2], 1)
				c.AddTerm(p.nodeVar[u], -1)
				p.AddConstraint(c)
			}
		case m.Kind == pg.ExcludeUnification:
			// Already enforced structurally: no a~c edge exists, so the
			// transitive constraint forbids the unification pair.
		}
	}
}

// addChoiceGroups emits one XOR row per choice block.
func (p *Problem) addChoiceGroups() {
	for i, group := range p.Graph.Choices() {
		c := Constraint{Name: fmt.Sprintf("choice(%d)", i), Op: OpEQ, Bound: 1}
		for _, n := range group {
			c.AddTerm(p.nodeVar[n], 1)
		}
		p.AddConstraint(c)
	}
}
