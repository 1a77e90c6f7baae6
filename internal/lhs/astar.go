package lhs

import (
	"context"
	"sort"

	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/logging"
	"dav/internal/pg"
)

// AStarEnumerator grows the graph guided by observation-pair reachability:
// chaining only proceeds where it shortens the heuristic distance between
// two observations still wanting to meet.
type AStarEnumerator struct {
	Base *kb.KnowledgeBase
	Opts Options
}

// Name identifies the enumerator in output.
func (e *AStarEnumerator) Name() string { return "astar-enumerator" }

// permissible accepts non-negative distances within the configured cutoff.
func (e *AStarEnumerator) permissible(d float64) bool {
	return d >= 0 && (e.Opts.MaxDistance < 0 || d <= e.Opts.MaxDistance)
}

// Enumerate builds and post-processes the proof graph.
func (e *AStarEnumerator) Enumerate(ctx context.Context, prob *fol.Problem) (*pg.Graph, error) {
	timer := logging.StartTimer(logging.CategoryLHS, "astar enumerate")
	defer timer.Stop()

	g := pg.NewGraph(prob.Name, e.Base.Library(), e.Base)
	if err := seedGraph(g, prob); err != nil {
		return nil, err
	}

	rm := newReachabilityManager()
	e.initializeReachability(g, rm)

	log := logging.Get(logging.CategoryLHS)
	for {
		if ctx.Err() != nil {
			g.SetTimedOut()
			break
		}
		r := rm.Pop()
		if r == nil {
			break
		}

		fromSet := map[pg.NodeID]bool{r.source: true}
		for _, cand := range e.chainCandidatesFrom(g, r.source) {
			if ctx.Err() != nil {
				g.SetTimedOut()
				break
			}
			if e.Opts.MaxDepth >= 0 {
				depth := 0
				for _, n := range cand.nodes {
					if d := g.Node(n).Depth; d > depth {
						depth = d
					}
				}
				if depth+1 > e.Opts.MaxDepth {
					continue
				}
			}
			axiom := e.Base.GetAxiom(cand.axiom)
			newReach, ok := e.projectReachability(g, rm, cand.nodes, axiom, cand.forward)
			if !ok {
				continue
			}

			head, err := g.Chain(cand.nodes, axiom, !cand.forward)
			if err != nil {
				log.Debug("chain rejected: %v", err)
				continue
			}

			headNodes := g.Hypernode(head)
			for i, nk := range headNodes {
				if i >= len(newReach) {
					break
				}
				entries := e.eraseSatisfied(g, nk, newReach[i])
				for _, entry := range entries {
					if e.permissible(entry.distFrom + entry.distTo) {
						rm.Push(nk, entry.target, entry.distFrom, entry.distTo)
					}
				}
			}
			for _, n := range cand.nodes {
				fromSet[n] = true
			}

			if overSize(g, e.Opts) {
				g.SetTimedOut()
				break
			}
		}

		rm.Erase(fromSet, r.source)
		if g.TimedOut() {
			break
		}
	}

	g.PostProcess()
	return g, nil
}

// initializeReachability seeds one obligation per ordered observation
// pair whose heuristic distance is admissible.
func (e *AStarEnumerator) initializeReachability(g *pg.Graph, rm *reachabilityManager) {
	obs := g.Observations()
	for i := 1; i < len(obs); i++ {
		for j := 0; j < i; j++ {
			a1 := g.Node(obs[j]).Atom.Arity()
			a2 := g.Node(obs[i]).Atom.Arity()
			dist := e.Base.Distance(a1, a2)
			if e.permissible(dist) {
				rm.Push(obs[j], obs[i], 0, dist)
				rm.Push(obs[i], obs[j], 0, dist)
			}
		}
	}
}

// chainCandidatesFrom enumerates every axiom application whose tail
// includes the given node.
func (e *AStarEnumerator) chainCandidatesFrom(g *pg.Graph, source pg.NodeID) []chainCandidate {
	arity := g.Node(source).Atom.Arity()
	var out []chainCandidate
	for _, d := range applicableAxioms(e.Base, e.Opts, arity) {
		axiom := e.Base.GetAxiom(d.axiom)
		side := axiom.RHS
		if d.forward {
			side = axiom.LHS
		}
		lists := sideArityLists(g, side, func(n pg.NodeID) bool {
			return g.Node(n).Depth >= 0
		})
		if len(lists) == 0 {
			continue
		}
		tuples := enumerateTuples(lists, func(tuple []pg.NodeID) bool {
			includesSource := false
			for _, n := range tuple {
				if n == source {
					includesSource = true
					break
				}
			}
			if !includesSource {
				return false
			}
			if containsRequirement(g, tuple) {
				return false
			}
			return g.CheckNodesCoexistability(tuple)
		})
		for _, tu := range tuples {
			out = append(out, chainCandidate{nodes: tu, axiom: d.axiom, forward: d.forward})
		}
	}
	return out
}

// projectReachability translates the open obligations of the tail nodes
// through one axiom application: each produced literal inherits the
// obligations whose targets stay admissible from it. Returns false when
// no produced literal can still reach anything, which prunes the chain.
func (e *AStarEnumerator) projectReachability(
	g *pg.Graph, rm *reachabilityManager,
	tail []pg.NodeID, axiom fol.Rule, forward bool,
) ([][]*reachability, bool) {
	evidence := make(pg.NodeSet)
	for _, n := range tail {
		evidence.AddAll(g.Node(n).Evidence)
	}

	// Merge the tail's obligations, keeping the closest entry per target
	// and dropping targets already inside the tail's evidence.
	rcsFrom := make(map[pg.NodeID]*reachability)
	for _, n := range tail {
		for target, r := range rm.TargetsOf(n) {
			if evidence.Has(target) {
				continue
			}
			if old, ok := rcsFrom[target]; !ok || r.distance() < old.distance() {
				rcsFrom[target] = r
			}
		}
	}
	if len(rcsFrom) == 0 {
		return nil, false
	}

	produced := axiom.LHS
	if forward {
		produced = axiom.RHS
	}

	d0 := e.Base.AxiomDistance(axiom)
	out := make([][]*reachability, len(produced.Atoms))
	reachesSomewhere := false

	targets := make([]pg.NodeID, 0, len(rcsFrom))
	for target := range rcsFrom {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	for _, target := range targets {
		rFrom := rcsFrom[target]
		targetArity := g.Node(target).Atom.Arity()
		for i, lit := range produced.Atoms {
			if lit.Predicate == fol.EqualityPredicate {
				continue
			}
			distTo := e.Base.Distance(lit.Arity(), targetArity)
			if distTo < 0 {
				continue
			}
			entry := &reachability{
				target:   target,
				distFrom: rFrom.distFrom + d0,
				distTo:   distTo,
			}
			if e.permissible(entry.distance()) {
				out[i] = append(out[i], entry)
				reachesSomewhere = true
			}
		}
	}
	return out, reachesSomewhere
}

// eraseSatisfied drops obligations whose target is already subsumed: some
// other node with the new node's arity carries the target in its evidence
// closure, so the reachability is proved, not open. Equality nodes carry
// no obligations.
func (e *AStarEnumerator) eraseSatisfied(g *pg.Graph, nk pg.NodeID, entries []*reachability) []*reachability {
	node := g.Node(nk)
	if node.IsEqualityNode() || node.IsInequalityNode() {
		return nil
	}
	closure := make(pg.NodeSet)
	for n := range g.SearchNodesWithSamePredicateAs(node.Atom) {
		if n == nk {
			continue
		}
		closure.Add(n)
		closure.AddAll(g.Node(n).Evidence)
	}
	var out []*reachability
	for _, r := range entries {
		if closure.Has(r.target) {
			continue
		}
		out = append(out, r)
	}
	return out
}
