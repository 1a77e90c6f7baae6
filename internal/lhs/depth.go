package lhs

import (
	"context"

	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/logging"
	"dav/internal/pg"
)

// DepthEnumerator grows the graph breadth-first by depth layers: every
// axiom applicable to a frontier node is chained over every tail tuple
// that touches the frontier.
type DepthEnumerator struct {
	Base *kb.KnowledgeBase
	Opts Options
}

// Name identifies the enumerator in output.
func (e *DepthEnumerator) Name() string { return "depth-enumerator" }

// Enumerate builds and post-processes the proof graph.
func (e *DepthEnumerator) Enumerate(ctx context.Context, prob *fol.Problem) (*pg.Graph, error) {
	timer := logging.StartTimer(logging.CategoryLHS, "depth enumerate")
	defer timer.Stop()

	g := pg.NewGraph(prob.Name, e.Base.Library(), e.Base)
	if err := seedGraph(g, prob); err != nil {
		return nil, err
	}

	log := logging.Get(logging.CategoryLHS)
	for depth := 0; e.Opts.MaxDepth < 0 || depth < e.Opts.MaxDepth; depth++ {
		frontier := g.SearchNodesWithDepth(depth).Sorted()
		if len(frontier) == 0 {
			break
		}

		// Axioms touching the frontier, deduplicated across its nodes.
		seen := make(map[direction]bool)
		var dirs []direction
		for _, n := range frontier {
			for _, d := range applicableAxioms(e.Base, e.Opts, g.Node(n).Atom.Arity()) {
				if !seen[d] {
					seen[d] = true
					dirs = append(dirs, d)
				}
			}
		}

		for _, d := range dirs {
			axiom := e.Base.GetAxiom(d.axiom)
			for _, cand := range e.candidates(g, axiom, d.forward, depth) {
				if _, err := g.Chain(cand.nodes, axiom, !cand.forward); err != nil {
					log.Debug("chain rejected: %v", err)
				}
				if ctx.Err() != nil || overSize(g, e.Opts) {
					g.SetTimedOut()
					g.PostProcess()
					return g, nil
				}
			}
		}
	}

	g.PostProcess()
	return g, nil
}

// candidates enumerates the tail tuples for one axiom at one depth: each
// tuple matches the axiom's side arities, stays at or below the frontier,
// contains at least one frontier node and no requirement, and passes the
// coexistability check.
func (e *DepthEnumerator) candidates(g *pg.Graph, axiom fol.Rule, forward bool, depth int) []chainCandidate {
	side := axiom.RHS
	if forward {
		side = axiom.LHS
	}
	lists := sideArityLists(g, side, func(n pg.NodeID) bool {
		return g.Node(n).Depth <= depth && g.Node(n).Depth >= 0
	})
	if len(lists) == 0 {
		return nil
	}

	tuples := enumerateTuples(lists, func(tuple []pg.NodeID) bool {
		onFrontier := false
		for _, n := range tuple {
			if g.Node(n).Depth == depth {
				onFrontier = true
				break
			}
		}
		if !onFrontier {
			return false
		}
		if containsRequirement(g, tuple) {
			return false
		}
		return g.CheckNodesCoexistability(tuple)
	})

	out := make([]chainCandidate, 0, len(tuples))
	for _, tu := range tuples {
		out = append(out, chainCandidate{nodes: tu, axiom: axiom.ID, forward: forward})
	}
	return out
}
