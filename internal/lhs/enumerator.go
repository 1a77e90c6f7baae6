// Package lhs grows the latent hypotheses set: the proof graph holding
// every candidate hypothesis reachable from the observations under the
// configured resource bounds. Two strategies are built in: depth-bounded
// breadth growth and A*-style growth guided by observation-pair
// reachability.
package lhs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/pg"
)

// Enumerator builds the proof graph of one problem.
type Enumerator interface {
	Enumerate(ctx context.Context, prob *fol.Problem) (*pg.Graph, error)
	Name() string
}

// Options bound enumeration. Negative MaxDepth and MaxDistance disable
// those limits; MaxLHSSize <= 0 disables the size cap.
type Options struct {
	MaxDepth    int
	MaxDistance float64
	MaxLHSSize  int
	DoDeduction bool
	DoAbduction bool
}

// Factory builds an enumerator against a knowledge base.
type Factory func(base *kb.KnowledgeBase, opts Options) Enumerator

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs an enumerator factory under a name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New instantiates a registered enumerator.
func New(name string, base *kb.KnowledgeBase, opts Options) (Enumerator, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lhs: unknown enumerator %q", name)
	}
	return f(base, opts), nil
}

func init() {
	Register("depth", func(base *kb.KnowledgeBase, opts Options) Enumerator {
		return &DepthEnumerator{Base: base, Opts: opts}
	})
	Register("astar", func(base *kb.KnowledgeBase, opts Options) Enumerator {
		return &AStarEnumerator{Base: base, Opts: opts}
	})
}

// seedGraph installs the problem's observations, requirements, and choice
// groups into a fresh graph.
func seedGraph(g *pg.Graph, prob *fol.Problem) error {
	for _, a := range prob.Observation.Atoms {
		if _, err := g.AddObservation(a); err != nil {
			return err
		}
	}
	for _, a := range prob.Requirement.Atoms {
		if _, err := g.AddRequirement(a); err != nil {
			return err
		}
	}
	for _, c := range prob.Choices {
		if _, err := g.AddChoice(c.Atoms); err != nil {
			return err
		}
	}
	return nil
}

// direction pairs an axiom with the way it applies to a node.
type direction struct {
	axiom   fol.RuleID
	forward bool
}

// applicableAxioms lists the axioms applicable to a node's predicate,
// deduplicated, axioms ascending and forward before backward.
func applicableAxioms(base *kb.KnowledgeBase, opts Options, arity string) []direction {
	var out []direction
	if opts.DoDeduction {
		for _, ax := range base.AxiomsWithLHS(arity) {
			out = append(out, direction{axiom: ax, forward: true})
		}
	}
	if opts.DoAbduction {
		for _, ax := range base.AxiomsWithRHS(arity) {
			out = append(out, direction{axiom: ax, forward: false})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].axiom != out[j].axiom {
			return out[i].axiom < out[j].axiom
		}
		return out[i].forward && !out[j].forward
	})
	return out
}

// chainCandidate is one tuple of tail nodes for one axiom application.
type chainCandidate struct {
	nodes   []pg.NodeID
	axiom   fol.RuleID
	forward bool
}

// enumerateTuples builds the cartesian product of per-position candidate
// lists, in lexicographic order of the node-id tuples, keeping only tuples
// accepted by keep.
func enumerateTuples(lists [][]pg.NodeID, keep func([]pg.NodeID) bool) [][]pg.NodeID {
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}
	var out [][]pg.NodeID
	idx := make([]int, len(lists))
	for {
		tuple := make([]pg.NodeID, len(lists))
		for i, l := range lists {
			tuple[i] = l[idx[i]]
		}
		if keep == nil || keep(tuple) {
			out = append(out, tuple)
		}

		pos := len(lists) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(lists[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}

// sideArityLists resolves, per non-equality literal of the matched side,
// the sorted candidate nodes filter admits.
func sideArityLists(g *pg.Graph, side fol.Conjunction, admit func(pg.NodeID) bool) [][]pg.NodeID {
	var lists [][]pg.NodeID
	for _, a := range side.Atoms {
		if a.Predicate == fol.EqualityPredicate {
			continue
		}
		var list []pg.NodeID
		for _, n := range g.SearchNodesWithArity(a.Arity()).Sorted() {
			if admit == nil || admit(n) {
				list = append(list, n)
			}
		}
		lists = append(lists, list)
	}
	return lists
}

// containsRequirement reports whether any node of the tuple is a
// requirement; requirements are goals, never premises.
func containsRequirement(g *pg.Graph, nodes []pg.NodeID) bool {
	for _, n := range nodes {
		if g.Node(n).Kind == pg.RequiredNode {
			return true
		}
	}
	return false
}

// overSize reports whether the node-count soft cap is exceeded.
func overSize(g *pg.Graph, opts Options) bool {
	return opts.MaxLHSSize > 0 && g.NodeCount() > opts.MaxLHSSize
}
