package pg

import (
	"errors"
	"fmt"
	"strings"

	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/logging"
)

// Sentinel errors of graph mutation.
var (
	// ErrDuplicateObservation rejects adding the same observed literal twice.
	ErrDuplicateObservation = errors.New("pg: duplicate observation")
	// ErrGraphFrozen rejects mutation after PostProcess.
	ErrGraphFrozen = errors.New("pg: graph is frozen")
	// ErrChainMismatch rejects a chain whose tail does not instantiate the
	// axiom's matched side.
	ErrChainMismatch = errors.New("pg: tail does not match axiom side")
	// ErrChainCycle rejects a chain whose tail nodes are ancestor-related.
	ErrChainCycle = errors.New("pg: chain would create an evidence cycle")
)

// Graph is the proof graph of one problem.
type Graph struct {
	Name string

	lib  *fol.PredicateLibrary
	base *kb.KnowledgeBase

	nodes      []Node
	hypernodes [][]NodeID
	edges      []Edge

	observations []NodeID
	requirements []NodeID
	labels       []NodeID
	choices      [][]NodeID

	// Secondary indices. Every mutation updates all of them atomically
	// with respect to readers: the graph is single-owner while growing.
	termToNodes           map[fol.Term]NodeSet
	pidToNodes            map[fol.PredicateID]NodeSet
	depthToNodes          map[int]NodeSet
	nodeToHypernodes      map[NodeID][]HypernodeID
	hypernodeToEdges      map[HypernodeID][]EdgeID
	headNodeToEdges       map[NodeID][]EdgeID
	tailNodeToEdges       map[NodeID][]EdgeID
	orderedToHypernode    map[string]HypernodeID
	unorderedToHypernodes map[uint64][]HypernodeID

	muex       *MutualExclusionTable
	considered map[[2]NodeID]bool
	clusters   *ClusterSet
	eqNodes    map[string]NodeID
	obsSeen    map[string]NodeID

	unifyHypernodes map[HypernodeID]bool
	attributes      map[string]string

	freshCount  int
	skolemCount int
	timedOut    bool
	frozen      bool
}

// NewGraph returns an empty graph bound to a predicate library and a
// knowledge base. The base supplies predicate properties; it may be nil in
// tests that exercise raw graph mechanics.
func NewGraph(name string, lib *fol.PredicateLibrary, base *kb.KnowledgeBase) *Graph {
	return &Graph{
		Name:                  name,
		lib:                   lib,
		base:                  base,
		termToNodes:           make(map[fol.Term]NodeSet),
		pidToNodes:            make(map[fol.PredicateID]NodeSet),
		depthToNodes:          make(map[int]NodeSet),
		nodeToHypernodes:      make(map[NodeID][]HypernodeID),
		hypernodeToEdges:      make(map[HypernodeID][]EdgeID),
		headNodeToEdges:       make(map[NodeID][]EdgeID),
		tailNodeToEdges:       make(map[NodeID][]EdgeID),
		orderedToHypernode:    make(map[string]HypernodeID),
		unorderedToHypernodes: make(map[uint64][]HypernodeID),
		muex:                  NewMutualExclusionTable(),
		considered:            make(map[[2]NodeID]bool),
		clusters:              NewClusterSet(),
		eqNodes:               make(map[string]NodeID),
		obsSeen:               make(map[string]NodeID),
		unifyHypernodes:       make(map[HypernodeID]bool),
		attributes:            make(map[string]string),
	}
}

// ---- arena accessors ----

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HypernodeCount returns the number of hypernodes.
func (g *Graph) HypernodeCount() int { return len(g.hypernodes) }

// Node returns the node with id i. Out-of-range ids are a programming
// error.
func (g *Graph) Node(i NodeID) *Node { return &g.nodes[i] }

// Edge returns the edge with id i.
func (g *Graph) Edge(i EdgeID) *Edge { return &g.edges[i] }

// Hypernode returns the ordered node ids of hypernode i, or nil for
// NilHypernode.
func (g *Graph) Hypernode(i HypernodeID) []NodeID {
	if i < 0 {
		return nil
	}
	return g.hypernodes[i]
}

// Observations returns the observation node ids in insertion order.
func (g *Graph) Observations() []NodeID { return g.observations }

// Requirements returns the requirement node ids.
func (g *Graph) Requirements() []NodeID { return g.requirements }

// Labels returns the label node ids.
func (g *Graph) Labels() []NodeID { return g.labels }

// Choices returns the XOR node groups installed by the driver.
func (g *Graph) Choices() [][]NodeID { return g.choices }

// TimedOut reports whether enumeration hit its deadline.
func (g *Graph) TimedOut() bool { return g.timedOut }

// SetTimedOut marks the graph as partially enumerated.
func (g *Graph) SetTimedOut() { g.timedOut = true }

// Frozen reports whether PostProcess has run.
func (g *Graph) Frozen() bool { return g.frozen }

// MutualExclusions exposes the exclusion table read-only.
func (g *Graph) MutualExclusions() *MutualExclusionTable { return g.muex }

// Clusters exposes the unification-cluster set read-only.
func (g *Graph) Clusters() *ClusterSet { return g.clusters }

// Library returns the predicate library of the graph.
func (g *Graph) Library() *fol.PredicateLibrary { return g.lib }

// SetAttribute attaches an output attribute to the graph.
func (g *Graph) SetAttribute(name, value string) { g.attributes[name] = value }

// Attributes returns the attached output attributes.
func (g *Graph) Attributes() map[string]string { return g.attributes }

// ---- queries ----

// SearchNodesWithTerm returns the ids of nodes mentioning the term.
func (g *Graph) SearchNodesWithTerm(t fol.Term) NodeSet { return g.termToNodes[t] }

// SearchNodesWithPID returns the ids of nodes with the interned predicate.
func (g *Graph) SearchNodesWithPID(pid fol.PredicateID) NodeSet { return g.pidToNodes[pid] }

// SearchNodesWithArity resolves an arity key through the library first.
func (g *Graph) SearchNodesWithArity(arity string) NodeSet {
	pid := g.lib.Lookup(arity)
	if pid == fol.InvalidPredicateID {
		return nil
	}
	return g.pidToNodes[pid]
}

// SearchNodesWithSamePredicateAs matches by interned id when available.
func (g *Graph) SearchNodesWithSamePredicateAs(a fol.Atom) NodeSet {
	if a.PID != fol.InvalidPredicateID {
		return g.pidToNodes[a.PID]
	}
	return g.SearchNodesWithArity(a.Arity())
}

// SearchNodesWithDepth returns nodes at an exact depth.
func (g *Graph) SearchNodesWithDepth(depth int) NodeSet { return g.depthToNodes[depth] }

// HypernodesWithNode returns every hypernode containing the node.
func (g *Graph) HypernodesWithNode(n NodeID) []HypernodeID { return g.nodeToHypernodes[n] }

// EdgesWithHypernode returns every edge whose tail or head is the
// hypernode.
func (g *Graph) EdgesWithHypernode(hn HypernodeID) []EdgeID { return g.hypernodeToEdges[hn] }

// EdgesWithNodeInHead returns edges whose head hypernode contains the node.
func (g *Graph) EdgesWithNodeInHead(n NodeID) []EdgeID { return g.headNodeToEdges[n] }

// EdgesWithNodeInTail returns edges whose tail hypernode contains the node.
func (g *Graph) EdgesWithNodeInTail(n NodeID) []EdgeID { return g.tailNodeToEdges[n] }

// FindHypernodeWithOrderedNodes returns the hypernode with exactly this
// node sequence, or NilHypernode.
func (g *Graph) FindHypernodeWithOrderedNodes(nodes []NodeID) HypernodeID {
	if hn, ok := g.orderedToHypernode[orderedKey(nodes)]; ok {
		return hn
	}
	return NilHypernode
}

// FindHypernodesWithUnorderedNodes returns candidates sharing the
// order-independent hash of the node set.
func (g *Graph) FindHypernodesWithUnorderedNodes(nodes []NodeID) []HypernodeID {
	return g.unorderedToHypernodes[unorderedHash(nodes)]
}

// ParentalEdge returns the chain edge whose head is the hypernode, or
// NilEdge. By construction at most one exists.
func (g *Graph) ParentalEdge(hn HypernodeID) EdgeID {
	for _, e := range g.hypernodeToEdges[hn] {
		edge := &g.edges[e]
		if edge.Head == hn && edge.IsChain() {
			return e
		}
	}
	return NilEdge
}

// ParentalHypernode returns the tail of the parental edge, or
// NilHypernode.
func (g *Graph) ParentalHypernode(hn HypernodeID) HypernodeID {
	if e := g.ParentalEdge(hn); e >= 0 {
		return g.edges[e].Tail
	}
	return NilHypernode
}

// IsUnificationHypernode reports whether the hypernode was produced as the
// head of a UNIFY edge.
func (g *Graph) IsUnificationHypernode(hn HypernodeID) bool { return g.unifyHypernodes[hn] }

// DeepestDepth returns the max node depth in a hypernode.
func (g *Graph) DeepestDepth(hn HypernodeID) int {
	depth := -1
	for _, n := range g.Hypernode(hn) {
		if d := g.nodes[n].Depth; d > depth {
			depth = d
		}
	}
	return depth
}

// CheckNodesCoexistability reports whether no pair of the given nodes is
// unconditionally exclusive.
func (g *Graph) CheckNodesCoexistability(nodes []NodeID) bool {
	for i := 1; i < len(nodes); i++ {
		for j := 0; j < i; j++ {
			if m := g.muex.Find(nodes[i], nodes[j]); m != nil && m.Kind == ExcludeAlways {
				return false
			}
		}
	}
	return true
}

// GetMutualExclusions appends the ids of existing nodes that conflict
// with the literal under the recorded exclusions and predicate properties.
func (g *Graph) GetMutualExclusions(a fol.Atom, out *[]NodeID) {
	for _, n := range g.SearchNodesWithSamePredicateAs(a).Sorted() {
		node := &g.nodes[n]
		if node.Atom.Negated != a.Negated && node.Atom.Naf == a.Naf && sameTerms(node.Atom, a) {
			*out = append(*out, n)
			continue
		}
		props := g.properties(a)
		if props.Has(fol.Asymmetric) && node.Atom.Negated == a.Negated && swappedIdentical(node.Atom, a) {
			*out = append(*out, n)
		}
	}
}

// properties resolves the property set of an atom's predicate.
func (g *Graph) properties(a fol.Atom) fol.PropertySet {
	if g.base == nil {
		return nil
	}
	return g.base.PropertyOf(a)
}

// ---- mutation ----

// AddObservation inserts an observed literal at depth 0, then generates
// mutual exclusions and unification assumptions against every existing
// node sharing its predicate.
func (g *Graph) AddObservation(a fol.Atom) (NodeID, error) {
	if g.frozen {
		return NilNode, ErrGraphFrozen
	}
	key := a.String()
	if _, dup := g.obsSeen[key]; dup {
		return NilNode, fmt.Errorf("%w: %s", ErrDuplicateObservation, key)
	}
	n := g.addNode(a, ObservableNode, 0, nil, NilHypernode)
	g.obsSeen[key] = n
	g.observations = append(g.observations, n)
	g.generateMutualExclusions(n)
	g.generateUnificationAssumptions(n)
	return n, nil
}

// AddRequirement inserts a literal that must hold and pays no cost.
func (g *Graph) AddRequirement(a fol.Atom) (NodeID, error) {
	if g.frozen {
		return NilNode, ErrGraphFrozen
	}
	n := g.addNode(a, RequiredNode, 0, nil, NilHypernode)
	g.requirements = append(g.requirements, n)
	g.generateMutualExclusions(n)
	g.generateUnificationAssumptions(n)
	return n, nil
}

// AddLabel inserts a known-true assertion used during training. It behaves
// like an observation whose variable is forced active but is not subject
// to the duplicate-observation check.
func (g *Graph) AddLabel(a fol.Atom) (NodeID, error) {
	if g.frozen {
		return NilNode, ErrGraphFrozen
	}
	n := g.addNode(a, LabelNode, 0, nil, NilHypernode)
	g.labels = append(g.labels, n)
	g.generateMutualExclusions(n)
	g.generateUnificationAssumptions(n)
	return n, nil
}

// AddChoice inserts a group of depth-0 literals of which exactly one must
// hold; the converter emits the XOR constraint.
func (g *Graph) AddChoice(atoms []fol.Atom) ([]NodeID, error) {
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	group := make([]NodeID, 0, len(atoms))
	for _, a := range atoms {
		n := g.addNode(a, ObservableNode, 0, nil, NilHypernode)
		g.generateMutualExclusions(n)
		g.generateUnificationAssumptions(n)
		group = append(group, n)
	}
	g.choices = append(g.choices, group)
	return group, nil
}

// IsChoiceNode reports whether the node belongs to a choice group; choice
// members are observable-kind but must not be forced constant.
func (g *Graph) IsChoiceNode(n NodeID) bool {
	for _, group := range g.choices {
		for _, member := range group {
			if member == n {
				return true
			}
		}
	}
	return false
}

// addNode appends a node and updates the term, predicate, and depth
// indices.
func (g *Graph) addNode(a fol.Atom, kind NodeKind, depth int, evidence NodeSet, master HypernodeID) NodeID {
	g.lib.InternAtom(&a)
	id := NodeID(len(g.nodes))
	if evidence == nil {
		evidence = make(NodeSet)
	}
	g.nodes = append(g.nodes, Node{
		ID:       id,
		Atom:     a,
		Kind:     kind,
		Depth:    depth,
		Master:   master,
		Evidence: evidence,
	})

	for _, t := range a.Terms {
		set := g.termToNodes[t]
		if set == nil {
			set = make(NodeSet)
			g.termToNodes[t] = set
		}
		set.Add(id)
	}
	set := g.pidToNodes[a.PID]
	if set == nil {
		set = make(NodeSet)
		g.pidToNodes[a.PID] = set
	}
	set.Add(id)

	dset := g.depthToNodes[depth]
	if dset == nil {
		dset = make(NodeSet)
		g.depthToNodes[depth] = dset
	}
	dset.Add(id)

	logging.Get(logging.CategoryGraph).Debug("node %d: %s kind=%s depth=%d", id, a, kind, depth)
	return id
}

// addHypernode appends (or finds) the hypernode with this exact node
// order and indexes it.
func (g *Graph) addHypernode(nodes []NodeID) HypernodeID {
	key := orderedKey(nodes)
	if hn, ok := g.orderedToHypernode[key]; ok {
		return hn
	}
	hn := HypernodeID(len(g.hypernodes))
	owned := append([]NodeID(nil), nodes...)
	g.hypernodes = append(g.hypernodes, owned)
	g.orderedToHypernode[key] = hn
	hash := unorderedHash(nodes)
	g.unorderedToHypernodes[hash] = append(g.unorderedToHypernodes[hash], hn)
	for _, n := range owned {
		g.nodeToHypernodes[n] = append(g.nodeToHypernodes[n], hn)
	}
	return hn
}

// addEdge appends an edge and indexes it from both hypernodes and their
// member nodes.
func (g *Graph) addEdge(kind EdgeKind, tail, head HypernodeID, axiom fol.RuleID) EdgeID {
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, Edge{ID: id, Kind: kind, Tail: tail, Head: head, Axiom: axiom})
	g.hypernodeToEdges[tail] = append(g.hypernodeToEdges[tail], id)
	if head >= 0 {
		g.hypernodeToEdges[head] = append(g.hypernodeToEdges[head], id)
	}
	for _, n := range g.Hypernode(tail) {
		g.tailNodeToEdges[n] = append(g.tailNodeToEdges[n], id)
	}
	for _, n := range g.Hypernode(head) {
		g.headNodeToEdges[n] = append(g.headNodeToEdges[n], id)
	}
	return id
}

// ---- helpers ----

func orderedKey(nodes []NodeID) string {
	var sb strings.Builder
	for i, n := range nodes {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", n)
	}
	return sb.String()
}

// unorderedHash is order-independent over the node ids.
func unorderedHash(nodes []NodeID) uint64 {
	var h uint64
	for _, n := range nodes {
		h += (uint64(n) + 0x9e3779b97f4a7c15) * 0x100000001b3
	}
	return h
}

func sameTerms(a, b fol.Atom) bool {
	if len(a.Terms) != len(b.Terms) {
		return false
	}
	for i := range a.Terms {
		if a.Terms[i] != b.Terms[i] {
			return false
		}
	}
	return true
}

func swappedIdentical(a, b fol.Atom) bool {
	return len(a.Terms) == 2 && len(b.Terms) == 2 &&
		a.Terms[0] == b.Terms[1] && a.Terms[1] == b.Terms[0]
}
