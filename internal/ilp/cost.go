package ilp

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"dav/internal/kb"
	"dav/internal/logging"
	"dav/internal/pg"
)

// CostOperator combines a parent's accumulated cost with an axiom weight.
type CostOperator func(parentCost, weight float64) float64

// MultiplyCosts is the default weighted-abduction operator.
func MultiplyCosts(parentCost, weight float64) float64 { return parentCost * weight }

// AddCosts is the additive alternative.
func AddCosts(parentCost, weight float64) float64 { return parentCost + weight }

// CostProvider computes the hypothesizing cost of each node.
type CostProvider interface {
	NodeCosts(g *pg.Graph) map[pg.NodeID]float64
	Duplicate() CostProvider
	Train(sys, gold *Solution) error
	String() string
}

// NewCostProvider builds the provider selected by configuration.
func NewCostProvider(name string, base *kb.KnowledgeBase, defObsCost, defWeight float64, featurePath string) (CostProvider, error) {
	switch name {
	case "", "basic":
		return &BasicCostProvider{
			base: base, op: MultiplyCosts, opName: "multiply",
			defaultObservationCost: defObsCost, defaultAxiomWeight: defWeight,
		}, nil
	case "linear":
		return &BasicCostProvider{
			base: base, op: AddCosts, opName: "addition",
			defaultObservationCost: defObsCost, defaultAxiomWeight: defWeight,
		}, nil
	case "parameterized":
		p := &ParameterizedCostProvider{base: base, weights: make(map[string]float64)}
		if featurePath != "" {
			if err := p.Load(featurePath); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("ilp: unknown cost provider %q", name)
}

// observationCosts seeds the map with each observable's declared cost, or
// the default.
func observationCosts(g *pg.Graph, defaultCost float64, out map[pg.NodeID]float64) {
	for i := 0; i < g.NodeCount(); i++ {
		n := pg.NodeID(i)
		node := g.Node(n)
		if node.Kind != pg.ObservableNode {
			continue
		}
		cost := defaultCost
		if v, ok := node.Atom.ParamFloat(); ok {
			cost = v
		}
		out[n] = cost
	}
}

// hypothesisCosts propagates costs depth by depth through the parental
// edges: a head node costs op(sum of tail costs, its branch weight).
// Equality nodes live at depth -1 and keep zero cost.
func hypothesisCosts(g *pg.Graph, weightOf func(e pg.EdgeID, size int) []float64, op CostOperator, out map[pg.NodeID]float64) {
	for depth := 1; ; depth++ {
		nodes := g.SearchNodesWithDepth(depth)
		if len(nodes) == 0 {
			break
		}
		masters := make(map[pg.HypernodeID]bool)
		for n := range nodes {
			if hn := g.Node(n).Master; hn >= 0 {
				masters[hn] = true
			}
		}
		sorted := make([]pg.HypernodeID, 0, len(masters))
		for hn := range masters {
			sorted = append(sorted, hn)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		for _, hn := range sorted {
			parent := g.ParentalEdge(hn)
			if parent == pg.NilEdge {
				continue
			}
			edge := g.Edge(parent)
			costFrom := 0.0
			for _, n := range g.Hypernode(edge.Tail) {
				costFrom += out[n]
			}
			head := g.Hypernode(hn)
			weights := weightOf(parent, len(head))
			for i, n := range head {
				out[n] = op(costFrom, weights[i])
			}
		}
	}
}

// axiomWeights reads per-branch weights off the produced side of the
// applied axiom: per-atom parameters win, a single-literal side may use
// the side parameter, and a side with no declared weights shares the
// default evenly.
func axiomWeights(base *kb.KnowledgeBase, g *pg.Graph, e pg.EdgeID, size int, defaultWeight float64) []float64 {
	edge := g.Edge(e)
	axiom := base.GetAxiom(edge.Axiom)
	branch := axiom.LHS
	if edge.Kind == pg.ImplicateEdge {
		branch = axiom.RHS
	}

	weights := make([]float64, size)
	declared := false

	if size == 1 && len(branch.Atoms) == 1 {
		if w, ok := branch.Atoms[0].ParamFloat(); ok {
			weights[0] = w
			declared = true
		} else if w, ok := branch.ParamFloat(); ok {
			weights[0] = w
			declared = true
		}
	} else {
		for i := 0; i < size && i < len(branch.Atoms); i++ {
			if w, ok := branch.Atoms[i].ParamFloat(); ok {
				weights[i] = w
				declared = true
			}
		}
	}

	if !declared {
		for i := range weights {
			weights[i] = defaultWeight / float64(size)
		}
	}
	return weights
}

// BasicCostProvider is the standard weighted-abduction cost model.
type BasicCostProvider struct {
	base                   *kb.KnowledgeBase
	op                     CostOperator
	opName                 string
	defaultObservationCost float64
	defaultAxiomWeight     float64
}

// NodeCosts computes every node's hypothesizing cost.
func (p *BasicCostProvider) NodeCosts(g *pg.Graph) map[pg.NodeID]float64 {
	out := make(map[pg.NodeID]float64)
	observationCosts(g, p.defaultObservationCost, out)
	hypothesisCosts(g, func(e pg.EdgeID, size int) []float64 {
		return axiomWeights(p.base, g, e, size, p.defaultAxiomWeight)
	}, p.op, out)
	return out
}

// Duplicate copies the provider.
func (p *BasicCostProvider) Duplicate() CostProvider {
	cp := *p
	return &cp
}

// Train is a no-op for the basic provider.
func (p *BasicCostProvider) Train(sys, gold *Solution) error { return nil }

func (p *BasicCostProvider) String() string { return "basic(" + p.opName + ")" }

// ParameterizedCostProvider derives axiom weights from trainable feature
// weights persisted as a two-column text file. Feature extraction is not
// implemented yet, so every edge sees an empty feature set and training
// leaves the weights untouched.
type ParameterizedCostProvider struct {
	base    *kb.KnowledgeBase
	weights map[string]float64
}

// NodeCosts computes costs with the feature-derived weights.
func (p *ParameterizedCostProvider) NodeCosts(g *pg.Graph) map[pg.NodeID]float64 {
	out := make(map[pg.NodeID]float64)
	observationCosts(g, 10.0, out)
	hypothesisCosts(g, func(e pg.EdgeID, size int) []float64 {
		sum := 0.0
		for _, f := range p.features(g, e) {
			sum += p.weights[f]
		}
		w := (2.0 + math.Tanh(sum)) / float64(size)
		weights := make([]float64, size)
		for i := range weights {
			weights[i] = w
		}
		return weights
	}, MultiplyCosts, out)
	return out
}

// features names the feature set of one edge. Intentionally empty until
// the extraction scheme is settled.
func (p *ParameterizedCostProvider) features(g *pg.Graph, e pg.EdgeID) []string {
	return nil
}

// Duplicate deep-copies the weight table.
func (p *ParameterizedCostProvider) Duplicate() CostProvider {
	weights := make(map[string]float64, len(p.weights))
	for k, v := range p.weights {
		weights[k] = v
	}
	return &ParameterizedCostProvider{base: p.base, weights: weights}
}

// Train updates feature weights from a gold-vs-system pair. Stub: with no
// features extracted there is nothing to move.
func (p *ParameterizedCostProvider) Train(sys, gold *Solution) error {
	logging.Get(logging.CategoryILP).Warn("parameterized training is a stub; weights unchanged")
	return nil
}

func (p *ParameterizedCostProvider) String() string { return "parameterized" }

// Load reads a tab-separated feature-weight file.
func (p *ParameterizedCostProvider) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ilp: open feature weights %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return fmt.Errorf("ilp: bad weight %q in %s", parts[1], path)
		}
		p.weights[parts[0]] = w
	}
	return scanner.Err()
}

// Write persists the weight table, features sorted.
func (p *ParameterizedCostProvider) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ilp: create feature weights %s: %w", path, err)
	}
	defer f.Close()

	features := make([]string, 0, len(p.weights))
	for k := range p.weights {
		features = append(features, k)
	}
	sort.Strings(features)
	w := bufio.NewWriter(f)
	for _, feat := range features {
		fmt.Fprintf(w, "%s\t%g\n", feat, p.weights[feat])
	}
	return w.Flush()
}

// costOf reads a node's cost with a zero default.
func costOf(costs map[pg.NodeID]float64, n pg.NodeID) float64 { return costs[n] }

// explainedNode orders a unification pair by (cost, id): the greater side
// is the explained node, so excusal chains always point down-order and
// can never loop.
func explainedNode(costs map[pg.NodeID]float64, pair []pg.NodeID) (explained, explains pg.NodeID) {
	c0, c1 := costOf(costs, pair[0]), costOf(costs, pair[1])
	if c0 > c1 {
		return pair[0], pair[1]
	}
	return pair[1], pair[0]
}
