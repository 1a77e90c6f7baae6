package ilp

import (
	"context"
	"fmt"
	"sort"

	"dav/internal/kb"
	"dav/internal/logging"
	"dav/internal/pg"
)

// WeightedConverter encodes the weight-based evaluation function: every
// node carries a hypothesizing cost, and an active node must either pay
// it, be explained by a chain out of it, or be excused by unifying with a
// cheaper node.
type WeightedConverter struct {
	Base     *kb.KnowledgeBase
	Provider CostProvider
}

// Convert builds the baseline and layers the cost-payment semantics on
// top.
func (c *WeightedConverter) Convert(ctx context.Context, graph *pg.Graph) (*Problem, error) {
	timer := logging.StartTimer(logging.CategoryILP, "weighted convert")
	defer timer.Stop()

	prob := NewProblem(graph, c.Base, BasicInterpreter{})
	prob.ConvertBaseline()
	prob.TimedOut = graph.TimedOut()

	costs := c.Provider.NodeCosts(graph)
	node2costVar := make(map[pg.NodeID]VariableID, len(costs))

	costed := make([]pg.NodeID, 0, len(costs))
	for n := range costs {
		costed = append(costed, n)
	}
	sort.Slice(costed, func(i, j int) bool { return costed[i] < costed[j] })

	for _, n := range costed {
		if prob.VariableOfNode(n) == NilVariable {
			continue
		}
		v := prob.AddVariable(Variable{
			Name:        fmt.Sprintf("cost(n:%d)", n),
			Coefficient: costs[n],
		})
		node2costVar[n] = v
	}

	// Cost payment: node <= costvar + outgoing chains + admissible
	// unifications.
	for _, n := range costed {
		costVar, ok := node2costVar[n]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			prob.TimedOut = true
			return prob, nil
		}

		cons := Constraint{Name: fmt.Sprintf("cost-payment(n:%d)", n), Op: OpGE, Bound: 0}
		cons.AddTerm(prob.VariableOfNode(n), -1)
		cons.AddTerm(costVar, 1)

		for _, e := range c.paymentEdges(graph, costs, n) {
			cons.AddTerm(prob.VariableOfEdge(e), 1)
		}
		prob.AddConstraint(cons)
	}

	// A literal excused by unification must not chain further: its
	// explanation is delegated to the cheaper copy.
	for i := 0; i < graph.EdgeCount(); i++ {
		e := pg.EdgeID(i)
		edge := graph.Edge(e)
		if !edge.IsUnify() {
			continue
		}
		pair := graph.Hypernode(edge.Tail)
		if graph.Node(pair[0]).Kind == pg.RequiredNode || graph.Node(pair[1]).Kind == pg.RequiredNode {
			continue
		}
		explained, _ := explainedNode(costs, pair)
		c.forbidChainingFromExplained(prob, graph, e, explained)
	}

	prob.AddDecorator(&costDecorator{node2costVar: node2costVar})
	prob.SetAttribute("converter", c.Name())
	return prob, nil
}

// paymentEdges lists the edges that can excuse node n from paying: chain
// edges out of a hypernode containing n, and unification edges with a
// cheaper, non-required partner. The explained side of a unification is
// the greater by (cost, id), so payment delegation cannot loop.
func (c *WeightedConverter) paymentEdges(graph *pg.Graph, costs map[pg.NodeID]float64, n pg.NodeID) []pg.EdgeID {
	seen := make(map[pg.EdgeID]bool)
	var out []pg.EdgeID
	for _, hn := range graph.HypernodesWithNode(n) {
		for _, e := range graph.EdgesWithHypernode(hn) {
			edge := graph.Edge(e)
			if edge.Tail != hn || seen[e] {
				continue
			}
			if edge.IsChain() {
				seen[e] = true
				out = append(out, e)
				continue
			}
			if edge.IsUnify() {
				pair := graph.Hypernode(edge.Tail)
				if graph.Node(pair[0]).Kind == pg.RequiredNode ||
					graph.Node(pair[1]).Kind == pg.RequiredNode {
					continue
				}
				if explained, _ := explainedNode(costs, pair); explained == n {
					seen[e] = true
					out = append(out, e)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// forbidChainingFromExplained adds uni + chain <= 1 for every chain edge
// whose tail contains the explained node.
func (c *WeightedConverter) forbidChainingFromExplained(prob *Problem, graph *pg.Graph, uni pg.EdgeID, explained pg.NodeID) {
	uniVar := prob.VariableOfEdge(uni)
	for _, e := range graph.EdgesWithNodeInTail(explained) {
		edge := graph.Edge(e)
		if !edge.IsChain() {
			continue
		}
		cons := Constraint{
			Name:  fmt.Sprintf("no-chain-from-explained(e:%d,c:%d)", uni, e),
			Op:    OpLE,
			Bound: 1,
		}
		cons.AddTerm(uniVar, 1)
		cons.AddTerm(prob.VariableOfEdge(e), 1)
		prob.AddConstraint(cons)
	}
}

// Name identifies the converter in output.
func (c *WeightedConverter) Name() string {
	return "weighted-converter(" + c.Provider.String() + ")"
}

// KeepsValidityOnTimeout is false: a truncated cost propagation is not a
// valid objective, though the emitted problem stays feasible.
func (c *WeightedConverter) KeepsValidityOnTimeout() bool { return false }

// costDecorator exposes each node's cost and whether it was paid.
type costDecorator struct {
	node2costVar map[pg.NodeID]VariableID
}

// LiteralAttributes renders the cost attributes of one literal.
func (d *costDecorator) LiteralAttributes(s *Solution, n pg.NodeID, out map[string]string) {
	v, ok := d.node2costVar[n]
	if !ok {
		return
	}
	out["cost"] = fmt.Sprintf("%g", s.Problem.Variable(v).Coefficient)
	if s.VariableIsActive(v) {
		out["paid-cost"] = "yes"
	} else {
		out["paid-cost"] = "no"
	}
}
