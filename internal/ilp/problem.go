// Package ilp models the integer linear program a proof graph converts
// into: binary variables for nodes, hypernodes, and edges, linear
// constraints, an objective, and the interpretation of a solved assignment
// back into active literals.
//
// The baseline encoding shared by every converter follows the proof-graph
// justification structure: a node needs a containing hypernode, a
// hypernode needs its parental edge, an edge needs everything required to
// fire it, chains out of one hypernode are mutually exclusive, unification
// is transitively consistent, and recorded mutual exclusions become linear
// cuts.
package ilp

import (
	"fmt"

	"dav/internal/kb"
	"dav/internal/pg"
)

// VariableID indexes the variable arena.
type VariableID int

// NilVariable marks a missing variable mapping.
const NilVariable VariableID = -1

// Variable is one binary decision with an objective coefficient.
type Variable struct {
	Name        string
	Coefficient float64
	Lower       float64
	Upper       float64

	// Fixed pins the variable to a constant when non-nil.
	Fixed *float64
}

// Operator relates a constraint's linear form to its bound.
type Operator int

const (
	OpLE Operator = iota // <=
	OpGE                 // >=
	OpEQ                 // =
)

func (o Operator) String() string {
	switch o {
	case OpLE:
		return "<="
	case OpGE:
		return ">="
	case OpEQ:
		return "="
	}
	return "?"
}

// ConstraintTerm is one coefficient of a constraint row.
type ConstraintTerm struct {
	Var   VariableID
	Coeff float64
}

// Constraint is a linear row: sum(terms) op bound.
type Constraint struct {
	Name  string
	Terms []ConstraintTerm
	Op    Operator
	Bound float64
	Lazy  bool
}

// AddTerm appends a coefficient.
func (c *Constraint) AddTerm(v VariableID, coeff float64) {
	c.Terms = append(c.Terms, ConstraintTerm{Var: v, Coeff: coeff})
}

// Problem is the ILP built from one proof graph.
type Problem struct {
	Graph *pg.Graph
	Base  *kb.KnowledgeBase

	vars []Variable
	cons []Constraint

	nodeVar map[pg.NodeID]VariableID
	hnVar   map[pg.HypernodeID]VariableID
	edgeVar map[pg.EdgeID]VariableID

	interpreter Interpreter
	decorators  []Decorator
	attributes  map[string]string

	// TimedOut marks a problem finalized from a partially enumerated
	// graph or an interrupted conversion.
	TimedOut bool
}

// NewProblem wraps a graph with an empty program.
func NewProblem(graph *pg.Graph, base *kb.KnowledgeBase, interpreter Interpreter) *Problem {
	return &Problem{
		Graph:       graph,
		Base:        base,
		nodeVar:     make(map[pg.NodeID]VariableID),
		hnVar:       make(map[pg.HypernodeID]VariableID),
		edgeVar:     make(map[pg.EdgeID]VariableID),
		interpreter: interpreter,
		attributes:  make(map[string]string),
	}
}

// AddVariable appends a binary variable.
func (p *Problem) AddVariable(v Variable) VariableID {
	if v.Upper == 0 && v.Lower == 0 {
		v.Upper = 1
	}
	id := VariableID(len(p.vars))
	p.vars = append(p.vars, v)
	return id
}

// AddConstraint appends a row.
func (p *Problem) AddConstraint(c Constraint) int {
	p.cons = append(p.cons, c)
	return len(p.cons) - 1
}

// SetConstant pins a variable.
func (p *Problem) SetConstant(v VariableID, value float64) {
	p.vars[v].Fixed = &value
}

// Variable returns a pointer into the arena for in-place tweaks.
func (p *Problem) Variable(v VariableID) *Variable { return &p.vars[v] }

// Variables returns the arena read-only.
func (p *Problem) Variables() []Variable { return p.vars }

// Constraints returns the rows read-only.
func (p *Problem) Constraints() []Constraint { return p.cons }

// VariableCount returns the arena size.
func (p *Problem) VariableCount() int { return len(p.vars) }

// AddNodeVariable creates (or returns) the variable of a node.
func (p *Problem) AddNodeVariable(n pg.NodeID) VariableID {
	if v, ok := p.nodeVar[n]; ok {
		return v
	}
	v := p.AddVariable(Variable{Name: fmt.Sprintf("n(%d)", n)})
	p.nodeVar[n] = v
	return v
}

// AddHypernodeVariable creates (or returns) the variable of a hypernode.
func (p *Problem) AddHypernodeVariable(hn pg.HypernodeID) VariableID {
	if v, ok := p.hnVar[hn]; ok {
		return v
	}
	v := p.AddVariable(Variable{Name: fmt.Sprintf("hn(%d)", hn)})
	p.hnVar[hn] = v
	return v
}

// AddEdgeVariable creates (or returns) the variable of an edge.
func (p *Problem) AddEdgeVariable(e pg.EdgeID) VariableID {
	if v, ok := p.edgeVar[e]; ok {
		return v
	}
	v := p.AddVariable(Variable{Name: fmt.Sprintf("e(%d)", e)})
	p.edgeVar[e] = v
	return v
}

// VariableOfNode returns the node's variable or NilVariable.
func (p *Problem) VariableOfNode(n pg.NodeID) VariableID {
	if v, ok := p.nodeVar[n]; ok {
		return v
	}
	return NilVariable
}

// VariableOfHypernode returns the hypernode's variable or NilVariable.
func (p *Problem) VariableOfHypernode(hn pg.HypernodeID) VariableID {
	if v, ok := p.hnVar[hn]; ok {
		return v
	}
	return NilVariable
}

// VariableOfEdge returns the edge's variable or NilVariable.
func (p *Problem) VariableOfEdge(e pg.EdgeID) VariableID {
	if v, ok := p.edgeVar[e]; ok {
		return v
	}
	return NilVariable
}

// AddDecorator attaches an output decorator.
func (p *Problem) AddDecorator(d Decorator) { p.decorators = append(p.decorators, d) }

// Decorators returns the attached decorators.
func (p *Problem) Decorators() []Decorator { return p.decorators }

// SetAttribute attaches an output attribute.
func (p *Problem) SetAttribute(name, value string) { p.attributes[name] = value }

// Attributes returns the attached attributes.
func (p *Problem) Attributes() map[string]string { return p.attributes }

// Interpreter returns the installed solution interpreter.
func (p *Problem) Interpreter() Interpreter { return p.interpreter }
