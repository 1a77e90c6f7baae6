// Package output renders inference results as XML: the original problem,
// the proof graph with evidence, the solver outcome, and per-literal
// decorations contributed by the converter.
package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"dav/internal/engine"
	"dav/internal/pg"
)

// Document is the root element of one result.
type Document struct {
	XMLName  xml.Name     `xml:"dav"`
	RunID    string       `xml:"run-id,attr"`
	Problem  problemXML   `xml:"problem"`
	Graph    *graphXML    `xml:"proof-graph,omitempty"`
	Solution *solutionXML `xml:"solution,omitempty"`
	Error    string       `xml:"error,omitempty"`
}

type problemXML struct {
	Name    string      `xml:"name,attr"`
	Observe []string    `xml:"observe>literal"`
	Require []string    `xml:"require>literal"`
	Choices []choiceXML `xml:"choice"`
}

type choiceXML struct {
	Literals []string `xml:"literal"`
}

type graphXML struct {
	TimedOut bool      `xml:"timed-out,attr"`
	Nodes    []nodeXML `xml:"literals>literal"`
	Edges    []edgeXML `xml:"edges>edge"`
	Attrs    []attrXML `xml:"attribute"`
}

type attrXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type nodeXML struct {
	ID       int    `xml:"id,attr"`
	Kind     string `xml:"type,attr"`
	Depth    int    `xml:"depth,attr"`
	Master   int    `xml:"master,attr"`
	Active   string `xml:"active,attr,omitempty"`
	Cost     string `xml:"cost,attr,omitempty"`
	PaidCost string `xml:"paid-cost,attr,omitempty"`
	Evidence string `xml:"evidence,attr,omitempty"`
	Text     string `xml:",chardata"`
}

type edgeXML struct {
	ID      int    `xml:"id,attr"`
	Kind    string `xml:"type,attr"`
	Tail    string `xml:"tail,attr"`
	Head    string `xml:"head,attr"`
	Axiom   int    `xml:"axiom,attr"`
	Active  string `xml:"active,attr,omitempty"`
	Unifier string `xml:"unifier,attr,omitempty"`
}

type solutionXML struct {
	Status    string   `xml:"status,attr"`
	Objective float64  `xml:"objective,attr"`
	Converter string   `xml:"converter,attr,omitempty"`
	Active    []string `xml:"hypotheses>literal"`
	Unified   []string `xml:"unifications>unify"`
}

// Render writes one result as indented XML.
func Render(w io.Writer, res *engine.Result) error {
	doc := build(res)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("output: encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func build(res *engine.Result) *Document {
	doc := &Document{RunID: res.RunID}
	doc.Problem.Name = res.Problem.Name
	for _, a := range res.Problem.Observation.Atoms {
		doc.Problem.Observe = append(doc.Problem.Observe, a.String())
	}
	for _, a := range res.Problem.Requirement.Atoms {
		doc.Problem.Require = append(doc.Problem.Require, a.String())
	}
	for _, c := range res.Problem.Choices {
		var ch choiceXML
		for _, a := range c.Atoms {
			ch.Literals = append(ch.Literals, a.String())
		}
		doc.Problem.Choices = append(doc.Problem.Choices, ch)
	}
	if res.Err != nil {
		doc.Error = res.Err.Error()
	}
	if res.Graph == nil {
		return doc
	}

	doc.Graph = buildGraph(res)
	if res.Solution != nil {
		doc.Solution = buildSolution(res)
	}
	return doc
}

func buildGraph(res *engine.Result) *graphXML {
	g := res.Graph
	out := &graphXML{TimedOut: g.TimedOut()}

	names := make([]string, 0, len(g.Attributes()))
	for name := range g.Attributes() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Attrs = append(out.Attrs, attrXML{Name: name, Value: g.Attributes()[name]})
	}

	for i := 0; i < g.NodeCount(); i++ {
		n := pg.NodeID(i)
		node := g.Node(n)
		nx := nodeXML{
			ID:       int(n),
			Kind:     node.Kind.String(),
			Depth:    node.Depth,
			Master:   int(node.Master),
			Evidence: joinIDs(node.Evidence.Sorted()),
			Text:     node.Atom.String(),
		}
		if res.Solution != nil && res.Solution.Feasible() {
			nx.Active = yesNo(res.Solution.NodeIsActive(n))
			attrs := make(map[string]string)
			for _, d := range res.ILP.Decorators() {
				d.LiteralAttributes(res.Solution, n, attrs)
			}
			nx.Cost = attrs["cost"]
			nx.PaidCost = attrs["paid-cost"]
		}
		out.Nodes = append(out.Nodes, nx)
	}

	for i := 0; i < g.EdgeCount(); i++ {
		e := pg.EdgeID(i)
		edge := g.Edge(e)
		ex := edgeXML{
			ID:    int(e),
			Kind:  edge.Kind.String(),
			Tail:  joinIDs(g.Hypernode(edge.Tail)),
			Head:  joinIDs(g.Hypernode(edge.Head)),
			Axiom: int(edge.Axiom),
		}
		if edge.IsUnify() {
			ex.Unifier = unifierDetails(g, e)
		}
		if res.Solution != nil && res.Solution.Feasible() {
			ex.Active = yesNo(res.Solution.EdgeIsActive(e))
		}
		out.Edges = append(out.Edges, ex)
	}
	return out
}

func buildSolution(res *engine.Result) *solutionXML {
	sol := res.Solution
	out := &solutionXML{
		Status:    sol.Status.String(),
		Objective: sol.Objective,
		Converter: res.ILP.Attributes()["converter"],
	}
	if !sol.Feasible() {
		return out
	}
	for _, n := range sol.ActiveNodes() {
		if res.Graph.Node(n).Kind == pg.HypothesisNode {
			out.Active = append(out.Active, res.Graph.Node(n).Atom.String())
		}
	}
	for _, e := range sol.ActiveUnifications() {
		pair := res.Graph.Hypernode(res.Graph.Edge(e).Tail)
		out.Unified = append(out.Unified,
			fmt.Sprintf("%s ~ %s", res.Graph.Node(pair[0]).Atom, res.Graph.Node(pair[1]).Atom))
	}
	return out
}

// unifierDetails renders the equality literals a UNIFY edge assumes.
func unifierDetails(g *pg.Graph, e pg.EdgeID) string {
	head := g.Hypernode(g.Edge(e).Head)
	if len(head) == 0 {
		return "identity"
	}
	parts := make([]string, 0, len(head))
	for _, n := range head {
		parts = append(parts, g.Node(n).Atom.String())
	}
	return strings.Join(parts, ", ")
}

func joinIDs(ids []pg.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
