package ilp_test

import (
	"context"
	"strings"
	"testing"

	"dav/internal/fol"
	"dav/internal/ilp"
	"dav/internal/kb"
	"dav/internal/lhs"
	"dav/internal/parse"
	"dav/internal/pg"
	"dav/internal/solver"
)

func buildKB(t *testing.T, src string) *kb.KnowledgeBase {
	t.Helper()
	p, err := parse.NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	stmts, errs := p.ParseAll()
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	var rules []fol.Rule
	var props []fol.PredicateProperty
	for _, st := range stmts {
		if st.Rule != nil {
			rules = append(rules, *st.Rule)
		}
		if st.Property != nil {
			props = append(props, *st.Property)
		}
	}
	base, err := kb.Compile(fol.NewPredicateLibrary(), rules, props, "basic")
	if err != nil {
		t.Fatal(err)
	}
	return base
}

func enumerate(t *testing.T, base *kb.KnowledgeBase, problem string, maxDepth int) *pg.Graph {
	t.Helper()
	p, err := parse.NewParser(strings.NewReader(problem))
	if err != nil {
		t.Fatal(err)
	}
	st, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	e := &lhs.DepthEnumerator{Base: base, Opts: lhs.Options{
		MaxDepth: maxDepth, MaxDistance: -1, DoDeduction: true, DoAbduction: true,
	}}
	g, err := e.Enumerate(context.Background(), st.Problem)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func solve(t *testing.T, prob *ilp.Problem) *ilp.Solution {
	t.Helper()
	s, err := (&solver.BranchBound{}).Solve(context.Background(), prob)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func weighted(base *kb.KnowledgeBase) *ilp.WeightedConverter {
	provider, _ := ilp.NewCostProvider("basic", base, 10.0, 1.2, "")
	return &ilp.WeightedConverter{Base: base, Provider: provider}
}

const s1KB = "rule r { eat(E, X, Y) ^ man(X) => apple(Y) }"

func TestNullConverterTrivialFeasibility(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 0)

	prob, err := (ilp.NullConverter{Base: base}).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", sol.Status)
	}
	if sol.Objective != 0 {
		t.Errorf("null objective = %v", sol.Objective)
	}
	if !sol.NodeIsActive(g.Observations()[0]) {
		t.Error("observation must be active")
	}
}

// S1: a single backward chain pays axiom-weight x observation-cost.
func TestWeightedSingleChainCost(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 1)

	prob, err := weighted(base).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", sol.Status)
	}

	// Cheapest explanation: pay the observation's own cost (10) and stop.
	// Chaining instead would cost 6 + 6 = 12: the default axiom weight
	// 1.2 splits evenly over the two LHS literals, multiplied by the
	// parent cost 10.
	if sol.Objective != 10.0 {
		t.Errorf("objective = %v, want 10", sol.Objective)
	}
}

// S1 with a cheap rule: chaining wins and both hypotheses activate.
func TestWeightedChainActivatesWhenCheaper(t *testing.T) {
	base := buildKB(t, "rule r { eat(E, X, Y) : 0.3 ^ man(X) : 0.3 => apple(Y) }")
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 1)

	prob, err := weighted(base).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", sol.Status)
	}
	// Chaining costs 10*0.3 + 10*0.3 = 6 < 10.
	if sol.Objective != 6.0 {
		t.Errorf("objective = %v, want 6", sol.Objective)
	}
	active := 0
	for i := 0; i < g.NodeCount(); i++ {
		n := pg.NodeID(i)
		if g.Node(n).Kind == pg.HypothesisNode && !g.Node(n).IsEqualityNode() && sol.NodeIsActive(n) {
			active++
		}
	}
	if active != 2 {
		t.Errorf("expected both LHS hypotheses active, got %d", active)
	}
}

// S2: unification lets one side pay for both.
func TestWeightedUnificationSavesCost(t *testing.T) {
	base := buildKB(t, s1KB)

	single := enumerate(t, base, "problem p { observe { apple(z) } }", 1)
	probSingle, err := weighted(base).Convert(context.Background(), single)
	if err != nil {
		t.Fatal(err)
	}
	solSingle := solve(t, probSingle)

	double := enumerate(t, base, "problem p { observe { apple(a) ^ apple(b) } }", 1)
	probDouble, err := weighted(base).Convert(context.Background(), double)
	if err != nil {
		t.Fatal(err)
	}
	solDouble := solve(t, probDouble)

	if solDouble.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", solDouble.Status)
	}
	if solDouble.Objective >= 2*solSingle.Objective {
		t.Errorf("unification should beat twice the single cost: %v vs 2x%v",
			solDouble.Objective, solSingle.Objective)
	}
}

// S3: asymmetry makes the swapped pair infeasible.
func TestAsymmetryInfeasible(t *testing.T) {
	base := buildKB(t, "property parent/2 { asymmetric, irreflexive }")
	lib := base.Library()
	g := pg.NewGraph("s3", lib, base)

	x, y := fol.NewTerm("X"), fol.NewTerm("Y")
	if _, err := g.AddObservation(fol.NewAtom("parent", x, y)); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddObservation(fol.NewAtom("parent", y, x)); err != nil {
		t.Fatal(err)
	}
	g.PostProcess()

	prob, err := (ilp.NullConverter{Base: base}).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusInfeasible {
		t.Fatalf("S3 conjunction must be infeasible, got %v", sol.Status)
	}
}

// S4: the requirement is forced, the forward chain fires, no cost is paid
// for the requirement.
func TestRequirementForcesChain(t *testing.T) {
	base := buildKB(t, "rule f { p(X) => q(X) }")
	g := enumerate(t, base, "problem p { observe { p(a) } require { q(a) } }", 2)

	prob, err := weighted(base).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", sol.Status)
	}

	var req pg.NodeID = -1
	for _, n := range g.Requirements() {
		req = n
	}
	if req < 0 {
		t.Fatal("no requirement node")
	}
	if !sol.NodeIsActive(req) {
		t.Error("requirement must be active")
	}

	forward := false
	for i := 0; i < g.EdgeCount(); i++ {
		e := pg.EdgeID(i)
		if g.Edge(e).Kind == pg.ImplicateEdge && sol.EdgeIsActive(e) {
			forward = true
		}
	}
	if !forward {
		t.Error("forward chain edge must be active")
	}
	// The requirement never enters the cost map: the cheapest proof
	// chains p(a) forward (excusing the observation's cost) and pays the
	// hypothesized q(a), 10 x 1.2.
	if sol.Objective != 12.0 {
		t.Errorf("objective = %v, want 12", sol.Objective)
	}
}

func TestChoiceGroupIsExclusive(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base,
		"problem p { observe { apple(z) } choice { red(z) ^ green(z) } }", 0)

	prob, err := (ilp.NullConverter{Base: base}).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Status != ilp.StatusOptimal {
		t.Fatalf("status = %v", sol.Status)
	}
	active := 0
	for _, group := range g.Choices() {
		for _, n := range group {
			if sol.NodeIsActive(n) {
				active++
			}
		}
	}
	if active != 1 {
		t.Errorf("exactly one choice member must be active, got %d", active)
	}
}

func TestCostedConverterPricesEdges(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 1)

	provider, err := ilp.ParseEdgeCostProvider("basic(10.0, -40.0, 2.0)", base)
	if err != nil {
		t.Fatal(err)
	}
	conv := &ilp.CostedConverter{Base: base, Provider: provider}
	prob, err := conv.Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if !sol.Feasible() {
		t.Fatalf("status = %v", sol.Status)
	}
	// Chain edges price at the default axiom cost; the solver leaves
	// them inactive when they only add cost.
	for i := 0; i < g.EdgeCount(); i++ {
		e := pg.EdgeID(i)
		if g.Edge(e).IsChain() && sol.EdgeIsActive(e) {
			t.Error("costed converter should not activate a pay-only chain")
		}
	}
}

func TestParseEdgeCostProviderErrors(t *testing.T) {
	if _, err := ilp.ParseEdgeCostProvider("fancy(1,2,3)", nil); err == nil {
		t.Error("unknown provider grammar must error")
	}
	if _, err := ilp.ParseEdgeCostProvider("basic(1, 2)", nil); err == nil {
		t.Error("arity mismatch must error")
	}
}

func TestWeightedDecoratorReportsCosts(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 1)

	prob, err := weighted(base).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)

	obs := g.Observations()[0]
	attrs := make(map[string]string)
	for _, d := range prob.Decorators() {
		d.LiteralAttributes(sol, obs, attrs)
	}
	if attrs["cost"] != "10" {
		t.Errorf("cost attribute = %q", attrs["cost"])
	}
	if attrs["paid-cost"] != "yes" {
		t.Errorf("paid-cost attribute = %q", attrs["paid-cost"])
	}
}

func TestObservationCostFromParam(t *testing.T) {
	base := buildKB(t, s1KB)
	g := enumerate(t, base, "problem p { observe { apple(z) : 44 } }", 0)

	prob, err := weighted(base).Convert(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	sol := solve(t, prob)
	if sol.Objective != 44.0 {
		t.Errorf("objective = %v, want the declared 44", sol.Objective)
	}
}

func TestParameterizedProviderRoundTrip(t *testing.T) {
	base := buildKB(t, s1KB)
	provider, err := ilp.NewCostProvider("parameterized", base, 10, 1.2, "")
	if err != nil {
		t.Fatal(err)
	}
	p := provider.(*ilp.ParameterizedCostProvider)

	path := t.TempDir() + "/weights.tsv"
	if err := p.Write(path); err != nil {
		t.Fatal(err)
	}
	if err := p.Load(path); err != nil {
		t.Fatal(err)
	}

	// With no features every weight defaults: (2 + tanh 0)/size.
	g := enumerate(t, base, "problem p { observe { apple(z) } }", 1)
	costs := p.NodeCosts(g)
	for i := 0; i < g.NodeCount(); i++ {
		n := pg.NodeID(i)
		if g.Node(n).Kind == pg.HypothesisNode && g.Node(n).Depth == 1 {
			if costs[n] != 10.0 {
				t.Errorf("hypothesis cost = %v, want 10 (10 x 2/2)", costs[n])
			}
		}
	}
}
