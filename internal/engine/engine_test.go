package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"dav/internal/config"
	"dav/internal/fol"
	"dav/internal/ilp"
	"dav/internal/kb"
	"dav/internal/parse"
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

func buildProblems(t *testing.T, src string) []*fol.Problem {
	t.Helper()
	p, err := parse.NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	stmts, errs := p.ParseAll()
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	var out []*fol.Problem
	for _, st := range stmts {
		if st.Problem != nil {
			out = append(out, st.Problem)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxDepth = 2
	return cfg
}

const s1KB = "rule r { eat(E, X, Y) ^ man(X) => apple(Y) }"

func TestInferEndToEnd(t *testing.T) {
	base := buildKB(t, s1KB)
	eng, err := New(testConfig(), base, nil)
	if err != nil {
		t.Fatal(err)
	}

	probs := buildProblems(t, "problem p1 { observe { apple(z) } }")
	res := eng.Infer(context.Background(), probs[0])
	if res.Err != nil {
		t.Fatalf("Infer: %v", res.Err)
	}
	if res.Solution == nil || res.Solution.Status != ilp.StatusOptimal {
		t.Fatalf("solution = %+v", res.Solution)
	}
	if res.Graph.NodeCount() < 3 {
		t.Errorf("graph too small: %d nodes", res.Graph.NodeCount())
	}
	if res.RunID == "" {
		t.Error("run id missing")
	}
}

func TestRunParallelProblems(t *testing.T) {
	defer goleak.VerifyNone(t)

	base := buildKB(t, s1KB)
	cfg := testConfig()
	cfg.Parallel = 3
	eng, err := New(cfg, base, nil)
	if err != nil {
		t.Fatal(err)
	}

	probs := buildProblems(t, `
problem p1 { observe { apple(a) } }
problem p2 { observe { apple(b) } }
problem p3 { observe { apple(c) ^ apple(d) } }
`)
	results := eng.Run(context.Background(), probs)
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, res := range results {
		if res == nil || res.Err != nil {
			t.Fatalf("problem %d failed: %+v", i, res)
		}
		if res.Problem.Name != probs[i].Name {
			t.Errorf("result order broken at %d", i)
		}
		if !res.Solution.Feasible() {
			t.Errorf("problem %d: status %v", i, res.Solution.Status)
		}
	}
}

// S5: a zero timeout yields a partial result, never a crash.
func TestTimeoutYieldsPartialResult(t *testing.T) {
	base := buildKB(t, s1KB+`
rule r2 { tree(T, Y) => apple(Y) }
rule r3 { orchard(O, T) => tree(T, Y) }
`)
	cfg := testConfig()
	cfg.MaxDepth = -1
	cfg.Timeout = time.Nanosecond
	eng, err := New(cfg, base, nil)
	if err != nil {
		t.Fatal(err)
	}

	probs := buildProblems(t, "problem p { observe { apple(a) ^ apple(b) } }")
	res := eng.Infer(context.Background(), probs[0])
	if res.Err != nil {
		t.Fatalf("timeout must not surface as an error: %v", res.Err)
	}
	if res.Graph == nil || !res.Graph.TimedOut() {
		t.Error("graph must be marked timed out")
	}
	if !res.Graph.Frozen() {
		t.Error("indices must be consistent (post-processed) after timeout")
	}
	if res.Solution == nil {
		t.Fatal("a solution object is still produced")
	}
}

// Objective monotonicity: a redundant rule never worsens the optimum.
func TestRedundantRuleKeepsObjective(t *testing.T) {
	probSrc := "problem p { observe { apple(z) } }"

	eng1, err := New(testConfig(), buildKB(t, s1KB), nil)
	if err != nil {
		t.Fatal(err)
	}
	res1 := eng1.Infer(context.Background(), buildProblems(t, probSrc)[0])
	if res1.Err != nil {
		t.Fatal(res1.Err)
	}

	eng2, err := New(testConfig(), buildKB(t, s1KB+"\nrule unrelated { frog(X) => pond(X) }"), nil)
	if err != nil {
		t.Fatal(err)
	}
	res2 := eng2.Infer(context.Background(), buildProblems(t, probSrc)[0])
	if res2.Err != nil {
		t.Fatal(res2.Err)
	}

	if res2.Solution.Objective > res1.Solution.Objective {
		t.Errorf("redundant rule worsened the objective: %v > %v",
			res2.Solution.Objective, res1.Solution.Objective)
	}
}

func TestLearnIsAStub(t *testing.T) {
	base := buildKB(t, s1KB)
	eng, err := New(testConfig(), base, nil)
	if err != nil {
		t.Fatal(err)
	}
	results := eng.Learn(context.Background(), buildProblems(t, "problem p { observe { apple(z) } }"))
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("learn results = %+v", results)
	}
}

func TestConfigErrorsSurfaceBeforeWork(t *testing.T) {
	base := buildKB(t, s1KB)
	cfg := testConfig()
	cfg.Converter = "bogus"
	if _, err := New(cfg, base, nil); err == nil {
		t.Fatal("unknown converter must fail at engine construction")
	}

	cfg = testConfig()
	cfg.Enumerator = "bogus"
	if _, err := New(cfg, base, nil); err == nil {
		t.Fatal("unknown enumerator must fail at engine construction")
	}
}
