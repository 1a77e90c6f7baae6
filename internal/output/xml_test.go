package output

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"testing"

	"dav/internal/config"
	"dav/internal/engine"
	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/parse"
)

func renderSample(t *testing.T) string {
	t.Helper()
	src := `
rule r { eat(E, X, Y) ^ man(X) => apple(Y) }
problem p { observe { apple(z) } }
`
	p, err := parse.NewParser(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	stmts, errs := p.ParseAll()
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	var rules []fol.Rule
	var prob *fol.Problem
	for _, st := range stmts {
		if st.Rule != nil {
			rules = append(rules, *st.Rule)
		}
		if st.Problem != nil {
			prob = st.Problem
		}
	}
	base, err := kb.Compile(fol.NewPredicateLibrary(), rules, nil, "basic")
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.MaxDepth = 1
	eng, err := engine.New(cfg, base, nil)
	if err != nil {
		t.Fatal(err)
	}
	res := eng.Infer(context.Background(), prob)
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, res); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestRenderWellFormedXML(t *testing.T) {
	out := renderSample(t)
	var doc Document
	if err := xml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not well-formed XML: %v\n%s", err, out)
	}
	if doc.Problem.Name != "p" {
		t.Errorf("problem name = %q", doc.Problem.Name)
	}
	if doc.Graph == nil || len(doc.Graph.Nodes) < 3 {
		t.Fatalf("graph section incomplete:\n%s", out)
	}
	if doc.Solution == nil || doc.Solution.Status != "optimal" {
		t.Fatalf("solution section incomplete:\n%s", out)
	}
}

func TestRenderCarriesDecorations(t *testing.T) {
	out := renderSample(t)
	if !strings.Contains(out, `paid-cost="yes"`) {
		t.Errorf("cost decorations missing:\n%s", out)
	}
	if !strings.Contains(out, "converter=") {
		t.Errorf("converter attribute missing:\n%s", out)
	}
	if !strings.Contains(out, "apple(z)") {
		t.Errorf("observation literal missing:\n%s", out)
	}
}
