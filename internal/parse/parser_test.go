package parse

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dav/internal/fol"
)

func parseOne(t *testing.T, src string) *Statement {
	t.Helper()
	p, err := NewParser(strings.NewReader(src))
	require.NoError(t, err)
	st, err := p.Next()
	require.NoError(t, err)
	return st
}

func TestParseRule(t *testing.T) {
	st := parseOne(t, "rule r1 { eat(E, X, Y) ^ man(X) => apple(Y) }")
	require.NotNil(t, st.Rule)
	assert.Equal(t, "r1", st.Rule.Name)
	require.Len(t, st.Rule.LHS.Atoms, 2)
	require.Len(t, st.Rule.RHS.Atoms, 1)
	assert.Equal(t, "eat", st.Rule.LHS.Atoms[0].Predicate)
	assert.Equal(t, []fol.Term{{Symbol: "E"}, {Symbol: "X"}, {Symbol: "Y"}}, st.Rule.LHS.Atoms[0].Terms)
	assert.Equal(t, "apple", st.Rule.RHS.Atoms[0].Predicate)
}

func TestParseRuleWithWeights(t *testing.T) {
	st := parseOne(t, "rule r2 { p(x) : 0.4 ^ q(x) : 0.8 => r(x) }")
	require.NotNil(t, st.Rule)
	w, ok := st.Rule.LHS.Atoms[0].ParamFloat()
	require.True(t, ok)
	assert.Equal(t, 0.4, w)
	w, ok = st.Rule.LHS.Atoms[1].ParamFloat()
	require.True(t, ok)
	assert.Equal(t, 0.8, w)
}

func TestParseProblem(t *testing.T) {
	src := `
# a problem with everything
problem pr {
    observe { apple(A) : 12 ^ man(B) }
    require { man(B) }
    choice { red(A) ^ green(A) }
}`
	st := parseOne(t, src)
	require.NotNil(t, st.Problem)
	assert.Equal(t, "pr", st.Problem.Name)
	assert.Len(t, st.Problem.Observation.Atoms, 2)
	assert.Len(t, st.Problem.Requirement.Atoms, 1)
	require.Len(t, st.Problem.Choices, 1)
	assert.Len(t, st.Problem.Choices[0].Atoms, 2)

	cost, ok := st.Problem.Observation.Atoms[0].ParamFloat()
	require.True(t, ok)
	assert.Equal(t, 12.0, cost)
}

func TestParseEqualityAtoms(t *testing.T) {
	st := parseOne(t, "problem eq { observe { p(x) ^ (x = Y) ^ (x != Z) } }")
	atoms := st.Problem.Observation.Atoms
	require.Len(t, atoms, 3)
	assert.True(t, atoms[1].IsEquality())
	assert.True(t, atoms[2].IsInequality())
}

func TestParseNegationForms(t *testing.T) {
	st := parseOne(t, "problem n { observe { !p(x) ^ not q(y) ^ not !r(z) } }")
	atoms := st.Problem.Observation.Atoms
	require.Len(t, atoms, 3)
	assert.True(t, atoms[0].Negated)
	assert.False(t, atoms[0].Naf)
	assert.True(t, atoms[1].Naf)
	assert.False(t, atoms[1].Negated)
	assert.True(t, atoms[2].Naf)
	assert.True(t, atoms[2].Negated)
}

func TestParseProperty(t *testing.T) {
	st := parseOne(t, "property parent/2 { asymmetric, irreflexive }")
	require.NotNil(t, st.Property)
	assert.Equal(t, "parent", st.Property.Predicate)
	assert.Equal(t, 2, st.Property.ArityN)
	assert.True(t, st.Property.Props.Has(fol.Asymmetric))
	assert.True(t, st.Property.Props.Has(fol.Irreflexive))
	assert.False(t, st.Property.Props.Has(fol.Transitive))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"empty observation", "problem p { observe { } }", "empty observation"},
		{"multiple observe", "problem p { observe { a(x) } observe { b(x) } }", "multiple observation"},
		{"unknown keyword", "problem p { watch { a(x) } }", "unknown keyword"},
		{"unknown property", "property p/1 { reflexive }", "unknown keyword"},
		{"empty lhs", "rule r { => q(x) }", "left-hand-side"},
		{"top-level garbage", "banana", "unknown keyword"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := NewParser(strings.NewReader(c.src))
			require.NoError(t, err)
			_, err = p.Next()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Greater(t, pe.Row, 0)
		})
	}
}

func TestRecoveryAfterError(t *testing.T) {
	src := `
problem bad { observe { } }
rule ok { p(x) => q(x) }`
	p, err := NewParser(strings.NewReader(src))
	require.NoError(t, err)

	stmts, errs := p.ParseAll()
	require.Len(t, errs, 1)
	require.Len(t, stmts, 1)
	assert.NotNil(t, stmts[0].Rule)
}

func TestRoundTrip(t *testing.T) {
	sources := []string{
		"rule r1 { eat(E, X, Y) ^ man(X) => apple(Y) }",
		"problem pr { observe { apple(A) : 12 ^ man(B) } require { man(B) } }",
		"property parent/2 { asymmetric, irreflexive }",
		"problem eq { observe { p(x) ^ (x = Y) ^ not !q(z) } }",
	}
	ignore := cmpopts.IgnoreFields(fol.Atom{}, "PID")
	for _, src := range sources {
		first := parseOne(t, src)

		var rendered string
		switch {
		case first.Problem != nil:
			rendered = first.Problem.String()
		case first.Rule != nil:
			rendered = first.Rule.String()
		case first.Property != nil:
			rendered = first.Property.String()
		}

		second := parseOne(t, rendered)
		if diff := cmp.Diff(first, second, ignore); diff != "" {
			t.Errorf("round trip of %q changed the AST (-first +second):\n%s", src, diff)
		}
	}
}
