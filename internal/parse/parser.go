package parse

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dav/internal/fol"
	"dav/internal/logging"
)

// Statement is one top-level input statement. Exactly one field is set.
type Statement struct {
	Problem  *fol.Problem
	Rule     *fol.Rule
	Property *fol.PredicateProperty
}

// Parser reads statements from one input stream. After an error the parser
// skips to the next top-level keyword, so callers can keep pulling
// statements from the same file.
type Parser struct {
	r *reader
}

// NewParser wraps an input stream.
func NewParser(src io.Reader) (*Parser, error) {
	r, err := newReader(src)
	if err != nil {
		return nil, err
	}
	return &Parser{r: r}, nil
}

// Open opens a file for parsing.
func Open(path string) (*Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parse: open %s: %w", path, err)
	}
	defer f.Close()
	return NewParser(f)
}

// Next returns the next statement, io.EOF at end of input, or a *Error.
func (p *Parser) Next() (*Statement, error) {
	p.r.skip()
	if p.r.eof() {
		return nil, io.EOF
	}

	key := p.r.readKeyword()
	var st *Statement
	var err error
	switch strings.ToLower(key) {
	case "problem":
		st, err = p.readProblem()
	case "rule":
		st, err = p.readRule()
	case "property":
		st, err = p.readProperty()
	default:
		err = p.r.errorf("unknown keyword %q", key)
	}
	if err != nil {
		logging.Get(logging.CategoryParse).Warn("%v", err)
		p.recover()
		return nil, err
	}
	return st, nil
}

// ParseAll drains the stream, collecting statements and errors separately.
func (p *Parser) ParseAll() ([]*Statement, []error) {
	var stmts []*Statement
	var errs []error
	for {
		st, err := p.Next()
		if err == io.EOF {
			return stmts, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stmts = append(stmts, st)
	}
}

// recover advances to the next top-level keyword.
func (p *Parser) recover() {
	for !p.r.eof() {
		p.r.skip()
		pos := p.r.mark()
		w := p.r.readKeyword()
		switch strings.ToLower(w) {
		case "problem", "rule", "property":
			p.r.restore(pos)
			return
		}
		if w == "" {
			p.r.next()
		}
	}
}

// readParam reads an optional ':'-prefixed parameter.
func (p *Parser) readParam() string {
	pos := p.r.mark()
	p.r.skip()
	if !p.r.accept(':') {
		p.r.restore(pos)
		return ""
	}
	p.r.skip()
	if ch := p.r.peek(); ch == '\'' || ch == '"' {
		q := p.r.readIdent()
		return strings.Trim(q, "'\"")
	}
	return p.r.readWhile(func(ch rune) bool {
		return !isSpace(ch) && ch != '{' && ch != '}' && ch != '(' && ch != ')' &&
			ch != '^' && ch != ',' && ch != '='
	})
}

// readAtom reads one atom. A zero atom with nil error means "no atom
// here"; the stream position is rolled back in that case.
func (p *Parser) readAtom() (fol.Atom, error) {
	pos := p.r.mark()
	cancel := func() (fol.Atom, error) {
		p.r.restore(pos)
		return fol.Atom{}, nil
	}

	p.r.skip()
	naf := false
	if p.r.peek() == 'n' {
		wordPos := p.r.mark()
		if w := p.r.readKeyword(); w == "not" {
			naf = true
			p.r.skip()
		} else {
			p.r.restore(wordPos)
		}
	}

	// Equality form: '(' ARG ['!'] '=' ARG ')'
	if p.r.accept('(') {
		p.r.skip()
		t1 := p.r.readIdent()
		if t1 == "" {
			return cancel()
		}
		p.r.skip()
		neg := p.r.accept('!')
		if !p.r.accept('=') {
			return cancel()
		}
		p.r.skip()
		t2 := p.r.readIdent()
		if t2 == "" {
			return cancel()
		}
		p.r.skip()
		if !p.r.accept(')') {
			return cancel()
		}
		atom := fol.NewEquality(fol.NewTerm(t1), fol.NewTerm(t2))
		atom.Negated = neg
		atom.Naf = naf
		atom.Param = p.readParam()
		return atom, nil
	}

	// Basic form: ['!'] PRED '(' ARG (',' ARG)* ')'
	neg := p.r.accept('!')
	p.r.skip()
	pred := p.r.readIdent()
	if pred == "" {
		return cancel()
	}
	p.r.skip()
	if !p.r.accept('(') {
		return cancel()
	}
	var terms []fol.Term
	for {
		p.r.skip()
		arg := p.r.readIdent()
		if arg == "" {
			return cancel()
		}
		terms = append(terms, fol.NewTerm(arg))
		p.r.skip()
		if p.r.accept(')') {
			break
		}
		if !p.r.accept(',') {
			return cancel()
		}
	}
	atom := fol.NewAtom(pred, terms...)
	atom.Negated = neg
	atom.Naf = naf
	atom.Param = p.readParam()
	return atom, nil
}

// readConjunction reads ATOM ('^' ATOM)*, optionally enclosed in braces
// with a trailing parameter.
func (p *Parser) readConjunction(mustEnclose bool) (fol.Conjunction, error) {
	var out fol.Conjunction
	p.r.skip()
	enclosed := p.r.accept('{')
	if mustEnclose && !enclosed {
		return out, p.r.errorf("expected '{'")
	}
	p.r.skip()

	for {
		atom, err := p.readAtom()
		if err != nil {
			return out, err
		}
		if !atom.Good() {
			break
		}
		out.Atoms = append(out.Atoms, atom)
		p.r.skip()
		if !p.r.accept('^') {
			break
		}
	}

	if enclosed {
		p.r.skip()
		if err := p.r.expect('}'); err != nil {
			return out, err
		}
		out.Param = p.readParam()
	}
	return out, nil
}

func (p *Parser) readProblem() (*Statement, error) {
	p.r.skip()
	name := p.r.readIdent()
	p.r.skip()
	if err := p.r.expect('{'); err != nil {
		return nil, err
	}

	prob := &fol.Problem{Name: name}
	for {
		p.r.skip()
		if p.r.accept('}') {
			break
		}
		if p.r.eof() {
			return nil, p.r.errorf("unexpected end of input in problem %q", name)
		}
		key := p.r.readKeyword()
		switch key {
		case "observe":
			if !prob.Observation.Empty() {
				return nil, p.r.errorf("multiple observation")
			}
			conj, err := p.readConjunction(true)
			if err != nil {
				return nil, err
			}
			prob.Observation = conj
		case "require":
			if !prob.Requirement.Empty() {
				return nil, p.r.errorf("multiple requirement")
			}
			conj, err := p.readConjunction(true)
			if err != nil {
				return nil, err
			}
			prob.Requirement = conj
		case "choice":
			conj, err := p.readConjunction(true)
			if err != nil {
				return nil, err
			}
			prob.Choices = append(prob.Choices, conj)
		default:
			return nil, p.r.errorf("unknown keyword %q", key)
		}
	}

	if prob.Observation.Empty() {
		return nil, p.r.errorf("empty observation")
	}
	return &Statement{Problem: prob}, nil
}

func (p *Parser) readRule() (*Statement, error) {
	p.r.skip()
	name := p.r.readIdent()
	p.r.skip()
	if err := p.r.expect('{'); err != nil {
		return nil, err
	}

	lhs, err := p.readConjunction(false)
	if err != nil {
		return nil, err
	}
	p.r.skip()
	if err := p.r.expectWord("=>"); err != nil {
		return nil, err
	}
	rhs, err := p.readConjunction(false)
	if err != nil {
		return nil, err
	}
	p.r.skip()
	if err := p.r.expect('}'); err != nil {
		return nil, err
	}

	if lhs.Empty() {
		return nil, p.r.errorf("empty conjunction on left-hand-side")
	}
	if rhs.Empty() {
		return nil, p.r.errorf("empty conjunction on right-hand-side")
	}
	rule := &fol.Rule{ID: fol.InvalidRuleID, Name: name, LHS: lhs, RHS: rhs}
	return &Statement{Rule: rule}, nil
}

func (p *Parser) readProperty() (*Statement, error) {
	p.r.skip()
	predArity := p.r.readIdent()
	slash := strings.LastIndex(predArity, "/")
	if slash <= 0 || slash == len(predArity)-1 {
		return nil, p.r.errorf("property predicate must be written as name/arity, got %q", predArity)
	}
	arity, err := strconv.Atoi(predArity[slash+1:])
	if err != nil || arity < 1 {
		return nil, p.r.errorf("bad arity in %q", predArity)
	}

	p.r.skip()
	if err := p.r.expect('{'); err != nil {
		return nil, err
	}

	props := make(fol.PropertySet)
	for {
		p.r.skip()
		word := p.r.readKeyword()
		prop, err := fol.ParseProperty(word)
		if err != nil {
			return nil, p.r.errorf("unknown keyword %q", word)
		}
		props[prop] = true
		p.r.skip()
		if p.r.accept('}') {
			break
		}
		if err := p.r.expect(','); err != nil {
			return nil, err
		}
	}

	decl := &fol.PredicateProperty{
		Predicate: predArity[:slash],
		ArityN:    arity,
		PID:       fol.InvalidPredicateID,
		Props:     props,
	}
	return &Statement{Property: decl}, nil
}
