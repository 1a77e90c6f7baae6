// Package fol implements the first-order model the reasoner operates on:
// terms, atoms, conjunctions, rules, predicate interning, predicate
// properties, and substitution (unification) machinery.
//
// Terms and atoms are value types and compare by content. Predicate ids are
// interned integers assigned by a PredicateLibrary handle that is passed to
// constructors explicitly so tests can run with isolated libraries.
package fol

import (
	"fmt"
	"strings"
)

// Term is a first-order term: a variable or a constant, carried by symbol.
// Identifiers starting with a lowercase letter or '_' are variables,
// everything else (uppercase identifiers, quoted strings, numbers) is a
// constant. Terms compare by value.
type Term struct {
	Symbol string
}

// NewTerm wraps a raw symbol.
func NewTerm(symbol string) Term { return Term{Symbol: symbol} }

// IsVariable reports whether the term is a variable.
func (t Term) IsVariable() bool {
	if t.Symbol == "" {
		return false
	}
	c := t.Symbol[0]
	return c == '_' || (c >= 'a' && c <= 'z')
}

// IsConstant reports whether the term is a constant.
func (t Term) IsConstant() bool { return t.Symbol != "" && !t.IsVariable() }

// IsFresh reports whether the term was introduced by chaining rather than
// written in an input file.
func (t Term) IsFresh() bool {
	return strings.HasPrefix(t.Symbol, "_u") || strings.HasPrefix(t.Symbol, "Sk")
}

func (t Term) String() string { return t.Symbol }

// FreshVariable returns the n-th generated universal variable.
func FreshVariable(n int) Term { return Term{Symbol: fmt.Sprintf("_u%d", n)} }

// SkolemConstant returns the n-th generated Skolem constant. The symbol
// starts with an uppercase letter so that it behaves as a constant
// everywhere without special cases.
func SkolemConstant(n int) Term { return Term{Symbol: fmt.Sprintf("Sk%d", n)} }
