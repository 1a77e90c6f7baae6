package fol

import (
	"fmt"
	"strings"
)

// PropertyType enumerates the predicate properties the reasoner enforces
// when generating mutual exclusions and expanding equality.
type PropertyType int

const (
	Irreflexive PropertyType = iota
	Symmetric
	Asymmetric
	Transitive
	RightUnique
)

var propertyNames = map[PropertyType]string{
	Irreflexive: "irreflexive",
	Symmetric:   "symmetric",
	Asymmetric:  "asymmetric",
	Transitive:  "transitive",
	RightUnique: "right-unique",
}

func (p PropertyType) String() string { return propertyNames[p] }

// ParseProperty maps a property keyword to its type.
func ParseProperty(s string) (PropertyType, error) {
	for p, name := range propertyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("fol: unknown predicate property %q", s)
}

// PropertySet is the set of properties declared for one predicate.
type PropertySet map[PropertyType]bool

// Has reports whether the property is declared.
func (s PropertySet) Has(p PropertyType) bool { return s != nil && s[p] }

func (s PropertySet) String() string {
	var parts []string
	for p := Irreflexive; p <= RightUnique; p++ {
		if s.Has(p) {
			parts = append(parts, p.String())
		}
	}
	return strings.Join(parts, ", ")
}

// PredicateProperty declares the properties of one predicate.
type PredicateProperty struct {
	Predicate string
	ArityN    int
	PID       PredicateID
	Props     PropertySet
}

// Arity returns the "predicate/n" key of the declaration.
func (p PredicateProperty) Arity() string {
	return fmt.Sprintf("%s/%d", p.Predicate, p.ArityN)
}

func (p PredicateProperty) String() string {
	return fmt.Sprintf("property %s/%d { %s }", p.Predicate, p.ArityN, p.Props)
}
