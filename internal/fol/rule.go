package fol

import "fmt"

// RuleID is the dense id a compiled knowledge base assigns to a rule.
type RuleID int

// InvalidRuleID marks an unassigned rule id.
const InvalidRuleID RuleID = -1

// Rule is a named implication LHS => RHS. Either side may carry numeric
// weights per atom or a single whole-side weight in its parameter.
type Rule struct {
	ID   RuleID
	Name string
	LHS  Conjunction
	RHS  Conjunction
}

// Side selects a branch of the rule: the LHS when lhs is true, the RHS
// otherwise.
func (r Rule) Side(lhs bool) Conjunction {
	if lhs {
		return r.LHS
	}
	return r.RHS
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %s { %s => %s }", r.Name, r.LHS, r.RHS)
}

// Problem is one reasoning task: observed atoms plus optional requirement
// and choice conjunctions.
type Problem struct {
	Name        string
	Observation Conjunction
	Requirement Conjunction
	Choices     []Conjunction
}

func (p Problem) String() string {
	s := fmt.Sprintf("problem %s { observe { %s }", p.Name, p.Observation)
	if !p.Requirement.Empty() {
		s += fmt.Sprintf(" require { %s }", p.Requirement)
	}
	for _, c := range p.Choices {
		s += fmt.Sprintf(" choice { %s }", c)
	}
	return s + " }"
}
