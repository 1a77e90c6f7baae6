package fol

import (
	"sort"
	"strings"
)

// Unifier is a substitution recorded as term pairs. A pair (t1, t2) states
// that the two terms must denote the same entity. The unifier is consistent
// as long as it never forces two distinct constants together.
type Unifier struct {
	pairs [][2]Term
	bound map[Term]Term
}

// NewUnifier returns an empty substitution.
func NewUnifier() *Unifier {
	return &Unifier{bound: make(map[Term]Term)}
}

// Add records that t1 and t2 must co-refer. It returns false, leaving the
// unifier unchanged, when the pair contradicts an earlier binding or joins
// two distinct constants.
func (u *Unifier) Add(t1, t2 Term) bool {
	if t1 == t2 {
		return true
	}
	if t1.IsConstant() && t2.IsConstant() {
		return false
	}
	// Keep variables on the left so bindings stay functional.
	if t1.IsConstant() {
		t1, t2 = t2, t1
	}
	if prev, ok := u.bound[t1]; ok {
		if prev == t2 {
			return true
		}
		if prev.IsConstant() && t2.IsConstant() {
			return false
		}
	}
	u.pairs = append(u.pairs, [2]Term{t1, t2})
	u.bound[t1] = t2
	return true
}

// Pairs returns the recorded substitution pairs in insertion order.
func (u *Unifier) Pairs() [][2]Term {
	if u == nil {
		return nil
	}
	return u.pairs
}

// Empty reports whether the substitution has no pairs.
func (u *Unifier) Empty() bool { return u == nil || len(u.pairs) == 0 }

// Substitution returns the variable assignment the unifier induces.
func (u *Unifier) Substitution() map[Term]Term {
	out := make(map[Term]Term, len(u.bound))
	for k, v := range u.bound {
		out[k] = v
	}
	return out
}

func (u *Unifier) String() string {
	parts := make([]string, 0, len(u.pairs))
	for _, p := range u.pairs {
		parts = append(parts, p[0].Symbol+"="+p[1].Symbol)
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

// Unify computes the pairwise substitution identifying two atoms with the
// same predicate and arity. It returns nil when the atoms cannot co-refer.
func Unify(a, b Atom) *Unifier {
	if a.Predicate != b.Predicate || len(a.Terms) != len(b.Terms) {
		return nil
	}
	u := NewUnifier()
	for i := range a.Terms {
		if !u.Add(a.Terms[i], b.Terms[i]) {
			return nil
		}
	}
	return u
}

// UnifySwapped is Unify with b's two arguments reversed. It applies to
// symmetric binary predicates only.
func UnifySwapped(a, b Atom) *Unifier {
	if len(b.Terms) != 2 {
		return nil
	}
	swapped := b
	swapped.Terms = []Term{b.Terms[1], b.Terms[0]}
	return Unify(a, swapped)
}
