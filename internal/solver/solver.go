// Package solver defines the narrow contract the engine calls an ILP
// backend through, plus a built-in exact solver for binary programs. The
// built-in backend is a depth-first branch-and-bound with bound
// propagation; calls serialize behind a process-wide lock the way a
// non-reentrant external backend would require.
package solver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dav/internal/ilp"
	"dav/internal/logging"
)

// Solver solves one ILP. Implementations must tolerate concurrent callers.
type Solver interface {
	Solve(ctx context.Context, prob *ilp.Problem) (*ilp.Solution, error)
	Name() string
}

// Factory builds a solver from a backend name.
func Factory(name string) (Solver, error) {
	switch name {
	case "", "bnb":
		return &BranchBound{}, nil
	}
	return nil, fmt.Errorf("solver: unknown backend %q", name)
}

// processLock serializes solver sessions process-wide.
var processLock sync.Mutex

const eps = 1e-9

// BranchBound is the built-in exact backend.
type BranchBound struct{}

// Name identifies the backend.
func (b *BranchBound) Name() string { return "bnb" }

// Solve finds a minimum-objective assignment. The context deadline is
// checked cooperatively; hitting it yields the best feasible point found
// so far with StatusSuboptimal, or StatusTimeout when none exists yet.
func (b *BranchBound) Solve(ctx context.Context, prob *ilp.Problem) (*ilp.Solution, error) {
	processLock.Lock()
	defer processLock.Unlock()

	timer := logging.StartTimer(logging.CategorySolver, "Solve")
	defer timer.Stop()

	s := newSearch(prob)
	s.run(ctx)

	sol := &ilp.Solution{Problem: prob}
	switch {
	case s.best != nil:
		sol.Values = s.best
		sol.Objective = s.bestObj
		if s.interrupted {
			sol.Status = ilp.StatusSuboptimal
		} else {
			sol.Status = ilp.StatusOptimal
		}
	case s.interrupted:
		sol.Status = ilp.StatusTimeout
	default:
		sol.Status = ilp.StatusInfeasible
	}
	logging.Get(logging.CategorySolver).Info(
		"solve: status=%s objective=%g vars=%d cons=%d",
		sol.Status, sol.Objective, len(prob.Variables()), len(prob.Constraints()))
	return sol, nil
}

// search carries the DFS state.
type search struct {
	prob   *ilp.Problem
	vars   []ilp.Variable
	order  []int // branch order: free variables, largest |coefficient| first
	values []float64

	// Per-constraint running activity and the min/max still achievable
	// from unassigned variables.
	activity []float64
	minRest  []float64
	maxRest  []float64

	best        []float64
	bestObj     float64
	obj         float64
	objMinRest  float64
	interrupted bool
	steps       int

	// varTerms[v] lists the constraint rows mentioning variable v.
	varTerms [][]varTerm
}

type varTerm struct {
	row   int
	coeff float64
}

func newSearch(prob *ilp.Problem) *search {
	vars := prob.Variables()
	s := &search{
		prob:   prob,
		vars:   vars,
		values: make([]float64, len(vars)),
	}

	cons := prob.Constraints()
	s.activity = make([]float64, len(cons))
	s.minRest = make([]float64, len(cons))
	s.maxRest = make([]float64, len(cons))

	for i, v := range vars {
		if v.Coefficient < 0 {
			s.objMinRest += v.Coefficient
		}
		if v.Fixed == nil {
			s.order = append(s.order, i)
		}
	}
	sort.SliceStable(s.order, func(a, c int) bool {
		ca, cc := s.vars[s.order[a]].Coefficient, s.vars[s.order[c]].Coefficient
		if ca < 0 {
			ca = -ca
		}
		if cc < 0 {
			cc = -cc
		}
		return ca > cc
	})

	s.varTerms = make([][]varTerm, len(vars))
	for ci, c := range cons {
		for _, t := range c.Terms {
			s.varTerms[t.Var] = append(s.varTerms[t.Var], varTerm{row: ci, coeff: t.Coeff})
			if s.vars[t.Var].Fixed != nil {
				continue
			}
			if t.Coeff > 0 {
				s.maxRest[ci] += t.Coeff
			} else {
				s.minRest[ci] += t.Coeff
			}
		}
	}

	// Apply fixed variables up front.
	for i, v := range vars {
		if v.Fixed != nil {
			s.values[i] = *v.Fixed
			if *v.Fixed > 0.5 {
				s.obj += v.Coefficient
			}
			for _, t := range s.varTerms[i] {
				s.activity[t.row] += t.coeff * s.values[i]
			}
		}
	}
	return s
}

// feasibleNow reports whether every constraint can still be satisfied.
func (s *search) feasibleNow() bool {
	for ci, c := range s.prob.Constraints() {
		lo := s.activity[ci] + s.minRest[ci]
		hi := s.activity[ci] + s.maxRest[ci]
		switch c.Op {
		case ilp.OpLE:
			if lo > c.Bound+eps {
				return false
			}
		case ilp.OpGE:
			if hi < c.Bound-eps {
				return false
			}
		case ilp.OpEQ:
			if lo > c.Bound+eps || hi < c.Bound-eps {
				return false
			}
		}
	}
	return true
}

func (s *search) run(ctx context.Context) {
	if !s.feasibleNow() {
		return
	}
	s.dfs(ctx, 0)
}

func (s *search) dfs(ctx context.Context, depth int) {
	s.steps++
	if s.steps%256 == 0 && ctx.Err() != nil {
		s.interrupted = true
		return
	}
	if s.best != nil && s.obj+s.objMinRest >= s.bestObj-eps {
		return
	}
	if depth == len(s.order) {
		s.best = append([]float64(nil), s.values...)
		s.bestObj = s.obj
		return
	}

	vi := s.order[depth]
	coeff := s.vars[vi].Coefficient

	first, second := 0.0, 1.0
	if coeff < 0 {
		first, second = 1.0, 0.0
	}
	for _, val := range []float64{first, second} {
		if s.interrupted {
			return
		}
		s.assign(vi, val)
		if s.feasibleNow() {
			s.dfs(ctx, depth+1)
		}
		s.unassign(vi, val)
	}
}

func (s *search) assign(vi int, val float64) {
	s.values[vi] = val
	coeff := s.vars[vi].Coefficient
	if val > 0.5 {
		s.obj += coeff
	}
	if coeff < 0 {
		s.objMinRest -= coeff
	}
	for _, t := range s.varTerms[vi] {
		s.activity[t.row] += t.coeff * val
		if t.coeff > 0 {
			s.maxRest[t.row] -= t.coeff
		} else {
			s.minRest[t.row] -= t.coeff
		}
	}
}

func (s *search) unassign(vi int, val float64) {
	coeff := s.vars[vi].Coefficient
	if val > 0.5 {
		s.obj -= coeff
	}
	if coeff < 0 {
		s.objMinRest += coeff
	}
	for _, t := range s.varTerms[vi] {
		s.activity[t.row] -= t.coeff * val
		if t.coeff > 0 {
			s.maxRest[t.row] += t.coeff
		} else {
			s.minRest[t.row] += t.coeff
		}
	}
	s.values[vi] = 0
}
