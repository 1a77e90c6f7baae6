// Package engine wires the pipeline: for each problem it grows a proof
// graph with the configured enumerator, converts it with the configured
// converter, hands the ILP to the solver with whatever deadline budget
// remains, and interprets the result. Problems run independently across a
// worker pool; the knowledge base is shared read-only.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dav/internal/config"
	"dav/internal/fol"
	"dav/internal/ilp"
	"dav/internal/kb"
	"dav/internal/lhs"
	"dav/internal/logging"
	"dav/internal/pg"
	"dav/internal/solver"
)

// Result is the outcome of one problem.
type Result struct {
	RunID    string
	Problem  *fol.Problem
	Graph    *pg.Graph
	ILP      *ilp.Problem
	Solution *ilp.Solution
	Err      error
	Elapsed  time.Duration
}

// Engine runs problems against one compiled knowledge base.
type Engine struct {
	cfg    *config.Config
	base   *kb.KnowledgeBase
	logger *zap.Logger
	solver solver.Solver
	enum   lhs.Enumerator
	conv   ilp.Converter
}

// New builds an engine. Every component resolves here, so configuration
// errors surface before any problem starts.
func New(cfg *config.Config, base *kb.KnowledgeBase, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := solver.Factory("")
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, base: base, logger: logger, solver: s}
	if e.enum, err = e.enumerator(); err != nil {
		return nil, err
	}
	if e.conv, err = e.converter(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) enumerator() (lhs.Enumerator, error) {
	return lhs.New(e.cfg.Enumerator, e.base, lhs.Options{
		MaxDepth:    e.cfg.MaxDepth,
		MaxDistance: e.cfg.MaxDistance,
		MaxLHSSize:  e.cfg.MaxLHSSize,
		DoDeduction: e.cfg.DoDeduction,
		DoAbduction: e.cfg.DoAbduction,
	})
}

func (e *Engine) converter() (ilp.Converter, error) {
	switch e.cfg.Converter {
	case "null":
		return ilp.NullConverter{Base: e.base}, nil
	case "weighted":
		provider, err := ilp.NewCostProvider(
			e.cfg.CostProvider, e.base,
			e.cfg.DefaultObservationCost, e.cfg.DefaultAxiomWeight,
			e.cfg.FeatureWeightPath)
		if err != nil {
			return nil, err
		}
		return &ilp.WeightedConverter{Base: e.base, Provider: provider}, nil
	case "costed":
		provider, err := ilp.ParseEdgeCostProvider(e.cfg.CostedProvider, e.base)
		if err != nil {
			return nil, err
		}
		return &ilp.CostedConverter{Base: e.base, Provider: provider}, nil
	}
	// Fall through to user registrations.
	return ilp.NewConverter(e.cfg.Converter, e.base)
}

// Infer runs one problem to a Result. Resource errors surface as partial
// results, never as Err.
func (e *Engine) Infer(ctx context.Context, prob *fol.Problem) *Result {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Problem: prob}
	log := e.logger.With(zap.String("problem", prob.Name), zap.String("run", res.RunID))

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	graph, err := e.enum.Enumerate(ctx, prob)
	if err != nil {
		res.Err = fmt.Errorf("engine: enumerate %s: %w", prob.Name, err)
		res.Elapsed = time.Since(start)
		return res
	}
	graph.SetAttribute("enumerator", e.enum.Name())
	res.Graph = graph
	if graph.TimedOut() {
		log.Warn("enumeration timed out; continuing with a partial graph")
	}

	ilpProb, err := e.conv.Convert(ctx, graph)
	if err != nil {
		res.Err = fmt.Errorf("engine: convert %s: %w", prob.Name, err)
		res.Elapsed = time.Since(start)
		return res
	}
	res.ILP = ilpProb

	sol, err := e.solver.Solve(ctx, ilpProb)
	if err != nil {
		res.Err = fmt.Errorf("engine: solve %s: %w", prob.Name, err)
		res.Elapsed = time.Since(start)
		return res
	}
	res.Solution = sol
	res.Elapsed = time.Since(start)

	log.Info("inference finished",
		zap.String("status", sol.Status.String()),
		zap.Float64("objective", sol.Objective),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("edges", graph.EdgeCount()),
		zap.Bool("timed_out", graph.TimedOut()),
		zap.Duration("elapsed", res.Elapsed))
	logging.Get(logging.CategoryEngine).Info(
		"%s: status=%s objective=%g nodes=%d", prob.Name, sol.Status, sol.Objective, graph.NodeCount())
	return res
}

// Run executes problems across the configured worker pool, preserving
// input order in the results.
func (e *Engine) Run(ctx context.Context, problems []*fol.Problem) []*Result {
	results := make([]*Result, len(problems))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallel)
	for i, prob := range problems {
		i, prob := i, prob
		g.Go(func() error {
			results[i] = e.Infer(ctx, prob)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Learn runs inference and feeds each result to the cost provider's
// training hook. The built-in providers train as stubs; the plumbing is
// here for parameterized providers once feature extraction lands.
func (e *Engine) Learn(ctx context.Context, problems []*fol.Problem) []*Result {
	results := e.Run(ctx, problems)
	for _, res := range results {
		if res.Err != nil || res.Solution == nil {
			continue
		}
		// Gold solutions come from label annotations; with none present
		// the system solution trains against itself, which the stub
		// providers ignore.
		if w, ok := e.conv.(*ilp.WeightedConverter); ok {
			if err := w.Provider.Train(res.Solution, res.Solution); err != nil {
				e.logger.Warn("training failed", zap.Error(err))
			}
		}
	}
	return results
}
