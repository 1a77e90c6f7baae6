package ilp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dav/internal/kb"
	"dav/internal/logging"
	"dav/internal/pg"
)

// Converter encodes a proof graph as an ILP.
type Converter interface {
	Convert(ctx context.Context, graph *pg.Graph) (*Problem, error)
	Name() string

	// KeepsValidityOnTimeout reports whether a problem finalized from a
	// timed-out enumeration still encodes a valid (if suboptimal)
	// objective.
	KeepsValidityOnTimeout() bool
}

// ConverterFactory builds a converter against a knowledge base.
type ConverterFactory func(base *kb.KnowledgeBase) (Converter, error)

var (
	convertersMu sync.RWMutex
	converters   = make(map[string]ConverterFactory)
)

// RegisterConverter installs a factory under a name; user extensions use
// this to add custom encodings.
func RegisterConverter(name string, f ConverterFactory) {
	convertersMu.Lock()
	defer convertersMu.Unlock()
	converters[name] = f
}

// NewConverter instantiates a registered converter.
func NewConverter(name string, base *kb.KnowledgeBase) (Converter, error) {
	convertersMu.RLock()
	f, ok := converters[name]
	convertersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ilp: unknown converter %q", name)
	}
	return f(base)
}

// ConverterNames lists the registered converters sorted.
func ConverterNames() []string {
	convertersMu.RLock()
	defer convertersMu.RUnlock()
	out := make([]string, 0, len(converters))
	for name := range converters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterConverter("null", func(base *kb.KnowledgeBase) (Converter, error) {
		return NullConverter{Base: base}, nil
	})
}

// NullConverter emits the baseline encoding with a zero objective; any
// feasible assignment is as good as any other. Used for sanity checks.
type NullConverter struct {
	Base *kb.KnowledgeBase
}

// Convert builds the baseline problem.
func (c NullConverter) Convert(ctx context.Context, graph *pg.Graph) (*Problem, error) {
	timer := logging.StartTimer(logging.CategoryILP, "null convert")
	defer timer.Stop()

	prob := NewProblem(graph, c.Base, BasicInterpreter{})
	prob.ConvertBaseline()
	prob.TimedOut = graph.TimedOut() || ctx.Err() != nil
	prob.SetAttribute("converter", c.Name())
	return prob, nil
}

// Name identifies the converter in output.
func (c NullConverter) Name() string { return "null" }

// KeepsValidityOnTimeout is true: with no objective there is nothing to
// invalidate.
func (c NullConverter) KeepsValidityOnTimeout() bool { return true }
