package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dav/internal/engine"
	"dav/internal/fol"
	"dav/internal/kb"
	"dav/internal/output"
)

var inferCmd = &cobra.Command{
	Use:     "infer [files...]",
	Aliases: []string{"i"},
	Short:   "Run abductive inference over problem files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInference(cmd, args, false)
	},
}

var learnCmd = &cobra.Command{
	Use:     "learn [files...]",
	Aliases: []string{"l"},
	Short:   "Run inference and feed the cost-provider training hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInference(cmd, args, true)
	},
}

// runInference drives infer and learn: both read problems (plus optional
// inline rules) and run the engine; learn additionally trains.
func runInference(cmd *cobra.Command, args []string, train bool) error {
	stmts, err := parseInputs(args)
	if err != nil {
		return err
	}

	var problems []*fol.Problem
	var inlineRules []fol.Rule
	var inlineProps []fol.PredicateProperty
	for _, st := range stmts {
		switch {
		case st.Problem != nil:
			problems = append(problems, st.Problem)
		case st.Rule != nil:
			inlineRules = append(inlineRules, *st.Rule)
		case st.Property != nil:
			inlineProps = append(inlineProps, *st.Property)
		}
	}
	if len(problems) == 0 {
		return inputError{errors.New("no problems in input")}
	}

	// Inline rules take precedence over a stored base; otherwise the
	// compiled base at -k is loaded.
	var base *kb.KnowledgeBase
	if len(inlineRules) > 0 {
		base, err = kb.Compile(fol.NewPredicateLibrary(), inlineRules, inlineProps, cfg.DistanceProvider)
	} else {
		base, err = kb.Open(kbPath, fol.NewPredicateLibrary())
	}
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, base, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var results []*engine.Result
	if train {
		results = eng.Learn(ctx, problems)
	} else {
		results = eng.Run(ctx, problems)
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			logger.Error("problem failed",
				zap.String("problem", res.Problem.Name), zap.Error(res.Err))
		}
		if err := output.Render(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	}
	if failed == len(results) {
		return inputError{errors.New("every problem failed")}
	}
	return nil
}
