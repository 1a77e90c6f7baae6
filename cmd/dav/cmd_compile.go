package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dav/internal/fol"
	"dav/internal/kb"
)

var compileCmd = &cobra.Command{
	Use:     "compile [files...]",
	Aliases: []string{"c"},
	Short:   "Compile rule and property files into a knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		stmts, err := parseInputs(args)
		if err != nil {
			return err
		}

		var rules []fol.Rule
		var props []fol.PredicateProperty
		for _, st := range stmts {
			switch {
			case st.Rule != nil:
				rules = append(rules, *st.Rule)
			case st.Property != nil:
				props = append(props, *st.Property)
			case st.Problem != nil:
				logger.Warn("ignoring problem statement during compile",
					zap.String("problem", st.Problem.Name))
			}
		}
		if len(rules) == 0 {
			return inputError{errors.New("no rules to compile")}
		}

		base, err := kb.Compile(fol.NewPredicateLibrary(), rules, props, cfg.DistanceProvider)
		if err != nil {
			return err
		}
		if err := base.Save(kbPath); err != nil {
			return err
		}

		logger.Info("knowledge base compiled",
			zap.String("path", kbPath),
			zap.Int("axioms", base.AxiomCount()),
			zap.Int("properties", len(props)))
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %d axioms into %s\n", base.AxiomCount(), kbPath)
		return nil
	},
}
