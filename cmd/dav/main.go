// Package main implements the dav CLI, a weighted abductive reasoner.
//
// Modes:
//   - compile (c): compile rule/property files into a knowledge base
//   - infer   (i): run abductive inference over problem files
//   - learn   (l): run inference and feed the training hook
//
// Command implementations live in cmd_*.go files; this file holds the
// root command, global flags, and process wiring.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dav/internal/config"
	"dav/internal/logging"
	"dav/internal/parse"
)

// Exit codes.
const (
	exitOK       = 0
	exitUsage    = 1
	exitInput    = 2
	exitInternal = 3
)

var (
	kbPath     string
	timeout    time.Duration
	parallel   int
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

// inputError wraps failures caused by user-provided files.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:           "dav",
	Short:         "dav - weighted abductive reasoning engine",
	Long: `dav finds minimum-cost explanations: given a compiled knowledge base of
weighted implication rules and a set of observations, it hypothesizes the
cheapest set of literals, unifications, and rule applications entailing
what was observed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("timeout") || timeout > 0 {
			cfg.Timeout = timeout
		}
		if cmd.Flags().Changed("parallel") {
			cfg.Parallel = parallel
		}
		if verbose {
			cfg.Debug = true
			cfg.LogLevel = "debug"
		}

		ws, _ := os.Getwd()
		if err := logging.Initialize(ws, cfg.Debug, cfg.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&kbPath, "kb", "k", "./compiled", "Path of the compiled knowledge base")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "T", 0, "Per-problem timeout (0 = none)")
	rootCmd.PersistentFlags().IntVarP(&parallel, "parallel", "P", 1, "Worker pool size")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "dav.yaml", "Configuration file")

	rootCmd.AddCommand(compileCmd, inferCmd, learnCmd)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
}

// parseInputs reads every statement of every input file, continuing past
// per-statement errors (the parser resynchronizes at the next top-level
// keyword) and past unreadable files.
func parseInputs(paths []string) ([]*parse.Statement, error) {
	if len(paths) == 0 {
		return nil, inputError{errors.New("no input files")}
	}
	var stmts []*parse.Statement
	var firstErr error
	for _, path := range paths {
		p, err := parse.Open(path)
		if err != nil {
			logger.Error("cannot open input", zap.String("path", path), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		got, errs := p.ParseAll()
		for _, perr := range errs {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, perr)
			if firstErr == nil {
				firstErr = perr
			}
		}
		stmts = append(stmts, got...)
	}
	if len(stmts) == 0 && firstErr != nil {
		return nil, inputError{firstErr}
	}
	return stmts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dav: %v\n", err)
		var ie inputError
		var pe *parse.Error
		switch {
		case errors.As(err, &ie), errors.As(err, &pe):
			os.Exit(exitInput)
		case errors.Is(err, errUsage),
			strings.HasPrefix(err.Error(), "unknown command"):
			os.Exit(exitUsage)
		default:
			os.Exit(exitInternal)
		}
	}
	os.Exit(exitOK)
}

// errUsage marks command-line misuse.
var errUsage = errors.New("usage error")
