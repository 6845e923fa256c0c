// Command dexopt is a small demonstration driver for the peephole
// optimizer: it builds a handful of canned IRCode fixtures through the
// internal/ir fluent builder API, runs them through peephole.Optimize
// against a mock register allocator, and prints the before/after CFG dump
// so the effect of each phase can be eyeballed directly.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dexopt/peephole/internal/ir"
	"github.com/dexopt/peephole/internal/peephole"
	"github.com/dexopt/peephole/internal/regalloc"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		fixtureName string
		debug       bool
		jsonLogs    bool
	)

	root := &cobra.Command{
		Use:   "dexopt",
		Short: "Run the post-register-allocation peephole optimizer over a canned fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonLogs {
				log.SetFormatter(&logrus.JSONFormatter{})
			}
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			return runFixture(fixtureName, debug)
		},
	}

	flags := root.Flags()
	flags.StringVar(&fixtureName, "fixture", "identical-predecessors", "which canned fixture to run (identical-predecessors, redundant-move, prefix-share, suffix-share)")
	flags.BoolVar(&debug, "debug", false, "run the optimizer in debug mode (positions must match exactly before merging)")
	flags.BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")

	root.AddCommand(newListCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range fixtureNames() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func runFixture(name string, debug bool) error {
	build, ok := fixtures[name]
	if !ok {
		return errors.Errorf("unknown fixture %q (see 'dexopt list')", name)
	}

	logger := log.WithField("fixture", name)
	logger.Info("building fixture")

	code, alloc, methodID := build(regalloc.Options{Debug: debug})

	fmt.Println("=== before ===")
	fmt.Print(code.Dump())

	if err := optimizeSafely(code, alloc, methodID); err != nil {
		logger.WithError(err).Error("optimization failed")
		return err
	}

	fmt.Println("=== after ===")
	fmt.Print(code.Dump())
	logger.Info("optimization complete")
	return nil
}

// optimizeSafely wraps peephole.Optimize, which panics on an internal
// invariant violation (spec §7: a precondition failure here is a
// programmer error, not a recoverable runtime condition) and turns that
// panic into a wrapped error so the CLI can report it cleanly instead of
// crashing with a raw stack trace.
func optimizeSafely(code *ir.IRCode, alloc regalloc.Allocator, methodID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("peephole optimizer panicked on %s: %v", methodID, r)
		}
	}()
	peephole.Optimize(code, alloc, methodID)
	return nil
}
