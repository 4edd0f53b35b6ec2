// Package main — cmd/proctriage/main.go
//
// proctriage is the thin CLI wrapper around the process triage core:
// flag parsing, file I/O, and process lifecycle live here; the
// collection, inference, decision, planning, execution, and signature
// logic all live in internal/. Every subcommand below does nothing
// more than wire config + a handful of internal/ constructors
// together and print the result — none of it is load-bearing for
// correctness, which is why none of it is covered by the spec this
// core implements.
//
// Subcommands:
//
//	scan     — run one incremental collection cycle, print the delta summary
//	plan     — classify every process and build an execution plan
//	execute  — run a previously generated plan through the staged protocol
//	replay   — deterministically re-run inference/decision over a snapshot
//	update   — install or roll back a signed daemon binary
//	patterns — inspect, import, and report on the signature library
//
// Exit codes: 0 clean, 2 argument error, 1 everything else — the core
// itself only ever returns typed errors; this package is where they
// get mapped to a process exit status.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "proctriage",
	Short:   "Bayesian process triage engine",
	Version: version,
	Long: `proctriage observes the processes running on a Linux host, infers a
latent class for each — useful, useful-but-bad, abandoned, or zombie —
recommends a reversible action under a loss-minimising decision rule,
and, when told to, executes that action through a staged protocol with
identity revalidation, pre-check gates, and rollback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/proctriage/config.yaml", "path to config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "proctriage:", err)
		os.Exit(exitCodeFor(err))
	}
}

// ArgError marks an error originating from argument validation rather
// than from core logic, so exitCodeFor can map it to exit code 2
// (spec §6) instead of the generic 1.
type ArgError struct{ Err error }

func (e *ArgError) Error() string { return e.Err.Error() }
func (e *ArgError) Unwrap() error { return e.Err }

func exitCodeFor(err error) int {
	var argErr *ArgError
	if errors.As(err, &argErr) {
		return 2
	}
	return 1
}
