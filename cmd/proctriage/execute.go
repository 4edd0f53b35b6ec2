package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/executor"
	"github.com/octoreflex/proctriage/internal/integrity"
	"github.com/octoreflex/proctriage/internal/model"
)

var (
	executePlanPath string
	executeStrict   bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run a plan (from a file, or stdin with -) through the staged execution protocol",
	Args:  cobra.NoArgs,
	RunE:  runExecute,
}

func init() {
	executeCmd.Flags().StringVar(&executePlanPath, "plan", "-", "plan JSON file, or - for stdin")
	executeCmd.Flags().BoolVar(&executeStrict, "strict-integrity", false, "panic instead of rejecting on an integrity violation")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	p, err := readPlan(executePlanPath)
	if err != nil {
		return err
	}

	// Re-verifying identity against a scan taken at execute time (not
	// the scan the plan was built from) is the whole point of
	// IdentityProvider: a pid that changed start_id between plan and
	// execute is a different process and must not be acted on.
	live, err := collect.NewProcScanner().QuickScan()
	if err != nil {
		return fmt.Errorf("identity re-scan: %w", err)
	}
	identities := make([]model.ProcessIdentity, 0, len(live.Processes))
	for _, rec := range live.Processes {
		identities = append(identities, model.ProcessIdentity{PID: rec.PID, StartID: rec.StartID})
	}
	identityProvider := executor.NewStaticIdentityProvider(identities...)

	preChecks := executor.NewLivePreCheckProvider(nil, nil, executor.DefaultLivePreCheckConfig())

	exec := executor.New(executor.NewLiveActionRunner(log), identityProvider, preChecks, cfg.Executor.LockPath)
	exec = exec.WithIntegrityKernel(integrity.NewKernel(integrity.DefaultBounds(), log, executeStrict))

	result, err := exec.ExecutePlan(p)
	if err != nil {
		return fmt.Errorf("execute plan: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Summary.ActionsFailed > 0 {
		return fmt.Errorf("execute: %d of %d actions did not succeed", result.Summary.ActionsFailed, result.Summary.ActionsAttempted)
	}
	return nil
}

func readPlan(path string) (model.Plan, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return model.Plan{}, &ArgError{Err: fmt.Errorf("opening plan %s: %w", path, err)}
		}
		defer f.Close()
		r = f
	}

	var p model.Plan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return model.Plan{}, &ArgError{Err: fmt.Errorf("decoding plan: %w", err)}
	}
	return p, nil
}
