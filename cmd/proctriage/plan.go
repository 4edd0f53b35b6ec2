package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/decision"
	"github.com/octoreflex/proctriage/internal/evidence"
	"github.com/octoreflex/proctriage/internal/inference"
	"github.com/octoreflex/proctriage/internal/model"
	"github.com/octoreflex/proctriage/internal/plan"
	"github.com/octoreflex/proctriage/internal/priorsfile"
	"github.com/octoreflex/proctriage/internal/replay"
)

var (
	planSnapshotPath string
	planStagePause   bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Classify every observed process and build an execution plan",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planSnapshotPath, "snapshot", "", "replay a recorded snapshot instead of scanning this host")
	planCmd.Flags().BoolVar(&planStagePause, "stage-pause-before-kill", true, "precede every Kill action with a Pause")
	rootCmd.AddCommand(planCmd)
}

// runPlan only ever runs the baseline loss-minimising rule (spec
// §4.3's nominal action) plus the guardrail rank cap. The
// sequential-history gates — VOI, bandit arm selection, the
// martingale spend ledger, and the DRO robustness gate's drift/PPC
// triggers — all need state that accumulates across cycles, which a
// one-shot CLI invocation doesn't have anywhere to keep; a long-running
// daemon loop is where that state belongs, driving the same
// decision.Baseline this command calls directly.
func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	priors, err := priorsfile.Load(cfg.Storage.PriorsPath)
	if err != nil {
		return fmt.Errorf("loading priors from %s: %w", cfg.Storage.PriorsPath, err)
	}
	policy := policyFromConfig(cfg)

	records, err := gatherRecords()
	if err != nil {
		return err
	}

	candidates, err := decideAll(records, priors, policy)
	if err != nil {
		return err
	}

	p := plan.Generate(candidates, plan.Config{StagePauseBeforeKill: planStagePause})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// gatherRecords returns the process set to plan over, either by
// replaying a recorded snapshot (--snapshot) or by reading a fresh
// quick_scan of this host. Unlike the scan subcommand this does not
// need delta classification or deep-scan enrichment — the decision
// pipeline below works directly off evidence.Build's shallow features.
func gatherRecords() ([]model.ProcessRecord, error) {
	if planSnapshotPath != "" {
		snap, err := replay.Load(planSnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot %s: %w", planSnapshotPath, err)
		}
		return snap.ToScanResult().Processes, nil
	}

	result, err := collect.NewProcScanner().QuickScan()
	if err != nil {
		return nil, fmt.Errorf("quick scan: %w", err)
	}
	return result.Processes, nil
}

// decideAll runs evidence-build, posterior inference, and the
// baseline decision rule for every process, applying the guardrail
// rank cap as a Blocked flag rather than dropping the candidate —
// spec §4.4 wants a blocked action visible in the plan, not silently
// omitted.
func decideAll(records []model.ProcessRecord, priors model.Priors, policy model.Policy) ([]plan.Candidate, error) {
	classSlice := model.AllClasses()
	classes := classSlice[:]
	feasible := policy.Loss.FeasibleActions(classes)

	candidates := make([]plan.Candidate, 0, len(records))
	for _, rec := range records {
		ev := evidence.Build(rec, nil)

		posterior, err := inference.ComputePosterior(priors, ev)
		if err != nil {
			return nil, fmt.Errorf("inference for pid %d: %w", rec.PID, err)
		}

		action, _, err := decision.Baseline(posterior.Posterior, policy.Loss, classes, feasible)
		if err != nil {
			return nil, fmt.Errorf("decision for pid %d: %w", rec.PID, err)
		}

		blocked := action.TieBreakRank() > policy.Guardrails.MaxAutonomousRank

		candidates = append(candidates, plan.Candidate{
			Target:  model.ProcessIdentity{PID: rec.PID, StartID: rec.StartID},
			Action:  action,
			Blocked: blocked,
		})
	}
	return candidates, nil
}
