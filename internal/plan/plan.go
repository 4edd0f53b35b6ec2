// Package plan turns a decision bundle — one recommended action per
// target process — into a deterministically ordered, executor-ready
// Plan with pre-checks attached per spec §4.4 (component C5).
package plan

import (
	"sort"

	"github.com/octoreflex/proctriage/internal/model"
)

// Candidate is one target's decision-module output: the recommended
// action and whether the decision module has already vetoed execution
// (e.g. a DRO/martingale gate failure) independent of the executor's
// own live pre-checks.
type Candidate struct {
	Target  model.ProcessIdentity
	Action  model.ActionKind
	Blocked bool
}

// Config controls plan-generation behaviour that is not a per-action
// decision, per spec §4.4.
type Config struct {
	// StagePauseBeforeKill, when true, precedes every Kill action with
	// a Pause action on the same target sharing pre-checks minus
	// CheckDataLossGate.
	StagePauseBeforeKill bool
}

// Generate builds a deterministically ordered Plan from a set of
// decision candidates.
//
// Candidates whose Action is ActionKeep are not emitted as
// PlanActions: Keep is a no-op with nothing for the executor to do. A
// candidate already carrying Blocked=true is still emitted, with
// Blocked threaded through so the executor can skip it without
// running checks — blocking is itself an outcome worth a plan entry
// and an audit record.
func Generate(candidates []Candidate, cfg Config) model.Plan {
	var actions []model.PlanAction

	for _, c := range candidates {
		if c.Action == model.ActionKeep {
			continue
		}

		if cfg.StagePauseBeforeKill && c.Action == model.ActionKill {
			pause := model.NewPlanAction(c.Target, model.ActionPause)
			pause.PreChecks = preChecksFor(model.ActionPause).Without(model.CheckDataLossGate)
			pause.Blocked = c.Blocked
			actions = append(actions, pause)
		}

		action := model.NewPlanAction(c.Target, c.Action)
		action.PreChecks = preChecksFor(c.Action)
		action.Blocked = c.Blocked
		action.StagePauseBeforeKill = cfg.StagePauseBeforeKill && c.Action == model.ActionKill
		actions = append(actions, action)
	}

	sortActions(actions)
	return model.Plan{Actions: actions}
}

// preChecksFor attaches the pre-check set spec §4.4 names per action
// kind: identity verification on every action that touches a
// specific process, plus the Kill/Restart-specific gates, plus the
// Kill-only supervisor check.
func preChecksFor(action model.ActionKind) model.PreCheckSet {
	checks := model.PreCheckSet{model.CheckVerifyIdentity}
	switch action {
	case model.ActionKill, model.ActionRestart:
		checks = append(checks, model.CheckNotProtected, model.CheckDataLossGate, model.CheckSessionSafety)
		if action == model.ActionKill {
			checks = append(checks, model.CheckSupervisor)
		}
	}
	return checks
}

// sortActions orders a plan's actions by target pid ascending. Ties
// (multiple actions against the same pid — a staged Pause and its
// paired Kill) preserve append order rather than sorting on the
// action id itself, since the id is a random UUID and not a
// meaningful secondary key.
func sortActions(actions []model.PlanAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Target.PID < actions[j].Target.PID
	})
}
