// Package executor runs a model.Plan against live processes through a
// staged, fail-closed protocol: identity is re-verified immediately
// before each action (never trusting the decision the plan was built
// from), live pre-checks gate Kill/Restart/Pause against data loss and
// supervisor conflicts, and the whole run holds a host-wide advisory
// lock so two triage runs never act on the same host concurrently.
package executor

import (
	"fmt"
	"time"

	"github.com/octoreflex/proctriage/internal/integrity"
	"github.com/octoreflex/proctriage/internal/model"
)

// ActionStatus is the terminal outcome of one PlanAction.
type ActionStatus int

const (
	StatusSuccess ActionStatus = iota
	StatusIdentityMismatch
	StatusPermissionDenied
	StatusTimeout
	StatusFailed
	StatusSkipped
	StatusPreCheckBlocked
	StatusIntegrityViolation
)

func (s ActionStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIdentityMismatch:
		return "identity_mismatch"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusTimeout:
		return "timeout"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusPreCheckBlocked:
		return "pre_check_blocked"
	case StatusIntegrityViolation:
		return "integrity_violation"
	default:
		return "unknown"
	}
}

// ActionError is returned by an ActionRunner when an action cannot be
// executed or verified.
type ActionError struct {
	Kind    ActionStatus
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func statusFromError(err error) ActionStatus {
	if actionErr, ok := err.(*ActionError); ok {
		return actionErr.Kind
	}
	return StatusFailed
}

// ActionRunner performs and verifies the OS-level effect of a
// PlanAction (sending a signal, writing a cgroup freeze, restarting a
// unit). Implementations are expected to be idempotent on Verify.
type ActionRunner interface {
	Execute(action model.PlanAction) error
	Verify(action model.PlanAction) error
}

// NoopActionRunner does nothing and always succeeds; used in tests and
// dry-run scaffolding.
type NoopActionRunner struct{}

func (NoopActionRunner) Execute(model.PlanAction) error { return nil }
func (NoopActionRunner) Verify(model.PlanAction) error  { return nil }

// IdentityProvider re-reads live process identity to catch PID reuse
// between plan generation and execution (TOCTOU).
type IdentityProvider interface {
	// Revalidate reports whether target still refers to the same OS
	// process (same pid, same StartID).
	Revalidate(target model.ProcessIdentity) (bool, error)
}

// StaticIdentityProvider is a fixed pid→identity map, for tests.
type StaticIdentityProvider struct {
	identities map[int]model.ProcessIdentity
}

// NewStaticIdentityProvider builds a StaticIdentityProvider from the
// given identities, keyed by pid.
func NewStaticIdentityProvider(identities ...model.ProcessIdentity) *StaticIdentityProvider {
	m := make(map[int]model.ProcessIdentity, len(identities))
	for _, id := range identities {
		m[id.PID] = id
	}
	return &StaticIdentityProvider{identities: m}
}

func (p *StaticIdentityProvider) Revalidate(target model.ProcessIdentity) (bool, error) {
	current, ok := p.identities[target.PID]
	if !ok {
		return false, nil
	}
	return current == target, nil
}

// PreCheckResult is the outcome of one live safety gate.
type PreCheckResult struct {
	Passed bool
	Check  model.PreCheck
	Reason string
}

// PreCheckProvider runs the live (TOCTOU-safe) safety gates a
// PlanAction's PreChecks name. VerifyIdentity is handled separately by
// IdentityProvider and is never passed to RunChecks.
type PreCheckProvider interface {
	CheckNotProtected(pid int) PreCheckResult
	CheckDataLossGate(pid int) PreCheckResult
	CheckSupervisor(pid int) PreCheckResult
	CheckSessionSafety(pid int) PreCheckResult

	// RunChecks evaluates every check in checks (skipping
	// CheckVerifyIdentity) and returns their results in order.
	RunChecks(checks model.PreCheckSet, pid int) []PreCheckResult
}

// ActionResult is the outcome and timing of one executed PlanAction.
type ActionResult struct {
	ActionID     string
	Status       ActionStatus
	TimeMS       int64
	BlockedCheck model.PreCheck
	Reason       string

	// DecisionHash is set when an integrity.Kernel validated this
	// action's DecisionContext; empty when no kernel is attached.
	DecisionHash string
}

// ExecutionSummary aggregates an ExecutionResult's outcomes.
type ExecutionSummary struct {
	ActionsAttempted int
	ActionsSucceeded int
	ActionsFailed    int
	ActionsSkipped   int
}

// ExecutionResult is the full record of one Plan's execution.
type ExecutionResult struct {
	Summary  ExecutionSummary
	Outcomes []ActionResult
}

// Executor runs a Plan under a host-wide advisory lock.
type Executor struct {
	runner           ActionRunner
	identityProvider IdentityProvider
	preCheckProvider PreCheckProvider
	lockPath         string
	integrity        *integrity.Kernel
}

// New builds an Executor. preCheckProvider may be nil, in which case
// only identity revalidation gates execution.
func New(runner ActionRunner, identityProvider IdentityProvider, preCheckProvider PreCheckProvider, lockPath string) *Executor {
	return &Executor{
		runner:           runner,
		identityProvider: identityProvider,
		preCheckProvider: preCheckProvider,
		lockPath:         lockPath,
	}
}

// WithIntegrityKernel attaches an integrity.Kernel that validates and
// hash-chains each action's DecisionContext immediately before it
// runs. Without one, executeAction skips straight to identity
// revalidation — integrity auditing is additive, not load-bearing for
// the staged protocol itself.
func (e *Executor) WithIntegrityKernel(k *integrity.Kernel) *Executor {
	e.integrity = k
	return e
}

// ExecutePlan acquires the host-wide lock, runs every action in order,
// and releases the lock on return.
func (e *Executor) ExecutePlan(plan model.Plan) (ExecutionResult, error) {
	lock, err := acquireLock(e.lockPath)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("executor: acquire lock: %w", err)
	}
	defer lock.release()

	var outcomes []ActionResult
	var succeeded, failed, skipped int

	for _, action := range plan.Actions {
		start := time.Now()
		result := e.executeAction(action)
		result.TimeMS = time.Since(start).Milliseconds()
		result.ActionID = action.ActionID

		switch result.Status {
		case StatusSuccess:
			succeeded++
		case StatusSkipped:
			skipped++
		default:
			failed++
		}
		outcomes = append(outcomes, result)
	}

	return ExecutionResult{
		Summary: ExecutionSummary{
			ActionsAttempted: len(plan.Actions),
			ActionsSucceeded: succeeded,
			ActionsFailed:    failed,
			ActionsSkipped:   skipped,
		},
		Outcomes: outcomes,
	}, nil
}

// executeAction runs the staged protocol for one action: blocked
// check, identity revalidation, live pre-checks (first Blocked stops
// the chain), execute, verify.
func (e *Executor) executeAction(action model.PlanAction) ActionResult {
	if action.Blocked {
		return ActionResult{Status: StatusSkipped}
	}

	var decisionHash string
	if e.integrity != nil {
		record := &integrity.DecisionRecord{
			ActionID:    action.ActionID,
			PID:         action.Target.PID,
			FromClass:   action.Decision.FromClass,
			ToAction:    action.ActionKind.String(),
			Posterior:   action.Decision.Posterior,
			DROEpsilon:  action.Decision.DROEpsilon,
			MartingaleP: action.Decision.MartingaleP,
			Timestamp:   time.Now(),
			Inputs:      action.Decision.Inputs,
		}
		if err := e.integrity.Validate(record); err != nil {
			return ActionResult{Status: StatusIntegrityViolation, Reason: err.Error()}
		}
		decisionHash = record.DecisionHash
	}

	if action.PreChecks.Has(model.CheckVerifyIdentity) {
		ok, err := e.identityProvider.Revalidate(action.Target)
		if err != nil || !ok {
			return ActionResult{Status: StatusIdentityMismatch}
		}
	}

	if e.preCheckProvider != nil {
		results := e.preCheckProvider.RunChecks(action.PreChecks, action.Target.PID)
		for _, r := range results {
			if !r.Passed {
				return ActionResult{Status: StatusPreCheckBlocked, BlockedCheck: r.Check, Reason: r.Reason}
			}
		}
	}

	if err := e.runner.Execute(action); err != nil {
		return ActionResult{Status: statusFromError(err), Reason: err.Error(), DecisionHash: decisionHash}
	}
	if err := e.runner.Verify(action); err != nil {
		return ActionResult{Status: statusFromError(err), Reason: err.Error(), DecisionHash: decisionHash}
	}

	return ActionResult{Status: StatusSuccess, DecisionHash: decisionHash}
}
