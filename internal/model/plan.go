package model

import "github.com/google/uuid"

// PreCheck is a gate function evaluated at execution time against live
// process state (TOCTOU-safe) — spec §3/§4.4.
type PreCheck int

const (
	CheckVerifyIdentity PreCheck = iota
	CheckNotProtected
	CheckDataLossGate
	CheckSupervisor
	CheckSessionSafety
)

func (c PreCheck) String() string {
	switch c {
	case CheckVerifyIdentity:
		return "verify_identity"
	case CheckNotProtected:
		return "check_not_protected"
	case CheckDataLossGate:
		return "check_data_loss_gate"
	case CheckSupervisor:
		return "check_supervisor"
	case CheckSessionSafety:
		return "check_session_safety"
	default:
		return "unknown"
	}
}

// PreCheckSet is a small ordered set of PreChecks; order is
// significant (spec §4.6 runs them in attachment order and stops at
// the first Blocked result).
type PreCheckSet []PreCheck

// Has reports whether s contains c.
func (s PreCheckSet) Has(c PreCheck) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

// Without returns a copy of s with c removed (used for the staged
// Pause-before-Kill action, which drops CheckDataLossGate — spec
// §4.4).
func (s PreCheckSet) Without(c PreCheck) PreCheckSet {
	out := make(PreCheckSet, 0, len(s))
	for _, x := range s {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}

// PlanAction is one step of an executable Plan.
type PlanAction struct {
	ActionID   string
	Target     ProcessIdentity
	ActionKind ActionKind
	PreChecks  PreCheckSet
	Blocked    bool

	// StagePauseBeforeKill, when true, means this Kill action is
	// preceded by a Pause action on the same target sharing pre-checks
	// minus CheckDataLossGate (spec §4.4).
	StagePauseBeforeKill bool

	// Decision carries the statistical basis the decision module
	// reached this action from. It is opaque to the executor's own
	// staged protocol and exists purely so the integrity layer can
	// audit and hash-chain it immediately before the action runs.
	Decision DecisionContext
}

// DecisionContext is the subset of a decision-module run worth
// recording against a PlanAction for audit purposes: the posterior
// mass behind the winning class, the DRO epsilon used to derive the
// minimax action, and the martingale p-value that triggered a stop (1
// when no sequential test ran for this target).
type DecisionContext struct {
	FromClass   string
	Posterior   float64
	DROEpsilon  float64
	MartingaleP float64
	Inputs      map[string]any
}

// NewPlanAction allocates a PlanAction with a fresh action id.
func NewPlanAction(target ProcessIdentity, kind ActionKind) PlanAction {
	return PlanAction{
		ActionID:   uuid.NewString(),
		Target:     target,
		ActionKind: kind,
	}
}

// Plan is an ordered list of PlanActions, sorted by target pid; actions
// on the same pid keep the order the plan generator emitted them in
// (a staged Pause before its Kill). The action id is not a sort key.
type Plan struct {
	Actions []PlanAction
}
