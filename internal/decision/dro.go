package decision

import "github.com/octoreflex/proctriage/internal/model"

// DROTrigger names the reasons the robust gate can fire (spec §4.3:
// "PPC failure, drift detected, η-tempering reduced, explicit
// conservative flag, or low model confidence").
type DROTrigger struct {
	PPCFailure            bool
	DriftDetected         bool
	DriftWassersteinScore float64 // W, used in the drift multiplier
	EtaTemperingReduced   bool
	ExplicitConservative  bool
	LowModelConfidence    bool
}

// Fired reports whether any trigger condition holds.
func (t DROTrigger) Fired() bool {
	return t.PPCFailure || t.DriftDetected || t.EtaTemperingReduced || t.ExplicitConservative || t.LowModelConfidence
}

// AdaptiveEpsilon computes ε = base_ε · ∏ multiplier_i, capped at
// max_ε, applying only the multipliers whose trigger condition holds
// (spec §4.3: PPC×1.5, drift×(1+min(W,1)), eta×1.2, low-confidence×1.4).
func AdaptiveEpsilon(trigger DROTrigger, cfg model.DROConfig) float64 {
	eps := cfg.BaseEpsilon
	if trigger.PPCFailure {
		eps *= 1.5
	}
	if trigger.DriftDetected {
		w := trigger.DriftWassersteinScore
		if w > 1 {
			w = 1
		}
		eps *= 1 + w
	}
	if trigger.EtaTemperingReduced {
		eps *= 1.2
	}
	if trigger.LowModelConfidence {
		eps *= 1.4
	}
	if eps > cfg.MaxEpsilon {
		eps = cfg.MaxEpsilon
	}
	return eps
}

// RobustResult is the DRO gate's output.
type RobustResult struct {
	Action        model.ActionKind
	ActionChanged bool
	Epsilon       float64
	RobustLoss    map[model.ActionKind]float64
	Rationale     string
}

// ApplyDROGate re-optimises the action selection under a Wasserstein-1
// robustness ball of radius ε around the nominal posterior, per
// action: robust_loss(a) = E[L(a)] + ε·(Lmax(a) − Lmin(a)).
//
// If the trigger does not fire, the nominal action is returned
// unchanged with ActionChanged=false.
func ApplyDROGate(nominalAction model.ActionKind, expected map[model.ActionKind]float64, posterior model.BeliefState, policy model.Policy, trigger DROTrigger, classes []model.ClassKind, feasible []model.ActionKind) RobustResult {
	if !trigger.Fired() {
		return RobustResult{Action: nominalAction, ActionChanged: false, Rationale: "no trigger fired"}
	}

	eps := AdaptiveEpsilon(trigger, policy.DRO)
	robust := make(map[model.ActionKind]float64, len(feasible))
	for _, a := range feasible {
		lipschitz := policy.Loss.LipschitzConstant(a, classes)
		robust[a] = expected[a] + eps*lipschitz
	}

	newAction := argminWithTiebreak(feasible, robust)
	return RobustResult{
		Action:        newAction,
		ActionChanged: newAction != nominalAction,
		Epsilon:       eps,
		RobustLoss:    robust,
		Rationale:     robustRationale(trigger),
	}
}

func robustRationale(t DROTrigger) string {
	switch {
	case t.ExplicitConservative:
		return "explicit conservative flag set"
	case t.PPCFailure:
		return "posterior predictive check failed"
	case t.DriftDetected:
		return "drift membrane flagged regime change"
	case t.EtaTemperingReduced:
		return "robust-Bayes eta tempering reduced"
	case t.LowModelConfidence:
		return "low model confidence"
	default:
		return ""
	}
}
