package model

// ActionKind is one of the six action values the decision module can
// recommend for a process (Freeze is the ActionPause value and Throttle
// the ActionQuarantine value). The numeric value is also the reversibility
// tiebreak rank (spec §4.3): lower rank wins ties in expected loss.
type ActionKind int

const (
	ActionKeep ActionKind = iota
	ActionRenice
	ActionPause    // ≡ Freeze
	ActionQuarantine // ≡ Throttle
	ActionRestart
	ActionKill
)

func (a ActionKind) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionRenice:
		return "renice"
	case ActionPause:
		return "pause"
	case ActionQuarantine:
		return "quarantine"
	case ActionRestart:
		return "restart"
	case ActionKill:
		return "kill"
	default:
		return "unknown"
	}
}

// TieBreakRank returns the reversibility rank used to break ties in
// expected loss: Keep=0 < Renice=1 < Pause≡Freeze=2 <
// Quarantine≡Throttle=3 < Restart=4 < Kill=5 (spec §4.3, property 6).
// ActionKind's own integer value already encodes this order.
func (a ActionKind) TieBreakRank() int { return int(a) }

// AllActions lists the six action values in ascending tie-break rank.
// Quarantine/Throttle share rank 3 and are modelled as the single
// ActionQuarantine value in the loss matrix — callers that need the
// "Throttle" label for display alias it to ActionQuarantine.
func AllActions() []ActionKind {
	return []ActionKind{ActionKeep, ActionRenice, ActionPause, ActionQuarantine, ActionRestart, ActionKill}
}

// LossMatrix is a 4x6-shaped table indexed by (class, action) giving a
// non-negative scalar loss. A missing cell means the action is not
// defined for that class and is infeasible for it (spec §3).
type LossMatrix struct {
	cells map[ClassKind]map[ActionKind]float64
}

// NewLossMatrix builds an empty LossMatrix ready for Set calls.
func NewLossMatrix() *LossMatrix {
	return &LossMatrix{cells: make(map[ClassKind]map[ActionKind]float64)}
}

// Set records the loss for (class, action). Loss must be >= 0.
func (m *LossMatrix) Set(c ClassKind, a ActionKind, loss float64) {
	if m.cells[c] == nil {
		m.cells[c] = make(map[ActionKind]float64)
	}
	m.cells[c][a] = loss
}

// Get returns the loss for (class, action) and whether the cell is
// defined (i.e. the action is feasible for that class).
func (m *LossMatrix) Get(c ClassKind, a ActionKind) (float64, bool) {
	row, ok := m.cells[c]
	if !ok {
		return 0, false
	}
	v, ok := row[a]
	return v, ok
}

// FeasibleActions returns the actions defined for every class in
// classes (i.e. feasible across the whole set), in AllActions order.
func (m *LossMatrix) FeasibleActions(classes []ClassKind) []ActionKind {
	var out []ActionKind
	for _, a := range AllActions() {
		feasible := true
		for _, c := range classes {
			if _, ok := m.Get(c, a); !ok {
				feasible = false
				break
			}
		}
		if feasible {
			out = append(out, a)
		}
	}
	return out
}

// LipschitzConstant returns max(L[·,a]) − min(L[·,a]) over the classes
// given, used as the Wasserstein-1 Lipschitz bound in the DRO gate
// (spec §8 property 5). Classes with no defined cell for a are
// skipped.
func (m *LossMatrix) LipschitzConstant(a ActionKind, classes []ClassKind) float64 {
	var (
		have     bool
		min, max float64
	)
	for _, c := range classes {
		v, ok := m.Get(c, a)
		if !ok {
			continue
		}
		if !have {
			min, max, have = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if !have {
		return 0
	}
	return max - min
}

// DefaultLossMatrix returns an out-of-the-box policy loss table: Keep
// is free for Useful and increasingly costly down to Zombie, Kill is
// the mirror image, and the intermediate actions interpolate in
// reversibility order. An operator overriding this with a
// domain-specific matrix (loaded from the pattern/priors store, not
// daemon config) should expect this default only for a fresh install
// with no learned history yet.
func DefaultLossMatrix() *LossMatrix {
	lm := NewLossMatrix()
	table := map[ClassKind]map[ActionKind]float64{
		ClassUseful: {
			ActionKeep: 0, ActionRenice: 0.5, ActionPause: 3, ActionQuarantine: 4, ActionRestart: 6, ActionKill: 10,
		},
		ClassUsefulBad: {
			ActionKeep: 3, ActionRenice: 1, ActionPause: 1.5, ActionQuarantine: 0.5, ActionRestart: 2, ActionKill: 4,
		},
		ClassAbandoned: {
			ActionKeep: 4, ActionRenice: 3, ActionPause: 1, ActionQuarantine: 1, ActionRestart: 0.5, ActionKill: 0.5,
		},
		ClassZombie: {
			ActionKeep: 10, ActionRenice: 9, ActionPause: 6, ActionQuarantine: 6, ActionRestart: 2, ActionKill: 0,
		},
	}
	for class, row := range table {
		for action, loss := range row {
			lm.Set(class, action, loss)
		}
	}
	return lm
}

// FDRMethod is the multiple-testing correction method applied across
// eligible martingale-gate candidates.
type FDRMethod int

const (
	FDRNone FDRMethod = iota
	FDRBenjaminiHochberg
	FDRBenjaminiYekutieli
	FDRAlphaInvesting
)

func (m FDRMethod) String() string {
	switch m {
	case FDRBenjaminiHochberg:
		return "bh"
	case FDRBenjaminiYekutieli:
		return "by"
	case FDRAlphaInvesting:
		return "alpha_investing"
	default:
		return "none"
	}
}

// DROConfig bounds the distributionally-robust-optimisation gate.
type DROConfig struct {
	BaseEpsilon float64
	MaxEpsilon  float64
}

// Guardrails caps the decision module's autonomy, independent of the
// loss matrix: actions above MaxAutonomousRank require external
// (operator) approval regardless of expected loss.
type Guardrails struct {
	MaxAutonomousRank int // ActionKind.TieBreakRank() ceiling for auto-execution
}

// Policy bundles everything the decision module needs beyond the
// per-target posterior: the loss matrix, FDR configuration, DRO
// bounds, robust-Bayes tempering, and guardrails (spec §3).
type Policy struct {
	Loss *LossMatrix

	FDRMethod      FDRMethod
	FDRAlpha       float64
	FDRMinCandidates int

	DRO        DROConfig
	RobustEta  float64
	Guardrails Guardrails
}
