package model

import "time"

// SignatureCategory classifies what kind of process a supervisor
// signature describes.
type SignatureCategory int

const (
	CategoryOther SignatureCategory = iota
	CategoryAgent
	CategoryIDE
	CategoryCI
	CategoryOrchestrator
	CategoryTerminal
)

func (c SignatureCategory) String() string {
	switch c {
	case CategoryAgent:
		return "agent"
	case CategoryIDE:
		return "ide"
	case CategoryCI:
		return "ci"
	case CategoryOrchestrator:
		return "orchestrator"
	case CategoryTerminal:
		return "terminal"
	default:
		return "other"
	}
}

// SignaturePatterns groups the regex lists a pattern may match a
// process against. A non-empty group must have at least one match for
// the field it governs; empty groups are skipped entirely (spec
// §4.5).
type SignaturePatterns struct {
	Comm       []string
	Cmd        []string
	Env        []string
	Cwd        []string
	Socket     []string
	ParentComm []string
}

// SupervisorSignature describes a known process family. Patterns are
// compiled once and are immutable thereafter.
type SupervisorSignature struct {
	Name             string
	Category         SignatureCategory
	Patterns         SignaturePatterns
	Priority         int // lower = checked first
	ConfidenceWeight float64

	// PriorsOverride holds optional per-signature Bayesian priors for
	// processes it matches (e.g. a known CI runner with a lower
	// "abandoned" prior). Nil means "use the global defaults". The
	// matcher and the inference core do not read it, and a signature
	// has no override for evidence expectations.
	PriorsOverride *Priors
}

// PatternSource records where a persisted pattern originated.
type PatternSource int

const (
	SourceBuiltIn PatternSource = iota
	SourceLearned
	SourceCustom
	SourceCommunity
	SourceImported
)

func (s PatternSource) String() string {
	switch s {
	case SourceLearned:
		return "learned"
	case SourceCustom:
		return "custom"
	case SourceCommunity:
		return "community"
	case SourceImported:
		return "imported"
	default:
		return "built_in"
	}
}

// PatternLifecycle is the coarse lifecycle state of a learned pattern
// (spec §3).
type PatternLifecycle int

const (
	LifecycleNew PatternLifecycle = iota
	LifecycleLearning
	LifecycleStable
	LifecycleDeprecated
	LifecycleRemoved
)

func (l PatternLifecycle) String() string {
	switch l {
	case LifecycleLearning:
		return "learning"
	case LifecycleStable:
		return "stable"
	case LifecycleDeprecated:
		return "deprecated"
	case LifecycleRemoved:
		return "removed"
	default:
		return "new"
	}
}

// CanTransitionTo enforces the forward-stepwise lifecycle graph from
// spec §3: New→Learning→Stable→Deprecated→Removed, with Deprecated
// able to reactivate back to New/Learning/Stable. Removed is
// absorbing.
func (l PatternLifecycle) CanTransitionTo(target PatternLifecycle) bool {
	if l == LifecycleRemoved {
		return false
	}
	if l == target {
		return false // a transition always changes state
	}
	switch l {
	case LifecycleNew:
		return target == LifecycleLearning
	case LifecycleLearning:
		return target == LifecycleStable
	case LifecycleStable:
		return target == LifecycleDeprecated
	case LifecycleDeprecated:
		return target == LifecycleNew || target == LifecycleLearning ||
			target == LifecycleStable || target == LifecycleRemoved
	default:
		return false
	}
}

// PatternStats holds the learning statistics kept per pattern.
type PatternStats struct {
	MatchCount  int
	AcceptCount int
	RejectCount int
	FirstSeen   time.Time
	LastMatch   time.Time
}

// Confidence returns the Laplace-smoothed acceptance confidence
// (accept+1)/(total+2), spec §4.5.
func (s PatternStats) Confidence() float64 {
	total := s.AcceptCount + s.RejectCount
	return float64(s.AcceptCount+1) / float64(total+2)
}

// LifecycleFromStats computes the suggested lifecycle for a pattern
// given its current confidence and match count (spec §4.5 /
// property 18): Stable requires confidence >= 0.8 AND match_count >=
// 10; otherwise Learning once any observation exists, else New.
func LifecycleFromStats(confidence float64, matchCount int) PatternLifecycle {
	if confidence >= 0.8 && matchCount >= 10 {
		return LifecycleStable
	}
	if matchCount > 0 {
		return LifecycleLearning
	}
	return LifecycleNew
}

// PersistedPattern is a SupervisorSignature plus its lifecycle
// bookkeeping, as stored on disk (spec §3/§4.5).
type PersistedPattern struct {
	Signature SupervisorSignature
	Source    PatternSource
	Lifecycle PatternLifecycle
	Stats     PatternStats
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
