package signature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/octoreflex/proctriage/internal/model"
)

// Specificity is the candidate pattern tightness generated from a
// user decision on a live process.
type Specificity int

const (
	SpecificityExact Specificity = iota
	SpecificityStandard
	SpecificityBroad
)

func (s Specificity) String() string {
	switch s {
	case SpecificityExact:
		return "exact"
	case SpecificityStandard:
		return "standard"
	default:
		return "broad"
	}
}

// priorityOffset is added to the base learned-pattern priority (100)
// per specificity level, so Exact patterns are checked before Broad
// ones among learned patterns.
func (s Specificity) priorityOffset() int {
	switch s {
	case SpecificityExact:
		return 0
	case SpecificityStandard:
		return 10
	default:
		return 20
	}
}

const basePriority = 100

// Observation is one user decision (accept/reject a recommended
// action) against a live process, accumulated toward materialising a
// learned pattern.
type Observation struct {
	ProcessName string
	Cmdline     string
	Accepted    bool
}

// minObservations is the default number of accumulated observations
// required before a candidate pattern is materialised.
const minObservations = 3

var versionedInterpreter = regexp.MustCompile(`^(python|ruby|node|perl|php)\d+(\.\d+)*$`)

// normaliseName strips a path prefix and collapses versioned
// interpreter binaries (python3.11 → python.*) so observations for
// python3.9 and python3.11 accumulate against the same candidate.
func normaliseName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if versionedInterpreter.MatchString(name) {
		for _, prefix := range []string{"python", "ruby", "node", "perl", "php"} {
			if strings.HasPrefix(name, prefix) {
				return prefix + ".*"
			}
		}
	}
	return name
}

// Accumulator tracks per-process-name observations until enough
// evidence exists to materialise a candidate pattern.
type Accumulator struct {
	byName map[string][]Observation
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{byName: make(map[string][]Observation)}
}

// Record adds an observation, keyed by its normalised process name.
func (a *Accumulator) Record(obs Observation) {
	key := normaliseName(obs.ProcessName)
	a.byName[key] = append(a.byName[key], obs)
}

// consistency returns the fraction of observations for name that agree
// with the majority decision (accept vs reject), the signal used to
// pick a specificity level: a process name whose observations are
// consistently accepted (or consistently rejected) supports a tighter
// pattern than one with mixed decisions.
func consistency(obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	accepted := 0
	for _, o := range obs {
		if o.Accepted {
			accepted++
		}
	}
	rejected := len(obs) - accepted
	majority := accepted
	if rejected > majority {
		majority = rejected
	}
	return float64(majority) / float64(len(obs))
}

func specificityFromConsistency(c float64) Specificity {
	switch {
	case c >= 0.95:
		return SpecificityExact
	case c >= 0.80:
		return SpecificityStandard
	default:
		return SpecificityBroad
	}
}

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	portPattern   = regexp.MustCompile(`:\d{2,5}\b`)
	pathPattern   = regexp.MustCompile(`/[\w./\-]+`)
	longIntPattern = regexp.MustCompile(`\b\d{4,}\b`)
)

// generalise replaces volatile substrings (paths, ports, UUIDs, long
// integers) with wildcards, the Standard specificity level.
func generalise(cmdline string) string {
	out := uuidPattern.ReplaceAllString(cmdline, `[0-9a-fA-F-]+`)
	out = portPattern.ReplaceAllStringFunc(out, func(m string) string { return ":\\d+" })
	out = longIntPattern.ReplaceAllString(out, `\d+`)
	out = pathPattern.ReplaceAllStringFunc(out, func(m string) string { return `[\w./\-]+` })
	return out
}

// MaterialiseCandidate builds a learned pattern for name from its
// accumulated observations, at the specificity (Exact, Standard or
// Broad) their consistency supports, or ok=false if fewer than
// minObservations exist yet.
func (a *Accumulator) MaterialiseCandidate(name string) (model.PersistedPattern, bool) {
	key := normaliseName(name)
	obs := a.byName[key]
	if len(obs) < minObservations {
		return model.PersistedPattern{}, false
	}

	spec := specificityFromConsistency(consistency(obs))
	commPattern := regexp.QuoteMeta(key)

	var cmdPatterns []string
	switch spec {
	case SpecificityExact:
		cmdPatterns = []string{regexp.QuoteMeta(obs[len(obs)-1].Cmdline)}
	case SpecificityStandard:
		cmdPatterns = []string{generalise(obs[len(obs)-1].Cmdline)}
	default:
		fields := strings.Fields(obs[len(obs)-1].Cmdline)
		if len(fields) > 0 {
			cmdPatterns = []string{regexp.QuoteMeta(fields[0])}
		}
	}

	confidence := 0.5 + 0.1*minFloat(float64(len(obs)), 5)

	sig := model.SupervisorSignature{
		Name:             fmt.Sprintf("learned:%s", key),
		Category:         categoryFromName(key),
		Patterns:         model.SignaturePatterns{Comm: []string{commPattern}, Cmd: cmdPatterns},
		Priority:         basePriority + spec.priorityOffset(),
		ConfidenceWeight: confidence,
	}

	return model.PersistedPattern{
		Signature: sig,
		Source:    model.SourceLearned,
		Lifecycle: model.LifecycleNew,
		Stats:     model.PatternStats{MatchCount: len(obs)},
		Version:   1,
	}, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// categoryFromName infers a SignatureCategory from keywords in a
// normalised process name. Falls back to CategoryOther.
func categoryFromName(name string) model.SignatureCategory {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "agent") || strings.Contains(lower, "claude") || strings.Contains(lower, "copilot"):
		return model.CategoryAgent
	case strings.Contains(lower, "code") || strings.Contains(lower, "idea") || strings.Contains(lower, "vim") || strings.Contains(lower, "emacs"):
		return model.CategoryIDE
	case strings.Contains(lower, "jenkins") || strings.Contains(lower, "runner") || strings.Contains(lower, "ci"):
		return model.CategoryCI
	case strings.Contains(lower, "supervisor") || strings.Contains(lower, "systemd") || strings.Contains(lower, "orchestrat"):
		return model.CategoryOrchestrator
	case strings.Contains(lower, "bash") || strings.Contains(lower, "zsh") || strings.Contains(lower, "tmux") || strings.Contains(lower, "sh"):
		return model.CategoryTerminal
	default:
		return model.CategoryOther
	}
}
