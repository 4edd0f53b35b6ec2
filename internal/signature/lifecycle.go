package signature

import "github.com/octoreflex/proctriage/internal/model"

// UpdateLifecycles recomputes the suggested lifecycle for every
// non-built-in pattern from its current stats and applies the
// transition only when PatternLifecycle.CanTransitionTo permits it.
// Built-in patterns are immutable and skipped. Returns the updated
// slice; callers persist it via Store.SaveLearned/SaveCustom.
func UpdateLifecycles(patterns []model.PersistedPattern) []model.PersistedPattern {
	out := make([]model.PersistedPattern, len(patterns))
	for i, p := range patterns {
		out[i] = p
		if p.Source == model.SourceBuiltIn {
			continue
		}
		suggested := model.LifecycleFromStats(p.Stats.Confidence(), p.Stats.MatchCount)
		if p.Lifecycle.CanTransitionTo(suggested) {
			out[i].Lifecycle = suggested
		}
	}
	return out
}
