// Package decision turns a class posterior into a recommended action:
// baseline expected-loss minimisation with a reversibility tiebreak, a
// distributionally-robust gate for low-confidence or drifting
// situations, a value-of-information probe selector, a contextual
// bandit fallback, and anytime-valid martingale gates for
// high-confidence autonomous action (spec §4.3, component C4).
package decision

import (
	"math"

	"github.com/octoreflex/proctriage/internal/model"
)

// Baseline computes E_posterior[L(a,class)] for every feasible action
// and returns the argmin, breaking ties by reversibility rank (lower
// wins). feasible must be non-empty; classes is the posterior's
// four-class domain.
func Baseline(posterior model.BeliefState, loss *model.LossMatrix, classes []model.ClassKind, feasible []model.ActionKind) (model.ActionKind, map[model.ActionKind]float64, error) {
	if len(feasible) == 0 {
		return 0, nil, errNoFeasibleActions
	}

	scores := posterior.Scores()
	expected := make(map[model.ActionKind]float64, len(feasible))
	for _, a := range feasible {
		var e float64
		for _, c := range classes {
			l, ok := loss.Get(c, a)
			if !ok {
				continue
			}
			e += scores.Get(c) * l
		}
		expected[a] = e
	}

	best := argminWithTiebreak(feasible, expected)
	return best, expected, nil
}

// argminWithTiebreak picks the action with lowest expected loss;
// equal losses (within a small epsilon, since these are sums of
// floating point products) break toward the lower reversibility rank.
func argminWithTiebreak(actions []model.ActionKind, expected map[model.ActionKind]float64) model.ActionKind {
	const tieEpsilon = 1e-9

	best := actions[0]
	for _, a := range actions[1:] {
		switch {
		case expected[a] < expected[best]-tieEpsilon:
			best = a
		case math.Abs(expected[a]-expected[best]) <= tieEpsilon && a.TieBreakRank() < best.TieBreakRank():
			best = a
		}
	}
	return best
}

type decisionError string

func (e decisionError) Error() string { return string(e) }

const errNoFeasibleActions = decisionError("decision: no feasible actions for this class set")
