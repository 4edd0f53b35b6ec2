package decision

import (
	"math"

	"github.com/octoreflex/proctriage/internal/model"
)

// Probe is a candidate information-gathering action (e.g. a deep scan
// of open sockets, or a brief CPU re-sample) the decision module can
// choose to run before committing to a containment action.
type Probe struct {
	Name string

	// Cost inputs, spec §4.3.
	TimeSeconds   float64
	Overhead      float64
	Intrusiveness float64
	Risk          float64

	// Magnitude scales how strongly this probe is expected to sharpen
	// the posterior toward a confident class assignment.
	Magnitude float64
}

// CostWeights weights the four probe-cost components into a scalar.
type CostWeights struct {
	Time          float64
	Overhead      float64
	Intrusiveness float64
	Risk          float64
}

// DefaultCostWeights gives each component equal weight.
func DefaultCostWeights() CostWeights {
	return CostWeights{Time: 0.25, Overhead: 0.25, Intrusiveness: 0.25, Risk: 0.25}
}

// Cost returns the weighted probe cost. Time is normalised via
// min(ln(max(t,1))/8.5, 1) per spec §4.3, so that a probe under one
// second costs ~0 and costs approach 1 only for multi-minute probes.
func Cost(p Probe, w CostWeights) float64 {
	t := p.TimeSeconds
	if t < 1 {
		t = 1
	}
	normTime := math.Log(t) / 8.5
	if normTime > 1 {
		normTime = 1
	}
	return w.Time*normTime + w.Overhead*p.Overhead + w.Intrusiveness*p.Intrusiveness + w.Risk*p.Risk
}

// EstimatedPosteriorAfterProbe applies a simple sharpening model: the
// shift factor is the probe's magnitude scaled by how undecided the
// posterior currently is between useful and abandoned
// (1 − |p_useful − p_abandoned|), then every class score is raised to
// the power (1+shift) and renormalised — a temperature-scaling
// sharpening that concentrates mass on the current argmax in
// proportion to the probe's expected informativeness.
func EstimatedPosteriorAfterProbe(posterior model.BeliefState, probe Probe, classes []model.ClassKind) model.ClassScores {
	scores := posterior.Scores()
	pUseful := scores.Get(model.ClassUseful)
	pAbandoned := scores.Get(model.ClassAbandoned)
	diff := pUseful - pAbandoned
	if diff < 0 {
		diff = -diff
	}
	shift := probe.Magnitude * (1 - diff)
	if shift < 0 {
		shift = 0
	}

	var sharpened model.ClassScores
	var total float64
	for _, c := range classes {
		v := math.Pow(scores.Get(c), 1+shift)
		sharpened.Set(c, v)
		total += v
	}
	if total <= 0 {
		return scores
	}
	var out model.ClassScores
	for _, c := range classes {
		out.Set(c, sharpened.Get(c)/total)
	}
	return out
}

// minExpectedLoss returns min_a E[L(a)|scores] over feasible.
func minExpectedLoss(scores model.ClassScores, classes []model.ClassKind, feasible []model.ActionKind, loss *model.LossMatrix) float64 {
	best := math.Inf(1)
	for _, a := range feasible {
		var e float64
		for _, c := range classes {
			l, ok := loss.Get(c, a)
			if !ok {
				continue
			}
			e += scores.Get(c) * l
		}
		if e < best {
			best = e
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// VOIResult is the value-of-information evaluation for a single probe.
type VOIResult struct {
	Probe Probe
	VOI   float64
}

// EvaluateProbes computes VOI for every candidate probe: VOI =
// E[min_a L | post_after] − E[min_a L | post_now] + cost. It returns
// the probe with minimum VOI and whether the module should probe at
// all (true iff that minimum VOI < 0, i.e. the expected loss reduction
// from the probe outweighs its cost).
func EvaluateProbes(posterior model.BeliefState, classes []model.ClassKind, feasible []model.ActionKind, loss *model.LossMatrix, probes []Probe, weights CostWeights) (bestProbe VOIResult, shouldProbe bool) {
	if len(probes) == 0 {
		return VOIResult{}, false
	}

	lossNow := minExpectedLoss(posterior.Scores(), classes, feasible, loss)

	results := make([]VOIResult, len(probes))
	for i, p := range probes {
		after := EstimatedPosteriorAfterProbe(posterior, p, classes)
		lossAfter := minExpectedLoss(after, classes, feasible, loss)
		voi := lossAfter - lossNow + Cost(p, weights)
		results[i] = VOIResult{Probe: p, VOI: voi}
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.VOI < best.VOI {
			best = r
		}
	}
	return best, best.VOI < 0
}
