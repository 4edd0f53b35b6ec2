package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func TestCost_NormalisesTimeLogarithmically(t *testing.T) {
	w := DefaultCostWeights()
	short := Cost(Probe{TimeSeconds: 1}, w)
	long := Cost(Probe{TimeSeconds: 100000}, w)
	assert.Less(t, short, long)
	assert.LessOrEqual(t, long, 1.0)
}

func TestCost_SubSecondProbeHasNearZeroTimeComponent(t *testing.T) {
	w := CostWeights{Time: 1}
	assert.InDelta(t, 0.0, Cost(Probe{TimeSeconds: 0.1}, w), 1e-9)
}

func TestEstimatedPosteriorAfterProbe_SharpensTowardArgmax(t *testing.T) {
	posterior := belief(t, 0.4, 0.3, 0.2, 0.1)
	classes := model.AllClasses()
	probe := Probe{Magnitude: 1.0}
	after := EstimatedPosteriorAfterProbe(posterior, probe, classes[:])
	assert.Greater(t, after.Get(model.ClassUseful), posterior.Scores().Get(model.ClassUseful))
}

func TestEstimatedPosteriorAfterProbe_StillSumsToOne(t *testing.T) {
	posterior := belief(t, 0.4, 0.3, 0.2, 0.1)
	classes := model.AllClasses()
	after := EstimatedPosteriorAfterProbe(posterior, Probe{Magnitude: 0.5}, classes[:])
	assert.InDelta(t, 1.0, after.Sum(), 1e-9)
}

func TestEstimatedPosteriorAfterProbe_ZeroMagnitudeLeavesPosteriorUnchanged(t *testing.T) {
	posterior := belief(t, 0.4, 0.3, 0.2, 0.1)
	classes := model.AllClasses()
	after := EstimatedPosteriorAfterProbe(posterior, Probe{Magnitude: 0}, classes[:])
	assert.InDelta(t, posterior.Scores().Get(model.ClassUseful), after.Get(model.ClassUseful), 1e-9)
}

func TestEvaluateProbes_NoProbesMeansActNow(t *testing.T) {
	lm := buildLossMatrix()
	posterior := belief(t, 0.05, 0.05, 0.05, 0.85)
	classes := model.AllClasses()
	_, shouldProbe := EvaluateProbes(posterior, classes[:], model.AllActions(), lm, nil, DefaultCostWeights())
	assert.False(t, shouldProbe)
}

func TestEvaluateProbes_CheapInformativeProbeIsPreferred(t *testing.T) {
	lm := model.NewLossMatrix()
	lm.Set(model.ClassUseful, model.ActionKeep, 0)
	lm.Set(model.ClassUsefulBad, model.ActionKeep, 1)
	lm.Set(model.ClassAbandoned, model.ActionKeep, 3)
	lm.Set(model.ClassZombie, model.ActionKeep, 5)
	lm.Set(model.ClassUseful, model.ActionKill, 5)
	lm.Set(model.ClassUsefulBad, model.ActionKill, 3)
	lm.Set(model.ClassAbandoned, model.ActionKill, 1)
	lm.Set(model.ClassZombie, model.ActionKill, 0)

	// Leaning toward Useful but genuinely uncertain vs. Zombie: a
	// sharpening probe should lower the best action's expected loss.
	posterior := belief(t, 0.5, 0.1, 0.1, 0.3)
	classes := model.AllClasses()
	feasible := []model.ActionKind{model.ActionKeep, model.ActionKill}

	probes := []Probe{
		{Name: "cheap", TimeSeconds: 1, Magnitude: 0.9},
		{Name: "expensive", TimeSeconds: 100000, Overhead: 1, Intrusiveness: 1, Risk: 1, Magnitude: 0.9},
	}
	best, shouldProbe := EvaluateProbes(posterior, classes[:], feasible, lm, probes, DefaultCostWeights())
	require.True(t, shouldProbe)
	assert.Equal(t, "cheap", best.Probe.Name)
}
