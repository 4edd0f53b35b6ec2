package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func TestDROTrigger_FiredRequiresAtLeastOneFlag(t *testing.T) {
	assert.False(t, DROTrigger{}.Fired())
	assert.True(t, DROTrigger{PPCFailure: true}.Fired())
}

func TestAdaptiveEpsilon_NoTriggersIsBaseEpsilon(t *testing.T) {
	cfg := model.DROConfig{BaseEpsilon: 0.1, MaxEpsilon: 1.0}
	eps := AdaptiveEpsilon(DROTrigger{}, cfg)
	assert.Equal(t, 0.1, eps)
}

func TestAdaptiveEpsilon_MultipliersCompound(t *testing.T) {
	cfg := model.DROConfig{BaseEpsilon: 0.1, MaxEpsilon: 10.0}
	eps := AdaptiveEpsilon(DROTrigger{PPCFailure: true, EtaTemperingReduced: true}, cfg)
	assert.InDelta(t, 0.1*1.5*1.2, eps, 1e-9)
}

func TestAdaptiveEpsilon_CappedAtMaxEpsilon(t *testing.T) {
	cfg := model.DROConfig{BaseEpsilon: 1.0, MaxEpsilon: 1.5}
	eps := AdaptiveEpsilon(DROTrigger{PPCFailure: true, DriftDetected: true, DriftWassersteinScore: 1.0, EtaTemperingReduced: true, LowModelConfidence: true}, cfg)
	assert.Equal(t, 1.5, eps)
}

func TestAdaptiveEpsilon_DriftMultiplierClampsWAtOne(t *testing.T) {
	cfg := model.DROConfig{BaseEpsilon: 0.1, MaxEpsilon: 10}
	low := AdaptiveEpsilon(DROTrigger{DriftDetected: true, DriftWassersteinScore: 1.0}, cfg)
	high := AdaptiveEpsilon(DROTrigger{DriftDetected: true, DriftWassersteinScore: 5.0}, cfg)
	assert.Equal(t, low, high)
}

func TestApplyDROGate_NoTriggerLeavesNominalUnchanged(t *testing.T) {
	lm := buildLossMatrix()
	posterior := belief(t, 0.05, 0.05, 0.05, 0.85)
	classes := model.AllClasses()
	nominal, expected, err := Baseline(posterior, lm, classes[:], model.AllActions())
	require.NoError(t, err)

	policy := model.Policy{Loss: lm, DRO: model.DROConfig{BaseEpsilon: 0.1, MaxEpsilon: 1}}
	result := ApplyDROGate(nominal, expected, posterior, policy, DROTrigger{}, classes[:], model.AllActions())
	assert.False(t, result.ActionChanged)
	assert.Equal(t, nominal, result.Action)
}

func TestApplyDROGate_TriggeredGateCanChangeAction(t *testing.T) {
	lm := model.NewLossMatrix()
	// Kill has lower expected loss under this posterior but is far
	// more sensitive to misclassification (a wide Lipschitz spread
	// across classes) than Keep, so the robust gate should prefer
	// Keep once triggered.
	lm.Set(model.ClassUseful, model.ActionKeep, 0)
	lm.Set(model.ClassUseful, model.ActionKill, 10)
	lm.Set(model.ClassUsefulBad, model.ActionKeep, 1)
	lm.Set(model.ClassUsefulBad, model.ActionKill, 1)
	lm.Set(model.ClassAbandoned, model.ActionKeep, 2)
	lm.Set(model.ClassAbandoned, model.ActionKill, 0)
	lm.Set(model.ClassZombie, model.ActionKeep, 2)
	lm.Set(model.ClassZombie, model.ActionKill, 0)

	posterior := belief(t, 0.1, 0.1, 0.4, 0.4)
	classes := model.AllClasses()
	feasible := []model.ActionKind{model.ActionKeep, model.ActionKill}
	nominal, expected, err := Baseline(posterior, lm, classes[:], feasible)
	require.NoError(t, err)
	require.Equal(t, model.ActionKill, nominal)

	policy := model.Policy{Loss: lm, DRO: model.DROConfig{BaseEpsilon: 0.1, MaxEpsilon: 1}}
	result := ApplyDROGate(nominal, expected, posterior, policy, DROTrigger{LowModelConfidence: true}, classes[:], feasible)
	assert.True(t, result.ActionChanged)
	assert.Equal(t, model.ActionKeep, result.Action)
}
