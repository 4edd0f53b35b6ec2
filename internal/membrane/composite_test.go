package membrane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(
		NewBOCPD(0.02, 100),
		NewIMM(0.95, 0.5, 0.9, 1.0),
		NewWassersteinDetector(15),
		DefaultWeights(),
		Thresholds{SafeModeThreshold: 0.6, ConfirmationTicks: 3},
	)
	require.NoError(t, err)
	return e
}

func TestWeights_ValidateRejectsBadSum(t *testing.T) {
	w := Weights{BOCPD: 0.5, IMM: 0.5, Wasserstein: 0.5}
	assert.Error(t, w.Validate())
}

func TestWeights_ValidateAcceptsDefault(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
}

func TestNewEngine_RejectsInvalidWeights(t *testing.T) {
	_, err := NewEngine(NewBOCPD(0.01, 10), NewIMM(0.9, 0.5, 0.9, 1), NewWassersteinDetector(10), Weights{BOCPD: 1, IMM: 1, Wasserstein: 1}, DefaultThresholds())
	assert.Error(t, err)
}

func TestEngine_CompositeClampedToUnitInterval(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 30; i++ {
		r := e.Observe(0.1)
		assert.GreaterOrEqual(t, r.Composite, 0.0)
		assert.LessOrEqual(t, r.Composite, 1.0)
	}
}

func TestEngine_NominalRegimeOnStableInput(t *testing.T) {
	e := newTestEngine(t)
	var r Reading
	for i := 0; i < 30; i++ {
		r = e.Observe(0.1)
	}
	assert.Equal(t, RegimeNominal, r.Regime)
	assert.False(t, r.SafeMode)
}

func TestEngine_SafeModeLatchesAfterConfirmationTicksAndSticks(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 15; i++ {
		e.Observe(0.1)
	}
	var r Reading
	for i := 0; i < 15; i++ {
		r = e.Observe(500.0)
	}
	require.True(t, r.SafeMode)
	assert.Equal(t, RegimeRegimeChange, r.Regime)

	// Sticky: even after the signal returns to baseline, safe-mode
	// stays set until an explicit Reset.
	for i := 0; i < 10; i++ {
		r = e.Observe(0.1)
	}
	assert.True(t, r.SafeMode)
}

func TestEngine_ResetClearsSafeModeLatch(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 15; i++ {
		e.Observe(0.1)
	}
	for i := 0; i < 15; i++ {
		e.Observe(500.0)
	}
	require.True(t, e.SafeMode())
	e.Reset()
	assert.False(t, e.SafeMode())
}

func TestEngine_ConsecutiveAboveThresholdResetsOnDip(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 15; i++ {
		e.Observe(0.1)
	}
	e.Observe(500.0)
	e.Observe(500.0)
	e.Observe(0.1) // dip below threshold resets the confirmation counter
	r := e.Observe(500.0)
	assert.False(t, r.SafeMode)
}
