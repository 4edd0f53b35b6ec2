package membrane

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIMM_StableSignalStaysInStableMode(t *testing.T) {
	m := NewIMM(0.95, 0.5, 0.95, 1.0)
	var last float64
	for i := 0; i < 50; i++ {
		last = m.Observe(0.0)
	}
	assert.Less(t, last, 0.5)
}

func TestIMM_SustainedShiftMovesMassToShiftedMode(t *testing.T) {
	m := NewIMM(0.95, 0.5, 0.9, 1.0)
	for i := 0; i < 20; i++ {
		m.Observe(0.0)
	}
	var last float64
	for i := 0; i < 50; i++ {
		last = m.Observe(20.0)
	}
	assert.Greater(t, last, 0.5)
}

func TestIMM_FirstObservationInitialisesWithoutPanic(t *testing.T) {
	m := NewIMM(0.9, 0.5, 0.95, 1.0)
	assert.NotPanics(t, func() { m.Observe(3.0) })
}

func TestIMM_ResetReturnsToInitialModeProbabilities(t *testing.T) {
	m := NewIMM(0.9, 0.5, 0.9, 1.0)
	for i := 0; i < 30; i++ {
		m.Observe(100.0)
	}
	m.Reset()
	assert.InDelta(t, 0.01, m.modeProb[immShifted], 1e-9)
}
