package membrane

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWassersteinDetector_BaselineFillReturnsNoneUntilFull(t *testing.T) {
	w := NewWassersteinDetector(10)
	for i := 0; i < 9; i++ {
		_, sev := w.Observe(1.0)
		assert.Equal(t, SeverityNone, sev)
	}
}

func TestWassersteinDetector_IdenticalDistributionIsNone(t *testing.T) {
	w := NewWassersteinDetector(20)
	for i := 0; i < 20; i++ {
		w.Observe(1.0)
	}
	var sev Severity
	for i := 0; i < 20; i++ {
		_, sev = w.Observe(1.0)
	}
	assert.Equal(t, SeverityNone, sev)
}

func TestWassersteinDetector_LargeShiftIsSevere(t *testing.T) {
	w := NewWassersteinDetector(20)
	for i := 0; i < 20; i++ {
		w.Observe(1.0)
	}
	var sev Severity
	for i := 0; i < 20; i++ {
		_, sev = w.Observe(1000.0)
	}
	assert.Equal(t, SeveritySevere, sev)
}

func TestSeverity_ScoreMapping(t *testing.T) {
	cases := []struct {
		sev   Severity
		score float64
	}{
		{SeverityNone, 0.0},
		{SeverityMinor, 0.25},
		{SeverityModerate, 0.5},
		{SeveritySignificant, 0.75},
		{SeveritySevere, 1.0},
	}
	for _, c := range cases {
		assert.Equal(t, c.score, c.sev.Score())
	}
}

func TestWassersteinDetector_ResetUnfreezesBaseline(t *testing.T) {
	w := NewWassersteinDetector(5)
	for i := 0; i < 5; i++ {
		w.Observe(1.0)
	}
	assert.True(t, w.baselineFrozen)
	w.Reset()
	assert.False(t, w.baselineFrozen)
}

func TestWasserstein1_ZeroForIdenticalSamples(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 0.0, wasserstein1(a, b), 1e-9)
}

func TestWasserstein1_HandlesUnequalLengths(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 1, 1, 1, 1, 1}
	assert.Greater(t, wasserstein1(a, b), 0.0)
}
