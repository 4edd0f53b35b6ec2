package membrane

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBOCPD_StableSignalStaysLowChangepointProbability(t *testing.T) {
	b := NewBOCPD(0.01, 100)
	var last float64
	for i := 0; i < 50; i++ {
		last = b.Observe(0.1)
	}
	assert.Less(t, last, 0.3)
}

func TestBOCPD_AbruptShiftRaisesChangepointProbability(t *testing.T) {
	b := NewBOCPD(0.01, 100)
	for i := 0; i < 50; i++ {
		b.Observe(0.1)
	}
	p := b.Observe(50.0)
	assert.Greater(t, p, 0.3)
}

func TestBOCPD_NeverReturnsNaN(t *testing.T) {
	b := NewBOCPD(0.02, 50)
	for i := 0; i < 200; i++ {
		p := b.Observe(1.0) // constant input, degenerate variance
		assert.False(t, math.IsNaN(p))
	}
}

func TestBOCPD_ResetClearsHistory(t *testing.T) {
	b := NewBOCPD(0.01, 100)
	for i := 0; i < 20; i++ {
		b.Observe(5.0)
	}
	b.Reset()
	p := b.Observe(5.0)
	assert.Equal(t, 1.0, p) // first observation after reset is always weight[0]=1
}

func TestBOCPD_RunLengthTruncatedToMax(t *testing.T) {
	b := NewBOCPD(0.001, 10)
	for i := 0; i < 100; i++ {
		b.Observe(0.1)
	}
	assert.LessOrEqual(t, len(b.weights), 10)
}
