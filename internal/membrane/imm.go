package membrane

import "math"

// IMM is a two-mode Interacting Multiple Model filter: a "stable" mode
// tracking a slow EWMA of the input signal, and a "shifted" mode
// tracking a fast EWMA. Mode probabilities are mixed each step using
// the standard IMM model-transition matrix and the two modes'
// per-step observation likelihoods (mirroring the sticky-probability
// mixing the escalation pressure accumulator does for a single EWMA,
// generalised to two competing filters).
//
// Observe returns P(shifted mode), the "regime-shift probability"
// spec §4.2 asks for.
type IMM struct {
	stableAlpha  float64
	shiftedAlpha float64

	// transition[from][to] is P(mode_t+1 = to | mode_t = from).
	transition [2][2]float64

	stableMean  float64
	shiftedMean float64
	modeProb    [2]float64 // [stable, shifted]

	observationStd float64
	initialised    bool
}

const (
	immStable  = 0
	immShifted = 1
)

// NewIMM builds a two-mode filter. stickiness is the diagonal
// transition probability (P(stay in same mode)); observationStd is the
// assumed standard deviation of the per-mode Gaussian observation
// likelihood.
func NewIMM(stableAlpha, shiftedAlpha, stickiness, observationStd float64) *IMM {
	if stickiness <= 0 || stickiness >= 1 {
		stickiness = 0.95
	}
	if observationStd <= 0 {
		observationStd = 1.0
	}
	off := 1 - stickiness
	return &IMM{
		stableAlpha:  stableAlpha,
		shiftedAlpha: shiftedAlpha,
		transition: [2][2]float64{
			{stickiness, off},
			{off, stickiness},
		},
		modeProb:       [2]float64{0.99, 0.01},
		observationStd: observationStd,
	}
}

// Observe ingests one scalar sample and returns the mixed probability
// that the process is currently in the shifted (regime-change) mode.
func (m *IMM) Observe(x float64) float64 {
	if !m.initialised {
		m.stableMean = x
		m.shiftedMean = x
		m.initialised = true
		return m.modeProb[immShifted]
	}

	// Mixing step: predicted mode probabilities before this observation.
	predicted := [2]float64{
		m.modeProb[immStable]*m.transition[immStable][immStable] + m.modeProb[immShifted]*m.transition[immShifted][immStable],
		m.modeProb[immStable]*m.transition[immStable][immShifted] + m.modeProb[immShifted]*m.transition[immShifted][immShifted],
	}

	likStable := gaussianPDF(x, m.stableMean, m.observationStd*m.observationStd)
	likShifted := gaussianPDF(x, m.shiftedMean, m.observationStd*m.observationStd)

	unnormStable := predicted[immStable] * likStable
	unnormShifted := predicted[immShifted] * likShifted
	total := unnormStable + unnormShifted
	if total <= 0 || math.IsNaN(total) {
		m.modeProb = predicted
	} else {
		m.modeProb = [2]float64{unnormStable / total, unnormShifted / total}
	}

	m.stableMean = m.stableAlpha*m.stableMean + (1-m.stableAlpha)*x
	m.shiftedMean = m.shiftedAlpha*m.shiftedMean + (1-m.shiftedAlpha)*x

	return m.modeProb[immShifted]
}

// Reset returns the filter to its initial, pre-observation state.
func (m *IMM) Reset() {
	m.initialised = false
	m.modeProb = [2]float64{0.99, 0.01}
}
