// Package membrane composes three drift detectors — BOCPD, IMM, and a
// Wasserstein severity bucket — into a single composite signal with a
// sticky safe-mode latch (spec §4.2 "Drift Membrane", component C3/C12).
package membrane

import "math"

// BOCPD is a Bayesian Online Changepoint Detector over a scalar
// signal, using a Gaussian observation model with online mean/variance
// per hypothesised run length (Adams & MacKay, truncated to
// MaxRunLength hypotheses for bounded memory — the same
// bounded-window-of-sufficient-statistics register the anomaly
// detector's Mahalanobis/Cholesky numerics use).
//
// Observe returns P(run_length == 0), the probability that the most
// recent observation is the first sample of a new regime — this is the
// BOCPD "change-point probability" signal spec §4.2 asks for.
type BOCPD struct {
	hazard       float64 // constant hazard rate λ
	maxRunLength int

	// weights[i] is the posterior mass on run-length i (i.e. i
	// consecutive observations since the last inferred changepoint).
	weights []float64
	// sufficient statistics per hypothesis, parallel to weights.
	n      []float64
	sum    []float64
	sumSq  []float64

	varianceFloor float64
}

// NewBOCPD constructs a detector with the given constant hazard rate
// (spec: DriftPriors.HazardRate) and a bounded run-length truncation.
func NewBOCPD(hazard float64, maxRunLength int) *BOCPD {
	if maxRunLength <= 0 {
		maxRunLength = 200
	}
	return &BOCPD{
		hazard:        hazard,
		maxRunLength:  maxRunLength,
		varianceFloor: 1e-6,
	}
}

// Observe ingests one scalar sample and returns the change-point
// probability for this step.
func (b *BOCPD) Observe(x float64) float64 {
	if len(b.weights) == 0 {
		// The first sample after construction or Reset has no earlier
		// run to continue, so it starts run-length 0 with certainty.
		b.weights = []float64{1.0}
		b.n = []float64{1}
		b.sum = []float64{x}
		b.sumSq = []float64{x * x}
		return 1.0
	}

	predLik := make([]float64, len(b.weights))
	for i := range b.weights {
		predLik[i] = b.predictive(x, i)
	}

	growthMass := 0.0
	for i, w := range b.weights {
		growthMass += w * predLik[i] * (1 - b.hazard)
	}
	changeMass := 0.0
	for i, w := range b.weights {
		changeMass += w * predLik[i] * b.hazard
	}

	newWeights := make([]float64, len(b.weights)+1)
	newN := make([]float64, len(b.weights)+1)
	newSum := make([]float64, len(b.weights)+1)
	newSumSq := make([]float64, len(b.weights)+1)

	newWeights[0] = changeMass
	newN[0] = 1
	newSum[0] = x
	newSumSq[0] = x * x

	for i := range b.weights {
		newWeights[i+1] = b.weights[i] * predLik[i] * (1 - b.hazard)
		newN[i+1] = b.n[i] + 1
		newSum[i+1] = b.sum[i] + x
		newSumSq[i+1] = b.sumSq[i] + x*x
	}

	total := 0.0
	for _, w := range newWeights {
		total += w
	}
	if total <= 0 || math.IsNaN(total) {
		// Degenerate observation sequence (e.g. all-identical inputs
		// driving predictive likelihoods to 0): reset to a fresh
		// changepoint rather than propagate NaNs.
		b.weights = []float64{1.0}
		b.n = []float64{0}
		b.sum = []float64{0}
		b.sumSq = []float64{0}
		return 1.0
	}
	for i := range newWeights {
		newWeights[i] /= total
	}

	if len(newWeights) > b.maxRunLength {
		newWeights = newWeights[:b.maxRunLength]
		newN = newN[:b.maxRunLength]
		newSum = newSum[:b.maxRunLength]
		newSumSq = newSumSq[:b.maxRunLength]
		renormalise(newWeights)
	}

	b.weights, b.n, b.sum, b.sumSq = newWeights, newN, newSum, newSumSq
	return newWeights[0]
}

// predictive returns the Gaussian predictive density of x under
// hypothesis i's running mean/variance (variance floored to avoid
// singular densities on short runs).
func (b *BOCPD) predictive(x float64, i int) float64 {
	n := b.n[i]
	if n == 0 {
		return gaussianPDF(x, 0, 1.0) // uninformative prior: standard normal
	}
	mean := b.sum[i] / n
	variance := b.sumSq[i]/n - mean*mean
	if variance < b.varianceFloor {
		variance = b.varianceFloor
	}
	return gaussianPDF(x, mean, variance)
}

func gaussianPDF(x, mean, variance float64) float64 {
	return math.Exp(-(x-mean)*(x-mean)/(2*variance)) / math.Sqrt(2*math.Pi*variance)
}

func renormalise(w []float64) {
	total := 0.0
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return
	}
	for i := range w {
		w[i] /= total
	}
}

// Reset discards all accumulated run-length hypotheses.
func (b *BOCPD) Reset() {
	b.weights = nil
	b.n = nil
	b.sum = nil
	b.sumSq = nil
}
