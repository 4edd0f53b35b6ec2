package calibration

// eceBins is the fixed bin count spec §4.3-sub specifies for
// expected-calibration-error computation.
const eceBins = 10

// expectedCalibrationError buckets observations into 10 equal-width
// predicted-probability bins [0,0.1), [0.1,0.2), ..., [0.9,1.0], and
// returns the count-weighted average gap between each bin's mean
// prediction and its empirical accuracy.
func expectedCalibrationError(obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	var binCount [eceBins]int
	var binPredSum [eceBins]float64
	var binActualSum [eceBins]float64

	for _, o := range obs {
		idx := int(o.Predicted * eceBins)
		if idx >= eceBins {
			idx = eceBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		binCount[idx]++
		binPredSum[idx] += o.Predicted
		if o.Actual {
			binActualSum[idx]++
		}
	}

	var ece float64
	total := float64(len(obs))
	for i := 0; i < eceBins; i++ {
		if binCount[i] == 0 {
			continue
		}
		n := float64(binCount[i])
		meanPred := binPredSum[i] / n
		accuracy := binActualSum[i] / n
		gap := meanPred - accuracy
		if gap < 0 {
			gap = -gap
		}
		ece += (n / total) * gap
	}
	return ece
}

// brierScore is the mean squared error between predicted probability
// and the 0/1 realised outcome.
func brierScore(obs []Observation) float64 {
	if len(obs) == 0 {
		return 0
	}
	var total float64
	for _, o := range obs {
		actual := 0.0
		if o.Actual {
			actual = 1.0
		}
		d := o.Predicted - actual
		total += d * d
	}
	return total / float64(len(obs))
}
