package calibration

import (
	"fmt"
	"math"
)

// CredibleBoundsError reports invalid input to the credible-bounds
// computation (spec §4.10: "input validation rejects α₀≤0, β₀≤0,
// errors>trials, δ∉(0,1)").
type CredibleBoundsError struct {
	Reason string
}

func (e *CredibleBoundsError) Error() string {
	return fmt.Sprintf("invalid credible bounds input: %s", e.Reason)
}

// UpperBound computes the Bayesian credible upper bound on an error
// rate modelled as Beta(α₀+errors, β₀+trials−errors): for a given
// δ ∈ (0,1), the bound is F_Beta⁻¹(1−δ; posterior_α, posterior_β) —
// the value below which the posterior places 1−δ of its mass.
func UpperBound(alpha0, beta0 float64, errors, trials int, delta float64) (float64, error) {
	if alpha0 <= 0 {
		return 0, &CredibleBoundsError{Reason: "alpha0 must be > 0"}
	}
	if beta0 <= 0 {
		return 0, &CredibleBoundsError{Reason: "beta0 must be > 0"}
	}
	if errors > trials {
		return 0, &CredibleBoundsError{Reason: "errors cannot exceed trials"}
	}
	if errors < 0 || trials < 0 {
		return 0, &CredibleBoundsError{Reason: "errors and trials must be non-negative"}
	}
	if delta <= 0 || delta >= 1 {
		return 0, &CredibleBoundsError{Reason: "delta must be in (0,1)"}
	}

	posteriorAlpha := alpha0 + float64(errors)
	posteriorBeta := beta0 + float64(trials-errors)
	return inverseRegularizedIncompleteBeta(1-delta, posteriorAlpha, posteriorBeta), nil
}

// FalseKillCredibleBounds counts predictions at or above threshold
// whose actual outcome was false as "errors" out of all predictions
// at or above threshold as "trials", then returns the credible upper
// bound on that error rate.
func FalseKillCredibleBounds(data []Observation, threshold float64, alpha0, beta0, delta float64) (float64, error) {
	var errors, trials int
	for _, o := range data {
		if o.Predicted >= threshold {
			trials++
			if !o.Actual {
				errors++
			}
		}
	}
	return UpperBound(alpha0, beta0, errors, trials, delta)
}

// regularizedIncompleteBeta I_x(a,b) via the continued-fraction
// expansion (Lentz's method), the standard numerical-recipe route
// when no statistics library is available — the same hand-rolled
// register the inference package uses for its Beta/Gamma log
// densities.
func regularizedIncompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lbeta := lgammaSum(a, b)
	front := math.Exp(math.Log(x)*a + math.Log(1-x)*b - lbeta)

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(x, a, b) / a
	}
	return 1 - front*betaContinuedFraction(1-x, b, a)/b
}

func lgammaSum(a, b float64) float64 {
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	return la + lb - lab
}

// betaContinuedFraction evaluates the continued fraction behind the
// incomplete beta function at x, using Lentz's algorithm.
func betaContinuedFraction(x, a, b float64) float64 {
	const (
		maxIter = 200
		eps     = 1e-12
		tiny    = 1e-300
	)
	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIter; m++ {
		mf := float64(m)
		m2 := 2 * mf

		aa := mf * (b - mf) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + mf) * (qab + mf) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		delta := d * c
		h *= delta
		if math.Abs(delta-1) < eps {
			break
		}
	}
	return h
}

// inverseRegularizedIncompleteBeta finds x such that
// I_x(a,b) = p via bisection over [0,1]. Bisection is slower than a
// Newton step but never diverges, which matters more here than speed:
// this runs once per operator-facing credible-bound query, not in any
// hot per-tick path.
func inverseRegularizedIncompleteBeta(p, a, b float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if regularizedIncompleteBeta(mid, a, b) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
