package decision

import (
	"math"
	"sort"

	"github.com/octoreflex/proctriage/internal/model"
)

// Candidate is one target's accumulated martingale evidence for a
// potential autonomous action (spec §4.3: "anytime-valid" gates).
type Candidate struct {
	Name            string
	EValue          float64
	Observations    int
	AnomalyDetected bool
}

// GateConfig parameterises eligibility and the gate threshold.
type GateConfig struct {
	MinObservations int
	RequireAnomaly  bool
	Alpha           float64

	FDREnabled       bool
	FDRMethod        model.FDRMethod
	FDRMinCandidates int

	// AlphaInvestingWealth, if non-nil, overrides Alpha as the level
	// drawn from the alpha-investing wealth process (spec §4.3: "α may
	// be drawn from alpha-investing wealth if configured").
	AlphaInvestingWealth *float64
}

func (cfg GateConfig) effectiveAlpha() float64 {
	if cfg.AlphaInvestingWealth != nil {
		return *cfg.AlphaInvestingWealth
	}
	return cfg.Alpha
}

// Eligible reports whether a candidate has enough observations and
// (if required) an anomaly flag to even be considered for gating.
func Eligible(c Candidate, cfg GateConfig) bool {
	if c.Observations < cfg.MinObservations {
		return false
	}
	if cfg.RequireAnomaly && !c.AnomalyDetected {
		return false
	}
	return true
}

// GateResult is one candidate's final pass/fail outcome.
type GateResult struct {
	Candidate Candidate
	Eligible  bool
	Passed    bool
}

// EvaluateGates computes the per-candidate gate outcome (e_value ≥
// 1/α for eligible candidates), then — if FDR correction is enabled
// and at least FDRMinCandidates candidates are eligible — replaces
// those per-candidate outcomes with the FDR-selected set.
func EvaluateGates(candidates []Candidate, cfg GateConfig) []GateResult {
	alpha := cfg.effectiveAlpha()
	results := make([]GateResult, len(candidates))
	var eligibleIdx []int

	for i, c := range candidates {
		eligible := Eligible(c, cfg)
		passed := eligible && alpha > 0 && c.EValue >= 1/alpha
		results[i] = GateResult{Candidate: c, Eligible: eligible, Passed: passed}
		if eligible {
			eligibleIdx = append(eligibleIdx, i)
		}
	}

	if !cfg.FDREnabled || cfg.FDRMethod == model.FDRNone || len(eligibleIdx) < cfg.FDRMinCandidates {
		return results
	}

	selected := runFDR(candidates, eligibleIdx, alpha, cfg.FDRMethod)
	for i := range results {
		if results[i].Eligible {
			results[i].Passed = selected[i]
		}
	}
	return results
}

// runFDR applies e-value Benjamini-Hochberg or Benjamini-Yekutieli
// correction over the eligible subset (indices into candidates), and
// returns a selection mask indexed the same way as candidates.
//
// Both procedures sort e-values descending and find the largest k
// such that e_(k) ≥ m/(α·k) (BH) or e_(k) ≥ m·c_m/(α·k) (BY, with
// c_m = Σ_{i=1}^{m} 1/i the harmonic correction for arbitrary
// dependence) — Wang & Ramdas's e-value generalisation of the
// classical p-value BH/BY procedures.
func runFDR(candidates []Candidate, eligibleIdx []int, alpha float64, method model.FDRMethod) map[int]bool {
	m := len(eligibleIdx)
	type ranked struct {
		idx    int
		eValue float64
	}
	rs := make([]ranked, m)
	for i, idx := range eligibleIdx {
		rs[i] = ranked{idx: idx, eValue: candidates[idx].EValue}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].eValue > rs[j].eValue })

	correction := 1.0
	if method == model.FDRBenjaminiYekutieli {
		var harmonic float64
		for i := 1; i <= m; i++ {
			harmonic += 1 / float64(i)
		}
		correction = harmonic
	}

	threshold := -1
	for k := m; k >= 1; k-- {
		required := float64(m) * correction / (alpha * float64(k))
		if rs[k-1].eValue >= required {
			threshold = k
			break
		}
	}

	selected := make(map[int]bool, m)
	for i := 0; i < m; i++ {
		selected[rs[i].idx] = i < threshold
	}
	return selected
}

// EValueFromLikelihoodRatio converts an accumulated likelihood ratio
// (product of per-observation likelihood ratios under an alternative
// vs. null hypothesis) into an e-value, clamping to avoid returning a
// non-finite value on numerical overflow.
func EValueFromLikelihoodRatio(logLikelihoodRatio float64) float64 {
	e := math.Exp(logLikelihoodRatio)
	if math.IsInf(e, 1) {
		return math.MaxFloat64
	}
	return e
}
