// Package inference computes the Bayesian posterior over the four
// latent process classes from a prior and an Evidence feature vector
// (spec §4.2, component C3).
//
// Each present Evidence feature contributes one conditional
// log-likelihood term per class: Beta for fraction/boolean features,
// Gamma for the runtime hazard, Dirichlet (point-estimate) for the
// optional command category. Terms are summed in log-space with the
// class's log-prior and normalised via log-sum-exp, mirroring the
// Cholesky/linear-algebra-in-log-space register the anomaly detector
// uses for its own numerics.
package inference

import (
	"math"

	"github.com/octoreflex/proctriage/internal/model"
)

// Term records one feature's per-class log-likelihood delta for
// explainability (spec §4.2: "record each feature's per-class
// log-likelihood delta as an evidence Term").
type Term struct {
	Feature string
	LogLikelihood model.ClassScores
}

// Result is the output of ComputePosterior.
type Result struct {
	Posterior model.BeliefState
	Terms     []Term
}

// ComputePosterior implements compute_posterior(priors, evidence) →
// {posterior, evidence_terms}.
//
// Fails with InvalidPosteriorError if any class prior is not in (0,1),
// priors do not sum to 1 within tolerance, or any likelihood is
// non-finite.
func ComputePosterior(priors model.Priors, ev model.Evidence) (Result, error) {
	if err := priors.Validate(); err != nil {
		return Result{}, &model.InvalidPosteriorError{Reason: err.Error()}
	}

	classes := model.AllClasses()
	var logScores model.ClassScores
	for _, c := range classes {
		logScores.Set(c, math.Log(priors.Classes[c].PriorProb))
	}

	var terms []Term

	if ev.CPU != nil {
		term := betaTerm(priors, classes, "cpu", float64(*ev.CPU), func(cp model.ClassPriors) model.BetaParams { return cp.CPUBeta })
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.Orphan != nil {
		term := bernoulliBetaTerm(priors, classes, "orphan", *ev.Orphan, func(cp model.ClassPriors) model.BetaParams { return cp.OrphanBeta })
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.TTY != nil {
		term := bernoulliBetaTerm(priors, classes, "tty", *ev.TTY, func(cp model.ClassPriors) model.BetaParams { return cp.TTYBeta })
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.Net != nil {
		term := bernoulliBetaTerm(priors, classes, "net", *ev.Net, func(cp model.ClassPriors) model.BetaParams { return cp.NetBeta })
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.IOActive != nil {
		term := bernoulliBetaTerm(priors, classes, "io", *ev.IOActive, func(cp model.ClassPriors) model.BetaParams { return cp.IOBeta })
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.RuntimeSeconds != nil {
		term := gammaTerm(priors, classes, "runtime", *ev.RuntimeSeconds)
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}
	if ev.CommandCategory != nil {
		term := dirichletTerm(priors, classes, *ev.CommandCategory)
		terms = append(terms, term)
		addLogLikelihoods(&logScores, term)
	}

	for _, c := range classes {
		if math.IsNaN(logScores.Get(c)) || math.IsInf(logScores.Get(c), 0) {
			return Result{}, &model.InvalidPosteriorError{Reason: "non-finite likelihood for class " + c.String()}
		}
	}

	normalised := logSumExpNormalise(logScores, classes)
	belief, err := model.NewBeliefState(normalised)
	if err != nil {
		return Result{}, &model.InvalidPosteriorError{Reason: err.Error()}
	}
	return Result{Posterior: belief, Terms: terms}, nil
}

func addLogLikelihoods(scores *model.ClassScores, term Term) {
	for _, c := range model.AllClasses() {
		scores.Set(c, scores.Get(c)+term.LogLikelihood.Get(c))
	}
}

// betaTerm evaluates the Beta(α,β) log-density at x for every class.
func betaTerm(priors model.Priors, classes [4]model.ClassKind, feature string, x float64, pick func(model.ClassPriors) model.BetaParams) Term {
	var ll model.ClassScores
	for _, c := range classes {
		b := pick(priors.Classes[c])
		ll.Set(c, betaLogPDF(x, b.Alpha, b.Beta))
	}
	return Term{Feature: feature, LogLikelihood: ll}
}

// bernoulliBetaTerm treats a boolean feature as a Bernoulli trial whose
// success probability is the Beta prior's mean α/(α+β) — the "Beta for
// ... booleans" rule from spec §4.2.
func bernoulliBetaTerm(priors model.Priors, classes [4]model.ClassKind, feature string, value bool, pick func(model.ClassPriors) model.BetaParams) Term {
	var ll model.ClassScores
	for _, c := range classes {
		b := pick(priors.Classes[c])
		p := b.Alpha / (b.Alpha + b.Beta)
		if value {
			ll.Set(c, math.Log(p))
		} else {
			ll.Set(c, math.Log(1-p))
		}
	}
	return Term{Feature: feature, LogLikelihood: ll}
}

// gammaTerm evaluates the Gamma(shape,rate) log-density at x (runtime
// in seconds) for every class.
func gammaTerm(priors model.Priors, classes [4]model.ClassKind, feature string, x float64) Term {
	var ll model.ClassScores
	for _, c := range classes {
		g := priors.Classes[c].RuntimeGamma
		ll.Set(c, gammaLogPDF(x, g.Shape, g.Rate))
	}
	return Term{Feature: "runtime", LogLikelihood: ll}
}

// dirichletTerm evaluates a point-estimate categorical log-probability
// from the Dirichlet concentration vector: log(concentration[cat] /
// Σconcentration). A category absent from the map falls back to
// BaseConcentration (spec §6: open-ended category set). Classes with
// no CommandCategory block contribute a neutral (zero) log-likelihood
// — the feature simply does not discriminate for that class.
func dirichletTerm(priors model.Priors, classes [4]model.ClassKind, category string) Term {
	var ll model.ClassScores
	for _, c := range classes {
		d := priors.Classes[c].CommandCategory
		if d == nil {
			ll.Set(c, 0)
			continue
		}
		var total float64
		for _, v := range d.Concentration {
			total += v
		}
		conc, ok := d.Concentration[category]
		if !ok {
			conc = d.BaseConcentration
			total += d.BaseConcentration
		}
		if total <= 0 || conc <= 0 {
			ll.Set(c, math.Inf(-1))
			continue
		}
		ll.Set(c, math.Log(conc/total))
	}
	return Term{Feature: "command_category", LogLikelihood: ll}
}

// betaLogPDF is the log-density of Beta(a,b) at x ∈ (0,1).
func betaLogPDF(x, a, b float64) float64 {
	x = clamp01Open(x)
	logBeta, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	lab, _ := math.Lgamma(a + b)
	logBeta = logBeta + lb - lab
	return (a-1)*math.Log(x) + (b-1)*math.Log(1-x) - logBeta
}

// gammaLogPDF is the log-density of Gamma(shape,rate) at x > 0.
func gammaLogPDF(x, shape, rate float64) float64 {
	if x <= 0 {
		x = 1e-9
	}
	lg, _ := math.Lgamma(shape)
	return shape*math.Log(rate) - lg + (shape-1)*math.Log(x) - rate*x
}

func clamp01Open(x float64) float64 {
	const eps = 1e-9
	if x < eps {
		return eps
	}
	if x > 1-eps {
		return 1 - eps
	}
	return x
}

// logSumExpNormalise converts unnormalised log-scores into a
// normalised probability simplex via the log-sum-exp trick.
func logSumExpNormalise(logScores model.ClassScores, classes [4]model.ClassKind) model.ClassScores {
	max := logScores.Get(classes[0])
	for _, c := range classes[1:] {
		if v := logScores.Get(c); v > max {
			max = v
		}
	}
	var sumExp float64
	for _, c := range classes {
		sumExp += math.Exp(logScores.Get(c) - max)
	}
	logNorm := max + math.Log(sumExp)

	var out model.ClassScores
	for _, c := range classes {
		out.Set(c, math.Exp(logScores.Get(c)-logNorm))
	}
	return out
}
