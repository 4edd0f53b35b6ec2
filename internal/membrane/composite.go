package membrane

import (
	"fmt"
	"sync"
)

// Regime classifies the membrane's current read on system stability,
// mirroring the three-way coarsening the escalation state machine
// applies to its own finer-grained isolation levels.
type Regime int

const (
	RegimeNominal Regime = iota
	RegimeDrifting
	RegimeRegimeChange
)

func (r Regime) String() string {
	switch r {
	case RegimeDrifting:
		return "drifting"
	case RegimeRegimeChange:
		return "regime_change"
	default:
		return "nominal"
	}
}

// Weights are the composite signal's per-detector weights. They must
// sum to 1.0 within tolerance, the same validation idiom
// escalation.Weights applies to its four severity-formula weights.
type Weights struct {
	BOCPD       float64
	IMM         float64
	Wasserstein float64
}

// DefaultWeights gives BOCPD and IMM equal primary weight with
// Wasserstein as a confirming third signal.
func DefaultWeights() Weights {
	return Weights{BOCPD: 0.4, IMM: 0.4, Wasserstein: 0.2}
}

// Validate checks the weights sum to 1.0 within 0.01, per spec §4.2.
func (w Weights) Validate() error {
	total := w.BOCPD + w.IMM + w.Wasserstein
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("membrane weights must sum to 1.0±0.01, got %f", total)
	}
	return nil
}

// Thresholds gates the composite score into a Regime and drives the
// sticky safe-mode latch.
type Thresholds struct {
	SafeModeThreshold float64
	ConfirmationTicks int
}

// DefaultThresholds mirrors the spec's stated default of 3 consecutive
// ticks at or above the safe-mode threshold before latching.
func DefaultThresholds() Thresholds {
	return Thresholds{SafeModeThreshold: 0.75, ConfirmationTicks: 3}
}

// Reading is one tick's membrane output.
type Reading struct {
	BOCPDScore       float64
	IMMScore         float64
	WassersteinScore float64
	WassersteinBucket Severity
	Composite        float64
	Regime           Regime
	SafeMode         bool
}

// Engine composes the three detectors into a single sticky composite
// signal. State transitions are serialised under mu, the same
// per-instance-mutex discipline the escalation state machine uses for
// its own "atomic under a per-PID mutex" guarantee.
type Engine struct {
	mu sync.Mutex

	bocpd        *BOCPD
	imm          *IMM
	wasserstein  *WassersteinDetector

	weights    Weights
	thresholds Thresholds

	consecutiveAboveThreshold int
	safeMode                  bool
}

// NewEngine builds a membrane engine. Returns an error if weights do
// not sum to 1.0±0.01.
func NewEngine(bocpd *BOCPD, imm *IMM, wasserstein *WassersteinDetector, weights Weights, thresholds Thresholds) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if thresholds.ConfirmationTicks <= 0 {
		thresholds.ConfirmationTicks = 3
	}
	return &Engine{
		bocpd:       bocpd,
		imm:         imm,
		wasserstein: wasserstein,
		weights:     weights,
		thresholds:  thresholds,
	}, nil
}

// Observe ingests one scalar system-pressure sample (spec §4.2: the
// membrane watches a scalar summary signal, e.g. composite anomaly
// rate) and returns this tick's Reading.
func (e *Engine) Observe(x float64) Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	bocpdScore := e.bocpd.Observe(x)
	immScore := e.imm.Observe(x)
	_, bucket := e.wasserstein.Observe(x)
	wassersteinScore := bucket.Score()

	composite := e.weights.BOCPD*bocpdScore + e.weights.IMM*immScore + e.weights.Wasserstein*wassersteinScore
	if composite < 0 {
		composite = 0
	}
	if composite > 1 {
		composite = 1
	}

	if composite >= e.thresholds.SafeModeThreshold {
		e.consecutiveAboveThreshold++
	} else {
		e.consecutiveAboveThreshold = 0
	}
	if e.consecutiveAboveThreshold >= e.thresholds.ConfirmationTicks {
		e.safeMode = true
	}

	regime := RegimeNominal
	switch {
	case e.safeMode:
		regime = RegimeRegimeChange
	case composite > e.thresholds.SafeModeThreshold/2:
		regime = RegimeDrifting
	}

	return Reading{
		BOCPDScore:        bocpdScore,
		IMMScore:          immScore,
		WassersteinScore:  wassersteinScore,
		WassersteinBucket: bucket,
		Composite:         composite,
		Regime:            regime,
		SafeMode:          e.safeMode,
	}
}

// SafeMode reports whether the sticky safe-mode latch is currently
// set.
func (e *Engine) SafeMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safeMode
}

// Reset clears the sticky safe-mode latch and all underlying detector
// state. Safe-mode does not clear itself — spec §4.2 requires an
// explicit reset, mirroring IsTerminal's one-way isolation-state latch.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bocpd.Reset()
	e.imm.Reset()
	e.wasserstein.Reset()
	e.consecutiveAboveThreshold = 0
	e.safeMode = false
}
