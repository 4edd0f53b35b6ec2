// Package integrity guards the boundary between a decision and the
// action it authorises: every PlanAction the executor is about to run
// passes through a Kernel first, which rejects parameters outside their
// configured bounds, rejects non-monotonic timestamps, and chains a
// SHA-256 hash of the decision's canonical inputs onto the hash of the
// decision before it — so a tampered or replayed decision record no
// longer matches the chain an auditor recomputes from the log.
//
// None of this replaces the statistical gates in internal/decision
// (DRO, FDR, the martingale stop) — it runs after them, on their
// output, as a last fail-closed check that whatever reaches the
// executor is a number a human configured the system to trust.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ViolationKind classifies why a DecisionRecord was rejected.
type ViolationKind string

const (
	ViolationParameterOutOfBounds ViolationKind = "parameter_out_of_bounds"
	ViolationNonMonotonicTime     ViolationKind = "non_monotonic_time"
	ViolationMissingAuditTrail    ViolationKind = "missing_audit_trail"
	ViolationNaNOrInf             ViolationKind = "nan_or_inf"
)

// Violation is returned by Validate when a DecisionRecord fails a gate.
type Violation struct {
	Kind      ViolationKind
	Message   string
	Timestamp time.Time
	Context   map[string]any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("integrity violation [%s]: %s", v.Kind, v.Message)
}

// DecisionRecord is the auditable shape of one plan action's decision
// inputs, captured at the moment the executor is about to act on it.
type DecisionRecord struct {
	ActionID    string
	PID         int
	FromClass   string
	ToAction    string
	Posterior   float64 // probability mass assigned to the winning class
	DROEpsilon  float64
	MartingaleP float64 // p-value that triggered the stop, if any; 1 when no test ran
	Timestamp   time.Time
	NodeID      string
	Inputs      map[string]any

	DecisionHash string
	ParentHash   string
	Verified     bool
}

// Bounds are the allowed ranges for the numeric fields of a
// DecisionRecord. Values outside these ranges indicate either a bug
// upstream or a tampered record, and are rejected either way.
type Bounds struct {
	PosteriorMin, PosteriorMax     float64
	DROEpsilonMin, DROEpsilonMax   float64
	MartingalePMin, MartingalePMax float64
	TimestampSkewTolerance         time.Duration
}

// DefaultBounds matches the ranges internal/decision and internal/model
// already enforce on these quantities: a posterior and a p-value are
// probabilities, and DRO epsilon's practical ceiling is
// config.DecisionConfig.DROMaxEpsilon — callers with a narrower,
// configured epsilon ceiling should build a Bounds from that value
// rather than trust this default's wide one.
func DefaultBounds() Bounds {
	return Bounds{
		PosteriorMin:           0.0,
		PosteriorMax:           1.0,
		DROEpsilonMin:          0.0,
		DROEpsilonMax:          1.0,
		MartingalePMin:         0.0,
		MartingalePMax:         1.0,
		TimestampSkewTolerance: 5 * time.Second,
	}
}

// Kernel validates DecisionRecords and chains their hashes. Safe for
// concurrent use.
type Kernel struct {
	mu sync.Mutex

	bounds        Bounds
	lastTimestamp time.Time
	lastHash      string

	violations int64
	verified   int64

	log    *zap.Logger
	strict bool // strict mode panics on violation; used in tests only
}

// NewKernel builds a Kernel with the given bounds. A nil logger is
// replaced with a no-op one.
func NewKernel(bounds Bounds, log *zap.Logger, strict bool) *Kernel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Kernel{
		bounds:        bounds,
		lastTimestamp: time.Time{},
		log:           log,
		strict:        strict,
	}
}

// Validate runs every gate against record, sets its DecisionHash and
// ParentHash on success, and returns a *Violation (never a bare error)
// on the first gate it fails. Validate must be called in the order
// records will be executed — the hash chain and the monotonicity check
// both assume that.
func (k *Kernel) Validate(record *DecisionRecord) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkTimeMonotonicity(record.Timestamp); err != nil {
		return k.reject(err)
	}
	if err := k.checkBounds(record); err != nil {
		return k.reject(err)
	}
	if len(record.Inputs) == 0 {
		return k.reject(&Violation{
			Kind:      ViolationMissingAuditTrail,
			Message:   "decision inputs not recorded",
			Timestamp: time.Now(),
			Context:   map[string]any{"action_id": record.ActionID, "pid": record.PID},
		})
	}

	hash, err := canonicalHash(record)
	if err != nil {
		return fmt.Errorf("integrity: hash decision: %w", err)
	}

	record.DecisionHash = hash
	record.ParentHash = k.lastHash
	record.Verified = true

	k.lastHash = hash
	k.lastTimestamp = record.Timestamp
	k.verified++

	k.log.Debug("decision record validated",
		zap.String("action_id", record.ActionID),
		zap.Int("pid", record.PID),
		zap.String("hash", hash[:16]),
		zap.Int64("verified_count", k.verified),
	)
	return nil
}

func (k *Kernel) checkTimeMonotonicity(ts time.Time) error {
	if k.lastTimestamp.IsZero() {
		return nil
	}
	if ts.Before(k.lastTimestamp) {
		return &Violation{
			Kind:      ViolationNonMonotonicTime,
			Message:   fmt.Sprintf("decision timestamp %v precedes previous %v", ts, k.lastTimestamp),
			Timestamp: time.Now(),
			Context: map[string]any{
				"current":  ts.Format(time.RFC3339Nano),
				"previous": k.lastTimestamp.Format(time.RFC3339Nano),
			},
		}
	}
	if skew := ts.Sub(k.lastTimestamp); skew > k.bounds.TimestampSkewTolerance {
		k.log.Warn("large decision timestamp skew",
			zap.Duration("skew", skew),
			zap.Duration("tolerance", k.bounds.TimestampSkewTolerance))
	}
	return nil
}

func (k *Kernel) checkBounds(record *DecisionRecord) error {
	fields := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{"posterior", record.Posterior, k.bounds.PosteriorMin, k.bounds.PosteriorMax},
		{"dro_epsilon", record.DROEpsilon, k.bounds.DROEpsilonMin, k.bounds.DROEpsilonMax},
		{"martingale_p", record.MartingaleP, k.bounds.MartingalePMin, k.bounds.MartingalePMax},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &Violation{
				Kind:      ViolationNaNOrInf,
				Message:   fmt.Sprintf("%s is NaN or Inf: %f", f.name, f.value),
				Timestamp: time.Now(),
				Context:   map[string]any{"action_id": record.ActionID, "parameter": f.name},
			}
		}
		if f.value < f.min || f.value > f.max {
			return &Violation{
				Kind:      ViolationParameterOutOfBounds,
				Message:   fmt.Sprintf("%s %.6f outside bounds [%.6f, %.6f]", f.name, f.value, f.min, f.max),
				Timestamp: time.Now(),
				Context: map[string]any{
					"action_id": record.ActionID,
					"parameter": f.name,
					"value":     f.value,
					"min":       f.min,
					"max":       f.max,
				},
			}
		}
	}
	return nil
}

func canonicalHash(record *DecisionRecord) (string, error) {
	canonical := map[string]any{
		"action_id":    record.ActionID,
		"pid":          record.PID,
		"from_class":   record.FromClass,
		"to_action":    record.ToAction,
		"posterior":    fmt.Sprintf("%.8f", record.Posterior),
		"dro_epsilon":  fmt.Sprintf("%.8f", record.DROEpsilon),
		"martingale_p": fmt.Sprintf("%.8f", record.MartingaleP),
		"timestamp":    record.Timestamp.UnixNano(),
		"node_id":      record.NodeID,
		"inputs":       record.Inputs,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// reject increments the violation counter, logs, and in strict mode
// panics — strict mode exists for tests that must fail loudly on a
// regression rather than silently counting it.
func (k *Kernel) reject(v *Violation) error {
	k.violations++
	k.log.Error("integrity violation",
		zap.String("kind", string(v.Kind)),
		zap.String("message", v.Message),
		zap.Any("context", v.Context),
		zap.Int64("total_violations", k.violations))

	if k.strict {
		panic(v.Error())
	}
	return v
}

// Stats summarises a Kernel's activity since construction.
type Stats struct {
	Verified   int64
	Violations int64
	LastHash   string
}

// Stats returns the kernel's current counters.
func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Stats{Verified: k.verified, Violations: k.violations, LastHash: k.lastHash}
}
