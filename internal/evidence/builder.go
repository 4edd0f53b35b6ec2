// Package evidence maps a collected ProcessRecord (plus optional deep
// signals) onto the feature vector the inference core conditions on
// (spec §4.2, component C2).
package evidence

import (
	"github.com/octoreflex/proctriage/internal/model"
)

// DeepSignal carries the expensive-to-read features a deep scan
// supplies for one process: network/io activity flags and an optional
// command category label (normally filled in by the signature
// matcher, spec §4.2 — "command category optionally supplied by
// signature matcher").
type DeepSignal struct {
	NetActive  *bool
	IOActive   *bool
	CommandCategory *string

	// GPUSignal is populated only by an external collaborator (spec
	// §1 scopes GPU telemetry collection out of this core); this
	// builder only ever forwards a value supplied here, never computes
	// one itself.
	GPUSignal *float64
}

// Build assembles Evidence from a ProcessRecord and an optional
// DeepSignal. Every feature is independently optional — a missing
// input field simply leaves the corresponding Evidence field nil,
// which the inference core treats as "no likelihood term for this
// feature" rather than an error.
func Build(rec model.ProcessRecord, deep *DeepSignal) model.Evidence {
	var ev model.Evidence

	cpu := model.Fraction(clampUnit(rec.CPUPercent / 100.0))
	ev.CPU = &cpu

	runtimeSecs := rec.Elapsed.Seconds()
	ev.RuntimeSeconds = &runtimeSecs

	orphan := rec.PPID == 1
	ev.Orphan = &orphan

	hasTTY := rec.TTY != nil
	ev.TTY = &hasTTY

	if rec.State != model.StateUnknown {
		flag := rec.State.StateFlag()
		ev.StateFlag = &flag
	}

	if deep != nil {
		ev.Net = deep.NetActive
		ev.IOActive = deep.IOActive
		ev.CommandCategory = deep.CommandCategory
		ev.GPUSignal = deep.GPUSignal
	}

	return ev
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
