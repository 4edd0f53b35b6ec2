// Package session implements the triage session's typestate lifecycle:
// Created → Scanning → Planned → Executing → Completed, with Failed
// and Cancelled reachable from any non-terminal phase. Each phase is a
// distinct Go type; transition methods consume the receiver by value
// and return the next phase's type, so the compiler rejects any
// sequence the state diagram forbids (there is no method that turns a
// Completed back into a Scanning).
package session

import "time"

// State is the runtime-erased session state, used where the phase is
// only known at run time (persistence, logging, status queries).
type State int

const (
	StateCreated State = iota
	StateScanning
	StatePlanned
	StateExecuting
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateScanning:
		return "scanning"
	case StatePlanned:
		return "planned"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Data is the session information carried across every transition.
type Data struct {
	SessionID string
	Label     string
	CreatedAt time.Time
	Error     string
}

// AnyPhase is implemented by every phase type, for dispatch when the
// concrete phase isn't known until runtime.
type AnyPhase interface {
	Data() Data
	State() State
	PhaseName() string
}

// Created is the initial phase: the session exists but no scan has
// started.
type Created struct{ data Data }

// New starts a session in the Created phase.
func New(sessionID, label string, createdAt time.Time) Created {
	return Created{data: Data{SessionID: sessionID, Label: label, CreatedAt: createdAt}}
}

func (c Created) Data() Data      { return c.data }
func (Created) State() State      { return StateCreated }
func (Created) PhaseName() string { return "created" }

// StartScan transitions Created → Scanning.
func (c Created) StartScan() Scanning { return Scanning{data: c.data} }

// Fail transitions Created → Failed.
func (c Created) Fail(reason string) Failed {
	data := c.data
	data.Error = reason
	return Failed{data: data}
}

// Cancel transitions Created → Cancelled.
func (c Created) Cancel() Cancelled { return Cancelled{data: c.data} }

// Scanning is actively enumerating processes.
type Scanning struct{ data Data }

func (s Scanning) Data() Data      { return s.data }
func (Scanning) State() State      { return StateScanning }
func (Scanning) PhaseName() string { return "scanning" }

// FinishScan transitions Scanning → Planned.
func (s Scanning) FinishScan() Planned { return Planned{data: s.data} }

// Fail transitions Scanning → Failed.
func (s Scanning) Fail(reason string) Failed {
	data := s.data
	data.Error = reason
	return Failed{data: data}
}

// Cancel transitions Scanning → Cancelled.
func (s Scanning) Cancel() Cancelled { return Cancelled{data: s.data} }

// Planned holds a generated, not-yet-executed plan.
type Planned struct{ data Data }

func (p Planned) Data() Data      { return p.data }
func (Planned) State() State      { return StatePlanned }
func (Planned) PhaseName() string { return "planned" }

// StartExecution transitions Planned → Executing.
func (p Planned) StartExecution() Executing { return Executing{data: p.data} }

// Fail transitions Planned → Failed.
func (p Planned) Fail(reason string) Failed {
	data := p.data
	data.Error = reason
	return Failed{data: data}
}

// Cancel transitions Planned → Cancelled.
func (p Planned) Cancel() Cancelled { return Cancelled{data: p.data} }

// Executing is running the plan's actions.
type Executing struct{ data Data }

func (e Executing) Data() Data      { return e.data }
func (Executing) State() State      { return StateExecuting }
func (Executing) PhaseName() string { return "executing" }

// Complete transitions Executing → Completed.
func (e Executing) Complete() Completed { return Completed{data: e.data} }

// Fail transitions Executing → Failed.
func (e Executing) Fail(reason string) Failed {
	data := e.data
	data.Error = reason
	return Failed{data: data}
}

// Cancel transitions Executing → Cancelled.
func (e Executing) Cancel() Cancelled { return Cancelled{data: e.data} }

// Completed, Failed, and Cancelled are terminal: no method here
// returns to a non-terminal phase.

type Completed struct{ data Data }

func (c Completed) Data() Data      { return c.data }
func (Completed) State() State      { return StateCompleted }
func (Completed) PhaseName() string { return "completed" }

type Failed struct{ data Data }

func (f Failed) Data() Data      { return f.data }
func (Failed) State() State      { return StateFailed }
func (Failed) PhaseName() string { return "failed" }

// Reason returns the error that caused the failure.
func (f Failed) Reason() string { return f.data.Error }

type Cancelled struct{ data Data }

func (c Cancelled) Data() Data      { return c.data }
func (Cancelled) State() State      { return StateCancelled }
func (Cancelled) PhaseName() string { return "cancelled" }

// FromState wraps persisted Data with the AnyPhase matching its
// recorded State, for reconstructing a session after a restart.
func FromState(data Data, state State) AnyPhase {
	switch state {
	case StateCreated:
		return Created{data: data}
	case StateScanning:
		return Scanning{data: data}
	case StatePlanned:
		return Planned{data: data}
	case StateExecuting:
		return Executing{data: data}
	case StateCompleted:
		return Completed{data: data}
	case StateFailed:
		return Failed{data: data}
	default:
		return Cancelled{data: data}
	}
}
