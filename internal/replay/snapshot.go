// Package replay records a live scan into a portable JSON snapshot and
// deterministically re-runs it through the inference/decision pipeline
// (spec §4.8, component C9): identical priors + policy + snapshot must
// produce identical classification, action, and expected loss every
// time, which makes snapshots useful for regression tests and bug
// reproduction without a live host.
package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/model"
)

// SchemaVersion is the schema_version this package writes; Load
// accepts any snapshot whose major version matches.
const SchemaVersion = "1.0.0"

// Errors returned by Record/Load.
var (
	ErrEmptySnapshot = fmt.Errorf("snapshot has no processes")
)

// IncompatibleSchemaError is returned by Load when a snapshot's major
// schema version does not match the version this build writes.
type IncompatibleSchemaError struct {
	Found    string
	Expected string
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("snapshot schema version %s is not compatible (expected %s)", e.Found, e.Expected)
}

// SystemContext is the host context recorded alongside a scan.
type SystemContext struct {
	HostnameHash     *string `json:"hostname_hash,omitempty"`
	BootID           *string `json:"boot_id,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
	Platform         string  `json:"platform"`
	TotalMemoryBytes *uint64 `json:"total_memory_bytes,omitempty"`
	CPUCount         *int    `json:"cpu_count,omitempty"`
}

// ScanMetadata describes the scan that produced the snapshot's
// processes.
type ScanMetadata struct {
	ScanType     string   `json:"scan_type"`
	DurationMS   uint64   `json:"duration_ms"`
	ProcessCount int      `json:"process_count"`
	Warnings     []string `json:"warnings,omitempty"`
}

// DeepSignalRecord is the persisted form of an optional deep-scan
// enrichment for one process.
type DeepSignalRecord struct {
	NetActive *bool `json:"net_active,omitempty"`
	IOActive  *bool `json:"io_active,omitempty"`
}

// processRecordJSON is the on-disk shape of a model.ProcessRecord; the
// in-memory type carries no json tags of its own (it is shared with
// the live collector, which never serialises it), so replay owns its
// own wire encoding and converts at the boundary.
type processRecordJSON struct {
	PID           int      `json:"pid"`
	PPID          int      `json:"ppid"`
	UID           int      `json:"uid"`
	PGID          int      `json:"pgid,omitempty"`
	SID           *int     `json:"sid,omitempty"`
	StartID       string   `json:"start_id"`
	Comm          string   `json:"comm"`
	Cmd           []string `json:"cmd"`
	State         string   `json:"state"`
	CPUPercent    float64  `json:"cpu_percent"`
	RSSBytes      uint64   `json:"rss_bytes"`
	VSZBytes      uint64   `json:"vsz_bytes"`
	TTY           *int     `json:"tty,omitempty"`
	ElapsedSecs   float64  `json:"elapsed_secs"`
	StartTimeUnix int64    `json:"start_time_unix"`
}

func toJSONRecord(r model.ProcessRecord) processRecordJSON {
	return processRecordJSON{
		PID: r.PID, PPID: r.PPID, UID: r.UID, PGID: r.PGID, SID: r.SID,
		StartID: r.StartID, Comm: r.Comm, Cmd: r.Cmd, State: r.State.String(),
		CPUPercent: r.CPUPercent, RSSBytes: r.RSSBytes, VSZBytes: r.VSZBytes,
		TTY: r.TTY, ElapsedSecs: r.Elapsed.Seconds(), StartTimeUnix: r.StartTimeUnix,
	}
}

func fromJSONRecord(j processRecordJSON) model.ProcessRecord {
	return model.ProcessRecord{
		PID: j.PID, PPID: j.PPID, UID: j.UID, PGID: j.PGID, SID: j.SID,
		StartID: j.StartID, Comm: j.Comm, Cmd: j.Cmd, State: stateFromString(j.State),
		CPUPercent: j.CPUPercent, RSSBytes: j.RSSBytes, VSZBytes: j.VSZBytes,
		TTY: j.TTY, Elapsed: time.Duration(j.ElapsedSecs * float64(time.Second)), StartTimeUnix: j.StartTimeUnix,
	}
}

func stateFromString(s string) model.ProcState {
	switch s {
	case "running":
		return model.StateRunning
	case "sleeping":
		return model.StateSleeping
	case "disk_sleep":
		return model.StateDiskSleep
	case "zombie":
		return model.StateZombie
	case "stopped":
		return model.StateStopped
	case "idle":
		return model.StateIdle
	default:
		return model.StateUnknown
	}
}

// snapshotJSON is the top-level on-disk document shape.
type snapshotJSON struct {
	SchemaVersion string                      `json:"schema_version"`
	Name          string                      `json:"name"`
	Description   *string                     `json:"description,omitempty"`
	Context       SystemContext               `json:"context"`
	ScanMetadata  ScanMetadata                `json:"scan_metadata"`
	Processes     []processRecordJSON         `json:"processes"`
	DeepSignals   map[string]DeepSignalRecord `json:"deep_signals,omitempty"`
}

// Snapshot is a fully materialised replay snapshot: everything needed
// to re-run the inference/decision pipeline without a live host.
type Snapshot struct {
	SchemaVersion string
	Name          string
	Description   *string
	Context       SystemContext
	ScanMetadata  ScanMetadata
	Processes     []model.ProcessRecord
	DeepSignals   map[int]DeepSignalRecord
}

// Record builds a Snapshot from a live ScanResult. name defaults to a
// timestamp-based label if nil.
func Record(scan collect.ScanResult, name *string) (Snapshot, error) {
	if len(scan.Processes) == 0 {
		return Snapshot{}, ErrEmptySnapshot
	}

	label := "snapshot-" + scan.ScannedAt.Format("20060102-150405")
	if name != nil {
		label = *name
	}

	return Snapshot{
		SchemaVersion: SchemaVersion,
		Name:          label,
		Context: SystemContext{
			RecordedAt: scan.ScannedAt,
			Platform:   "linux",
		},
		ScanMetadata: ScanMetadata{
			ScanType:     "live",
			ProcessCount: len(scan.Processes),
			Warnings:     scan.Warnings,
		},
		Processes:   scan.Processes,
		DeepSignals: map[int]DeepSignalRecord{},
	}, nil
}

// Save writes the snapshot as pretty-printed JSON.
func (s Snapshot) Save(path string) error {
	doc := snapshotJSON{
		SchemaVersion: s.SchemaVersion,
		Name:          s.Name,
		Description:   s.Description,
		Context:       s.Context,
		ScanMetadata:  s.ScanMetadata,
	}
	for _, p := range s.Processes {
		doc.Processes = append(doc.Processes, toJSONRecord(p))
	}
	if len(s.DeepSignals) > 0 {
		doc.DeepSignals = make(map[string]DeepSignalRecord, len(s.DeepSignals))
		for pid, d := range s.DeepSignals {
			doc.DeepSignals[strconv.Itoa(pid)] = d
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a snapshot from disk, rejecting a schema major-version
// mismatch.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var doc snapshotJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, err
	}

	if majorOf(doc.SchemaVersion) != majorOf(SchemaVersion) {
		return Snapshot{}, &IncompatibleSchemaError{Found: doc.SchemaVersion, Expected: SchemaVersion}
	}

	snap := Snapshot{
		SchemaVersion: doc.SchemaVersion,
		Name:          doc.Name,
		Description:   doc.Description,
		Context:       doc.Context,
		ScanMetadata:  doc.ScanMetadata,
		DeepSignals:   map[int]DeepSignalRecord{},
	}
	for _, j := range doc.Processes {
		snap.Processes = append(snap.Processes, fromJSONRecord(j))
	}
	for pidStr, d := range doc.DeepSignals {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		snap.DeepSignals[pid] = d
	}
	return snap, nil
}

func majorOf(version string) string {
	parts := strings.SplitN(version, ".", 2)
	return parts[0]
}

// ToScanResult reconstructs a collect.ScanResult from the snapshot, for
// feeding back through code that expects a live scan's shape.
func (s Snapshot) ToScanResult() collect.ScanResult {
	return collect.ScanResult{
		Processes: s.Processes,
		Warnings:  append([]string{"replayed from snapshot: " + s.Name}, s.ScanMetadata.Warnings...),
		ScannedAt: s.Context.RecordedAt,
	}
}

// Anonymize replaces every process's command line with a stable hash
// and its UID with a fixed sentinel, in place. model.ProcessRecord
// carries no username field (only a numeric UID), so the Go
// equivalent of "replace username with user" is to collapse UID to a
// single fixed value rather than rewrite a string field that doesn't
// exist.
func (s *Snapshot) Anonymize() {
	const anonymizedUID = 0
	for i := range s.Processes {
		sum := sha256.Sum256([]byte(strings.Join(s.Processes[i].Cmd, "\x00")))
		s.Processes[i].Cmd = []string{fmt.Sprintf("<hashed:%s>", hex.EncodeToString(sum[:8]))}
		s.Processes[i].UID = anonymizedUID
	}
	if s.Context.HostnameHash != nil {
		sum := sha256.Sum256([]byte(*s.Context.HostnameHash))
		hashed := hex.EncodeToString(sum[:8])
		s.Context.HostnameHash = &hashed
	}
}
