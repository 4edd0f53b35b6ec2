package collect

import (
	"sort"
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// DeltaKind classifies how a process changed between two scans (spec §4.1).
type DeltaKind int

const (
	DeltaAppeared DeltaKind = iota
	DeltaDeparted
	DeltaChanged
	DeltaUnchanged
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaAppeared:
		return "appeared"
	case DeltaDeparted:
		return "departed"
	case DeltaChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// NeedsDeepScan reports whether this delta kind warrants expensive
// evidence collection (Appeared or Changed, spec §4.1).
func (k DeltaKind) NeedsDeepScan() bool { return k == DeltaAppeared || k == DeltaChanged }

// ProcessDelta is one process's classification for an Update cycle.
type ProcessDelta struct {
	PID          int
	IdentityHash string
	Kind         DeltaKind

	// Current is set for Appeared, Changed, Unchanged.
	Current *model.ProcessRecord
	// Previous is set for Departed, Changed, Unchanged.
	Previous *model.InventoryEntry
}

// DeltaSummary aggregates counts across one Update call's deltas.
type DeltaSummary struct {
	Total, Appeared, Departed, Changed, Unchanged int
}

// UnchangedFraction returns Unchanged/Total, or 0 if Total is 0.
func (s DeltaSummary) UnchangedFraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Unchanged) / float64(s.Total)
}

// NeedsWork returns the count of processes requiring expensive re-evaluation.
func (s DeltaSummary) NeedsWork() int { return s.Appeared + s.Changed }

// Summarize tallies a delta slice into a DeltaSummary.
func Summarize(deltas []ProcessDelta) DeltaSummary {
	var s DeltaSummary
	for _, d := range deltas {
		switch d.Kind {
		case DeltaAppeared:
			s.Appeared++
		case DeltaDeparted:
			s.Departed++
		case DeltaChanged:
			s.Changed++
		default:
			s.Unchanged++
		}
	}
	s.Total = len(deltas)
	return s
}

// PIDsNeedingDeepScan extracts the PIDs of Appeared/Changed deltas.
func PIDsNeedingDeepScan(deltas []ProcessDelta) []int {
	var out []int
	for _, d := range deltas {
		if d.Kind.NeedsDeepScan() && d.Current != nil {
			out = append(out, d.Current.PID)
		}
	}
	return out
}

// DepartedHashes extracts the identity hashes of Departed deltas.
func DepartedHashes(deltas []ProcessDelta) []string {
	var out []string
	for _, d := range deltas {
		if d.Kind == DeltaDeparted {
			out = append(out, d.IdentityHash)
		}
	}
	return out
}

// Config bounds the incremental engine's change-detection and
// retention behaviour (spec §4.1, defaults match the original
// implementation's defaults).
type Config struct {
	// CPUChangeThreshold is the absolute percentage-point delta that
	// counts as material.
	CPUChangeThreshold float64
	// RSSChangeFraction is the fraction of previous RSS that counts as
	// material.
	RSSChangeFraction float64
	// MaxStaleness forces a re-scan of an entry older than this even if
	// nothing else changed.
	MaxStaleness time.Duration
	// MaxInventorySize triggers LRU eviction (lowest ConsecutiveSeen
	// first) once exceeded.
	MaxInventorySize int
}

// DefaultConfig mirrors the original implementation's defaults.
func DefaultConfig() Config {
	return Config{
		CPUChangeThreshold: 5.0,
		RSSChangeFraction:  0.20,
		MaxStaleness:       10 * time.Minute,
		MaxInventorySize:   100_000,
	}
}

// Engine is the incremental scanning engine: feed it successive
// ScanResults via Update and it returns per-process deltas against its
// remembered inventory.
type Engine struct {
	inventory  map[string]model.InventoryEntry
	pidToHash  map[int]string
	config     Config
	hasBaseline bool
}

// NewEngine constructs an Engine with an empty inventory.
func NewEngine(config Config) *Engine {
	return &Engine{
		inventory: make(map[string]model.InventoryEntry),
		pidToHash: make(map[int]string),
		config:    config,
	}
}

// Seed pre-populates the inventory from persisted entries (used on
// daemon restart to avoid reclassifying every surviving process as
// Appeared).
func (e *Engine) Seed(entries map[string]model.InventoryEntry) {
	for hash, entry := range entries {
		e.inventory[hash] = entry
		e.pidToHash[entry.PID] = hash
	}
	if len(entries) > 0 {
		e.hasBaseline = true
	}
}

// Snapshot returns a copy of the current inventory, suitable for
// persistence via Store.SaveAll.
func (e *Engine) Snapshot() map[string]model.InventoryEntry {
	out := make(map[string]model.InventoryEntry, len(e.inventory))
	for k, v := range e.inventory {
		out[k] = v
	}
	return out
}

// InventorySize returns the number of tracked identities.
func (e *Engine) InventorySize() int { return len(e.inventory) }

// HasBaseline reports whether at least one scan has been ingested.
func (e *Engine) HasBaseline() bool { return e.hasBaseline }

// Update ingests a new scan and returns per-process deltas. On the
// very first call (no baseline) every process is Appeared.
func (e *Engine) Update(processes []model.ProcessRecord) []ProcessDelta {
	now := time.Now()
	deltas := make([]ProcessDelta, 0, len(processes))
	seen := make(map[string]struct{}, len(processes))

	for i := range processes {
		proc := processes[i]
		hash := proc.IdentityHash()
		seen[hash] = struct{}{}

		if prev, ok := e.inventory[hash]; ok {
			kind := DeltaUnchanged
			if e.isMaterialChange(proc, prev, now) {
				kind = DeltaChanged
			}
			prevCopy := prev
			deltas = append(deltas, ProcessDelta{
				PID: proc.PID, IdentityHash: hash, Kind: kind,
				Current: &processes[i], Previous: &prevCopy,
			})
		} else {
			if oldHash, ok := e.pidToHash[proc.PID]; ok && oldHash != hash {
				if oldEntry, ok := e.inventory[oldHash]; ok {
					oldEntryCopy := oldEntry
					deltas = append(deltas, ProcessDelta{
						PID: proc.PID, IdentityHash: oldHash, Kind: DeltaDeparted,
						Previous: &oldEntryCopy,
					})
				}
				delete(e.inventory, oldHash)
			}
			deltas = append(deltas, ProcessDelta{
				PID: proc.PID, IdentityHash: hash, Kind: DeltaAppeared,
				Current: &processes[i],
			})
		}

		consecutive := 1
		if prev, ok := e.inventory[hash]; ok {
			consecutive = prev.ConsecutiveSeen + 1
		}
		entry := model.InventoryEntryFrom(proc, now)
		entry.ConsecutiveSeen = consecutive
		e.inventory[hash] = entry
		e.pidToHash[proc.PID] = hash
	}

	if e.hasBaseline {
		var departedHashes []string
		for hash := range e.inventory {
			if _, ok := seen[hash]; !ok {
				departedHashes = append(departedHashes, hash)
			}
		}
		for _, hash := range departedHashes {
			entry := e.inventory[hash]
			deltas = append(deltas, ProcessDelta{
				PID: entry.PID, IdentityHash: hash, Kind: DeltaDeparted,
				Previous: &entry,
			})
			delete(e.inventory, hash)
			delete(e.pidToHash, entry.PID)
		}
	}

	e.enforceSizeLimit()
	e.hasBaseline = true
	return deltas
}

// isMaterialChange implements spec §4.1's change-detection rule: state
// change is always material; CPU/RSS deltas beyond configured
// thresholds are material; a zero→non-zero RSS transition is material;
// an entry past MaxStaleness is forced material regardless of other
// fields.
func (e *Engine) isMaterialChange(current model.ProcessRecord, prev model.InventoryEntry, now time.Time) bool {
	if current.State != prev.State {
		return true
	}
	if diff := current.CPUPercent - prev.CPUPercent; diff > e.config.CPUChangeThreshold || diff < -e.config.CPUChangeThreshold {
		return true
	}
	if prev.RSSBytes > 0 {
		ratio := absFloat(float64(current.RSSBytes)-float64(prev.RSSBytes)) / float64(prev.RSSBytes)
		if ratio > e.config.RSSChangeFraction {
			return true
		}
	} else if current.RSSBytes > 0 {
		return true
	}
	if e.config.MaxStaleness > 0 && now.Sub(prev.LastSeenInstant) > e.config.MaxStaleness {
		return true
	}
	return false
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// enforceSizeLimit evicts the lowest-ConsecutiveSeen entries once the
// inventory exceeds MaxInventorySize (spec §4.1 property: LRU
// eviction is deterministic and stable-sorted by identity hash to
// break ties).
func (e *Engine) enforceSizeLimit() {
	if e.config.MaxInventorySize <= 0 || len(e.inventory) <= e.config.MaxInventorySize {
		return
	}
	excess := len(e.inventory) - e.config.MaxInventorySize

	type candidate struct {
		hash  string
		count int
	}
	candidates := make([]candidate, 0, len(e.inventory))
	for hash, entry := range e.inventory {
		candidates = append(candidates, candidate{hash, entry.ConsecutiveSeen})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count < candidates[j].count
		}
		return candidates[i].hash < candidates[j].hash
	})

	for _, c := range candidates[:excess] {
		if entry, ok := e.inventory[c.hash]; ok {
			delete(e.pidToHash, entry.PID)
		}
		delete(e.inventory, c.hash)
	}
}
