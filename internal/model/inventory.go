package model

import "time"

// InventoryEntry is the compact prior-scan snapshot the incremental
// collector keeps per identity, used to classify the next scan's
// deltas without re-reading every /proc file (spec §3).
type InventoryEntry struct {
	PID             int
	IdentityHash    string
	Comm            string
	State           ProcState
	CPUPercent      float64
	RSSBytes        uint64
	ElapsedSecs     float64
	LastSeenInstant time.Time

	// ConsecutiveSeen increments on every scan this identity is present
	// in, and is the tie-break key for LRU eviction when the inventory
	// exceeds MaxInventorySize (lowest ConsecutiveSeen evicted first).
	ConsecutiveSeen int
}

// InventoryEntryFrom builds the inventory entry recorded for a freshly seen
// ProcessRecord.
func InventoryEntryFrom(r ProcessRecord, now time.Time) InventoryEntry {
	return InventoryEntry{
		PID:             r.PID,
		IdentityHash:    r.IdentityHash(),
		Comm:            r.Comm,
		State:           r.State,
		CPUPercent:      r.CPUPercent,
		RSSBytes:        r.RSSBytes,
		ElapsedSecs:     r.Elapsed.Seconds(),
		LastSeenInstant: now,
		ConsecutiveSeen: 1,
	}
}
