package collect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func makeProc(pid int, comm string, cmd ...string) model.ProcessRecord {
	if len(cmd) == 0 {
		cmd = []string{comm}
	}
	return model.ProcessRecord{
		PID: pid, PPID: 1, UID: 1000, Comm: comm, Cmd: cmd,
		State: model.StateSleeping, CPUPercent: 0.5, RSSBytes: 1024 * 1024,
		Elapsed: time.Hour,
	}
}

func TestEngine_FirstScanAllAppeared(t *testing.T) {
	e := NewEngine(DefaultConfig())
	procs := []model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "sleep")}

	deltas := e.Update(procs)
	require.Len(t, deltas, 2)
	for _, d := range deltas {
		assert.Equal(t, DeltaAppeared, d.Kind)
	}
	assert.True(t, e.HasBaseline())
	assert.Equal(t, 2, e.InventorySize())
}

func TestEngine_StableScanAllUnchanged(t *testing.T) {
	e := NewEngine(DefaultConfig())
	procs := []model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "sleep")}

	e.Update(procs)
	deltas := e.Update(procs)
	s := Summarize(deltas)
	assert.Equal(t, 2, s.Unchanged)
	assert.Zero(t, s.Appeared)
	assert.Zero(t, s.Departed)
	assert.Zero(t, s.Changed)
}

func TestEngine_DepartedProcessDetected(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.Update([]model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "sleep")})

	deltas := e.Update([]model.ProcessRecord{makeProc(1, "bash")})
	s := Summarize(deltas)
	assert.Equal(t, 1, s.Departed)
	assert.Equal(t, 1, s.Unchanged)
	assert.Len(t, DepartedHashes(deltas), 1)
	assert.Equal(t, 1, e.InventorySize())
}

func TestEngine_NewProcessDetected(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.Update([]model.ProcessRecord{makeProc(1, "bash")})

	deltas := e.Update([]model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "node")})
	s := Summarize(deltas)
	assert.Equal(t, 1, s.Appeared)
	assert.Equal(t, 1, s.Unchanged)
}

func TestEngine_StateChangeIsMaterial(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := makeProc(1, "bash")
	e.Update([]model.ProcessRecord{p})

	p.State = model.StateZombie
	deltas := e.Update([]model.ProcessRecord{p})
	s := Summarize(deltas)
	assert.Equal(t, 1, s.Changed)
	assert.Zero(t, s.Unchanged)
}

func TestEngine_CPUChangeThreshold(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		wantChanged bool
	}{
		{"spike above threshold", 1.0, 7.0, true},
		{"small change below threshold", 1.0, 3.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultConfig())
			p := makeProc(1, "node")
			p.CPUPercent = tt.from
			e.Update([]model.ProcessRecord{p})

			p.CPUPercent = tt.to
			s := Summarize(e.Update([]model.ProcessRecord{p}))
			if tt.wantChanged {
				assert.Equal(t, 1, s.Changed)
			} else {
				assert.Equal(t, 1, s.Unchanged)
			}
		})
	}
}

func TestEngine_RSSChangeFraction(t *testing.T) {
	tests := []struct {
		name        string
		from, to    uint64
		wantChanged bool
	}{
		{"30pct increase is material", 100 * 1024 * 1024, 130 * 1024 * 1024, true},
		{"10pct increase is not material", 100 * 1024 * 1024, 110 * 1024 * 1024, false},
		{"zero to nonzero is material", 0, 1024, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultConfig())
			p := makeProc(1, "java")
			p.RSSBytes = tt.from
			e.Update([]model.ProcessRecord{p})

			p.RSSBytes = tt.to
			s := Summarize(e.Update([]model.ProcessRecord{p}))
			if tt.wantChanged {
				assert.Equal(t, 1, s.Changed)
			} else {
				assert.Equal(t, 1, s.Unchanged)
			}
		})
	}
}

func TestEngine_PIDReuseDetected(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.Update([]model.ProcessRecord{makeProc(42, "old_proc")})

	deltas := e.Update([]model.ProcessRecord{makeProc(42, "new_proc")})
	s := Summarize(deltas)
	assert.Equal(t, 1, s.Departed, "old identity should depart")
	assert.Equal(t, 1, s.Appeared, "new identity should appear")
}

func TestEngine_PIDsNeedingDeepScanFiltersCorrectly(t *testing.T) {
	e := NewEngine(DefaultConfig())
	changing := makeProc(2, "changing")
	e.Update([]model.ProcessRecord{makeProc(1, "stable"), changing})

	changing.State = model.StateZombie
	deltas := e.Update([]model.ProcessRecord{makeProc(1, "stable"), changing, makeProc(3, "newcomer")})

	pids := PIDsNeedingDeepScan(deltas)
	assert.Contains(t, pids, 2)
	assert.Contains(t, pids, 3)
	assert.NotContains(t, pids, 1)
}

func TestEngine_ConsecutiveSeenIncrements(t *testing.T) {
	e := NewEngine(DefaultConfig())
	p := makeProc(1, "bash")

	e.Update([]model.ProcessRecord{p})
	require.Equal(t, 1, e.inventory[p.IdentityHash()].ConsecutiveSeen)

	e.Update([]model.ProcessRecord{p})
	assert.Equal(t, 2, e.inventory[p.IdentityHash()].ConsecutiveSeen)

	e.Update([]model.ProcessRecord{p})
	assert.Equal(t, 3, e.inventory[p.IdentityHash()].ConsecutiveSeen)
}

func TestEngine_InventorySizeLimitEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInventorySize = 3
	e := NewEngine(cfg)

	var procs []model.ProcessRecord
	for i := 1; i <= 5; i++ {
		procs = append(procs, makeProc(i, "p"))
	}
	e.Update(procs)
	assert.LessOrEqual(t, e.InventorySize(), 3)
}

func TestDeltaSummary_UnchangedFraction(t *testing.T) {
	s := DeltaSummary{Total: 100, Appeared: 5, Departed: 3, Changed: 2, Unchanged: 90}
	assert.InDelta(t, 0.90, s.UnchangedFraction(), 0.001)
	assert.Equal(t, 7, s.NeedsWork())
}

func TestDeltaSummary_EmptyIsZero(t *testing.T) {
	var s DeltaSummary
	assert.Zero(t, s.UnchangedFraction())
	assert.Zero(t, s.NeedsWork())
}

func TestEngine_MultiScanLifecycle(t *testing.T) {
	e := NewEngine(DefaultConfig())

	d1 := e.Update([]model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "vim")})
	assert.Equal(t, 2, Summarize(d1).Appeared)

	d2 := e.Update([]model.ProcessRecord{makeProc(1, "bash"), makeProc(2, "vim"), makeProc(3, "node")})
	s2 := Summarize(d2)
	assert.Equal(t, 1, s2.Appeared)
	assert.Equal(t, 2, s2.Unchanged)

	d3 := e.Update([]model.ProcessRecord{makeProc(1, "bash"), makeProc(3, "node")})
	s3 := Summarize(d3)
	assert.Equal(t, 1, s3.Departed)
	assert.Equal(t, 2, s3.Unchanged)
	assert.Equal(t, 2, e.InventorySize())
}
