package replay

import (
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// scenarioBootID is the fixed boot id baked into every scenario's
// StartID, so scenario snapshots are byte-identical across runs.
const scenarioBootID = "00000000-0000-0000-0000-000000000001"

type procBuilder struct {
	rec model.ProcessRecord
}

func newProc(pid int, comm, cmdline string) *procBuilder {
	return &procBuilder{rec: model.ProcessRecord{
		PID: pid, PPID: 1, UID: 1000, PGID: pid, SID: &pid,
		StartID: model.ComputeStartID(scenarioBootID, 1234567890, pid),
		Comm:    comm, Cmd: []string{cmdline},
		State: model.StateSleeping, RSSBytes: 10 * 1024 * 1024, VSZBytes: 50 * 1024 * 1024,
		StartTimeUnix: 0, Elapsed: time.Hour,
	}}
}

func (b *procBuilder) ppid(ppid int) *procBuilder { b.rec.PPID = ppid; return b }
func (b *procBuilder) state(s model.ProcState) *procBuilder { b.rec.State = s; return b }
func (b *procBuilder) cpu(pct float64) *procBuilder { b.rec.CPUPercent = pct; return b }
func (b *procBuilder) rss(bytes uint64) *procBuilder { b.rec.RSSBytes = bytes; return b }
func (b *procBuilder) elapsed(d time.Duration) *procBuilder { b.rec.Elapsed = d; return b }
func (b *procBuilder) tty(dev int) *procBuilder { b.rec.TTY = &dev; return b }
func (b *procBuilder) build() model.ProcessRecord { return b.rec }

func buildScenario(name, description string, processes []model.ProcessRecord, deep map[int]DeepSignalRecord) Snapshot {
	cpuCount := 8
	totalMem := uint64(16 * 1024 * 1024 * 1024)
	bootID := scenarioBootID
	hostHash := "scenario-host"
	desc := description

	return Snapshot{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Description:   &desc,
		Context: SystemContext{
			HostnameHash:     &hostHash,
			BootID:           &bootID,
			Platform:         "linux",
			TotalMemoryBytes: &totalMem,
			CPUCount:         &cpuCount,
		},
		ScanMetadata: ScanMetadata{ScanType: "scenario", ProcessCount: len(processes)},
		Processes:    processes,
		DeepSignals:  deep,
	}
}

func boolPtr(b bool) *bool { return &b }

// ZombieTree is scenario S1: a crashed build system leaving a zombie
// parent and four zombie children, plus one orphan reparented to
// init and two unrelated normal services. Expected replay outcome:
// all five zombies classify "zombie" with Kill recommended for at
// least the zombie parent (pid 30001); sshd and cron classify
// "useful" with Keep.
func ZombieTree() Snapshot {
	processes := []model.ProcessRecord{
		newProc(30001, "make", "make -j8 all").ppid(1).state(model.StateZombie).cpu(0).rss(0).elapsed(2 * time.Hour).build(),
		newProc(30002, "cc1", "cc1 -O2 src/module1.c").ppid(30001).state(model.StateZombie).cpu(0).rss(0).elapsed(2 * time.Hour).build(),
		newProc(30003, "cc1", "cc1 -O2 src/module2.c").ppid(30001).state(model.StateZombie).cpu(0).rss(0).elapsed(2 * time.Hour).build(),
		newProc(30004, "ld", "ld -o output src/module1.o src/module2.o").ppid(30001).state(model.StateZombie).cpu(0).rss(0).elapsed(2 * time.Hour).build(),
		newProc(30005, "as", "as -o src/startup.o src/startup.s").ppid(30001).state(model.StateZombie).cpu(0).rss(0).elapsed(2 * time.Hour).build(),
		newProc(30006, "sleep", "sleep infinity").ppid(1).state(model.StateSleeping).cpu(0).rss(4 * 1024 * 1024).elapsed(2 * time.Hour).build(),
		newProc(30007, "sshd", "/usr/sbin/sshd -D").ppid(1).state(model.StateSleeping).cpu(0).rss(8 * 1024 * 1024).elapsed(30 * 24 * time.Hour).build(),
		newProc(30008, "cron", "/usr/sbin/cron -f").ppid(1).state(model.StateSleeping).cpu(0).rss(4 * 1024 * 1024).elapsed(30 * 24 * time.Hour).build(),
	}

	return buildScenario(
		"zombie_tree",
		"Orphaned process tree from crashed build system. 5 zombies + 1 orphan, 2 normal services.",
		processes,
		map[int]DeepSignalRecord{},
	)
}

// StuckTests is scenario S6: a CI environment with three stuck pytest
// processes, two stuck cargo test processes, one active nginx worker,
// and one idle vim session attached to a TTY. Expected replay outcome:
// at least three of the five test processes recommended for Kill or
// Pause; nginx and vim recommended Keep.
func StuckTests() Snapshot {
	processes := []model.ProcessRecord{
		newProc(10001, "python3", "python3 -m pytest tests/ -v --timeout=300").
			ppid(1).state(model.StateRunning).cpu(95.0).rss(512 * 1024 * 1024).elapsed(4 * time.Hour).build(),
		newProc(10002, "python3", "python3 -m pytest tests/integration/ -x").
			ppid(1).state(model.StateRunning).cpu(88.0).rss(384 * 1024 * 1024).elapsed(3 * time.Hour).build(),
		newProc(10003, "python3", "python3 -m pytest tests/slow/ --no-header").
			ppid(1).state(model.StateSleeping).cpu(0).rss(256 * 1024 * 1024).elapsed(6 * time.Hour).build(),
		newProc(10004, "cargo", "cargo test --release -- --test-threads=1").
			ppid(1).state(model.StateRunning).cpu(100.0).rss(1024 * 1024 * 1024).elapsed(2 * time.Hour).build(),
		newProc(10005, "test_runner", "/target/release/deps/integration_tests-abc123").
			ppid(10004).state(model.StateDiskSleep).cpu(0).rss(768 * 1024 * 1024).elapsed(2 * time.Hour).build(),
		newProc(10006, "nginx", "nginx: worker process").
			ppid(1).state(model.StateSleeping).cpu(2.0).rss(32 * 1024 * 1024).elapsed(72 * time.Hour).build(),
		func() model.ProcessRecord {
			rec := newProc(10007, "vim", "vim src/main.rs").
				ppid(1000).state(model.StateSleeping).cpu(0).rss(16 * 1024 * 1024).elapsed(time.Hour)
			return rec.tty(1).build()
		}(),
	}

	deep := map[int]DeepSignalRecord{
		10001: {NetActive: boolPtr(false), IOActive: boolPtr(false)},
		10006: {NetActive: boolPtr(true), IOActive: boolPtr(true)},
	}

	return buildScenario(
		"stuck_tests",
		"Multiple stuck test runners consuming resources. Expected: tests recommended for kill, webserver and editor kept.",
		processes,
		deep,
	)
}
