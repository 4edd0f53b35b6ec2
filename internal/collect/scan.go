// Package collect implements the incremental process collector (spec
// §4.1): a cheap full-host scan, delta classification against a
// remembered inventory, PID-reuse detection, and an LRU-bounded
// inventory persisted across daemon restarts.
package collect

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// ScanResult is the output of one quick_scan: every live process the
// scanner could read, plus any non-fatal per-host warnings (a single
// unreadable /proc/<pid> is not a warning — it just means the process
// exited mid-scan, spec §7).
type ScanResult struct {
	Processes []model.ProcessRecord
	Warnings  []string
	ScannedAt time.Time
}

// Scanner enumerates the host's live processes. Production code uses
// ProcScanner (reads /proc); tests use a StaticScanner.
type Scanner interface {
	QuickScan() (ScanResult, error)
}

// StaticScanner is a test double returning a fixed ScanResult.
type StaticScanner struct {
	Result ScanResult
	Err    error
}

func (s StaticScanner) QuickScan() (ScanResult, error) { return s.Result, s.Err }

// ProcScanner reads process state from /proc on Linux.
type ProcScanner struct {
	// ProcRoot defaults to "/proc"; overridable in tests against a
	// synthetic tree.
	ProcRoot string
	BootID   string
}

// NewProcScanner creates a ProcScanner rooted at /proc, reading the
// kernel boot id once at construction (spec §6: /proc/sys/kernel/random/boot_id).
func NewProcScanner() *ProcScanner {
	s := &ProcScanner{ProcRoot: "/proc"}
	if b, err := os.ReadFile(filepath.Join(s.ProcRoot, "sys/kernel/random/boot_id")); err == nil {
		s.BootID = strings.TrimSpace(string(b))
	}
	return s
}

// QuickScan enumerates every numeric entry under ProcRoot and parses
// the cheap per-pid files (stat, status, cmdline). Missing per-pid
// files are not fatal — the process raced the scan and exited; it is
// simply omitted. A failure to read ProcRoot itself is fatal (global
// file error, spec §7).
func (s *ProcScanner) QuickScan() (ScanResult, error) {
	entries, err := os.ReadDir(s.ProcRoot)
	if err != nil {
		return ScanResult{}, fmt.Errorf("collect: read %q: %w", s.ProcRoot, err)
	}

	now := time.Now()
	res := ScanResult{ScannedAt: now}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		rec, err := s.readProcess(pid, now)
		if err != nil {
			continue // process exited mid-scan; non-fatal
		}
		res.Processes = append(res.Processes, rec)
	}
	return res, nil
}

func (s *ProcScanner) readProcess(pid int, now time.Time) (model.ProcessRecord, error) {
	dir := filepath.Join(s.ProcRoot, strconv.Itoa(pid))
	rec := model.ProcessRecord{PID: pid}

	statBytes, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return rec, err
	}
	startTicks, err := parseStat(string(statBytes), &rec)
	if err != nil {
		return rec, err
	}

	cmdBytes, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err == nil && len(cmdBytes) > 0 {
		parts := strings.Split(strings.TrimRight(string(cmdBytes), "\x00"), "\x00")
		rec.Cmd = parts
	}

	if uid, ok := readUID(filepath.Join(dir, "status")); ok {
		rec.UID = uid
	}

	rec.Elapsed = now.Sub(time.Unix(rec.StartTimeUnix, 0))
	if s.BootID != "" {
		rec.StartID = model.ComputeStartID(s.BootID, startTicks, pid)
	}
	return rec, nil
}

// parseStat parses /proc/<pid>/stat. The comm field can contain spaces
// and parens, so the split point is the LAST ")" in the line, not the
// first (the same technique xtop's collector uses).
func parseStat(line string, rec *model.ProcessRecord) (startTicks uint64, err error) {
	openIdx := strings.Index(line, "(")
	closeIdx := strings.LastIndex(line, ")")
	if openIdx < 0 || closeIdx < 0 || closeIdx < openIdx {
		return 0, fmt.Errorf("collect: malformed stat line")
	}
	rec.Comm = line[openIdx+1 : closeIdx]

	fields := strings.Fields(line[closeIdx+2:])
	// fields[0] = state, [1] = ppid, [2] = pgrp, [3] = session, ...
	// [19] = starttime (ticks since boot), 0-indexed from fields[0]=state.
	if len(fields) < 1 {
		return 0, fmt.Errorf("collect: truncated stat line")
	}
	rec.State = stateFromChar(fields[0])
	if len(fields) > 1 {
		rec.PPID = atoiOr(fields[1], 0)
	}
	if len(fields) > 2 {
		rec.PGID = atoiOr(fields[2], 0)
	}
	if len(fields) > 3 {
		sid := atoiOr(fields[3], 0)
		rec.SID = &sid
	}
	if len(fields) > 4 {
		ttyNr := atoiOr(fields[4], 0)
		if ttyNr != 0 {
			rec.TTY = &ttyNr
		}
	}
	const startTimeIdx = 19
	if len(fields) > startTimeIdx {
		startTicks = atou64Or(fields[startTimeIdx], 0)
	}
	const clockTicksPerSec = 100
	rec.StartTimeUnix = bootTimeUnix() + int64(startTicks)/clockTicksPerSec
	return startTicks, nil
}

func stateFromChar(c string) model.ProcState {
	if len(c) == 0 {
		return model.StateUnknown
	}
	switch c[0] {
	case 'R':
		return model.StateRunning
	case 'S':
		return model.StateSleeping
	case 'D':
		return model.StateDiskSleep
	case 'Z':
		return model.StateZombie
	case 'T', 't':
		return model.StateStopped
	case 'I':
		return model.StateIdle
	default:
		return model.StateUnknown
	}
}

// bootTimeUnix reads /proc/uptime-relative boot time. It is a package
// variable so tests can stub a fixed boot time.
var bootTimeUnix = func() int64 {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	uptime, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return time.Now().Unix() - int64(uptime)
}

func readUID(statusPath string) (int, bool) {
	f, err := os.Open(statusPath)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "Uid:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return atoiOr(fields[1], 0), true
			}
		}
	}
	return 0, false
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func atou64Or(s string, def uint64) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
