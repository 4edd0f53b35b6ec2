package executor

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// LivePreCheckConfig tunes the data-loss gate. Fields are used as
// given: the zero value allows no open write fds and disables every
// other gate; DefaultLivePreCheckConfig holds the conservative defaults.
type LivePreCheckConfig struct {
	MaxOpenWriteFDs       int
	BlockIfLockedFiles    bool
	BlockIfActiveTTY      bool
	BlockIfDeletedCwd     bool
	BlockIfRecentIOWithin time.Duration
}

// DefaultLivePreCheckConfig matches the teacher's conservative
// defaults: block on any open write fd, any lock, any active tty, a
// deleted cwd, or I/O within the last minute.
func DefaultLivePreCheckConfig() LivePreCheckConfig {
	return LivePreCheckConfig{
		MaxOpenWriteFDs:       0,
		BlockIfLockedFiles:    true,
		BlockIfActiveTTY:      true,
		BlockIfDeletedCwd:     true,
		BlockIfRecentIOWithin: 60 * time.Second,
	}
}

var knownSupervisors = map[string]bool{
	"systemd":          true,
	"init":             true,
	"upstart":          true,
	"supervisord":      true,
	"runit":            true,
	"s6-supervise":     true,
	"runsv":            true,
	"containerd-shim":  true,
	"docker-containerd": true,
}

// LivePreCheckProvider implements PreCheckProvider by re-reading
// /proc immediately before acting — every check here is TOCTOU-safe by
// construction, since it reflects the process's current state rather
// than whatever the decision module observed earlier.
type LivePreCheckProvider struct {
	protectedPIDs      map[int]bool
	protectedUsernames map[string]bool
	protectedPatterns  []patternCheck
	config             LivePreCheckConfig
}

type patternCheck func(comm, cmdline string) bool

// NewLivePreCheckProvider builds a provider. protectedPIDs and
// protectedUsernames may be nil.
func NewLivePreCheckProvider(protectedPIDs map[int]bool, protectedUsernames map[string]bool, config LivePreCheckConfig) *LivePreCheckProvider {
	return &LivePreCheckProvider{
		protectedPIDs:      protectedPIDs,
		protectedUsernames: protectedUsernames,
		config:             config,
	}
}

func procPath(pid int, parts ...string) string {
	elems := append([]string{"/proc", strconv.Itoa(pid)}, parts...)
	return strings.Join(elems, "/")
}

func (p *LivePreCheckProvider) CheckNotProtected(pid int) PreCheckResult {
	if p.protectedPIDs[pid] {
		return PreCheckResult{Passed: false, Check: model.CheckNotProtected, Reason: fmt.Sprintf("pid %d is in the protected pid list", pid)}
	}

	if user, ok := readOwner(pid); ok && p.protectedUsernames[user] {
		return PreCheckResult{Passed: false, Check: model.CheckNotProtected, Reason: fmt.Sprintf("owner %q is a protected user", user)}
	}

	return PreCheckResult{Passed: true, Check: model.CheckNotProtected}
}

func (p *LivePreCheckProvider) CheckDataLossGate(pid int) PreCheckResult {
	writeFDs := countOpenWriteFDs(pid)
	if writeFDs > p.config.MaxOpenWriteFDs {
		return PreCheckResult{Passed: false, Check: model.CheckDataLossGate, Reason: fmt.Sprintf("%d open write file descriptors exceeds limit %d", writeFDs, p.config.MaxOpenWriteFDs)}
	}

	if p.config.BlockIfLockedFiles && hasLockedFiles(pid) {
		return PreCheckResult{Passed: false, Check: model.CheckDataLossGate, Reason: "process holds file locks"}
	}

	if p.config.BlockIfDeletedCwd && hasDeletedCwd(pid) {
		return PreCheckResult{Passed: false, Check: model.CheckDataLossGate, Reason: "working directory has been deleted"}
	}

	if p.config.BlockIfRecentIOWithin > 0 {
		if age, ok := ioAge(pid); ok && age < p.config.BlockIfRecentIOWithin {
			return PreCheckResult{Passed: false, Check: model.CheckDataLossGate, Reason: fmt.Sprintf("recent I/O %s ago", age.Round(time.Second))}
		}
	}

	return PreCheckResult{Passed: true, Check: model.CheckDataLossGate}
}

func (p *LivePreCheckProvider) CheckSupervisor(pid int) PreCheckResult {
	parentComm, ok := readParentComm(pid)
	if ok && knownSupervisors[parentComm] {
		return PreCheckResult{Passed: false, Check: model.CheckSupervisor, Reason: fmt.Sprintf("parent %q is a known supervisor", parentComm)}
	}
	if unit, ok := cgroupUnit(pid); ok {
		return PreCheckResult{Passed: false, Check: model.CheckSupervisor, Reason: fmt.Sprintf("systemd:%s", unit)}
	}
	return PreCheckResult{Passed: true, Check: model.CheckSupervisor}
}

func (p *LivePreCheckProvider) CheckSessionSafety(pid int) PreCheckResult {
	sid, ok := readSID(pid)
	if ok && sid == pid {
		return PreCheckResult{Passed: false, Check: model.CheckSessionSafety, Reason: "process is its own session leader"}
	}
	if p.config.BlockIfActiveTTY && hasActiveTTY(pid) {
		return PreCheckResult{Passed: false, Check: model.CheckSessionSafety, Reason: "process has an active controlling tty"}
	}
	return PreCheckResult{Passed: true, Check: model.CheckSessionSafety}
}

func (p *LivePreCheckProvider) RunChecks(checks model.PreCheckSet, pid int) []PreCheckResult {
	var out []PreCheckResult
	for _, c := range checks {
		switch c {
		case model.CheckVerifyIdentity:
			continue // handled by IdentityProvider
		case model.CheckNotProtected:
			out = append(out, p.CheckNotProtected(pid))
		case model.CheckDataLossGate:
			out = append(out, p.CheckDataLossGate(pid))
		case model.CheckSupervisor:
			out = append(out, p.CheckSupervisor(pid))
		case model.CheckSessionSafety:
			out = append(out, p.CheckSessionSafety(pid))
		}
	}
	return out
}

func readOwner(pid int) (string, bool) {
	data, err := os.ReadFile(procPath(pid, "status"))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Uid:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if u, err := user.LookupId(fields[1]); err == nil {
					return u.Username, true
				}
				return fields[1], true
			}
		}
	}
	return "", false
}

func countOpenWriteFDs(pid int) int {
	fdDir := procPath(pid, "fdinfo")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		data, err := os.ReadFile(fdDir + "/" + entry.Name())
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "flags:") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			flags, err := strconv.ParseUint(fields[1], 8, 32)
			if err != nil {
				continue
			}
			accessMode := flags & 0o3
			if accessMode == 1 || accessMode == 2 {
				count++
			}
		}
	}
	return count
}

func hasLockedFiles(pid int) bool {
	data, err := os.ReadFile("/proc/locks")
	if err != nil {
		return false
	}
	pidStr := strconv.Itoa(pid)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 4 && fields[4] == pidStr {
			return true
		}
	}
	return false
}

func ioAge(pid int) (time.Duration, bool) {
	info, err := os.Stat(procPath(pid, "io"))
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

func hasDeletedCwd(pid int) bool {
	target, err := os.Readlink(procPath(pid, "cwd"))
	if err != nil {
		return false
	}
	return strings.HasSuffix(target, " (deleted)")
}

// statFields parses the space-delimited fields of /proc/<pid>/stat
// that follow the closing paren of the comm field, which may itself
// contain spaces or parens.
func statFields(pid int) ([]string, bool) {
	data, err := os.ReadFile(procPath(pid, "stat"))
	if err != nil {
		return nil, false
	}
	content := string(data)
	idx := strings.LastIndex(content, ")")
	if idx == -1 || idx+2 > len(content) {
		return nil, false
	}
	return strings.Fields(content[idx+2:]), true
}

func readParentComm(pid int) (string, bool) {
	fields, ok := statFields(pid)
	if !ok || len(fields) < 2 {
		return "", false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(procPath(ppid, "comm"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func readSID(pid int) (int, bool) {
	fields, ok := statFields(pid)
	if !ok || len(fields) < 4 {
		return 0, false
	}
	sid, err := strconv.Atoi(fields[3])
	if err != nil {
		return 0, false
	}
	return sid, true
}

func hasActiveTTY(pid int) bool {
	fields, ok := statFields(pid)
	if !ok || len(fields) < 5 {
		return false
	}
	ttyNr, err := strconv.Atoi(fields[4])
	if err != nil {
		return false
	}
	return ttyNr != 0
}

func cgroupUnit(pid int) (string, bool) {
	data, err := os.ReadFile(procPath(pid, "cgroup"))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		for _, suffix := range []string{".service", ".scope"} {
			if idx := strings.Index(line, suffix); idx != -1 {
				start := strings.LastIndex(line[:idx], "/")
				return line[start+1 : idx+len(suffix)], true
			}
		}
	}
	return "", false
}
