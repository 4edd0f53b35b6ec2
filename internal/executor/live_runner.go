package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/octoreflex/proctriage/internal/model"
)

// CgroupFreezerRoot is the default v2 cgroup freezer mount point a
// LiveActionRunner writes Pause/unfreeze transitions to. Overridable
// for hosts mounting cgroup2 elsewhere or under a test fixture.
const CgroupFreezerRoot = "/sys/fs/cgroup"

// LiveActionRunner applies an ActionKind to a real PID via POSIX
// signals, priority syscalls, and the cgroup v2 freezer — the
// concrete ActionRunner a running daemon wires into an Executor.
// NoopActionRunner remains the one ExecutePlan's own tests use.
type LiveActionRunner struct {
	// NiceDelta is the renice increment applied by ActionRenice.
	// Positive moves a process toward lower scheduling priority.
	// Default 10.
	NiceDelta int

	// QuarantineCPUQuotaPercent bounds a throttled process's cgroup v2
	// cpu.max share. Default 10 (10% of one core).
	QuarantineCPUQuotaPercent int

	CgroupRoot string

	Log *zap.Logger
}

// NewLiveActionRunner builds a LiveActionRunner with the defaults spec
// §4.6 assumes when a config doesn't override them.
func NewLiveActionRunner(log *zap.Logger) *LiveActionRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveActionRunner{
		NiceDelta:                 10,
		QuarantineCPUQuotaPercent: 10,
		CgroupRoot:                CgroupFreezerRoot,
		Log:                       log,
	}
}

// Execute dispatches on action.ActionKind. Keep never reaches here —
// plan.Generate drops Keep candidates before they become PlanActions.
func (r *LiveActionRunner) Execute(action model.PlanAction) error {
	pid := action.Target.PID
	switch action.ActionKind {
	case model.ActionRenice:
		return r.renice(pid)
	case model.ActionPause:
		return r.freeze(pid)
	case model.ActionQuarantine:
		return r.quarantine(pid)
	case model.ActionRestart:
		return r.restart(pid)
	case model.ActionKill:
		return r.kill(pid)
	default:
		return fmt.Errorf("live runner: unsupported action %s", action.ActionKind)
	}
}

// Verify re-reads /proc/<pid> and confirms the action had the expected
// observable effect: a killed process is gone; a paused one, like the
// target of every other action, still exists (its run state is not
// checked).
func (r *LiveActionRunner) Verify(action model.PlanAction) error {
	pid := action.Target.PID
	alive := processExists(pid)

	switch action.ActionKind {
	case model.ActionKill:
		if alive {
			return fmt.Errorf("live runner: pid %d still present after kill", pid)
		}
		return nil
	case model.ActionPause:
		if !alive {
			return fmt.Errorf("live runner: pid %d exited instead of pausing", pid)
		}
		return nil
	default:
		if !alive {
			return fmt.Errorf("live runner: pid %d no longer present", pid)
		}
		return nil
	}
}

func (r *LiveActionRunner) renice(pid int) error {
	current, err := unix.Getpriority(unix.PRIO_PROCESS, pid)
	if err != nil {
		return fmt.Errorf("renice: getpriority %d: %w", pid, err)
	}
	// Linux getpriority returns 20-nice; invert back before adjusting.
	niceNow := 20 - current
	target := niceNow + r.NiceDelta
	if target > 19 {
		target = 19
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, target); err != nil {
		return fmt.Errorf("renice: setpriority %d to %d: %w", pid, target, err)
	}
	r.Log.Debug("renice applied", zap.Int("pid", pid), zap.Int("nice", target))
	return nil
}

func (r *LiveActionRunner) freeze(pid int) error {
	if dir, ok := r.ownCgroupDir(pid); ok {
		if err := os.WriteFile(filepath.Join(dir, "cgroup.freeze"), []byte("1"), 0o644); err == nil {
			r.Log.Debug("cgroup freeze applied", zap.Int("pid", pid), zap.String("cgroup", dir))
			return nil
		}
	}
	// No writable per-process cgroup (no delegation, or not v2):
	// SIGSTOP every thread is the POSIX fallback the spec calls
	// "Pause ≡ Freeze" for — less clean than a cgroup freeze (signal
	// delivery order across a multi-threaded target isn't atomic) but
	// reversible the same way.
	if err := unix.Kill(pid, syscall.SIGSTOP); err != nil {
		return fmt.Errorf("freeze: SIGSTOP %d: %w", pid, err)
	}
	r.Log.Debug("SIGSTOP applied", zap.Int("pid", pid))
	return nil
}

func (r *LiveActionRunner) quarantine(pid int) error {
	dir, ok := r.ownCgroupDir(pid)
	if !ok {
		// No cgroup delegation available: best-effort niceness
		// reduction is the only throttle this runner can apply.
		return r.renice(pid)
	}
	quota := r.QuarantineCPUQuotaPercent
	if quota <= 0 {
		quota = 10
	}
	// cpu.max is "<quota> <period>" in microseconds; period 100000 is
	// the kernel default.
	line := fmt.Sprintf("%d 100000", quota*1000)
	if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte(line), 0o644); err != nil {
		return fmt.Errorf("quarantine: write cpu.max for %d: %w", pid, err)
	}
	r.Log.Debug("cgroup cpu.max throttle applied", zap.Int("pid", pid), zap.Int("quota_percent", quota))
	return nil
}

func (r *LiveActionRunner) restart(pid int) error {
	// A generic restart has no portable "relaunch this command" target
	// without a supervisor to ask — signal it to reload/re-exec via
	// SIGHUP, the POSIX convention most long-running daemons already
	// honour, and let the supervisor relaunch it if SIGHUP doesn't.
	if err := unix.Kill(pid, syscall.SIGHUP); err != nil {
		return fmt.Errorf("restart: SIGHUP %d: %w", pid, err)
	}
	r.Log.Debug("SIGHUP sent for restart", zap.Int("pid", pid))
	return nil
}

func (r *LiveActionRunner) kill(pid int) error {
	if err := unix.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill: SIGKILL %d: %w", pid, err)
	}
	r.Log.Debug("SIGKILL sent", zap.Int("pid", pid))
	return nil
}

// ownCgroupDir returns the process's own cgroup v2 directory under
// CgroupRoot, if the host uses the unified hierarchy and the path
// exists and is writable by this process.
func (r *LiveActionRunner) ownCgroupDir(pid int) (string, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", false
	}
	// v2 lines look like "0::/user.slice/.../app-123.scope".
	rel := ""
	for _, line := range splitLines(string(data)) {
		parts := splitColon(line)
		if len(parts) == 3 && parts[0] == "0" {
			rel = parts[2]
			break
		}
	}
	if rel == "" {
		return "", false
	}
	dir := filepath.Join(r.CgroupRoot, rel)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func processExists(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
