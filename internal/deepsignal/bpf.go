package deepsignal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"unsafe"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/model"
)

// ErrUnavailable is returned by AttachBPF when the host cannot support
// the kernel-assisted probe — an unmounted bpffs, a
// kernel older than MinKernelMajor.MinKernelMinor, or the pinned maps
// a privileged loader is expected to have already attached are simply
// not there yet. Callers fall back to the /proc-based Scanner; this is
// never a fatal condition.
var ErrUnavailable = errors.New("deepsignal: kernel-assisted probe unavailable")

const (
	// MinKernelMajor and MinKernelMinor mirror the teacher's BPF loader
	// floor — CO-RE tracepoint attachment needs BTF, reliably present
	// from here on.
	MinKernelMajor = 5
	MinKernelMinor = 15

	// NetActivityMapName and IOActivityMapName are the per-pid counter
	// maps a privileged sibling process (attaching sys_enter_connect /
	// sys_enter_write tracepoints) pins under BPFProbe.PinDir. This
	// probe only ever reads them — it never loads or attaches programs
	// itself, so it needs no elevated capability beyond map read access.
	NetActivityMapName = "pt_net_activity"
	IOActivityMapName  = "pt_io_activity"
)

// BPFProbe implements collect.DeepScanner by reading per-pid activity
// counters out of BPF maps pinned under PinDir, the same
// reuse-pinned-maps-across-restarts idiom the teacher's bpf.Load uses.
// It never loads BPF programs itself: attachment is a separate,
// privileged step, and BPFProbe is the unprivileged reader half.
type BPFProbe struct {
	PinDir string

	netMap *ebpf.Map
	ioMap  *ebpf.Map

	mu      sync.Mutex
	history map[int]uint64
}

// AttachBPF checks host feasibility (kernel version, BPF LSM/BTF
// availability is left to the privileged loader; here only the bpffs
// mount and the two pinned maps are required) and opens the pinned
// maps read-only. It returns ErrUnavailable, never a fatal error, if
// any precondition is unmet.
func AttachBPF(pinDir string) (*BPFProbe, error) {
	if err := checkKernelVersion(MinKernelMajor, MinKernelMinor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkBPFFS(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	netMap, err := ebpf.LoadPinnedMap(filepath.Join(pinDir, NetActivityMapName), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: net activity map not pinned: %v", ErrUnavailable, err)
	}
	ioMap, err := ebpf.LoadPinnedMap(filepath.Join(pinDir, IOActivityMapName), nil)
	if err != nil {
		netMap.Close()
		return nil, fmt.Errorf("%w: io activity map not pinned: %v", ErrUnavailable, err)
	}

	return &BPFProbe{PinDir: pinDir, netMap: netMap, ioMap: ioMap, history: make(map[int]uint64)}, nil
}

// Close releases the map file descriptors. The pinned maps themselves
// remain on the bpffs for the next restart to reuse.
func (p *BPFProbe) Close() error {
	var errs []error
	if p.netMap != nil {
		errs = append(errs, p.netMap.Close())
	}
	if p.ioMap != nil {
		errs = append(errs, p.ioMap.Close())
	}
	return errors.Join(errs...)
}

// DeepScan reads pid's current net/io activity counters. A missing
// map entry means the tracepoint never fired for this pid — read as
// inactive rather than collect.ErrProcessGone, since the pid may
// simply be quiet, not gone; the /proc Scanner already confirmed
// liveness in the quick scan.
func (p *BPFProbe) DeepScan(ctx context.Context, pid int) (model.Evidence, error) {
	select {
	case <-ctx.Done():
		return model.Evidence{}, ctx.Err()
	default:
	}

	key := uint32(pid)

	var netCount uint64
	net := false
	if err := p.netMap.Lookup(key, &netCount); err == nil {
		net = netCount > 0
	} else if !errors.Is(err, ebpf.ErrKeyNotExist) {
		return model.Evidence{}, fmt.Errorf("deepsignal: net activity lookup pid=%d: %w", pid, err)
	}

	var ioCount uint64
	io := false
	if err := p.ioMap.Lookup(key, &ioCount); err == nil {
		io = p.ioAdvanced(pid, ioCount)
	} else if !errors.Is(err, ebpf.ErrKeyNotExist) {
		return model.Evidence{}, fmt.Errorf("deepsignal: io activity lookup pid=%d: %w", pid, err)
	}

	return model.Evidence{Net: &net, IOActive: &io}, nil
}

// ioAdvanced applies the same first-observation-never-active,
// counter-must-increase rule as the /proc Scanner's ioAdvanced, so the
// two probes report IOActive under identical semantics regardless of
// which one the collector picked.
func (p *BPFProbe) ioAdvanced(pid int, count uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.history[pid]
	p.history[pid] = count
	return seen && count > prev
}

// Forget drops pid's I/O history.
func (p *BPFProbe) Forget(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, pid)
}

var _ collect.DeepScanner = (*BPFProbe)(nil)

func checkKernelVersion(major, minor int) error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return fmt.Errorf("uname failed: %w", err)
	}
	release := unix.ByteSliceToString((*[65]byte)(unsafe.Pointer(&uts.Release[0]))[:])

	var kMajor, kMinor, kPatch int
	if _, err := fmt.Sscanf(release, "%d.%d.%d", &kMajor, &kMinor, &kPatch); err != nil {
		return fmt.Errorf("parse kernel version %q: %w", release, err)
	}
	if kMajor < major || (kMajor == major && kMinor < minor) {
		return fmt.Errorf("kernel %d.%d.%d below required %d.%d", kMajor, kMinor, kPatch, major, minor)
	}
	return nil
}

func checkBPFFS() error {
	const bpffsPath = "/sys/fs/bpf"
	const bpffsMagic = 0xcafe4a11

	var stat syscall.Statfs_t
	if err := syscall.Statfs(bpffsPath, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", bpffsPath, err)
	}
	if int64(stat.Type) != bpffsMagic {
		return fmt.Errorf("%s is not a bpffs mount (magic=0x%x)", bpffsPath, stat.Type)
	}
	return nil
}
