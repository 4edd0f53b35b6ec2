package collect

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/octoreflex/proctriage/internal/model"
)

// ErrProcessGone is returned by a DeepScanner when the target process
// exited between the quick scan and the deep scan; the collector
// treats it as a non-fatal skip rather than a cycle failure.
var ErrProcessGone = errors.New("collect: process no longer exists")

// DeepScanner fills in the expensive-to-read evidence a quick scan
// skips (network and I/O activity, returned as Evidence.Net and
// Evidence.IOActive) for a single PID. Implementations may return
// ErrProcessGone if the process exited before the deep scan ran — the
// caller treats that as a non-fatal skip.
type DeepScanner interface {
	DeepScan(ctx context.Context, pid int) (model.Evidence, error)
}

// Collector wires a Scanner, an incremental Engine, a DeepScanner, and
// an optional persistent Store into the cycle spec §2 calls
// "quick_scan → update → deep scan only what changed".
type Collector struct {
	scanner Scanner
	engine  *Engine
	deep    DeepScanner
	store   *Store

	// MaxConcurrentDeepScans bounds the errgroup fan-out; 0 means
	// unbounded (errgroup.SetLimit is skipped).
	MaxConcurrentDeepScans int
}

// NewCollector builds a Collector. store may be nil (no persistence,
// e.g. in tests or a one-shot CLI invocation).
func NewCollector(scanner Scanner, engine *Engine, deep DeepScanner, store *Store) *Collector {
	return &Collector{scanner: scanner, engine: engine, deep: deep, store: store}
}

// RestoreInventory seeds the engine from the persistent store, if one
// is configured. Call once at startup before the first Cycle.
func (c *Collector) RestoreInventory() error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.LoadAll()
	if err != nil {
		return fmt.Errorf("collect: restore inventory: %w", err)
	}
	c.engine.Seed(entries)
	return nil
}

// CycleResult is the outcome of one collection cycle.
type CycleResult struct {
	Deltas   []ProcessDelta
	Summary  DeltaSummary
	Evidence map[int]model.Evidence // keyed by PID, only for deep-scanned processes
}

// Cycle runs one quick_scan, classifies deltas against the engine's
// inventory, deep-scans only the processes that need it, and persists
// the updated inventory if a Store is configured.
func (c *Collector) Cycle(ctx context.Context) (CycleResult, error) {
	scan, err := c.scanner.QuickScan()
	if err != nil {
		return CycleResult{}, fmt.Errorf("collect: quick scan: %w", err)
	}

	deltas := c.engine.Update(scan.Processes)
	result := CycleResult{Deltas: deltas, Summary: Summarize(deltas)}

	pids := PIDsNeedingDeepScan(deltas)
	if len(pids) > 0 && c.deep != nil {
		evidence, err := c.deepScanAll(ctx, pids)
		if err != nil {
			return result, err
		}
		result.Evidence = evidence
	}

	if c.store != nil {
		if err := c.store.SaveAll(c.engine.Snapshot()); err != nil {
			return result, fmt.Errorf("collect: persist inventory: %w", err)
		}
	}
	return result, nil
}

// deepScanAll fans out DeepScan calls across an errgroup, bounded by
// MaxConcurrentDeepScans. A single PID's failure does not abort the
// others — results simply omit that PID.
func (c *Collector) deepScanAll(ctx context.Context, pids []int) (map[int]model.Evidence, error) {
	g, gctx := errgroup.WithContext(ctx)
	if c.MaxConcurrentDeepScans > 0 {
		g.SetLimit(c.MaxConcurrentDeepScans)
	}

	results := make(chan struct {
		pid int
		ev  model.Evidence
		ok  bool
	}, len(pids))

	for _, pid := range pids {
		pid := pid
		g.Go(func() error {
			ev, err := c.deep.DeepScan(gctx, pid)
			if err != nil {
				results <- struct {
					pid int
					ev  model.Evidence
					ok  bool
				}{pid, model.Evidence{}, false}
				return nil // per-PID failure is non-fatal
			}
			results <- struct {
				pid int
				ev  model.Evidence
				ok  bool
			}{pid, ev, true}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect: deep scan fan-out: %w", err)
	}
	close(results)

	out := make(map[int]model.Evidence, len(pids))
	for r := range results {
		if r.ok {
			out[r.pid] = r.ev
		}
	}
	return out, nil
}
