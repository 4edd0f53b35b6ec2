// plugin.go — extension point for custom evidence enrichers.
//
// proctriage ships the built-in Build() assembly in builder.go, but
// operators running specialised workloads (GPU schedulers, custom
// container runtimes) may need to inject additional evidence the core
// cannot compute itself. An Enricher is invoked after Build() and may
// only add evidence, never remove it.
//
// Plugin contract:
//   - Enrich() must be goroutine-safe (called from multiple deep-scan
//     workers concurrently).
//   - Enrich() must return in < 1ms to avoid blocking the collection
//     cycle.
//   - Enrich() must not call blocking I/O (no disk, no network) — any
//     I/O a plugin needs must already be cached by the time Enrich()
//     runs.
//   - Enrich() must not panic; the registry recovers a panicking
//     plugin and treats it as returning the evidence unmodified.
//   - Name() must return a stable, unique string (used as a config
//     key and in diagnostics).
package evidence

import (
	"fmt"
	"sync"

	"github.com/octoreflex/proctriage/internal/model"
)

// Enricher augments Evidence for one process with plugin-supplied
// features the core builder cannot derive on its own.
type Enricher interface {
	// Name returns the unique identifier for this enricher.
	Name() string

	// Enrich returns ev with additional fields populated. Existing
	// non-nil fields on ev must not be overwritten.
	Enrich(rec model.ProcessRecord, ev model.Evidence) model.Evidence
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Enricher)
)

// RegisterEnricher registers a custom evidence enricher. Panics if a
// plugin with the same name is already registered. Call from init()
// functions in plugin packages.
func RegisterEnricher(e Enricher) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[e.Name()]; exists {
		panic(fmt.Sprintf("evidence: enricher %q already registered", e.Name()))
	}
	registry[e.Name()] = e
}

// GetEnricher returns the registered enricher with the given name.
func GetEnricher(name string) (Enricher, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("evidence: enricher %q not registered (available: %v)", name, listNames())
	}
	return e, nil
}

// ListEnrichers returns the names of all registered enrichers.
func ListEnrichers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return listNames()
}

func listNames() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	return names
}

// BuildWithEnrichers runs the built-in Build() assembly and then
// applies named enrichers in order. An unknown name is a configuration
// error; a panicking enricher is isolated via recover and its output
// discarded for that call.
func BuildWithEnrichers(rec model.ProcessRecord, deep *DeepSignal, enricherNames []string) (model.Evidence, error) {
	ev := Build(rec, deep)
	for _, name := range enricherNames {
		e, err := GetEnricher(name)
		if err != nil {
			return ev, err
		}
		ev = safeEnrich(e, rec, ev)
	}
	return ev, nil
}

func safeEnrich(e Enricher, rec model.ProcessRecord, ev model.Evidence) (out model.Evidence) {
	out = ev
	defer func() {
		if r := recover(); r != nil {
			out = ev
		}
	}()
	return e.Enrich(rec, ev)
}
