package config

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// Manager holds the active Config behind an atomic pointer and applies
// SIGHUP-triggered hot-reloads the way the teacher's main.go does
// inline, generalised into a reusable, testable component: reload
// failures are logged and the previous config is retained rather than
// propagated as a crash.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
	log     *zap.Logger
}

// NewManager wraps an already-loaded Config for hot-reload. path is
// the file Reload/WatchSIGHUP re-reads on each signal.
func NewManager(path string, initial Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{path: path, log: log}
	m.current.Store(&initial)
	return m
}

// Current returns the active config. Safe for concurrent use.
func (m *Manager) Current() Config {
	return *m.current.Load()
}

// Reload re-reads and re-validates the config file, swapping it in on
// success. On failure the active config is left untouched and the
// error is returned for the caller to log. Destructive-field changes
// are detected and reported via the bool return (true means "this
// field took effect only after a restart, not now").
func (m *Manager) Reload() (restartRequired bool, err error) {
	next, err := Load(m.path)
	if err != nil {
		return false, err
	}

	prev := m.Current()
	restartRequired = destructiveFieldsDiffer(prev, *next)
	m.current.Store(next)
	return restartRequired, nil
}

// WatchSIGHUP spawns a goroutine that reloads on every SIGHUP until
// stop is closed. Mirrors the teacher's cmd/octoreflex/main.go step 12
// hot-reload goroutine, generalised so it isn't repeated per binary.
func (m *Manager) WatchSIGHUP(stop <-chan struct{}) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sighup)
		for {
			select {
			case <-stop:
				return
			case <-sighup:
				m.log.Info("SIGHUP received, reloading config", zap.String("path", m.path))
				restartRequired, err := m.Reload()
				if err != nil {
					m.log.Error("config hot-reload failed, retaining old config", zap.Error(err))
					continue
				}
				if restartRequired {
					m.log.Warn("config hot-reload applied non-destructive fields only; " +
						"some changed fields require a restart to take effect")
				} else {
					m.log.Info("config hot-reload successful")
				}
			}
		}
	}()
}
