package signature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// fileNames maps each pattern source to its file under the patterns
// directory. SourceBuiltIn is read-only; the others are read-write.
var fileNames = map[model.PatternSource]string{
	model.SourceBuiltIn: "built_in.json",
	model.SourceLearned: "learned.json",
	model.SourceCustom:  "custom.json",
}

const (
	disabledFile = "disabled.json"
	statsFile    = "pattern_stats.json"
)

// DisabledEntry records why and when a pattern was disabled.
type DisabledEntry struct {
	Name      string    `json:"name"`
	Reason    string    `json:"reason"`
	Disabled  bool      `json:"disabled"`
	Timestamp time.Time `json:"timestamp"`
}

// Store loads and persists the pattern library across its five JSON
// files under a config directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (config-dir/patterns/).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load reads every pattern file present on disk. Missing files are
// treated as empty, not an error — a fresh install has no learned or
// custom patterns yet.
func (s *Store) Load() ([]model.PersistedPattern, map[string]DisabledEntry, error) {
	var all []model.PersistedPattern
	for _, source := range []model.PatternSource{model.SourceBuiltIn, model.SourceLearned, model.SourceCustom} {
		patterns, err := s.loadFile(fileNames[source])
		if err != nil {
			return nil, nil, fmt.Errorf("signature: load %s: %w", fileNames[source], err)
		}
		all = append(all, patterns...)
	}

	disabled, err := s.loadDisabled()
	if err != nil {
		return nil, nil, fmt.Errorf("signature: load %s: %w", disabledFile, err)
	}

	return all, disabled, nil
}

func (s *Store) loadFile(name string) ([]model.PersistedPattern, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var patterns []model.PersistedPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func (s *Store) loadDisabled() (map[string]DisabledEntry, error) {
	data, err := os.ReadFile(s.path(disabledFile))
	if os.IsNotExist(err) {
		return map[string]DisabledEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []DisabledEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]DisabledEntry, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	return out, nil
}

// SaveLearned overwrites learned.json. Never touches built_in.json,
// which is read-only.
func (s *Store) SaveLearned(patterns []model.PersistedPattern) error {
	return s.writeFile(fileNames[model.SourceLearned], patterns)
}

// SaveCustom overwrites custom.json.
func (s *Store) SaveCustom(patterns []model.PersistedPattern) error {
	return s.writeFile(fileNames[model.SourceCustom], patterns)
}

// SaveDisabled overwrites disabled.json from the given name→entry map.
func (s *Store) SaveDisabled(entries map[string]DisabledEntry) error {
	out := make([]DisabledEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return s.writeFile(disabledFile, out)
}

// SaveStats overwrites pattern_stats.json, keyed by pattern name.
func (s *Store) SaveStats(stats map[string]model.PatternStats) error {
	return s.writeFile(statsFile, stats)
}

// LoadStats reads pattern_stats.json, returning an empty map if absent.
func (s *Store) LoadStats() (map[string]model.PatternStats, error) {
	data, err := os.ReadFile(s.path(statsFile))
	if os.IsNotExist(err) {
		return map[string]model.PatternStats{}, nil
	}
	if err != nil {
		return nil, err
	}
	var stats map[string]model.PatternStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) writeFile(name string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(name))
}
