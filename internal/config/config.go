// Package config provides configuration loading, validation, and
// hot-reload for the process triage daemon.
//
// Configuration file: /etc/proctriage/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - The daemon listens for SIGHUP (see Manager.WatchSIGHUP).
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - Apply non-destructive changes only (membrane weights/thresholds,
//     decision cost weights, log level).
//   - Destructive changes (storage paths, lock path, patterns/snapshot
//     directories) require a restart: Manager.Current returns the new
//     values, but components that already opened those paths keep the
//     old ones, and Reload reports that a restart is needed.
//   - If the new config is invalid, the old config remains active and
//     an error is returned to the caller. The daemon does NOT crash on
//     invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g. weights sum to ~1, alphas in [0,1]).
//   - Invalid config on startup: the daemon refuses to start (fatal).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the process triage
// engine daemon. Every field has a default; see Defaults().
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this daemon instance in logs and audit
	// records. Default: hostname.
	NodeID string `yaml:"node_id"`

	Collector     CollectorConfig     `yaml:"collector"`
	Membrane      MembraneConfig      `yaml:"membrane"`
	Decision      DecisionConfig      `yaml:"decision"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Storage       StorageConfig       `yaml:"storage"`
	Update        UpdateConfig        `yaml:"update"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CollectorConfig holds collection-cycle cadence and concurrency.
type CollectorConfig struct {
	// ScanInterval is the period between quick_scan cycles. Default: 2s.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// MaxConcurrentDeepScans bounds the deep-scan errgroup fan-out.
	// 0 means unbounded. Default: 16.
	MaxConcurrentDeepScans int `yaml:"max_concurrent_deep_scans"`

	// BPFPinDir is where a privileged loader pins the kernel-assisted
	// deep-signal maps, if present. Empty disables the BPF probe and
	// falls back to the /proc-based one unconditionally.
	BPFPinDir string `yaml:"bpf_pin_dir"`
}

// MembraneConfig holds the change-point detection ensemble's weights
// and thresholds (spec §4.10 / internal/membrane).
type MembraneConfig struct {
	WeightBOCPD       float64 `yaml:"weight_bocpd"`
	WeightIMM         float64 `yaml:"weight_imm"`
	WeightWasserstein float64 `yaml:"weight_wasserstein"`

	SafeModeThreshold float64 `yaml:"safe_mode_threshold"`
	ConfirmationTicks int     `yaml:"confirmation_ticks"`

	BOCPDHazard       float64 `yaml:"bocpd_hazard"`
	BOCPDMaxRunLength int     `yaml:"bocpd_max_run_length"`
}

// DecisionConfig holds the loss-minimisation policy's tunable knobs —
// everything in model.Policy except the loss matrix itself, which is
// domain data loaded separately, not daemon configuration.
type DecisionConfig struct {
	FDRMethod        string  `yaml:"fdr_method"` // "none" | "bh" | "by" | "alpha_investing"
	FDRAlpha         float64 `yaml:"fdr_alpha"`
	FDRMinCandidates int     `yaml:"fdr_min_candidates"`

	DROBaseEpsilon float64 `yaml:"dro_base_epsilon"`
	DROMaxEpsilon  float64 `yaml:"dro_max_epsilon"`
	RobustEta      float64 `yaml:"robust_eta"`

	MaxAutonomousRank int `yaml:"max_autonomous_rank"`

	ProbeCostTime          float64 `yaml:"probe_cost_time"`
	ProbeCostOverhead      float64 `yaml:"probe_cost_overhead"`
	ProbeCostIntrusiveness float64 `yaml:"probe_cost_intrusiveness"`
	ProbeCostRisk          float64 `yaml:"probe_cost_risk"`
}

// ExecutorConfig holds the staged-execution protocol's operational
// parameters.
type ExecutorConfig struct {
	// LockPath is the host-wide advisory lock file. Destructive:
	// changing it requires a restart, since it identifies the
	// concurrency domain a running instance already holds.
	LockPath string `yaml:"lock_path"`

	// ActionTimeout is validated (at least 1s) but is not read by the
	// executor or LiveActionRunner; a PlanAction is reported
	// StatusTimeout only when its ActionRunner returns that status.
	// Default: 30s.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// StorageConfig holds the collector inventory and pattern library
// paths. All destructive: each identifies on-disk state a running
// daemon has already opened.
type StorageConfig struct {
	// InventoryDBPath is the bbolt file backing collector inventory
	// persistence. Default: /var/lib/proctriage/inventory.db.
	InventoryDBPath string `yaml:"inventory_db_path"`

	// PatternsDir holds the signature/pattern library's JSON files.
	// Default: /etc/proctriage/patterns.
	PatternsDir string `yaml:"patterns_dir"`

	// PriorsPath is the Priors JSON file internal/priorsfile loads.
	// Default: /etc/proctriage/priors.json.
	PriorsPath string `yaml:"priors_path"`

	// SnapshotDir is where internal/replay snapshots are written and
	// read from. Default: /var/lib/proctriage/snapshots.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// UpdateConfig holds self-update parameters (spec §4.9).
type UpdateConfig struct {
	// BackupDir holds retained binary backups and their metadata
	// sidecars. Default: /var/lib/proctriage/backups.
	BackupDir string `yaml:"backup_dir"`

	// RetainBackups is how many backups to keep. Default: 5.
	RetainBackups int `yaml:"retain_backups"`

	// TrustedKeysDir holds PEM/base64 ECDSA-P256 public keys used to
	// verify release signatures. Empty disables verification (dev
	// builds only — production configs must set this).
	TrustedKeysDir string `yaml:"trusted_keys_dir"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Collector: CollectorConfig{
			ScanInterval:           2 * time.Second,
			MaxConcurrentDeepScans: 16,
		},
		Membrane: MembraneConfig{
			WeightBOCPD:       0.4,
			WeightIMM:         0.4,
			WeightWasserstein: 0.2,
			SafeModeThreshold: 0.75,
			ConfirmationTicks: 3,
			BOCPDHazard:       1.0 / 250.0,
			BOCPDMaxRunLength: 500,
		},
		Decision: DecisionConfig{
			FDRMethod:              "bh",
			FDRAlpha:               0.05,
			FDRMinCandidates:       1,
			DROBaseEpsilon:         0.05,
			DROMaxEpsilon:          0.25,
			RobustEta:              0.1,
			MaxAutonomousRank:      3, // Quarantine/Throttle; Restart+Kill need approval
			ProbeCostTime:          0.25,
			ProbeCostOverhead:      0.25,
			ProbeCostIntrusiveness: 0.25,
			ProbeCostRisk:          0.25,
		},
		Executor: ExecutorConfig{
			LockPath:      "/run/proctriage/action.lock",
			ActionTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			InventoryDBPath: "/var/lib/proctriage/inventory.db",
			PatternsDir:     "/etc/proctriage/patterns",
			PriorsPath:      "/etc/proctriage/priors.json",
			SnapshotDir:     "/var/lib/proctriage/snapshots",
		},
		Update: UpdateConfig{
			BackupDir:     "/var/lib/proctriage/backups",
			RetainBackups: 5,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path. Returns
// the merged config (defaults overridden by file values), or an error
// if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness. Returns a
// descriptive error listing every violation found.
func Validate(cfg *Config) error {
	var errs []string
	errs = append(errs, validateRoot(cfg)...)
	errs = append(errs, validateMembrane(cfg.Membrane)...)
	errs = append(errs, validateDecision(cfg.Decision)...)
	errs = append(errs, validateExecutor(cfg.Executor)...)
	errs = append(errs, validateStorage(cfg.Storage)...)
	errs = append(errs, validateUpdate(cfg.Update)...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

func validateRoot(cfg *Config) []string {
	var errs []string
	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Collector.ScanInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Sprintf("collector.scan_interval must be >= 100ms, got %s", cfg.Collector.ScanInterval))
	}
	if cfg.Collector.MaxConcurrentDeepScans < 0 {
		errs = append(errs, "collector.max_concurrent_deep_scans must be >= 0")
	}
	return errs
}

func validateMembrane(m MembraneConfig) []string {
	var errs []string
	sum := m.WeightBOCPD + m.WeightIMM + m.WeightWasserstein
	if m.WeightBOCPD < 0 || m.WeightIMM < 0 || m.WeightWasserstein < 0 {
		errs = append(errs, "membrane weights must all be >= 0")
	} else if sum < 0.99 || sum > 1.01 {
		errs = append(errs, fmt.Sprintf("membrane weights must sum to ~1.0, got %f", sum))
	}
	if m.SafeModeThreshold <= 0 || m.SafeModeThreshold > 1 {
		errs = append(errs, fmt.Sprintf("membrane.safe_mode_threshold must be in (0, 1], got %f", m.SafeModeThreshold))
	}
	if m.ConfirmationTicks < 1 {
		errs = append(errs, fmt.Sprintf("membrane.confirmation_ticks must be >= 1, got %d", m.ConfirmationTicks))
	}
	if m.BOCPDHazard <= 0 || m.BOCPDHazard >= 1 {
		errs = append(errs, fmt.Sprintf("membrane.bocpd_hazard must be in (0, 1), got %f", m.BOCPDHazard))
	}
	if m.BOCPDMaxRunLength < 1 {
		errs = append(errs, "membrane.bocpd_max_run_length must be >= 1")
	}
	return errs
}

var validFDRMethods = map[string]bool{"none": true, "bh": true, "by": true, "alpha_investing": true}

func validateDecision(d DecisionConfig) []string {
	var errs []string
	if !validFDRMethods[d.FDRMethod] {
		errs = append(errs, fmt.Sprintf("decision.fdr_method must be one of none|bh|by|alpha_investing, got %q", d.FDRMethod))
	}
	if d.FDRAlpha <= 0 || d.FDRAlpha >= 1 {
		errs = append(errs, fmt.Sprintf("decision.fdr_alpha must be in (0, 1), got %f", d.FDRAlpha))
	}
	if d.FDRMinCandidates < 0 {
		errs = append(errs, "decision.fdr_min_candidates must be >= 0")
	}
	if d.DROBaseEpsilon < 0 || d.DROMaxEpsilon < d.DROBaseEpsilon {
		errs = append(errs, "decision.dro_max_epsilon must be >= dro_base_epsilon >= 0")
	}
	if d.RobustEta < 0 {
		errs = append(errs, "decision.robust_eta must be >= 0")
	}
	if d.MaxAutonomousRank < 0 || d.MaxAutonomousRank > 5 {
		errs = append(errs, fmt.Sprintf("decision.max_autonomous_rank must be in [0, 5], got %d", d.MaxAutonomousRank))
	}
	for name, v := range map[string]float64{
		"probe_cost_time": d.ProbeCostTime, "probe_cost_overhead": d.ProbeCostOverhead,
		"probe_cost_intrusiveness": d.ProbeCostIntrusiveness, "probe_cost_risk": d.ProbeCostRisk,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("decision.%s must be >= 0, got %f", name, v))
		}
	}
	return errs
}

func validateExecutor(e ExecutorConfig) []string {
	var errs []string
	if e.LockPath == "" {
		errs = append(errs, "executor.lock_path must not be empty")
	}
	if e.ActionTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("executor.action_timeout must be >= 1s, got %s", e.ActionTimeout))
	}
	return errs
}

func validateStorage(s StorageConfig) []string {
	var errs []string
	if s.InventoryDBPath == "" {
		errs = append(errs, "storage.inventory_db_path must not be empty")
	}
	if s.PatternsDir == "" {
		errs = append(errs, "storage.patterns_dir must not be empty")
	}
	if s.PriorsPath == "" {
		errs = append(errs, "storage.priors_path must not be empty")
	}
	return errs
}

func validateUpdate(u UpdateConfig) []string {
	var errs []string
	if u.RetainBackups < 0 {
		errs = append(errs, "update.retain_backups must be >= 0")
	}
	return errs
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}

// destructiveFieldsDiffer reports whether any field that requires a
// restart changed between old and new — the caller (Manager) uses
// this to log a "restart required" warning rather than silently
// leaving a stale value active.
func destructiveFieldsDiffer(old, new Config) bool {
	return old.Executor.LockPath != new.Executor.LockPath ||
		old.Storage != new.Storage ||
		old.Update.BackupDir != new.Update.BackupDir ||
		old.Update.TrustedKeysDir != new.Update.TrustedKeysDir ||
		old.Collector.BPFPinDir != new.Collector.BPFPinDir
}
