package update

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Result classifies the terminal outcome of an Install call the way
// executor.ActionStatus classifies a plan action's outcome: a small
// closed set the caller switches on, never a bare error string.
type Result int

const (
	ResultSuccess Result = iota
	ResultVerificationFailed
	ResultSignatureRejected
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultVerificationFailed:
		return "verification_failed"
	case ResultSignatureRejected:
		return "signature_rejected"
	default:
		return "unknown"
	}
}

// BackupMetadata is the sidecar JSON document written next to each
// retained backup, so Rollback can detect bit rot or tampering before
// restoring it.
type BackupMetadata struct {
	Version   string    `json:"version"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is returned by Install for every call, success or not, so the
// caller always has the verification/rollback detail to log or surface.
type Outcome struct {
	Result       Result
	Verification *FileVerification
	Backup       *BackupMetadata
	RolledBack   bool
	Err          error
}

// Installer applies a verified binary over a running one: backup,
// atomic rename, post-install health check, automatic rollback on
// failure. None of this runs unless Verifier is nil or the candidate
// binary's signature validates — fail-closed per spec §4.9.
type Installer struct {
	// TargetPath is the binary currently installed and executed.
	TargetPath string
	// BackupDir holds retained backups and their metadata sidecars.
	BackupDir string
	// Verifier checks the candidate binary's detached signature. Nil
	// disables signature verification (e.g. a dev build with no keys
	// configured yet) — callers that need fail-closed behavior must
	// supply one.
	Verifier *Verifier
	// RetainBackups is how many backups to keep, newest by timestamp.
	// Zero means keep unlimited.
	RetainBackups int
	// HealthCheck runs the newly installed binary and returns nil if it
	// reports itself healthy. Defaults to execVersionCheck, which execs
	// "<binary> --version" and treats exit code 0 as healthy.
	HealthCheck func(binaryPath string, expectedVersion string) error

	Log *zap.Logger
}

// NewInstaller builds an Installer with sensible defaults.
func NewInstaller(targetPath, backupDir string, verifier *Verifier, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Installer{
		TargetPath:    targetPath,
		BackupDir:     backupDir,
		Verifier:      verifier,
		RetainBackups: 5,
		HealthCheck:   execVersionCheck,
		Log:           log,
	}
}

// Install verifies candidatePath's signature (if a Verifier is
// configured), backs up the current binary, atomically replaces it,
// runs the post-install health check, and rolls back automatically if
// the check fails or reports an unexpected version.
func (in *Installer) Install(candidatePath string, expectedVersion string) Outcome {
	var verification *FileVerification
	if in.Verifier != nil {
		v, err := in.Verifier.VerifyFile(candidatePath)
		if err != nil {
			in.Log.Warn("update: signature rejected", zap.String("candidate", candidatePath), zap.Error(err))
			return Outcome{Result: ResultSignatureRejected, Err: err}
		}
		verification = &v
		in.Log.Info("update: signature verified",
			zap.String("candidate", candidatePath), zap.String("key_fingerprint", v.KeyFingerprint))
	}

	backup, err := in.backupCurrent()
	if err != nil {
		return Outcome{Result: ResultVerificationFailed, Verification: verification, Err: fmt.Errorf("update: backup current binary: %w", err)}
	}

	if err := atomicReplace(candidatePath, in.TargetPath); err != nil {
		return Outcome{Result: ResultVerificationFailed, Verification: verification, Backup: backup, Err: fmt.Errorf("update: atomic replace: %w", err)}
	}

	if err := in.HealthCheck(in.TargetPath, expectedVersion); err != nil {
		in.Log.Warn("update: post-install health check failed, rolling back", zap.Error(err))
		rollbackErr := in.Rollback("")
		return Outcome{
			Result:       ResultVerificationFailed,
			Verification: verification,
			Backup:       backup,
			RolledBack:   rollbackErr == nil,
			Err:          fmt.Errorf("update: health check failed: %w", err),
		}
	}

	return Outcome{Result: ResultSuccess, Verification: verification, Backup: backup}
}

// backupCurrent copies TargetPath into BackupDir under a
// timestamp-and-checksum name, writes its metadata sidecar, and prunes
// old backups down to RetainBackups.
func (in *Installer) backupCurrent() (*BackupMetadata, error) {
	if err := os.MkdirAll(in.BackupDir, 0o755); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(in.TargetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing installed yet — fresh install, no backup to take.
			return nil, nil
		}
		return nil, err
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	now := currentTime()
	name := fmt.Sprintf("%d-%s", now.UnixNano(), checksum[:12])
	backupPath := filepath.Join(in.BackupDir, name)

	if err := os.WriteFile(backupPath, data, 0o755); err != nil {
		return nil, err
	}

	meta := BackupMetadata{
		Version:   "",
		SHA256:    checksum,
		SizeBytes: int64(len(data)),
		CreatedAt: now,
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(backupPath+".json", metaBytes, 0o644); err != nil {
		return nil, err
	}

	in.Log.Info("update: backed up current binary",
		zap.String("path", backupPath), zap.String("size", humanize.Bytes(uint64(len(data)))))

	if in.RetainBackups > 0 {
		if err := in.pruneBackups(); err != nil {
			in.Log.Warn("update: backup retention prune failed", zap.Error(err))
		}
	}

	return &meta, nil
}

// pruneBackups keeps only the newest RetainBackups backups by the
// timestamp encoded in their filename.
func (in *Installer) pruneBackups() error {
	entries, err := in.listBackups()
	if err != nil {
		return err
	}
	if len(entries) <= in.RetainBackups {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	for _, e := range entries[in.RetainBackups:] {
		os.Remove(filepath.Join(in.BackupDir, e.name))
		os.Remove(filepath.Join(in.BackupDir, e.name+".json"))
	}
	return nil
}

type backupEntry struct {
	name string
	ts   int64
}

func (in *Installer) listBackups() ([]backupEntry, error) {
	dirEntries, err := os.ReadDir(in.BackupDir)
	if err != nil {
		return nil, err
	}
	var out []backupEntry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasSuffix(name, ".json") {
			continue
		}
		tsStr, _, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, backupEntry{name: name, ts: ts})
	}
	return out, nil
}

// ErrChecksumMismatch is returned by Rollback when a backup's content
// no longer matches its recorded SHA-256, e.g. the backup file was
// corrupted or tampered with on disk.
var ErrChecksumMismatch = errors.New("update: backup checksum mismatch, refusing to restore")

// Rollback restores a backup over TargetPath. name selects a specific
// backup's filename; an empty string selects the newest one. The
// backup's content is re-hashed and compared against its stored
// checksum before the restore — any mismatch refuses rather than
// installing a binary that might have been corrupted or tampered with.
func (in *Installer) Rollback(name string) error {
	if name == "" {
		entries, err := in.listBackups()
		if err != nil {
			return fmt.Errorf("update: list backups: %w", err)
		}
		if len(entries) == 0 {
			return errors.New("update: no backups available to roll back to")
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
		name = entries[0].name
	}

	backupPath := filepath.Join(in.BackupDir, name)
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("update: read backup: %w", err)
	}

	metaBytes, err := os.ReadFile(backupPath + ".json")
	if err != nil {
		return fmt.Errorf("update: read backup metadata: %w", err)
	}
	var meta BackupMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("update: decode backup metadata: %w", err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != meta.SHA256 {
		return ErrChecksumMismatch
	}

	tmp := in.TargetPath + ".rollback.tmp"
	if err := os.WriteFile(tmp, data, 0o755); err != nil {
		return fmt.Errorf("update: stage rollback binary: %w", err)
	}
	if err := os.Rename(tmp, in.TargetPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("update: rename rollback binary into place: %w", err)
	}

	in.Log.Info("update: rolled back", zap.String("from_backup", name))
	return nil
}

// atomicReplace copies src into a temp file beside dst and renames it
// over dst. Rename is atomic on the same filesystem, so a reader of
// dst never observes a partially written binary.
func atomicReplace(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	tmp := dst + ".update.tmp"
	if err := os.WriteFile(tmp, data, 0o755); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// execVersionCheck runs "<binaryPath> --version" and treats a zero
// exit code as healthy. If expectedVersion is non-empty, the version
// string printed must contain it.
func execVersionCheck(binaryPath, expectedVersion string) error {
	out, err := exec.Command(binaryPath, "--version").Output()
	if err != nil {
		return fmt.Errorf("version check exec failed: %w", err)
	}
	if expectedVersion != "" && !strings.Contains(string(out), expectedVersion) {
		return fmt.Errorf("version mismatch: expected %q, got %q", expectedVersion, strings.TrimSpace(string(out)))
	}
	return nil
}

// currentTime is a seam for tests; production always uses time.Now.
var currentTime = time.Now
