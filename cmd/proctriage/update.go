package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octoreflex/proctriage/internal/config"
	"github.com/octoreflex/proctriage/internal/update"
)

var updateExpectedVersion string

var updateCmd = &cobra.Command{
	Use:   "update <candidate-binary>",
	Short: "Verify and install a new daemon binary, backing up the current one",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <backup-name>",
	Short: "Restore a previously retained backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	updateCmd.Flags().StringVar(&updateExpectedVersion, "expect-version", "", "version string the candidate must report after install")
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	installer, err := buildInstaller(cfg, log)
	if err != nil {
		return err
	}

	outcome := installer.Install(args[0], updateExpectedVersion)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	if outcome.Result != update.ResultSuccess {
		return fmt.Errorf("update: %s", outcome.Result)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	installer, err := buildInstaller(cfg, log)
	if err != nil {
		return err
	}
	if err := installer.Rollback(args[0]); err != nil {
		return fmt.Errorf("rollback %s: %w", args[0], err)
	}
	fmt.Fprintf(os.Stdout, "rolled back to %s\n", args[0])
	return nil
}

// buildInstaller points at this process's own executable as the
// install target, matching the self-update model spec §4.9 describes:
// the running binary replaces itself in place.
func buildInstaller(cfg config.Config, log *zap.Logger) (*update.Installer, error) {
	target, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating running executable: %w", err)
	}

	verifier, err := loadVerifier(cfg.Update.TrustedKeysDir)
	if err != nil {
		return nil, err
	}

	return update.NewInstaller(target, cfg.Update.BackupDir, verifier, log), nil
}

// loadVerifier reads every file under dir as a trusted public key.
// An empty dir disables signature verification entirely; config
// validation does not reject an empty TrustedKeysDir.
func loadVerifier(dir string) (*update.Verifier, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading trusted keys dir %s: %w", dir, err)
	}

	v := update.NewVerifier()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading key %s: %w", entry.Name(), err)
		}
		if err := v.AddKeyBytes(data); err != nil {
			return nil, fmt.Errorf("parsing key %s: %w", entry.Name(), err)
		}
	}
	return v, nil
}
