package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/config"
	"github.com/octoreflex/proctriage/internal/deepsignal"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one incremental collection cycle and print the delta summary",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	collector, closeAll, err := buildCollector(cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := collector.RestoreInventory(); err != nil {
		log.Warn("could not restore inventory", zap.Error(err))
	}

	result, err := collector.Cycle(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan cycle: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// buildCollector wires a ProcScanner, a fresh delta Engine, the
// configured deep scanner, and an optional bbolt-backed Store into a
// ready-to-run Collector, plus a cleanup func closing whatever it
// opened.
func buildCollector(cfg config.Config, log *zap.Logger) (*collect.Collector, func(), error) {
	scanner := collect.NewProcScanner()
	engine := collect.NewEngine(collect.DefaultConfig())

	var store *collect.Store
	if cfg.Storage.InventoryDBPath != "" {
		s, err := collect.OpenStore(cfg.Storage.InventoryDBPath)
		if err != nil {
			log.Warn("inventory store unavailable, running without persistence",
				zap.String("path", cfg.Storage.InventoryDBPath), zap.Error(err))
		} else {
			store = s
		}
	}

	deep, deepCloser := buildDeepScanner(cfg, log)

	collector := collect.NewCollector(scanner, engine, deep, store)
	collector.MaxConcurrentDeepScans = cfg.Collector.MaxConcurrentDeepScans
	cleanup := func() {
		if deepCloser != nil {
			_ = deepCloser.Close()
		}
		if store != nil {
			_ = store.Close()
		}
	}
	return collector, cleanup, nil
}

// buildDeepScanner attaches the BPF-assisted deep scanner when a pin
// directory is configured, falling back to the /proc-based one — and
// unconditionally when no pin directory is set at all (spec §4.1: "no
// BPFPinDir means no BPF probe").
func buildDeepScanner(cfg config.Config, log *zap.Logger) (collect.DeepScanner, io.Closer) {
	if cfg.Collector.BPFPinDir != "" {
		probe, err := deepsignal.AttachBPF(cfg.Collector.BPFPinDir)
		if err == nil {
			log.Info("BPF deep-signal probe attached", zap.String("pin_dir", cfg.Collector.BPFPinDir))
			return probe, probe
		}
		log.Warn("BPF probe unavailable, falling back to /proc deep scanner", zap.Error(err))
	}
	return deepsignal.NewScanner(), nil
}
