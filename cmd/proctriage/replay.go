package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/octoreflex/proctriage/internal/collect"
	"github.com/octoreflex/proctriage/internal/priorsfile"
	"github.com/octoreflex/proctriage/internal/replay"
)

var (
	replayAnonymize bool
	recordOutPath   string
	recordName      string
)

var replayCmd = &cobra.Command{
	Use:   "replay <snapshot.json>",
	Short: "Deterministically re-run inference and decision over a recorded snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture one quick_scan of this host as a replayable snapshot",
	Args:  cobra.NoArgs,
	RunE:  runRecord,
}

func init() {
	replayCmd.Flags().BoolVar(&replayAnonymize, "anonymize", false, "hash cmdlines and zero uids before replaying")
	recordCmd.Flags().StringVar(&recordOutPath, "out", "", "output path (required)")
	recordCmd.Flags().StringVar(&recordName, "name", "", "snapshot name (default: timestamp-based)")
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(recordCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	snap, err := replay.Load(path)
	if err != nil {
		return &ArgError{Err: fmt.Errorf("loading snapshot %s: %w", path, err)}
	}
	if replayAnonymize {
		snap.Anonymize()
	}

	priors, err := priorsfile.Load(cfg.Storage.PriorsPath)
	if err != nil {
		return fmt.Errorf("loading priors from %s: %w", cfg.Storage.PriorsPath, err)
	}
	policy := policyFromConfig(cfg)

	results, err := replay.Inference(snap, priors, policy)
	if err != nil {
		return fmt.Errorf("replay inference: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	if recordOutPath == "" {
		return &ArgError{Err: fmt.Errorf("record: --out is required")}
	}

	scan, err := collect.NewProcScanner().QuickScan()
	if err != nil {
		return fmt.Errorf("quick scan: %w", err)
	}

	var namePtr *string
	if recordName != "" {
		namePtr = &recordName
	}

	snap, err := replay.Record(scan, namePtr)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	if err := snap.Save(recordOutPath); err != nil {
		return fmt.Errorf("saving snapshot to %s: %w", recordOutPath, err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s (%d processes)\n", recordOutPath, len(snap.Processes))
	return nil
}
