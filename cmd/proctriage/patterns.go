package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/octoreflex/proctriage/internal/model"
	"github.com/octoreflex/proctriage/internal/signature"
)

var importResolution string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and manage the supervisor signature library",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every pattern in the signature library",
	Args:  cobra.NoArgs,
	RunE:  runPatternsList,
}

var patternsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print accumulated per-pattern match statistics",
	Args:  cobra.NoArgs,
	RunE:  runPatternsStats,
}

var patternsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Merge patterns from a file into the signature library",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsImport,
}

func init() {
	patternsImportCmd.Flags().StringVar(&importResolution, "on-conflict", "higher-confidence",
		"higher-confidence | keep-existing | replace | merge")
	patternsCmd.AddCommand(patternsListCmd, patternsStatsCmd, patternsImportCmd)
	rootCmd.AddCommand(patternsCmd)
}

func openPatternStore() (*signature.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return signature.NewStore(cfg.Storage.PatternsDir), nil
}

func runPatternsList(cmd *cobra.Command, _ []string) error {
	store, err := openPatternStore()
	if err != nil {
		return err
	}
	patterns, disabled, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading pattern library: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Patterns []model.PersistedPattern          `json:"patterns"`
		Disabled map[string]signature.DisabledEntry `json:"disabled"`
	}{patterns, disabled})
}

func runPatternsStats(cmd *cobra.Command, _ []string) error {
	store, err := openPatternStore()
	if err != nil {
		return err
	}
	stats, err := store.LoadStats()
	if err != nil {
		return fmt.Errorf("loading pattern stats: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runPatternsImport(cmd *cobra.Command, args []string) error {
	store, err := openPatternStore()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return &ArgError{Err: fmt.Errorf("reading %s: %w", args[0], err)}
	}
	var incoming []model.PersistedPattern
	if err := json.Unmarshal(data, &incoming); err != nil {
		return &ArgError{Err: fmt.Errorf("parsing %s: %w", args[0], err)}
	}

	existing, _, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading existing pattern library: %w", err)
	}

	resolution, err := parseConflictResolution(importResolution)
	if err != nil {
		return &ArgError{Err: err}
	}

	merged, result := signature.Import(existing, incoming, resolution)
	if err := store.SaveCustom(merged); err != nil {
		return fmt.Errorf("saving merged pattern library: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseConflictResolution(s string) (signature.ConflictResolution, error) {
	switch s {
	case "higher-confidence", "":
		return signature.KeepHigherConfidence, nil
	case "keep-existing":
		return signature.KeepExisting, nil
	case "replace":
		return signature.ReplaceWithImported, nil
	case "merge":
		return signature.Merge, nil
	default:
		return 0, fmt.Errorf("unknown --on-conflict value %q", s)
	}
}
