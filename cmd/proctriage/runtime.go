package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/octoreflex/proctriage/internal/config"
	"github.com/octoreflex/proctriage/internal/model"
	"github.com/octoreflex/proctriage/internal/observability"
)

// loadConfig reads configPath if present, falling back to
// config.Defaults() otherwise — subcommands like replay and plan are
// routinely useful on a workstation with no /etc/proctriage/config.yaml
// installed, and requiring one there would make every example in
// --help a lie.
func loadConfig() (config.Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading %s: %w", configPath, err)
	}
	return *cfg, nil
}

// buildLogger wraps observability.BuildLogger with the config's own
// level/format fields.
func buildLogger(cfg config.Config) (*zap.Logger, error) {
	return observability.BuildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
}

// policyFromConfig assembles a model.Policy from the daemon config's
// decision knobs plus the fresh-install default loss matrix — an
// operator running against learned pattern data would load a real loss
// matrix from the pattern store instead; this CLI has no such store
// wired to a loss table yet, so DefaultLossMatrix is what every
// subcommand below falls back to.
func policyFromConfig(cfg config.Config) model.Policy {
	return model.Policy{
		Loss:             model.DefaultLossMatrix(),
		FDRMethod:        fdrMethodFromString(cfg.Decision.FDRMethod),
		FDRAlpha:         cfg.Decision.FDRAlpha,
		FDRMinCandidates: cfg.Decision.FDRMinCandidates,
		DRO: model.DROConfig{
			BaseEpsilon: cfg.Decision.DROBaseEpsilon,
			MaxEpsilon:  cfg.Decision.DROMaxEpsilon,
		},
		RobustEta:  cfg.Decision.RobustEta,
		Guardrails: model.Guardrails{MaxAutonomousRank: cfg.Decision.MaxAutonomousRank},
	}
}

func fdrMethodFromString(s string) model.FDRMethod {
	switch s {
	case "bh":
		return model.FDRBenjaminiHochberg
	case "by":
		return model.FDRBenjaminiYekutieli
	case "alpha_investing":
		return model.FDRAlphaInvesting
	default:
		return model.FDRNone
	}
}
