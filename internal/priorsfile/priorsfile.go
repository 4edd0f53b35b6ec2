// Package priorsfile loads the JSON priors file described in spec §6
// into a model.Priors, converting and validating the on-disk schema
// before the inference core ever sees it. Config/validation failures
// are surfaced to the caller as fatal load-time errors (spec §7) —
// this package never falls back to a default on a malformed file.
package priorsfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/octoreflex/proctriage/internal/model"
)

// CurrentSchemaVersion is the schema_version this loader accepts.
// Future major versions will require an explicit migration path; minor
// additions within the same major version are forward-compatible.
const CurrentSchemaVersion = 1

// betaJSON is the on-disk (α,β) pair. Field names match the
// *_beta/*_gamma naming convention from spec §6.
type betaJSON struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

type gammaJSON struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

type dirichletJSON struct {
	Concentration     map[string]float64 `json:"concentration"`
	BaseConcentration float64             `json:"base_concentration"`
}

type classJSON struct {
	PriorProb float64        `json:"prior_prob"`
	CPUBeta   betaJSON       `json:"cpu_beta"`
	OrphanBeta betaJSON      `json:"orphan_beta"`
	TTYBeta   betaJSON       `json:"tty_beta"`
	NetBeta   betaJSON       `json:"net_beta"`
	IOBeta    betaJSON       `json:"io_beta"`
	RuntimeGamma gammaJSON  `json:"runtime_gamma"`
	CommandCategory *dirichletJSON `json:"command_category,omitempty"`
}

type driftJSON struct {
	HazardRate           float64 `json:"hazard_rate"`
	RegimeShiftThreshold  float64 `json:"regime_shift_threshold"`
	WassersteinWindow     int     `json:"wasserstein_window"`
}

type robustBayesJSON struct {
	Eta float64 `json:"eta"`
}

type hierarchicalJSON struct {
	ShrinkageWeight float64 `json:"shrinkage_weight"`
}

type priorsJSON struct {
	SchemaVersion int `json:"schema_version"`
	Classes       struct {
		Useful    *classJSON `json:"useful"`
		UsefulBad *classJSON `json:"useful_bad"`
		Abandoned *classJSON `json:"abandoned"`
		Zombie    *classJSON `json:"zombie"`
	} `json:"classes"`
	Drift        *driftJSON        `json:"drift,omitempty"`
	RobustBayes  *robustBayesJSON  `json:"robust_bayes,omitempty"`
	Hierarchical *hierarchicalJSON `json:"hierarchical,omitempty"`
}

// Load reads and parses the priors file at path, returning a validated
// model.Priors. Both a malformed JSON document and a structurally
// valid-but-semantically-invalid one (missing class, priors not
// summing to 1, out-of-range α/β) return an error — there is no
// partial-success path.
func Load(path string) (model.Priors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Priors{}, fmt.Errorf("priorsfile: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw JSON bytes into a validated model.Priors. Exposed
// separately from Load so callers that already have the bytes (e.g.
// embedded defaults, a config-reload watcher) can skip the file read.
func Parse(data []byte) (model.Priors, error) {
	var doc priorsJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Priors{}, fmt.Errorf("priorsfile: parse: %w", err)
	}
	if doc.SchemaVersion != CurrentSchemaVersion {
		return model.Priors{}, fmt.Errorf("priorsfile: unsupported schema_version %d (want %d)", doc.SchemaVersion, CurrentSchemaVersion)
	}

	classes := map[model.ClassKind]*classJSON{
		model.ClassUseful:    doc.Classes.Useful,
		model.ClassUsefulBad: doc.Classes.UsefulBad,
		model.ClassAbandoned: doc.Classes.Abandoned,
		model.ClassZombie:    doc.Classes.Zombie,
	}

	priors := model.Priors{SchemaVersion: doc.SchemaVersion, Classes: make(map[model.ClassKind]model.ClassPriors, 4)}
	for _, kind := range model.AllClasses() {
		cj := classes[kind]
		if cj == nil {
			return model.Priors{}, fmt.Errorf("priorsfile: missing required class %q", kind)
		}
		cp, err := convertClass(*cj)
		if err != nil {
			return model.Priors{}, fmt.Errorf("priorsfile: class %q: %w", kind, err)
		}
		priors.Classes[kind] = cp
	}

	if doc.Drift != nil {
		priors.Drift = &model.DriftPriors{
			HazardRate:           doc.Drift.HazardRate,
			RegimeShiftThreshold: doc.Drift.RegimeShiftThreshold,
			WassersteinWindow:    doc.Drift.WassersteinWindow,
		}
	}
	if doc.RobustBayes != nil {
		priors.RobustBayes = &model.RobustBayesPriors{Eta: doc.RobustBayes.Eta}
	}
	if doc.Hierarchical != nil {
		priors.Hierarchical = &model.HierarchicalPriors{ShrinkageWeight: doc.Hierarchical.ShrinkageWeight}
	}

	if err := priors.Validate(); err != nil {
		return model.Priors{}, err
	}
	return priors, nil
}

func convertClass(cj classJSON) (model.ClassPriors, error) {
	for name, b := range map[string]betaJSON{
		"cpu_beta": cj.CPUBeta, "orphan_beta": cj.OrphanBeta, "tty_beta": cj.TTYBeta,
		"net_beta": cj.NetBeta, "io_beta": cj.IOBeta,
	} {
		if b.Alpha <= 0 || b.Beta <= 0 {
			return model.ClassPriors{}, fmt.Errorf("%s: alpha and beta must be > 0", name)
		}
	}
	if cj.RuntimeGamma.Shape <= 0 || cj.RuntimeGamma.Rate <= 0 {
		return model.ClassPriors{}, fmt.Errorf("runtime_gamma: shape and rate must be > 0")
	}

	cp := model.ClassPriors{
		PriorProb:    cj.PriorProb,
		CPUBeta:      model.BetaParams{Alpha: cj.CPUBeta.Alpha, Beta: cj.CPUBeta.Beta},
		OrphanBeta:   model.BetaParams{Alpha: cj.OrphanBeta.Alpha, Beta: cj.OrphanBeta.Beta},
		TTYBeta:      model.BetaParams{Alpha: cj.TTYBeta.Alpha, Beta: cj.TTYBeta.Beta},
		NetBeta:      model.BetaParams{Alpha: cj.NetBeta.Alpha, Beta: cj.NetBeta.Beta},
		IOBeta:       model.BetaParams{Alpha: cj.IOBeta.Alpha, Beta: cj.IOBeta.Beta},
		RuntimeGamma: model.GammaParams{Shape: cj.RuntimeGamma.Shape, Rate: cj.RuntimeGamma.Rate},
	}
	if cj.CommandCategory != nil {
		cp.CommandCategory = &model.DirichletParams{
			Concentration:     cj.CommandCategory.Concentration,
			BaseConcentration: cj.CommandCategory.BaseConcentration,
		}
	}
	return cp, nil
}
