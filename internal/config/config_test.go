package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_ValidatesClean(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, Validate(&cfg))
}

func TestLoad_MergesOverridesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
schema_version: "1"
node_id: worker-7
observability:
  log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "worker-7", cfg.NodeID)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	// Unset fields keep their defaults.
	assert.Equal(t, "/run/proctriage/action.lock", cfg.Executor.LockPath)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidValuesFailValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schema_version: "1"
node_id: x
decision:
  fdr_alpha: 5.0
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fdr_alpha")
}

func TestValidate_WrongSchemaVersionRejected(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_version")
}

func TestValidate_MembraneWeightsMustSumToOne(t *testing.T) {
	cfg := Defaults()
	cfg.Membrane.WeightBOCPD = 0.9
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights must sum")
}

func TestValidate_UnknownFDRMethodRejected(t *testing.T) {
	cfg := Defaults()
	cfg.Decision.FDRMethod = "bonferroni"
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fdr_method")
}

func TestValidate_DROMaxMustNotBeBelowBase(t *testing.T) {
	cfg := Defaults()
	cfg.Decision.DROBaseEpsilon = 0.5
	cfg.Decision.DROMaxEpsilon = 0.1
	assert.Error(t, Validate(&cfg))
}

func TestValidate_EmptyLockPathRejected(t *testing.T) {
	cfg := Defaults()
	cfg.Executor.LockPath = ""
	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_path")
}
