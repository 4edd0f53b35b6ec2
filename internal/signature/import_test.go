package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func namedPattern(name string, confidence float64) model.PersistedPattern {
	return model.PersistedPattern{
		Signature: model.SupervisorSignature{Name: name, ConfidenceWeight: confidence},
	}
}

func TestImport_NewNameIsAddedAsImported(t *testing.T) {
	merged, result := Import(nil, []model.PersistedPattern{namedPattern("foo", 0.5)}, KeepHigherConfidence)
	require.Len(t, merged, 1)
	assert.Equal(t, model.SourceImported, merged[0].Source)
	assert.Equal(t, 1, result.Imported)
}

func TestImport_KeepExistingIgnoresIncoming(t *testing.T) {
	existing := []model.PersistedPattern{namedPattern("foo", 0.9)}
	merged, result := Import(existing, []model.PersistedPattern{namedPattern("foo", 0.1)}, KeepExisting)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Signature.ConfidenceWeight)
	assert.Equal(t, 1, result.Skipped)
}

func TestImport_ReplaceWithImportedAlwaysOverwrites(t *testing.T) {
	existing := []model.PersistedPattern{namedPattern("foo", 0.9)}
	merged, result := Import(existing, []model.PersistedPattern{namedPattern("foo", 0.1)}, ReplaceWithImported)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.1, merged[0].Signature.ConfidenceWeight)
	assert.Equal(t, 1, result.Updated)
}

func TestImport_KeepHigherConfidencePicksWinner(t *testing.T) {
	existing := []model.PersistedPattern{namedPattern("foo", 0.3)}
	merged, result := Import(existing, []model.PersistedPattern{namedPattern("foo", 0.9)}, KeepHigherConfidence)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Signature.ConfidenceWeight)
	assert.Equal(t, 1, result.Updated)
}

func TestImport_MergeUnionsPatternGroups(t *testing.T) {
	existing := []model.PersistedPattern{{
		Signature: model.SupervisorSignature{Name: "foo", Patterns: model.SignaturePatterns{Comm: []string{"a"}}},
	}}
	incoming := []model.PersistedPattern{{
		Signature: model.SupervisorSignature{Name: "foo", Patterns: model.SignaturePatterns{Comm: []string{"b"}}},
	}}
	merged, _ := Import(existing, incoming, Merge)
	require.Len(t, merged, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, merged[0].Signature.Patterns.Comm)
}
