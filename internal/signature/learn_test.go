package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func TestNormaliseName_StripsPath(t *testing.T) {
	assert.Equal(t, "vim", normaliseName("/usr/bin/vim"))
}

func TestNormaliseName_CollapsesVersionedInterpreter(t *testing.T) {
	assert.Equal(t, "python.*", normaliseName("python3.11"))
	assert.Equal(t, "node.*", normaliseName("node18"))
}

func TestAccumulator_MaterialiseCandidate_RequiresMinObservations(t *testing.T) {
	acc := NewAccumulator()
	acc.Record(Observation{ProcessName: "myagent", Cmdline: "myagent --run", Accepted: true})
	acc.Record(Observation{ProcessName: "myagent", Cmdline: "myagent --run", Accepted: true})
	_, ok := acc.MaterialiseCandidate("myagent")
	assert.False(t, ok)
}

func TestAccumulator_MaterialiseCandidate_SucceedsAfterEnoughObservations(t *testing.T) {
	acc := NewAccumulator()
	for i := 0; i < 3; i++ {
		acc.Record(Observation{ProcessName: "myagent", Cmdline: "myagent --run", Accepted: true})
	}
	pattern, ok := acc.MaterialiseCandidate("myagent")
	require.True(t, ok)
	assert.Equal(t, "learned:myagent", pattern.Signature.Name)
}

func TestAccumulator_MaterialiseCandidate_ConsistentAcceptGivesExactSpecificity(t *testing.T) {
	acc := NewAccumulator()
	for i := 0; i < 5; i++ {
		acc.Record(Observation{ProcessName: "supervisord", Cmdline: "supervisord -c /etc/supervisord.conf", Accepted: true})
	}
	pattern, ok := acc.MaterialiseCandidate("supervisord")
	require.True(t, ok)
	assert.Equal(t, basePriority+SpecificityExact.priorityOffset(), pattern.Signature.Priority)
}

func TestAccumulator_MaterialiseCandidate_MixedDecisionsGiveBroadSpecificity(t *testing.T) {
	acc := NewAccumulator()
	acc.Record(Observation{ProcessName: "mixedproc", Cmdline: "mixedproc --x", Accepted: true})
	acc.Record(Observation{ProcessName: "mixedproc", Cmdline: "mixedproc --x", Accepted: false})
	acc.Record(Observation{ProcessName: "mixedproc", Cmdline: "mixedproc --x", Accepted: true})
	acc.Record(Observation{ProcessName: "mixedproc", Cmdline: "mixedproc --x", Accepted: false})
	pattern, ok := acc.MaterialiseCandidate("mixedproc")
	require.True(t, ok)
	assert.Equal(t, basePriority+SpecificityBroad.priorityOffset(), pattern.Signature.Priority)
}

func TestGeneralise_ReplacesUUIDsPortsAndLongIntegers(t *testing.T) {
	out := generalise("worker --job-id=550e8400-e29b-41d4-a716-446655440000 --port :8080 --retries 123456")
	assert.NotContains(t, out, "550e8400")
	assert.NotContains(t, out, "8080")
	assert.NotContains(t, out, "123456")
}

func TestConsistency_AllAcceptedIsOne(t *testing.T) {
	obs := []Observation{{Accepted: true}, {Accepted: true}, {Accepted: true}}
	assert.Equal(t, 1.0, consistency(obs))
}

func TestSpecificityFromConsistency_Thresholds(t *testing.T) {
	assert.Equal(t, SpecificityExact, specificityFromConsistency(0.95))
	assert.Equal(t, SpecificityStandard, specificityFromConsistency(0.80))
	assert.Equal(t, SpecificityBroad, specificityFromConsistency(0.5))
}

func TestCategoryFromName_InfersFromKeywords(t *testing.T) {
	assert.Equal(t, model.CategoryIDE, categoryFromName("vim"))
	assert.Equal(t, model.CategoryOther, categoryFromName("qux"))
}
