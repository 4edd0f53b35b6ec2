package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func sampleSig(name string, priority int, weight float64, comm, cmd string) model.SupervisorSignature {
	sig := model.SupervisorSignature{
		Name:             name,
		Priority:         priority,
		ConfidenceWeight: weight,
	}
	if comm != "" {
		sig.Patterns.Comm = []string{comm}
	}
	if cmd != "" {
		sig.Patterns.Cmd = []string{cmd}
	}
	return sig
}

func TestMatcher_MatchesOnCommOnly(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{sampleSig("vim", 10, 0.9, "^vim$", "")})
	require.NoError(t, err)
	match, ok := m.Best(model.ProcessMatchContext{Comm: "vim"})
	require.True(t, ok)
	assert.Equal(t, "vim", match.Signature.Name)
}

func TestMatcher_EmptyGroupIsSkipped(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{sampleSig("bash", 10, 0.5, "^bash$", "")})
	require.NoError(t, err)
	_, ok := m.Best(model.ProcessMatchContext{Comm: "bash", Cmdline: "anything at all"})
	assert.True(t, ok)
}

func TestMatcher_RequiresAllNonEmptyGroupsToMatch(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{sampleSig("node-ci", 10, 0.5, "^node$", "ci-runner")})
	require.NoError(t, err)
	_, ok := m.Best(model.ProcessMatchContext{Comm: "node", Cmdline: "server.js"})
	assert.False(t, ok)
}

func TestMatcher_BestPicksHighestConfidenceAmongMatches(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{
		sampleSig("low", 10, 0.3, "^python$", ""),
		sampleSig("high", 20, 0.9, "^python$", ""),
	})
	require.NoError(t, err)
	match, ok := m.Best(model.ProcessMatchContext{Comm: "python"})
	require.True(t, ok)
	assert.Equal(t, "high", match.Signature.Name)
}

func TestMatcher_MatchAllOrderedByPriorityAscending(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{
		sampleSig("second", 20, 0.5, "^sh$", ""),
		sampleSig("first", 10, 0.5, "^sh$", ""),
	})
	require.NoError(t, err)
	matches := m.MatchAll(model.ProcessMatchContext{Comm: "sh"})
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Signature.Name)
	assert.Equal(t, "second", matches[1].Signature.Name)
}

func TestMatcher_NoMatchReturnsFalse(t *testing.T) {
	m, err := NewMatcher([]model.SupervisorSignature{sampleSig("vim", 10, 0.9, "^vim$", "")})
	require.NoError(t, err)
	_, ok := m.Best(model.ProcessMatchContext{Comm: "emacs"})
	assert.False(t, ok)
}

func TestNewMatcher_ErrorsOnInvalidRegex(t *testing.T) {
	_, err := NewMatcher([]model.SupervisorSignature{sampleSig("bad", 10, 0.5, "[", "")})
	assert.Error(t, err)
}
