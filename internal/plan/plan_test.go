package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func target(pid int) model.ProcessIdentity {
	return model.ProcessIdentity{PID: pid, StartID: "start"}
}

func TestGenerate_SkipsKeepCandidates(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionKeep}}, Config{})
	assert.Empty(t, p.Actions)
}

func TestGenerate_SortsByTargetPIDAscending(t *testing.T) {
	p := Generate([]Candidate{
		{Target: target(30), Action: model.ActionRenice},
		{Target: target(10), Action: model.ActionKill},
		{Target: target(20), Action: model.ActionPause},
	}, Config{})
	require.Len(t, p.Actions, 3)
	assert.Equal(t, 10, p.Actions[0].Target.PID)
	assert.Equal(t, 20, p.Actions[1].Target.PID)
	assert.Equal(t, 30, p.Actions[2].Target.PID)
}

func TestGenerate_VerifyIdentityAttachedToEveryAction(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionRenice}}, Config{})
	require.Len(t, p.Actions, 1)
	assert.True(t, p.Actions[0].PreChecks.Has(model.CheckVerifyIdentity))
}

func TestGenerate_KillGetsFullPreCheckSetIncludingSupervisor(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionKill}}, Config{})
	require.Len(t, p.Actions, 1)
	checks := p.Actions[0].PreChecks
	assert.True(t, checks.Has(model.CheckVerifyIdentity))
	assert.True(t, checks.Has(model.CheckNotProtected))
	assert.True(t, checks.Has(model.CheckDataLossGate))
	assert.True(t, checks.Has(model.CheckSessionSafety))
	assert.True(t, checks.Has(model.CheckSupervisor))
}

func TestGenerate_RestartGetsGateChecksButNotSupervisor(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionRestart}}, Config{})
	checks := p.Actions[0].PreChecks
	assert.True(t, checks.Has(model.CheckDataLossGate))
	assert.False(t, checks.Has(model.CheckSupervisor))
}

func TestGenerate_ReniceOnlyGetsVerifyIdentity(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionRenice}}, Config{})
	checks := p.Actions[0].PreChecks
	assert.Len(t, checks, 1)
	assert.True(t, checks.Has(model.CheckVerifyIdentity))
}

func TestGenerate_StagePauseBeforeKillEmitsPauseImmediatelyBeforeKill(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionKill}}, Config{StagePauseBeforeKill: true})
	require.Len(t, p.Actions, 2)
	assert.Equal(t, model.ActionPause, p.Actions[0].ActionKind)
	assert.Equal(t, model.ActionKill, p.Actions[1].ActionKind)
}

func TestGenerate_StagedPauseDropsDataLossGate(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionKill}}, Config{StagePauseBeforeKill: true})
	pauseChecks := p.Actions[0].PreChecks
	assert.False(t, pauseChecks.Has(model.CheckDataLossGate))
	assert.True(t, pauseChecks.Has(model.CheckVerifyIdentity))
}

func TestGenerate_StagePauseBeforeKillFalseDoesNotAffectOtherActions(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionRestart}}, Config{StagePauseBeforeKill: true})
	require.Len(t, p.Actions, 1)
	assert.Equal(t, model.ActionRestart, p.Actions[0].ActionKind)
}

func TestGenerate_BlockedCandidateIsEmittedWithFlagSet(t *testing.T) {
	p := Generate([]Candidate{{Target: target(1), Action: model.ActionKill, Blocked: true}}, Config{})
	require.Len(t, p.Actions, 1)
	assert.True(t, p.Actions[0].Blocked)
}

func TestGenerate_EmptyCandidatesProducesEmptyPlan(t *testing.T) {
	p := Generate(nil, Config{})
	assert.Empty(t, p.Actions)
}
