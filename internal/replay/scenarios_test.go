package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/proctriage/internal/model"
)

func TestZombieTree_HasFiveZombiesOneOrphanTwoServices(t *testing.T) {
	snap := ZombieTree()
	require.Len(t, snap.Processes, 8)

	zombies := 0
	for _, p := range snap.Processes {
		if p.State == model.StateZombie {
			zombies++
		}
	}
	assert.Equal(t, 5, zombies)

	byPID := map[int]model.ProcessRecord{}
	for _, p := range snap.Processes {
		byPID[p.PID] = p
	}
	assert.Equal(t, "make", byPID[30001].Comm)
	assert.Equal(t, 1, byPID[30001].PPID)
	assert.Equal(t, 30001, byPID[30002].PPID)
	assert.Equal(t, model.StateSleeping, byPID[30006].State)
	assert.Equal(t, "sshd", byPID[30007].Comm)
	assert.Equal(t, "cron", byPID[30008].Comm)
}

func TestStuckTests_HasSevenProcessesWithExpectedShape(t *testing.T) {
	snap := StuckTests()
	require.Len(t, snap.Processes, 7)
	require.Len(t, snap.DeepSignals, 2)

	byPID := map[int]model.ProcessRecord{}
	for _, p := range snap.Processes {
		byPID[p.PID] = p
	}
	assert.Equal(t, "python3", byPID[10001].Comm)
	assert.Equal(t, "nginx", byPID[10006].Comm)
	assert.NotNil(t, byPID[10007].TTY)

	require.Contains(t, snap.DeepSignals, 10006)
	assert.True(t, *snap.DeepSignals[10006].NetActive)
}

func TestScenarios_StartIDsAreStableAcrossCalls(t *testing.T) {
	a := ZombieTree()
	b := ZombieTree()
	for i := range a.Processes {
		assert.Equal(t, a.Processes[i].StartID, b.Processes[i].StartID)
	}
}

func TestScenarios_CarrySystemContext(t *testing.T) {
	snap := StuckTests()
	require.NotNil(t, snap.Context.CPUCount)
	assert.Equal(t, 8, *snap.Context.CPUCount)
	require.NotNil(t, snap.Context.TotalMemoryBytes)
	assert.Equal(t, "linux", snap.Context.Platform)
}
