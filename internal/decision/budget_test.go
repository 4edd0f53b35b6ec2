package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/octoreflex/proctriage/internal/model"
)

func TestBucket_ConsumeSucceedsWithinCapacity(t *testing.T) {
	b := NewBucket(100, time.Hour)
	defer b.Close()
	assert.True(t, b.Consume(50))
	assert.Equal(t, 50, b.Remaining())
}

func TestBucket_ConsumeFailsWhenInsufficientTokens(t *testing.T) {
	b := NewBucket(10, time.Hour)
	defer b.Close()
	assert.False(t, b.Consume(11))
	assert.Equal(t, 10, b.Remaining())
}

func TestBucket_KeepIsAlwaysFree(t *testing.T) {
	b := NewBucket(1, time.Hour)
	defer b.Close()
	assert.True(t, b.ConsumeForAction(model.ActionKeep))
	assert.Equal(t, 1, b.Remaining())
}

func TestBucket_KillCostsMoreThanRenice(t *testing.T) {
	assert.Greater(t, ActionCostModel[model.ActionKill], ActionCostModel[model.ActionRenice])
}

func TestBucket_ConsumedTotalAccumulates(t *testing.T) {
	b := NewBucket(100, time.Hour)
	defer b.Close()
	b.Consume(10)
	b.Consume(20)
	assert.Equal(t, uint64(30), b.ConsumedTotal())
}

func TestBucket_NewPanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { NewBucket(0, time.Hour) })
}

func TestBucket_NewPanicsOnNonPositiveRefillPeriod(t *testing.T) {
	assert.Panics(t, func() { NewBucket(10, 0) })
}
