package integrity

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord(at time.Time) *DecisionRecord {
	return &DecisionRecord{
		ActionID:    "a1",
		PID:         100,
		FromClass:   "compromised",
		ToAction:    "kill",
		Posterior:   0.91,
		DROEpsilon:  0.1,
		MartingaleP: 0.01,
		Timestamp:   at,
		NodeID:      "node-a",
		Inputs:      map[string]any{"evidence_count": 12},
	}
}

func TestValidate_FirstRecordChainsFromEmptyParent(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	r := validRecord(time.Now())

	require.NoError(t, k.Validate(r))
	assert.True(t, r.Verified)
	assert.Empty(t, r.ParentHash)
	assert.NotEmpty(t, r.DecisionHash)
}

func TestValidate_SecondRecordChainsOntoFirstHash(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	first := validRecord(time.Now())
	require.NoError(t, k.Validate(first))

	second := validRecord(first.Timestamp.Add(time.Second))
	second.ActionID = "a2"
	require.NoError(t, k.Validate(second))

	assert.Equal(t, first.DecisionHash, second.ParentHash)
	assert.NotEqual(t, first.DecisionHash, second.DecisionHash)
}

func TestValidate_NonMonotonicTimestampRejected(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	first := validRecord(time.Now())
	require.NoError(t, k.Validate(first))

	second := validRecord(first.Timestamp.Add(-time.Minute))
	err := k.Validate(second)
	require.Error(t, err)

	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationNonMonotonicTime, v.Kind)
	assert.False(t, second.Verified)
}

func TestValidate_PosteriorOutOfBoundsRejected(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	r := validRecord(time.Now())
	r.Posterior = 1.5

	err := k.Validate(r)
	require.Error(t, err)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationParameterOutOfBounds, v.Kind)
}

func TestValidate_NaNDROEpsilonRejected(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	r := validRecord(time.Now())
	r.DROEpsilon = math.NaN()

	err := k.Validate(r)
	require.Error(t, err)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationNaNOrInf, v.Kind)
}

func TestValidate_MissingInputsRejected(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	r := validRecord(time.Now())
	r.Inputs = nil

	err := k.Validate(r)
	require.Error(t, err)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationMissingAuditTrail, v.Kind)
}

func TestValidate_StrictModePanicsOnViolation(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, true)
	r := validRecord(time.Now())
	r.Posterior = -1

	assert.Panics(t, func() { _ = k.Validate(r) })
}

func TestStats_TracksVerifiedAndViolationCounts(t *testing.T) {
	k := NewKernel(DefaultBounds(), nil, false)
	require.NoError(t, k.Validate(validRecord(time.Now())))

	bad := validRecord(time.Now().Add(time.Second))
	bad.Posterior = 2
	require.Error(t, k.Validate(bad))

	stats := k.Stats()
	assert.Equal(t, int64(1), stats.Verified)
	assert.Equal(t, int64(1), stats.Violations)
	assert.NotEmpty(t, stats.LastHash)
}
