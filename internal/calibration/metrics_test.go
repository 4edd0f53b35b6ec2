package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedCalibrationError_NearCalibrationIsSmall(t *testing.T) {
	var obs []Observation
	for i := 0; i < 10; i++ {
		obs = append(obs, Observation{Predicted: 0.9, Actual: true})
	}
	for i := 0; i < 1; i++ {
		obs = append(obs, Observation{Predicted: 0.9, Actual: false})
	}
	// 10/11 actual-true at predicted 0.9 is close to calibrated; not
	// exactly zero but should be small.
	assert.Less(t, expectedCalibrationError(obs), 0.15)
}

func TestExpectedCalibrationError_SystematicOverconfidenceIsHigh(t *testing.T) {
	var obs []Observation
	for i := 0; i < 50; i++ {
		obs = append(obs, Observation{Predicted: 0.95, Actual: false})
	}
	assert.Greater(t, expectedCalibrationError(obs), 0.5)
}

func TestExpectedCalibrationError_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, expectedCalibrationError(nil))
}

func TestBrierScore_PerfectPredictionsAreZero(t *testing.T) {
	obs := []Observation{
		{Predicted: 1.0, Actual: true},
		{Predicted: 0.0, Actual: false},
	}
	assert.Equal(t, 0.0, brierScore(obs))
}

func TestBrierScore_WorstCaseIsOne(t *testing.T) {
	obs := []Observation{
		{Predicted: 1.0, Actual: false},
		{Predicted: 0.0, Actual: true},
	}
	assert.Equal(t, 1.0, brierScore(obs))
}
