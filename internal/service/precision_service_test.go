package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReliability struct {
	value float64
	ok    bool
}

func (f *fakeReliability) CachedReliability() (float64, bool) { return f.value, f.ok }

func precisionTestConfig() *config.Config {
	return &config.Config{
		Psychometrics: config.PsychometricsConfig{
			PopulationSD:     15,
			ScoreMean:        100,
			ScoreMin:         40,
			ScoreMax:         160,
			ReliabilityFloor: 0.60,
			ConfidenceLevel:  0.95,
		},
	}
}

func TestComputeSEMBoundaries(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	// 信度0时SEM等于量表SD，信度1时测量无误差
	sem, err := s.ComputeSEM(0)
	require.NoError(t, err)
	assert.Equal(t, 15.0, sem)

	sem, err = s.ComputeSEM(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sem)
}

func TestComputeSEMDecreasesWithReliability(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	prev := 16.0
	for _, r := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		sem, err := s.ComputeSEM(r)
		require.NoError(t, err)
		assert.Less(t, sem, prev)
		prev = sem
	}
}

func TestComputeSEMRejectsOutOfRange(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	_, err := s.ComputeSEM(-0.1)
	assert.ErrorIs(t, err, util.ErrInvalidReliability)

	_, err = s.ComputeSEM(1.1)
	assert.ErrorIs(t, err, util.ErrInvalidReliability)
}

func TestComputeConfidenceInterval(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	ci, err := s.ComputeConfidenceInterval(100, 5, 0.95)
	require.NoError(t, err)
	// 100 ± 1.96*5 = [90.2, 109.8] → 取整 [90, 110]
	assert.Equal(t, 90, ci.Lower)
	assert.Equal(t, 110, ci.Upper)
	assert.Equal(t, 0.95, ci.ConfidenceLevel)
	assert.Equal(t, 5.0, ci.SEM)
}

func TestComputeConfidenceIntervalClampsToScale(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	ci, err := s.ComputeConfidenceInterval(155, 10, 0.99)
	require.NoError(t, err)
	assert.Equal(t, 160, ci.Upper)
	assert.LessOrEqual(t, ci.Lower, ci.Upper)

	ci, err = s.ComputeConfidenceInterval(45, 10, 0.99)
	require.NoError(t, err)
	assert.Equal(t, 40, ci.Lower)
	assert.LessOrEqual(t, ci.Lower, ci.Upper)
}

func TestComputeConfidenceIntervalUnsupportedLevel(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{}, precisionTestConfig())

	_, err := s.ComputeConfidenceInterval(100, 5, 0.85)
	assert.ErrorIs(t, err, util.ErrUnsupportedConfidence)
}

func TestScoreEstimateWithUsableReliability(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{value: 0.91, ok: true}, precisionTestConfig())

	ci, err := s.ScoreEstimate(100)
	require.NoError(t, err)
	require.NotNil(t, ci)
	// SEM = 15*sqrt(0.09) = 4.5, 1.96*4.5 ≈ 8.8
	assert.Equal(t, 91, ci.Lower)
	assert.Equal(t, 109, ci.Upper)
}

func TestScoreEstimateBelowFloorReturnsNil(t *testing.T) {
	// 信度低于下限时宁可不报告区间
	s := NewPrecisionService(&fakeReliability{value: 0.55, ok: true}, precisionTestConfig())

	ci, err := s.ScoreEstimate(100)
	require.NoError(t, err)
	assert.Nil(t, ci)
}

func TestScoreEstimateNoReliabilityReturnsNil(t *testing.T) {
	s := NewPrecisionService(&fakeReliability{ok: false}, precisionTestConfig())

	ci, err := s.ScoreEstimate(100)
	require.NoError(t, err)
	assert.Nil(t, ci)
}
