package service

import (
	"cognitest_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestClassifyDiscrimination(t *testing.T) {
	cases := []struct {
		value float64
		tier  model.DiscriminationTier
	}{
		{0.55, model.DiscExcellent},
		{0.40, model.DiscExcellent},
		{0.39, model.DiscGood},
		{0.30, model.DiscGood},
		{0.25, model.DiscAcceptable},
		{0.20, model.DiscAcceptable},
		{0.15, model.DiscPoor},
		{0.10, model.DiscPoor},
		{0.05, model.DiscVeryPoor},
		{0.0, model.DiscVeryPoor},
		{-0.01, model.DiscNegative},
		{-0.50, model.DiscNegative},
	}
	for _, tc := range cases {
		tier := ClassifyDiscrimination(f64(tc.value))
		require.NotNil(t, tier, "value %v", tc.value)
		assert.Equal(t, tc.tier, *tier, "value %v", tc.value)
	}
}

func TestClassifyDiscriminationNilValue(t *testing.T) {
	// 新题没有区分度，不能落入任何分级
	assert.Nil(t, ClassifyDiscrimination(nil))
}

func newFlagTestItem(disc *float64, responseCount int, flag model.QualityFlag) *model.Item {
	item := &model.Item{
		Discrimination: disc,
		ResponseCount:  responseCount,
		QualityFlag:    flag,
	}
	item.ID = 7
	return item
}

func TestEvaluateFlagDecisionTransitions(t *testing.T) {
	now := time.Now()

	// 作答数达标且区分度严格为负才转移
	d := evaluateFlagDecision(newFlagTestItem(f64(-0.0001), 50, model.FlagNormal), 50, now)
	assert.True(t, d.Transitioned)
	assert.Equal(t, model.FlagUnderReview, d.NewFlag)
	assert.NotEmpty(t, d.Reason)

	d = evaluateFlagDecision(newFlagTestItem(f64(-0.35), 500, model.FlagNormal), 50, now)
	assert.True(t, d.Transitioned)
}

func TestEvaluateFlagDecisionBoundaries(t *testing.T) {
	now := time.Now()

	// 区分度恰好为0不触发
	d := evaluateFlagDecision(newFlagTestItem(f64(0.0), 100, model.FlagNormal), 50, now)
	assert.False(t, d.Transitioned)
	assert.Equal(t, model.FlagNormal, d.NewFlag)

	// 作答数差一条不触发
	d = evaluateFlagDecision(newFlagTestItem(f64(-0.9), 49, model.FlagNormal), 50, now)
	assert.False(t, d.Transitioned)

	// 无区分度不触发
	d = evaluateFlagDecision(newFlagTestItem(nil, 100, model.FlagNormal), 50, now)
	assert.False(t, d.Transitioned)
}

func TestEvaluateFlagDecisionOnlyFromNormal(t *testing.T) {
	now := time.Now()

	// 已在审核中或已停用的题目重复评估不再转移
	d := evaluateFlagDecision(newFlagTestItem(f64(-0.5), 200, model.FlagUnderReview), 50, now)
	assert.False(t, d.Transitioned)
	assert.Equal(t, model.FlagUnderReview, d.NewFlag)

	d = evaluateFlagDecision(newFlagTestItem(f64(-0.5), 200, model.FlagDeactivated), 50, now)
	assert.False(t, d.Transitioned)
	assert.Equal(t, model.FlagDeactivated, d.NewFlag)
}

func TestDiscriminationChanged(t *testing.T) {
	assert.True(t, discriminationChanged(nil, f64(0.3)))
	assert.True(t, discriminationChanged(f64(0.30), f64(0.31)))
	assert.False(t, discriminationChanged(f64(0.30), f64(0.30)))
	assert.False(t, discriminationChanged(f64(0.30), f64(0.3000000001)))
}
