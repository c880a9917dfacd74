package service

import (
	"cognitest_backend/internal/model"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportItem(id uint, disc *float64, itemType string, tier model.DifficultyTier, responseCount int) model.Item {
	item := model.Item{
		Discrimination: disc,
		ItemType:       itemType,
		DifficultyTier: tier,
		ResponseCount:  responseCount,
		QualityFlag:    model.FlagNormal,
	}
	item.ID = id
	return item
}

func TestBuildDiscriminationReportCountsAndGroups(t *testing.T) {
	items := []model.Item{
		reportItem(1, f64(0.45), "verbal", model.TierEasy, 120),
		reportItem(2, f64(0.32), "verbal", model.TierMedium, 90),
		reportItem(3, f64(0.05), "numeric", model.TierMedium, 200),
		reportItem(4, f64(-0.15), "numeric", model.TierHard, 80),
		reportItem(5, nil, "logic", model.TierHard, 10),
	}

	report := buildDiscriminationReport(items, 50)

	assert.Equal(t, 5, report.TotalItems)
	assert.Equal(t, 4, report.RatedItems)
	assert.Equal(t, 50, report.MinResponses)

	assert.Equal(t, 1, report.TierCounts["excellent"])
	assert.Equal(t, 1, report.TierCounts["good"])
	assert.Equal(t, 1, report.TierCounts["very_poor"])
	assert.Equal(t, 1, report.TierCounts["negative"])
	assert.NotContains(t, report.TierCounts, "acceptable")

	// verbal 组均值 (0.45+0.32)/2
	var verbal *model.GroupAverage
	for i := range report.ByType {
		if report.ByType[i].Group == "verbal" {
			verbal = &report.ByType[i]
		}
	}
	require.NotNil(t, verbal)
	assert.InDelta(t, 0.385, verbal.AvgDiscrimination, 1e-9)
	assert.Equal(t, 2, verbal.ItemCount)
}

func TestBuildDiscriminationReportActionNeededWorstFirst(t *testing.T) {
	items := []model.Item{
		reportItem(1, f64(0.08), "verbal", model.TierEasy, 120),
		reportItem(2, f64(-0.30), "numeric", model.TierMedium, 90),
		reportItem(3, f64(-0.05), "logic", model.TierHard, 80),
		reportItem(4, f64(0.50), "verbal", model.TierEasy, 100),
	}

	report := buildDiscriminationReport(items, 50)

	require.Len(t, report.ActionNeeded, 3)
	assert.Equal(t, uint(2), report.ActionNeeded[0].ItemID)
	assert.Equal(t, uint(3), report.ActionNeeded[1].ItemID)
	assert.Equal(t, uint(1), report.ActionNeeded[2].ItemID)
}

func TestBuildDiscriminationReportUnratedItemsExcluded(t *testing.T) {
	items := []model.Item{
		reportItem(1, nil, "verbal", model.TierEasy, 5),
		reportItem(2, nil, "numeric", model.TierMedium, 0),
	}

	report := buildDiscriminationReport(items, 50)
	assert.Equal(t, 2, report.TotalItems)
	assert.Equal(t, 0, report.RatedItems)
	assert.Empty(t, report.TierCounts)
	assert.Empty(t, report.ActionNeeded)
	assert.Empty(t, report.ByType)
}

func TestBuildDiscriminationReportMinResponsesGate(t *testing.T) {
	items := []model.Item{
		reportItem(1, f64(0.45), "verbal", model.TierEasy, 120),
		// 带有历史区分度但作答数不足，不参与评级
		reportItem(2, f64(0.32), "verbal", model.TierMedium, 30),
		reportItem(3, f64(-0.20), "numeric", model.TierHard, 30),
	}

	report := buildDiscriminationReport(items, 50)
	assert.Equal(t, 1, report.RatedItems)
	assert.Equal(t, 50, report.MinResponses)
	assert.NotContains(t, report.TierCounts, "good")
	assert.Empty(t, report.ActionNeeded)

	// 阈值放宽后同一批题全部参与
	report = buildDiscriminationReport(items, 20)
	assert.Equal(t, 3, report.RatedItems)
	require.Len(t, report.ActionNeeded, 1)
	assert.Equal(t, uint(3), report.ActionNeeded[0].ItemID)
}

func TestPercentileAmongRated(t *testing.T) {
	items := []model.Item{
		reportItem(1, f64(0.10), "verbal", model.TierEasy, 100),
		reportItem(2, f64(0.20), "verbal", model.TierEasy, 100),
		reportItem(3, f64(0.30), "verbal", model.TierEasy, 100),
		reportItem(4, f64(0.40), "verbal", model.TierEasy, 100),
		reportItem(5, nil, "verbal", model.TierEasy, 0),
	}

	p := percentileAmongRated(items, 0.40)
	require.NotNil(t, p)
	assert.Equal(t, 75.0, *p)

	p = percentileAmongRated(items, 0.10)
	require.NotNil(t, p)
	assert.Equal(t, 0.0, *p)

	assert.Nil(t, percentileAmongRated(nil, 0.3))
}

func TestAverageWhere(t *testing.T) {
	items := []model.Item{
		reportItem(1, f64(0.20), "verbal", model.TierEasy, 100),
		reportItem(2, f64(0.40), "verbal", model.TierMedium, 100),
		reportItem(3, f64(0.90), "numeric", model.TierEasy, 100),
		reportItem(4, nil, "verbal", model.TierEasy, 0),
	}

	avg := averageWhere(items, func(it *model.Item) bool { return it.ItemType == "verbal" })
	require.NotNil(t, avg)
	assert.InDelta(t, 0.30, *avg, 1e-9)

	assert.Nil(t, averageWhere(items, func(it *model.Item) bool { return it.ItemType == "spatial" }))
}

func okResult(metricType model.MetricType, value float64, meets bool) *model.ReliabilityResult {
	return &model.ReliabilityResult{
		MetricType:   metricType,
		Status:       model.StatusOK,
		Value:        &value,
		MeetsMinimum: meets,
	}
}

func TestBuildRecommendationsAllHealthy(t *testing.T) {
	report := &model.ReliabilityReport{
		GeneratedAt: time.Now(),
		Alpha:       okResult(model.MetricAlpha, 0.88, true),
		TestRetest:  okResult(model.MetricTestRetest, 0.82, true),
		SplitHalf:   okResult(model.MetricSplitHalf, 0.85, true),
	}

	recs := buildRecommendations(report)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "no action required")
}

func TestBuildRecommendationsLowAlphaAndWeakItems(t *testing.T) {
	alpha := okResult(model.MetricAlpha, 0.62, false)
	alpha.ItemTotalCorrelations = []model.ItemTotalCorrelation{
		{ItemID: 3, Correlation: 0.05},
		{ItemID: 4, Correlation: 0.45},
		{ItemID: 9, Correlation: -0.10},
	}

	report := &model.ReliabilityReport{
		Alpha:      alpha,
		TestRetest: okResult(model.MetricTestRetest, 0.82, true),
		SplitHalf:  okResult(model.MetricSplitHalf, 0.85, true),
	}

	recs := buildRecommendations(report)
	require.GreaterOrEqual(t, len(recs), 2)
	assert.Contains(t, recs[0], "below the 0.70 minimum")
	assert.Contains(t, recs[1], "removal candidates")
}

func TestBuildRecommendationsInsufficientAlpha(t *testing.T) {
	report := &model.ReliabilityReport{
		Alpha:      &model.ReliabilityResult{MetricType: model.MetricAlpha, Status: model.StatusInsufficientData},
		TestRetest: &model.ReliabilityResult{MetricType: model.MetricTestRetest, Status: model.StatusInsufficientData},
		SplitHalf:  &model.ReliabilityResult{MetricType: model.MetricSplitHalf, Status: model.StatusInsufficientData},
	}

	recs := buildRecommendations(report)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "collect more completed sessions")
}

// fakeReliabilityEstimator 逐系数可控的信度来源
type fakeReliabilityEstimator struct {
	alpha, retest, splitHalf          *model.ReliabilityResult
	alphaErr, retestErr, splitHalfErr error
	gotMinSessions, gotMinPairs       int
}

func (f *fakeReliabilityEstimator) InternalConsistency(minSessions int) (*model.ReliabilityResult, error) {
	f.gotMinSessions = minSessions
	return f.alpha, f.alphaErr
}

func (f *fakeReliabilityEstimator) TestRetest(minPairs int) (*model.ReliabilityResult, error) {
	f.gotMinPairs = minPairs
	return f.retest, f.retestErr
}

func (f *fakeReliabilityEstimator) SplitHalf(minSessions int) (*model.ReliabilityResult, error) {
	return f.splitHalf, f.splitHalfErr
}

func TestReliabilityReportSectionFailureDegrades(t *testing.T) {
	// alpha 计算失败只让该节置为 unavailable，其余正常渲染
	fake := &fakeReliabilityEstimator{
		alphaErr:  errors.New("storage unavailable"),
		retest:    okResult(model.MetricTestRetest, 0.82, true),
		splitHalf: okResult(model.MetricSplitHalf, 0.85, true),
	}
	s := &ReportService{Reliability: fake}

	report, err := s.ReliabilityReport(0, 0, false)
	require.NoError(t, err)

	assert.Equal(t, model.StatusUnavailable, report.Alpha.Status)
	assert.Equal(t, model.MetricAlpha, report.Alpha.MetricType)
	assert.Nil(t, report.Alpha.Value)
	assert.Equal(t, model.StatusOK, report.TestRetest.Status)
	assert.Equal(t, model.StatusOK, report.SplitHalf.Status)

	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "collect more completed sessions")
}

func TestReliabilityReportCarriesInsufficientData(t *testing.T) {
	fake := &fakeReliabilityEstimator{
		alpha:     &model.ReliabilityResult{MetricType: model.MetricAlpha, Status: model.StatusInsufficientData, SampleSize: 12},
		retest:    &model.ReliabilityResult{MetricType: model.MetricTestRetest, Status: model.StatusInsufficientData, SampleSize: 3},
		splitHalf: &model.ReliabilityResult{MetricType: model.MetricSplitHalf, Status: model.StatusInsufficientData, SampleSize: 12},
	}
	s := &ReportService{Reliability: fake}

	report, err := s.ReliabilityReport(0, 0, false)
	require.NoError(t, err)

	assert.Equal(t, model.StatusInsufficientData, report.Alpha.Status)
	assert.Equal(t, 12, report.Alpha.SampleSize)
	assert.Equal(t, model.StatusInsufficientData, report.TestRetest.Status)
	assert.Equal(t, model.StatusInsufficientData, report.SplitHalf.Status)
}

func TestReliabilityReportThreadsThresholds(t *testing.T) {
	fake := &fakeReliabilityEstimator{
		alpha:     okResult(model.MetricAlpha, 0.88, true),
		retest:    okResult(model.MetricTestRetest, 0.82, true),
		splitHalf: okResult(model.MetricSplitHalf, 0.85, true),
	}
	s := &ReportService{Reliability: fake}

	_, err := s.ReliabilityReport(250, 40, false)
	require.NoError(t, err)
	assert.Equal(t, 250, fake.gotMinSessions)
	assert.Equal(t, 40, fake.gotMinPairs)
}

func TestBuildRecommendationsPracticeEffect(t *testing.T) {
	retest := okResult(model.MetricTestRetest, 0.80, true)
	gain := 7.5
	retest.MeanScoreChange = &gain

	report := &model.ReliabilityReport{
		Alpha:      okResult(model.MetricAlpha, 0.88, true),
		TestRetest: retest,
		SplitHalf:  okResult(model.MetricSplitHalf, 0.85, true),
	}

	recs := buildRecommendations(report)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "practice effect")
}
