package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(sessionID string, itemID uint, correct bool, position int) model.ResponseRecord {
	return model.ResponseRecord{
		SessionID: sessionID,
		ItemID:    itemID,
		IsCorrect: correct,
		Position:  position,
	}
}

func TestComputeAlphaIdenticalRowsYieldZero(t *testing.T) {
	// 所有会话作答完全一致，总分方差为0，约定返回 alpha=0 而不是 NaN
	var recs []model.ResponseRecord
	for s := 0; s < 5; s++ {
		sid := fmt.Sprintf("s%d", s)
		recs = append(recs,
			rec(sid, 1, true, 1),
			rec(sid, 2, false, 2),
			rec(sid, 3, true, 3),
		)
	}

	comp := computeAlpha(recs)
	assert.Equal(t, 0.0, comp.Alpha)
	assert.Equal(t, 3, comp.ItemCount)
	assert.Equal(t, 5, comp.SessionCount)
}

func TestComputeAlphaConsistentPool(t *testing.T) {
	// 能力分层明显的作答矩阵：强者全对、弱者全错、中间参差
	var recs []model.ResponseRecord
	patterns := [][]bool{
		{true, true, true, true},
		{true, true, true, false},
		{true, true, false, false},
		{true, false, false, false},
		{false, false, false, false},
	}
	for s, pattern := range patterns {
		sid := fmt.Sprintf("s%d", s)
		for i, correct := range pattern {
			recs = append(recs, rec(sid, uint(i+1), correct, i+1))
		}
	}

	comp := computeAlpha(recs)
	assert.Equal(t, 4, comp.ItemCount)
	assert.Equal(t, 5, comp.SessionCount)
	assert.Greater(t, comp.Alpha, 0.5)
	assert.LessOrEqual(t, comp.Alpha, 1.0)
	assert.Len(t, comp.ItemTotalCorrelations, 4)
	for _, itc := range comp.ItemTotalCorrelations {
		assert.Greater(t, itc.Correlation, 0.0)
	}
}

func TestComputeAlphaRaggedMatrix(t *testing.T) {
	// 会话见到不同的题目子集也能参与计算
	recs := []model.ResponseRecord{
		rec("a", 1, true, 1), rec("a", 2, true, 2),
		rec("b", 2, false, 1), rec("b", 3, false, 2),
		rec("c", 1, true, 1), rec("c", 3, false, 2),
		rec("d", 1, false, 1), rec("d", 2, true, 2), rec("d", 3, true, 3),
	}

	comp := computeAlpha(recs)
	assert.Equal(t, 3, comp.ItemCount)
	assert.Equal(t, 4, comp.SessionCount)
	assert.GreaterOrEqual(t, comp.Alpha, 0.0)
	assert.LessOrEqual(t, comp.Alpha, 1.0)
}

func TestComputeAlphaTooFewItemsOrSessions(t *testing.T) {
	comp := computeAlpha([]model.ResponseRecord{rec("a", 1, true, 1)})
	assert.Equal(t, 0.0, comp.Alpha)
	assert.Empty(t, comp.ItemTotalCorrelations)
}

func completedSession(userID uint, score int, completedAt time.Time) model.TestSession {
	s := model.TestSession{
		UserID:   userID,
		Status:   model.SessionCompleted,
		RawScore: &score,
	}
	s.CompletedAt = &completedAt
	return s
}

func TestPairRetestSessionsWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sessions := []model.TestSession{
		// 间隔30天，合格
		completedSession(1, 100, base),
		completedSession(1, 105, base.AddDate(0, 0, 30)),
		// 间隔3天，太近
		completedSession(2, 90, base),
		completedSession(2, 95, base.AddDate(0, 0, 3)),
		// 间隔200天，太远
		completedSession(3, 110, base),
		completedSession(3, 102, base.AddDate(0, 0, 200)),
		// 只有一次完成
		completedSession(4, 120, base),
	}

	pairs := pairRetestSessions(sessions, 7, 180)
	require.Len(t, pairs, 1)
	assert.Equal(t, 100.0, pairs[0].First)
	assert.Equal(t, 105.0, pairs[0].Second)
}

func TestPairRetestSessionsWindowBoundaries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sessions := []model.TestSession{
		// 恰好7天，含边界
		completedSession(1, 100, base),
		completedSession(1, 101, base.AddDate(0, 0, 7)),
		// 恰好180天，含边界
		completedSession(2, 100, base),
		completedSession(2, 99, base.AddDate(0, 0, 180)),
	}

	pairs := pairRetestSessions(sessions, 7, 180)
	assert.Len(t, pairs, 2)
}

func TestPairRetestSessionsUsesFirstTwoCompletions(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 第三次完成不参与配对
	sessions := []model.TestSession{
		completedSession(1, 100, base),
		completedSession(1, 104, base.AddDate(0, 0, 20)),
		completedSession(1, 130, base.AddDate(0, 0, 40)),
	}

	pairs := pairRetestSessions(sessions, 7, 180)
	require.Len(t, pairs, 1)
	assert.Equal(t, 104.0, pairs[0].Second)
}

func TestComputeSplitHalf(t *testing.T) {
	// 奇偶两半高度一致的会话
	var recs []model.ResponseRecord
	counts := []int{6, 4, 2, 0}
	for s, correctCount := range counts {
		sid := fmt.Sprintf("s%d", s)
		for pos := 1; pos <= 6; pos++ {
			recs = append(recs, rec(sid, uint(pos), pos <= correctCount, pos))
		}
	}

	comp := computeSplitHalf(recs)
	assert.Equal(t, 4, comp.SessionCount)
	assert.Greater(t, comp.RawHalf, 0.8)
	// Spearman-Brown 校正后不低于原始半测相关
	assert.GreaterOrEqual(t, comp.Corrected, comp.RawHalf)
}

func TestComputeSplitHalfSkipsSingleResponseSessions(t *testing.T) {
	recs := []model.ResponseRecord{
		rec("a", 1, true, 1),
		rec("b", 1, true, 1), rec("b", 2, false, 2),
		rec("c", 1, false, 1), rec("c", 2, true, 2),
	}
	comp := computeSplitHalf(recs)
	assert.Equal(t, 2, comp.SessionCount)
}

func TestInterpretAlpha(t *testing.T) {
	assert.Equal(t, "excellent", interpretAlpha(0.92))
	assert.Equal(t, "good", interpretAlpha(0.85))
	assert.Equal(t, "acceptable", interpretAlpha(0.78))
	assert.Equal(t, "acceptable", interpretAlpha(0.70))
	assert.Equal(t, "questionable", interpretAlpha(0.65))
}

func TestInterpretRetest(t *testing.T) {
	assert.Equal(t, "excellent", interpretRetest(0.95))
	assert.Equal(t, "good", interpretRetest(0.80))
	assert.Equal(t, "acceptable", interpretRetest(0.60))
	assert.Equal(t, "poor", interpretRetest(0.50))
	assert.Equal(t, "poor", interpretRetest(0.30))
}

func TestReliabilityCacheTTL(t *testing.T) {
	var c reliabilityCache

	_, ok := c.get(100, time.Minute)
	assert.False(t, ok)

	want := okResult(model.MetricAlpha, 0.85, true)
	c.set(100, want)
	got, ok := c.get(100, time.Minute)
	assert.True(t, ok)
	assert.Same(t, want, got)

	// 阈值不同视为未命中
	_, ok = c.get(50, time.Minute)
	assert.False(t, ok)

	// TTL为0时立即过期
	_, ok = c.get(100, 0)
	assert.False(t, ok)
}

func TestAlphaResultGatesOnSessionCount(t *testing.T) {
	comp := &alphaComputation{Alpha: 0.82, ItemCount: 10, SessionCount: 99}

	result := alphaResult(comp, 100)
	assert.Equal(t, model.StatusInsufficientData, result.Status)
	assert.Equal(t, 99, result.SampleSize)
	assert.Nil(t, result.Value)

	comp.SessionCount = 100
	result = alphaResult(comp, 100)
	assert.Equal(t, model.StatusOK, result.Status)
	require.NotNil(t, result.Value)
	assert.Equal(t, 0.82, *result.Value)
	assert.True(t, result.MeetsMinimum)
}

func TestRetestResultGatesOnPairCount(t *testing.T) {
	pairs := make([]retestPair, 29)
	for i := range pairs {
		pairs[i] = retestPair{First: float64(90 + i), Second: float64(92 + i)}
	}

	result := retestResult(pairs, 30)
	assert.Equal(t, model.StatusInsufficientData, result.Status)
	assert.Equal(t, 29, result.SampleSize)
	assert.Nil(t, result.Value)

	pairs = append(pairs, retestPair{First: 119, Second: 121})
	result = retestResult(pairs, 30)
	assert.Equal(t, model.StatusOK, result.Status)
	require.NotNil(t, result.Value)
	assert.InDelta(t, 1.0, *result.Value, 1e-9)
	require.NotNil(t, result.MeanScoreChange)
	assert.InDelta(t, 2.0, *result.MeanScoreChange, 1e-9)
}

func TestSplitHalfResultGatesOnSessionCount(t *testing.T) {
	comp := &splitHalfComputation{RawHalf: 0.60, Corrected: 0.75, SessionCount: 99}

	result := splitHalfResult(comp, 100)
	assert.Equal(t, model.StatusInsufficientData, result.Status)
	assert.Nil(t, result.Value)

	comp.SessionCount = 100
	result = splitHalfResult(comp, 100)
	assert.Equal(t, model.StatusOK, result.Status)
	require.NotNil(t, result.Value)
	assert.Equal(t, 0.75, *result.Value)
	require.NotNil(t, result.RawHalfCorrelation)
	assert.Equal(t, 0.60, *result.RawHalfCorrelation)
}

func TestReliabilityCoefficientsServedFromCache(t *testing.T) {
	cfg := &config.Config{}
	cfg.Psychometrics.MinSessions = 100
	cfg.Psychometrics.MinRetestPairs = 30
	cfg.Psychometrics.CacheTTLMinutes = 5

	// 仓储为空指针：命中缓存时三个入口都不应触达存储
	s := &ReliabilityService{Cfg: cfg}
	alpha := okResult(model.MetricAlpha, 0.84, true)
	retest := okResult(model.MetricTestRetest, 0.78, true)
	splitHalf := okResult(model.MetricSplitHalf, 0.81, true)
	s.alphaCache.set(100, alpha)
	s.retestCache.set(30, retest)
	s.splitHalfCache.set(100, splitHalf)

	got, err := s.InternalConsistency(0)
	require.NoError(t, err)
	assert.Same(t, alpha, got)

	got, err = s.TestRetest(0)
	require.NoError(t, err)
	assert.Same(t, retest, got)

	got, err = s.SplitHalf(0)
	require.NoError(t, err)
	assert.Same(t, splitHalf, got)

	// 精度计算走同一份缓存
	v, ok := s.CachedReliability()
	assert.True(t, ok)
	assert.Equal(t, 0.84, v)
}
