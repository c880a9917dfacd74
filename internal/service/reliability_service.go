package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"cognitest_backend/pkg/logger"
	"cognitest_backend/pkg/stat"
	"sync"
	"time"

	"go.uber.org/zap"
)

// reliabilityCache 信度缓存值对象：完整结果 + 样本阈值 + 计算时间。
// 整体替换，读方拿到的永远是一致的一份；阈值不同视为未命中。
type reliabilityCache struct {
	mu         sync.RWMutex
	result     *model.ReliabilityResult
	minKey     int
	computedAt time.Time
}

func (c *reliabilityCache) get(minKey int, ttl time.Duration) (*model.ReliabilityResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.result == nil || c.minKey != minKey || time.Since(c.computedAt) > ttl {
		return nil, false
	}
	return c.result, true
}

func (c *reliabilityCache) set(minKey int, result *model.ReliabilityResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = result
	c.minKey = minKey
	c.computedAt = time.Now()
}

type ReliabilityService struct {
	SessionRepo  *repository.SessionRepository
	ResponseRepo *repository.ResponseRepository
	MetricRepo   *repository.ReliabilityMetricRepository
	Cfg          *config.Config

	alphaCache     reliabilityCache
	retestCache    reliabilityCache
	splitHalfCache reliabilityCache
}

func NewReliabilityService(
	sessionRepo *repository.SessionRepository,
	responseRepo *repository.ResponseRepository,
	metricRepo *repository.ReliabilityMetricRepository,
	cfg *config.Config,
) *ReliabilityService {
	return &ReliabilityService{
		SessionRepo:  sessionRepo,
		ResponseRepo: responseRepo,
		MetricRepo:   metricRepo,
		Cfg:          cfg,
	}
}

// interpretAlpha 内部一致性解释，固定阈值
func interpretAlpha(v float64) string {
	switch {
	case v >= 0.90:
		return "excellent"
	case v >= 0.80:
		return "good"
	case v >= 0.70:
		return "acceptable"
	default:
		return "questionable"
	}
}

// interpretRetest 重测信度解释，固定阈值
func interpretRetest(v float64) string {
	switch {
	case v > 0.90:
		return "excellent"
	case v > 0.70:
		return "good"
	case v > 0.50:
		return "acceptable"
	default:
		return "poor"
	}
}

// alphaComputation 由作答矩阵得出的alpha中间结果
type alphaComputation struct {
	Alpha                 float64
	ItemCount             int
	SessionCount          int
	ItemTotalCorrelations []model.ItemTotalCorrelation
}

// computeAlpha 在不定形作答矩阵上计算 Cronbach's alpha。
// 各题方差在答过该题的会话上独立计算；会话总分用答对比例乘以
// 题目总数折算，会话见过不同题目子集也能参与。总分方差为0时
// 返回 alpha=0 而不是 NaN。
func computeAlpha(recs []model.ResponseRecord) *alphaComputation {
	bySession := make(map[string][]model.ResponseRecord)
	byItem := make(map[uint][]float64)
	itemOrder := make([]uint, 0)
	for _, rec := range recs {
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
		if _, seen := byItem[rec.ItemID]; !seen {
			itemOrder = append(itemOrder, rec.ItemID)
		}
		v := 0.0
		if rec.IsCorrect {
			v = 1.0
		}
		byItem[rec.ItemID] = append(byItem[rec.ItemID], v)
	}

	k := len(byItem)
	n := len(bySession)
	comp := &alphaComputation{ItemCount: k, SessionCount: n}
	if k < 2 || n < 2 {
		return comp
	}

	// 会话折算总分
	sessionScore := make(map[string]float64, n)
	totals := make([]float64, 0, n)
	for sid, rs := range bySession {
		correct := 0
		for _, rec := range rs {
			if rec.IsCorrect {
				correct++
			}
		}
		score := float64(correct) / float64(len(rs)) * float64(k)
		sessionScore[sid] = score
		totals = append(totals, score)
	}

	totalVar := stat.Variance(totals)

	var sumItemVars float64
	for _, vals := range byItem {
		sumItemVars += stat.Variance(vals)
	}

	alpha := 0.0
	if totalVar > 0 {
		alpha = float64(k) / float64(k-1) * (1 - sumItemVars/totalVar)
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	comp.Alpha = alpha

	// 题总相关：各题0/1向量与对应会话折算总分的皮尔逊相关
	itemResponses := make(map[uint][]model.ResponseRecord)
	for _, rec := range recs {
		itemResponses[rec.ItemID] = append(itemResponses[rec.ItemID], rec)
	}
	for _, itemID := range itemOrder {
		rs := itemResponses[itemID]
		binary := make([]float64, len(rs))
		scores := make([]float64, len(rs))
		for i, rec := range rs {
			if rec.IsCorrect {
				binary[i] = 1
			}
			scores[i] = sessionScore[rec.SessionID]
		}
		comp.ItemTotalCorrelations = append(comp.ItemTotalCorrelations, model.ItemTotalCorrelation{
			ItemID:      itemID,
			Correlation: stat.Pearson(binary, scores),
		})
	}

	return comp
}

// alphaResult 由alpha中间结果套样本闸门得出报告项。样本不足时返回
// insufficient_data，绝不外推。
func alphaResult(comp *alphaComputation, minSessions int) *model.ReliabilityResult {
	result := &model.ReliabilityResult{
		MetricType: model.MetricAlpha,
		SampleSize: comp.SessionCount,
	}
	if comp.ItemCount < 2 || comp.SessionCount < minSessions {
		result.Status = model.StatusInsufficientData
		return result
	}

	v := comp.Alpha
	result.Value = &v
	result.Status = model.StatusOK
	result.Interpretation = interpretAlpha(v)
	result.MeetsMinimum = v >= 0.70
	result.ItemTotalCorrelations = comp.ItemTotalCorrelations
	return result
}

func (s *ReliabilityService) cacheTTL() time.Duration {
	return time.Duration(s.Cfg.Psychometrics.CacheTTLMinutes) * time.Minute
}

// InternalConsistency 计算 Cronbach's alpha，结果按阈值分键短缓存
func (s *ReliabilityService) InternalConsistency(minSessions int) (*model.ReliabilityResult, error) {
	if minSessions <= 0 {
		minSessions = s.Cfg.Psychometrics.MinSessions
	}
	if cached, ok := s.alphaCache.get(minSessions, s.cacheTTL()); ok {
		return cached, nil
	}

	result, err := s.internalConsistency(minSessions)
	if err != nil {
		return nil, err
	}
	s.alphaCache.set(minSessions, result)
	return result, nil
}

func (s *ReliabilityService) internalConsistency(minSessions int) (*model.ReliabilityResult, error) {
	ids, err := s.SessionRepo.RecentCompletedIDs(s.Cfg.Psychometrics.AlphaSessionWindow)
	if err != nil {
		logger.Log.Error("alpha: session fetch failed", zap.Error(err))
		return nil, err
	}
	if len(ids) < minSessions {
		return &model.ReliabilityResult{
			MetricType: model.MetricAlpha,
			SampleSize: len(ids),
			Status:     model.StatusInsufficientData,
		}, nil
	}

	recs, err := s.ResponseRepo.ResponsesForSessions(ids)
	if err != nil {
		logger.Log.Error("alpha: response fetch failed", zap.Error(err))
		return nil, err
	}

	return alphaResult(computeAlpha(recs), minSessions), nil
}

// retestPair 同一用户在窗口内的前后两次完成
type retestPair struct {
	First  float64
	Second float64
}

// pairRetestSessions 按用户取前两次完成的会话，间隔落在
// [minDays, maxDays] 内的才算合格配对
func pairRetestSessions(sessions []model.TestSession, minDays, maxDays int) []retestPair {
	byUser := make(map[uint][]model.TestSession)
	order := make([]uint, 0)
	for _, sess := range sessions {
		if _, seen := byUser[sess.UserID]; !seen {
			order = append(order, sess.UserID)
		}
		byUser[sess.UserID] = append(byUser[sess.UserID], sess)
	}

	var pairs []retestPair
	for _, uid := range order {
		ss := byUser[uid]
		if len(ss) < 2 {
			continue
		}
		first, second := ss[0], ss[1]
		if first.CompletedAt == nil || second.CompletedAt == nil {
			continue
		}
		gap := second.CompletedAt.Sub(*first.CompletedAt)
		days := gap.Hours() / 24
		if days < float64(minDays) || days > float64(maxDays) {
			continue
		}
		pairs = append(pairs, retestPair{
			First:  float64(*first.RawScore),
			Second: float64(*second.RawScore),
		})
	}
	return pairs
}

// retestResult 合格配对的前后两次分数做皮尔逊相关，并报告平均分数
// 变化（练习效应）。配对数不足时返回 insufficient_data。
func retestResult(pairs []retestPair, minPairs int) *model.ReliabilityResult {
	result := &model.ReliabilityResult{
		MetricType: model.MetricTestRetest,
		SampleSize: len(pairs),
	}
	if len(pairs) < minPairs {
		result.Status = model.StatusInsufficientData
		return result
	}

	firsts := make([]float64, len(pairs))
	seconds := make([]float64, len(pairs))
	var changeSum float64
	for i, p := range pairs {
		firsts[i] = p.First
		seconds[i] = p.Second
		changeSum += p.Second - p.First
	}

	v := stat.Pearson(firsts, seconds)
	meanChange := changeSum / float64(len(pairs))

	result.Value = &v
	result.Status = model.StatusOK
	result.Interpretation = interpretRetest(v)
	result.MeetsMinimum = v > 0.50
	result.MeanScoreChange = &meanChange
	return result
}

// TestRetest 重测信度，结果按阈值分键短缓存
func (s *ReliabilityService) TestRetest(minPairs int) (*model.ReliabilityResult, error) {
	if minPairs <= 0 {
		minPairs = s.Cfg.Psychometrics.MinRetestPairs
	}
	if cached, ok := s.retestCache.get(minPairs, s.cacheTTL()); ok {
		return cached, nil
	}

	sessions, err := s.SessionRepo.CompletedWithScores()
	if err != nil {
		logger.Log.Error("test-retest: session fetch failed", zap.Error(err))
		return nil, err
	}

	pairs := pairRetestSessions(sessions, s.Cfg.Psychometrics.RetestMinDays, s.Cfg.Psychometrics.RetestMaxDays)
	result := retestResult(pairs, minPairs)
	s.retestCache.set(minPairs, result)
	return result, nil
}

// splitHalfComputation 分半信度中间结果
type splitHalfComputation struct {
	RawHalf      float64
	Corrected    float64
	SessionCount int
}

// computeSplitHalf 按施测顺序奇偶分半，各会话两半得分跨会话相关后
// 做 Spearman-Brown 校正
func computeSplitHalf(recs []model.ResponseRecord) *splitHalfComputation {
	bySession := make(map[string][]model.ResponseRecord)
	sessionOrder := make([]string, 0)
	for _, rec := range recs {
		if _, seen := bySession[rec.SessionID]; !seen {
			sessionOrder = append(sessionOrder, rec.SessionID)
		}
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	var oddScores, evenScores []float64
	for _, sid := range sessionOrder {
		rs := bySession[sid]
		if len(rs) < 2 {
			continue
		}
		var odd, even float64
		for _, rec := range rs {
			if !rec.IsCorrect {
				continue
			}
			// position 从1开始，奇数位进奇半
			if rec.Position%2 == 1 {
				odd++
			} else {
				even++
			}
		}
		oddScores = append(oddScores, odd)
		evenScores = append(evenScores, even)
	}

	comp := &splitHalfComputation{SessionCount: len(oddScores)}
	if comp.SessionCount < 2 {
		return comp
	}
	comp.RawHalf = stat.Pearson(oddScores, evenScores)
	comp.Corrected = stat.SpearmanBrown(comp.RawHalf)
	return comp
}

// splitHalfResult 由分半中间结果套样本闸门得出报告项
func splitHalfResult(comp *splitHalfComputation, minSessions int) *model.ReliabilityResult {
	result := &model.ReliabilityResult{
		MetricType: model.MetricSplitHalf,
		SampleSize: comp.SessionCount,
	}
	if comp.SessionCount < minSessions {
		result.Status = model.StatusInsufficientData
		return result
	}

	v := comp.Corrected
	raw := comp.RawHalf
	result.Value = &v
	result.Status = model.StatusOK
	result.Interpretation = interpretAlpha(v)
	result.MeetsMinimum = v >= 0.70
	result.RawHalfCorrelation = &raw
	return result
}

// SplitHalf 分半信度，结果按阈值分键短缓存
func (s *ReliabilityService) SplitHalf(minSessions int) (*model.ReliabilityResult, error) {
	if minSessions <= 0 {
		minSessions = s.Cfg.Psychometrics.MinSessions
	}
	if cached, ok := s.splitHalfCache.get(minSessions, s.cacheTTL()); ok {
		return cached, nil
	}

	result, err := s.splitHalf(minSessions)
	if err != nil {
		return nil, err
	}
	s.splitHalfCache.set(minSessions, result)
	return result, nil
}

func (s *ReliabilityService) splitHalf(minSessions int) (*model.ReliabilityResult, error) {
	ids, err := s.SessionRepo.RecentCompletedIDs(s.Cfg.Psychometrics.AlphaSessionWindow)
	if err != nil {
		logger.Log.Error("split-half: session fetch failed", zap.Error(err))
		return nil, err
	}
	if len(ids) < minSessions {
		return &model.ReliabilityResult{
			MetricType: model.MetricSplitHalf,
			SampleSize: len(ids),
			Status:     model.StatusInsufficientData,
		}, nil
	}

	recs, err := s.ResponseRepo.ResponsesForSessions(ids)
	if err != nil {
		logger.Log.Error("split-half: response fetch failed", zap.Error(err))
		return nil, err
	}

	return splitHalfResult(computeSplitHalf(recs), minSessions), nil
}

// CachedReliability 返回最近的内部一致性系数，供精度计算使用。
// 缓存过期时同步重算一次；样本不足返回 false，调用方必须降级
// 而不是编造区间。
func (s *ReliabilityService) CachedReliability() (float64, bool) {
	result, err := s.InternalConsistency(0)
	if err != nil || result.Status != model.StatusOK {
		return 0, false
	}
	return *result.Value, true
}
