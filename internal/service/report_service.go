package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"cognitest_backend/internal/util"
	"cognitest_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const discriminationReportCacheKey = "cognitest:report:discrimination"

// reliabilityEstimator 信度报告只依赖三个系数的计算入口
type reliabilityEstimator interface {
	InternalConsistency(minSessions int) (*model.ReliabilityResult, error)
	TestRetest(minPairs int) (*model.ReliabilityResult, error)
	SplitHalf(minSessions int) (*model.ReliabilityResult, error)
}

// ReportService 管理端统计报表。区分度总览经 Redis 短缓存（60秒），
// 信度报告聚合三个系数并持久化历史记录。
type ReportService struct {
	ItemRepo     *repository.ItemRepository
	SnapshotRepo *repository.SnapshotRepository
	MetricRepo   *repository.ReliabilityMetricRepository
	Reliability  reliabilityEstimator
	Redis        *redis.Client
	Cfg          *config.Config
}

func NewReportService(
	itemRepo *repository.ItemRepository,
	snapshotRepo *repository.SnapshotRepository,
	metricRepo *repository.ReliabilityMetricRepository,
	reliability reliabilityEstimator,
	rdb *redis.Client,
	cfg *config.Config,
) *ReportService {
	return &ReportService{
		ItemRepo:     itemRepo,
		SnapshotRepo: snapshotRepo,
		MetricRepo:   metricRepo,
		Reliability:  reliability,
		Redis:        rdb,
		Cfg:          cfg,
	}
}

// DiscriminationReport 区分度总览。minResponses 传0时使用配置默认值，
// 缓存按阈值分键。Redis 缓存命中直接返回；Redis 不可用时退化为直接
// 计算，报表功能不依赖缓存存活。
func (s *ReportService) DiscriminationReport(ctx context.Context, minResponses int) (*model.DiscriminationReport, error) {
	if minResponses <= 0 {
		minResponses = s.Cfg.Psychometrics.MinResponses
	}
	cacheKey := fmt.Sprintf("%s:%d", discriminationReportCacheKey, minResponses)

	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var report model.DiscriminationReport
			if jerr := json.Unmarshal([]byte(cached), &report); jerr == nil {
				return &report, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("report cache read failed", zap.Error(err))
		}
	}

	items, err := s.ItemRepo.ListAll()
	if err != nil {
		return nil, err
	}

	report := buildDiscriminationReport(items, minResponses)

	// 30天趋势：当前已评级题目的均值对比30天前各题最近快照的均值
	if trend, terr := s.computeTrend(report); terr != nil {
		logger.Log.Warn("trend computation failed", zap.Error(terr))
	} else {
		report.Trend = trend
	}

	if s.Redis != nil {
		if data, jerr := json.Marshal(report); jerr == nil {
			if err := s.Redis.Set(ctx, cacheKey, data, 60*time.Second).Err(); err != nil {
				logger.Log.Warn("report cache write failed", zap.Error(err))
			}
		}
	}
	return report, nil
}

// buildDiscriminationReport 纯聚合：分级计数、分组均值、问题题清单。
// 作答数低于 minResponses 的题按未评级处理，带着旧阈值下算出的
// 区分度也不例外。
func buildDiscriminationReport(items []model.Item, minResponses int) *model.DiscriminationReport {
	report := &model.DiscriminationReport{
		GeneratedAt:  time.Now(),
		MinResponses: minResponses,
		TotalItems:   len(items),
		TierCounts:   make(map[string]int),
	}

	byDifficulty := make(map[string]*groupAcc)
	byType := make(map[string]*groupAcc)

	for i := range items {
		item := &items[i]
		tier := ClassifyDiscrimination(item.Discrimination)
		if tier == nil || item.ResponseCount < minResponses {
			continue
		}
		report.RatedItems++
		report.TierCounts[string(*tier)]++

		d := *item.Discrimination
		accumulate(byDifficulty, string(item.DifficultyTier), d)
		accumulate(byType, item.ItemType, d)

		// very_poor 与 negative 需要人工处理
		if *tier == model.DiscVeryPoor || *tier == model.DiscNegative {
			report.ActionNeeded = append(report.ActionNeeded, model.ActionItem{
				ItemID:         item.ID,
				ItemType:       item.ItemType,
				DifficultyTier: string(item.DifficultyTier),
				Discrimination: d,
				ResponseCount:  item.ResponseCount,
				QualityFlag:    item.QualityFlag,
			})
		}
	}

	// 最差的题排最前
	sort.SliceStable(report.ActionNeeded, func(i, j int) bool {
		return report.ActionNeeded[i].Discrimination < report.ActionNeeded[j].Discrimination
	})

	report.ByDifficulty = groupAverages(byDifficulty)
	report.ByType = groupAverages(byType)
	return report
}

func groupAverages(m map[string]*groupAcc) []model.GroupAverage {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.GroupAverage, 0, len(keys))
	for _, k := range keys {
		acc := m[k]
		out = append(out, model.GroupAverage{
			Group:             k,
			AvgDiscrimination: acc.sum / float64(acc.count),
			ItemCount:         acc.count,
		})
	}
	return out
}

type groupAcc struct {
	sum   float64
	count int
}

func accumulate(m map[string]*groupAcc, key string, value float64) {
	acc := m[key]
	if acc == nil {
		acc = &groupAcc{}
		m[key] = acc
	}
	acc.sum += value
	acc.count++
}

func (s *ReportService) computeTrend(report *model.DiscriminationReport) (*model.TrendDelta, error) {
	if report.RatedItems == 0 {
		return nil, nil
	}

	// 当前均值由题型分组聚合还原，避免再扫一遍题目
	var total float64
	var n int
	for _, g := range report.ByType {
		total += g.AvgDiscrimination * float64(g.ItemCount)
		n += g.ItemCount
	}
	if n == 0 {
		return nil, nil
	}
	currentAvg := total / float64(n)

	cutoff := time.Now().AddDate(0, 0, -30)
	prevAvg, rated, err := s.SnapshotRepo.AvgDiscriminationAt(cutoff)
	if err != nil {
		return nil, err
	}
	if rated == 0 {
		return nil, nil
	}

	return &model.TrendDelta{
		WindowDays:  30,
		CurrentAvg:  currentAvg,
		PreviousAvg: prevAvg,
		Delta:       currentAvg - prevAvg,
	}, nil
}

// ItemDetail 单题区分度详情：分级、在已评级题目中的百分位、
// 同组均值和最近30条快照历史
func (s *ReportService) ItemDetail(itemID uint) (*model.ItemDiscriminationDetail, error) {
	item, err := s.ItemRepo.FindByID(itemID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}

	all, err := s.ItemRepo.ListAll()
	if err != nil {
		return nil, err
	}

	detail := &model.ItemDiscriminationDetail{
		ItemID:         item.ID,
		ItemType:       item.ItemType,
		DifficultyTier: string(item.DifficultyTier),
		Discrimination: item.Discrimination,
		ResponseCount:  item.ResponseCount,
		Tier:           ClassifyDiscrimination(item.Discrimination),
		QualityFlag:    item.QualityFlag,
	}

	if item.Discrimination != nil {
		if p := percentileAmongRated(all, *item.Discrimination); p != nil {
			detail.PercentileRank = p
		}
		detail.TypeAverage = averageWhere(all, func(it *model.Item) bool { return it.ItemType == item.ItemType })
		detail.DifficultyAverage = averageWhere(all, func(it *model.Item) bool { return it.DifficultyTier == item.DifficultyTier })
	}

	snaps, err := s.SnapshotRepo.HistoryForItem(itemID, 30)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		detail.History = append(detail.History, model.SnapshotPoint{
			Discrimination: snap.Discrimination,
			ResponseCount:  snap.ResponseCount,
			RecordedAt:     snap.CreatedAt,
		})
	}
	return detail, nil
}

// percentileAmongRated 该区分度在全部已评级题目中的百分位（0-100）
func percentileAmongRated(items []model.Item, value float64) *float64 {
	var rated, below int
	for i := range items {
		if items[i].Discrimination == nil {
			continue
		}
		rated++
		if *items[i].Discrimination < value {
			below++
		}
	}
	if rated == 0 {
		return nil
	}
	p := float64(below) / float64(rated) * 100
	return &p
}

func averageWhere(items []model.Item, match func(*model.Item) bool) *float64 {
	var sum float64
	var n int
	for i := range items {
		if items[i].Discrimination == nil || !match(&items[i]) {
			continue
		}
		sum += *items[i].Discrimination
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// ReliabilityReport 聚合三个信度系数。样本量阈值传0时使用配置默认值；
// 单个系数计算出错不影响其余，出错项以 unavailable 占位，各子计算内部
// 已记过日志，这里不重复记。
func (s *ReportService) ReliabilityReport(minSessions, minPairs int, persist bool) (*model.ReliabilityReport, error) {
	report := &model.ReliabilityReport{GeneratedAt: time.Now()}

	alpha, err := s.Reliability.InternalConsistency(minSessions)
	if err != nil {
		alpha = &model.ReliabilityResult{MetricType: model.MetricAlpha, Status: model.StatusUnavailable}
	}
	report.Alpha = alpha

	retest, err := s.Reliability.TestRetest(minPairs)
	if err != nil {
		retest = &model.ReliabilityResult{MetricType: model.MetricTestRetest, Status: model.StatusUnavailable}
	}
	report.TestRetest = retest

	splitHalf, err := s.Reliability.SplitHalf(minSessions)
	if err != nil {
		splitHalf = &model.ReliabilityResult{MetricType: model.MetricSplitHalf, Status: model.StatusUnavailable}
	}
	report.SplitHalf = splitHalf

	report.Recommendations = buildRecommendations(report)
	if persist {
		s.storeMetrics(report)
	}
	return report, nil
}

// buildRecommendations 由三个系数推出的可执行建议
func buildRecommendations(report *model.ReliabilityReport) []string {
	var recs []string

	if report.Alpha.Status == model.StatusOK {
		if !report.Alpha.MeetsMinimum {
			recs = append(recs, fmt.Sprintf(
				"internal consistency %.3f is below the 0.70 minimum; review the item pool before relying on scores",
				*report.Alpha.Value))
		}
		// 题总相关过低的题是删除候选
		var weak []uint
		for _, itc := range report.Alpha.ItemTotalCorrelations {
			if itc.Correlation < 0.10 {
				weak = append(weak, itc.ItemID)
			}
		}
		if len(weak) > 0 {
			recs = append(recs, fmt.Sprintf(
				"%d item(s) have item-total correlation below 0.10 and are removal candidates: %v", len(weak), weak))
		}
	} else {
		recs = append(recs, "internal consistency could not be computed; collect more completed sessions")
	}

	if report.TestRetest.Status == model.StatusOK {
		if !report.TestRetest.MeetsMinimum {
			recs = append(recs, fmt.Sprintf(
				"test-retest stability %.3f is poor; scores may not be stable over time", *report.TestRetest.Value))
		}
		if report.TestRetest.MeanScoreChange != nil && *report.TestRetest.MeanScoreChange > 5 {
			recs = append(recs, fmt.Sprintf(
				"mean retest gain of %.1f points suggests a practice effect; consider alternate forms",
				*report.TestRetest.MeanScoreChange))
		}
	}

	if report.SplitHalf.Status == model.StatusOK && !report.SplitHalf.MeetsMinimum {
		recs = append(recs, fmt.Sprintf(
			"split-half reliability %.3f is below 0.70; item halves measure inconsistently", *report.SplitHalf.Value))
	}

	if len(recs) == 0 {
		recs = append(recs, "all reliability coefficients meet their minimums; no action required")
	}
	return recs
}

// storeMetrics 将算出的系数写入历史表，供趋势查询。写入失败只记
// 日志，不影响报表返回。
func (s *ReportService) storeMetrics(report *model.ReliabilityReport) {
	now := time.Now()
	for _, result := range []*model.ReliabilityResult{report.Alpha, report.TestRetest, report.SplitHalf} {
		if result == nil || result.Status != model.StatusOK {
			continue
		}

		details, err := json.Marshal(result)
		if err != nil {
			details = nil
		}
		metric := &model.ReliabilityMetric{
			MetricType:   result.MetricType,
			Value:        *result.Value,
			SampleSize:   result.SampleSize,
			CalculatedAt: now,
			Details:      details,
		}
		if err := s.MetricRepo.Create(metric); err != nil {
			logger.Log.Error("reliability metric persist failed",
				zap.String("metricType", string(result.MetricType)), zap.Error(err))
		}
	}
}

// ReliabilityHistory 信度历史查询。metricType 为空返回全部类型。
func (s *ReportService) ReliabilityHistory(metricType string, days int) ([]model.ReliabilityMetric, error) {
	if metricType != "" && !model.ValidMetricType(metricType) {
		return nil, util.ErrInvalidMetricType
	}
	if days <= 0 {
		days = 90
	}
	return s.MetricRepo.ListRecent(metricType, days)
}
