package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"cognitest_backend/internal/util"
	"cognitest_backend/pkg/logger"
	"cognitest_backend/pkg/monitoring"
	"cognitest_backend/pkg/stat"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ItemQualityService struct {
	ItemRepo     *repository.ItemRepository
	ResponseRepo *repository.ResponseRepository
	SnapshotRepo *repository.SnapshotRepository
	Cfg          *config.Config
}

func NewItemQualityService(
	itemRepo *repository.ItemRepository,
	responseRepo *repository.ResponseRepository,
	snapshotRepo *repository.SnapshotRepository,
	cfg *config.Config,
) *ItemQualityService {
	return &ItemQualityService{
		ItemRepo:     itemRepo,
		ResponseRepo: responseRepo,
		SnapshotRepo: snapshotRepo,
		Cfg:          cfg,
	}
}

// ComputeDiscrimination 计算单题区分度：把每个会话在该题上的对错（0/1）
// 与会话总分做点二列相关。作答数低于阈值时返回 insufficient_data，
// 而不是给出退化的数值。
func (s *ItemQualityService) ComputeDiscrimination(itemID uint) (*model.DiscriminationResult, error) {
	obs, err := s.ResponseRepo.ObservationsForItem(itemID)
	if err != nil {
		return nil, err
	}

	result := &model.DiscriminationResult{
		ItemID:        itemID,
		ResponseCount: len(obs),
	}

	if len(obs) < s.Cfg.Psychometrics.MinResponses {
		result.Status = model.StatusInsufficientData
		return result, nil
	}

	correct := make([]bool, len(obs))
	totals := make([]float64, len(obs))
	for i, o := range obs {
		correct[i] = o.IsCorrect
		totals[i] = o.TotalScore
	}

	value := stat.PointBiserial(correct, totals)
	result.Value = &value
	result.Status = model.StatusOK
	return result, nil
}

// ClassifyDiscrimination 按固定区间分级。区分度为空（新题）返回空分级，
// 不能误判为问题题目。
func ClassifyDiscrimination(value *float64) *model.DiscriminationTier {
	if value == nil {
		return nil
	}

	var tier model.DiscriminationTier
	switch v := *value; {
	case v >= 0.40:
		tier = model.DiscExcellent
	case v >= 0.30:
		tier = model.DiscGood
	case v >= 0.20:
		tier = model.DiscAcceptable
	case v >= 0.10:
		tier = model.DiscPoor
	case v >= 0.0:
		tier = model.DiscVeryPoor
	default:
		tier = model.DiscNegative
	}
	return &tier
}

// evaluateFlagDecision 标记规则本体，确定性且无副作用：
// 作答数达到阈值且区分度严格小于0，且当前仍为 normal 时才转移。
// 已处于 under_review / deactivated 的题目重复评估不产生新转移。
func evaluateFlagDecision(item *model.Item, minResponses int, now time.Time) *model.FlagDecision {
	decision := &model.FlagDecision{
		ItemID:         item.ID,
		PreviousFlag:   item.QualityFlag,
		NewFlag:        item.QualityFlag,
		Discrimination: item.Discrimination,
	}

	if item.QualityFlag != model.FlagNormal {
		return decision
	}
	if item.Discrimination == nil || item.ResponseCount < minResponses {
		return decision
	}
	if *item.Discrimination >= 0 {
		return decision
	}

	decision.Transitioned = true
	decision.NewFlag = model.FlagUnderReview
	decision.Reason = fmt.Sprintf(
		"auto-flagged: negative discrimination %.4f over %d responses at %s",
		*item.Discrimination, item.ResponseCount, now.UTC().Format(time.RFC3339),
	)
	return decision
}

// EvaluateFlag 对单题执行标记规则并落库。条件更新保证并发重复评估
// 只有一次生效；只有真正发生转移的那次记一条 warning 事件。
func (s *ItemQualityService) EvaluateFlag(item *model.Item) (*model.FlagDecision, error) {
	now := time.Now()
	decision := evaluateFlagDecision(item, s.Cfg.Psychometrics.MinResponses, now)
	if !decision.Transitioned {
		return decision, nil
	}

	applied, err := s.ItemRepo.TransitionFlag(item.ID, model.FlagNormal, model.FlagUnderReview, decision.Reason, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// 另一个统计任务已经先完成了同一转移
		decision.Transitioned = false
		decision.NewFlag = model.FlagUnderReview
		return decision, nil
	}

	monitoring.ItemsFlagged.Inc()
	logger.Log.Warn("item flagged for review",
		zap.Uint("itemId", item.ID),
		zap.Float64p("discrimination", item.Discrimination),
		zap.Int("responseCount", item.ResponseCount),
	)
	return decision, nil
}

// ManualOverride 人工覆写标记。设为 deactivated 时必须给出理由。
func (s *ItemQualityService) ManualOverride(itemID uint, newFlag string, reason *string) (*model.FlagDecision, error) {
	if !model.ValidQualityFlag(newFlag) {
		return nil, util.ErrInvalidQualityFlag
	}
	flag := model.QualityFlag(newFlag)
	if flag == model.FlagDeactivated && (reason == nil || *reason == "") {
		return nil, util.ErrFlagReasonRequired
	}

	item, err := s.ItemRepo.FindByID(itemID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}

	now := time.Now()
	if err := s.ItemRepo.OverrideFlag(itemID, flag, reason, now); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}

	logger.Log.Info("quality flag overridden",
		zap.Uint("itemId", itemID),
		zap.String("from", string(item.QualityFlag)),
		zap.String("to", newFlag),
	)

	decision := &model.FlagDecision{
		ItemID:         itemID,
		Transitioned:   item.QualityFlag != flag,
		PreviousFlag:   item.QualityFlag,
		NewFlag:        flag,
		Discrimination: item.Discrimination,
	}
	if reason != nil {
		decision.Reason = *reason
	}
	return decision, nil
}

// RecomputeAll 后台任务入口：重算所有题目的区分度、更新作答计数、
// 追加统计快照，并执行标记规则。
func (s *ItemQualityService) RecomputeAll() error {
	items, err := s.ItemRepo.ListAll()
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]

		result, err := s.ComputeDiscrimination(item.ID)
		if err != nil {
			logger.Log.Error("discrimination recompute failed",
				zap.Uint("itemId", item.ID), zap.Error(err))
			continue
		}

		if err := s.ItemRepo.UpdateDiscrimination(item.ID, result.Value, result.ResponseCount); err != nil {
			logger.Log.Error("discrimination update failed",
				zap.Uint("itemId", item.ID), zap.Error(err))
			continue
		}

		// 数值发生变化时追加快照，趋势与历史查询依赖这些行
		if result.Value != nil && discriminationChanged(item.Discrimination, result.Value) {
			snap := &model.ItemStatSnapshot{
				ItemID:         item.ID,
				Discrimination: result.Value,
				ResponseCount:  result.ResponseCount,
			}
			if err := s.SnapshotRepo.Create(snap); err != nil {
				logger.Log.Error("snapshot append failed",
					zap.Uint("itemId", item.ID), zap.Error(err))
			}
		}

		item.Discrimination = result.Value
		item.ResponseCount = result.ResponseCount
		if _, err := s.EvaluateFlag(item); err != nil {
			logger.Log.Error("flag evaluation failed",
				zap.Uint("itemId", item.ID), zap.Error(err))
		}
	}
	return nil
}

func discriminationChanged(prev, next *float64) bool {
	if prev == nil {
		return true
	}
	const eps = 1e-6
	d := *prev - *next
	return d > eps || d < -eps
}
