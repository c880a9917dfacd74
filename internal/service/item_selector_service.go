package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"cognitest_backend/pkg/logger"
	"math"
	"sort"

	"go.uber.org/zap"
)

// InformationFunc 题目信息函数，可替换（1PL/2PL/3PL）
type InformationFunc func(theta float64, item *model.Item) float64

// discriminationParam 把点二列区分度映射为 2PL 的 a 参数。
// 新题（无区分度）按 a=1 处理，a 压在 [0.25, 2.5] 内；选题资格由
// 质量标记控制，这里不按区分度过滤。
func discriminationParam(item *model.Item) float64 {
	if item.Discrimination == nil {
		return 1.0
	}
	a := 2 * *item.Discrimination
	if a < 0.25 {
		a = 0.25
	}
	if a > 2.5 {
		a = 2.5
	}
	return a
}

// twoPLProbability 2PL 作答正确概率
func twoPLProbability(theta float64, item *model.Item) float64 {
	a := discriminationParam(item)
	return 1.0 / (1.0 + math.Exp(-a*(theta-item.Difficulty)))
}

// TwoPLInformation 2PL Fisher 信息：I(θ) = a²·p·(1-p)
func TwoPLInformation(theta float64, item *model.Item) float64 {
	a := discriminationParam(item)
	p := twoPLProbability(theta, item)
	return a * a * p * (1 - p)
}

type ItemSelectorService struct {
	ItemRepo    *repository.ItemRepository
	Information InformationFunc
	Cfg         *config.Config
}

func NewItemSelectorService(itemRepo *repository.ItemRepository, cfg *config.Config) *ItemSelectorService {
	return &ItemSelectorService{
		ItemRepo:    itemRepo,
		Information: TwoPLInformation,
		Cfg:         cfg,
	}
}

// NextAdaptive 自适应选题：在未施测的合格题目中取当前能力点信息量
// 最大的一题。并列时先比区分度（高者优先），再比作答次数（少者
// 优先，分散曝光）。题池耗尽返回 nil。
func (s *ItemSelectorService) NextAdaptive(theta float64, administered []uint) (*model.Item, error) {
	items, err := s.ItemRepo.ListEligible(administered)
	if err != nil {
		return nil, err
	}
	return pickMaxInformation(items, theta, s.Information), nil
}

func pickMaxInformation(items []model.Item, theta float64, info InformationFunc) *model.Item {
	var best *model.Item
	var bestInfo float64

	for i := range items {
		item := &items[i]
		v := info(theta, item)
		if best == nil || v > bestInfo {
			best = item
			bestInfo = v
			continue
		}
		if v == bestInfo && betterTieBreak(item, best) {
			best = item
		}
	}
	return best
}

// betterTieBreak 信息量并列时 a 是否优于 b
func betterTieBreak(a, b *model.Item) bool {
	da, db := discValue(a), discValue(b)
	if da != db {
		return da > db
	}
	return a.ResponseCount < b.ResponseCount
}

func discValue(item *model.Item) float64 {
	if item.Discrimination == nil {
		return math.Inf(-1) // 空区分度永不优先
	}
	return *item.Discrimination
}

// 固定卷的区分度回落频带，从严到宽
type discBand struct {
	name  string
	match func(d *float64) bool
}

var fixedFormBands = []discBand{
	{"validated (>=0.30)", func(d *float64) bool { return d != nil && *d >= 0.30 }},
	{"acceptable (>=0.20)", func(d *float64) bool { return d != nil && *d >= 0.20 && *d < 0.30 }},
	{"any positive", func(d *float64) bool { return d != nil && *d >= 0 && *d < 0.20 }},
	{"unrated", func(d *float64) bool { return d == nil }},
}

// BuildFixedForm 固定卷组卷：每个难度层取 perTier 题。层内按区分度
// 降序、空值最后；数量不足时逐级放宽区分度频带并记录日志。负区分
// 度题目永不入卷。
func (s *ItemSelectorService) BuildFixedForm(perTier int) ([]model.Item, error) {
	items, err := s.ItemRepo.ListEligible(nil)
	if err != nil {
		return nil, err
	}
	return buildFormFromPool(items, perTier), nil
}

func buildFormFromPool(items []model.Item, perTier int) []model.Item {
	byTier := make(map[model.DifficultyTier][]model.Item)
	for _, item := range items {
		byTier[item.DifficultyTier] = append(byTier[item.DifficultyTier], item)
	}

	var form []model.Item
	for _, tier := range model.DifficultyTiers {
		pool := byTier[tier]
		sort.SliceStable(pool, func(i, j int) bool {
			return discValue(&pool[i]) > discValue(&pool[j])
		})

		var picked []model.Item
		for bandIdx, band := range fixedFormBands {
			if len(picked) >= perTier {
				break
			}
			before := len(picked)
			for _, item := range pool {
				if len(picked) >= perTier {
					break
				}
				if band.match(item.Discrimination) {
					picked = append(picked, item)
				}
			}
			if bandIdx > 0 && len(picked) > before {
				logger.Log.Info("fixed form fell back to wider discrimination band",
					zap.String("tier", string(tier)),
					zap.String("band", band.name),
				)
			}
		}
		form = append(form, picked...)
	}
	return form
}
