package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/util"
	"cognitest_backend/pkg/stat"
	"math"
)

// reliabilityProvider 精度计算只依赖最近一次缓存的信度系数
type reliabilityProvider interface {
	CachedReliability() (float64, bool)
}

type PrecisionService struct {
	Reliability reliabilityProvider
	Cfg         *config.Config
}

func NewPrecisionService(reliability reliabilityProvider, cfg *config.Config) *PrecisionService {
	return &PrecisionService{Reliability: reliability, Cfg: cfg}
}

// ComputeSEM 测量标准误：SEM = SD * sqrt(1 - r)。
// 信度超出 [0,1] 属于调用方错误。
func (s *PrecisionService) ComputeSEM(reliability float64) (float64, error) {
	if reliability < 0 || reliability > 1 {
		return 0, util.ErrInvalidReliability
	}
	return s.Cfg.Psychometrics.PopulationSD * math.Sqrt(1-reliability), nil
}

// ComputeConfidenceInterval 围绕观察分数的双侧置信区间。
// 上下界按报告粒度取整并压入量表范围，压缩后不会出现 lower > upper。
func (s *PrecisionService) ComputeConfidenceInterval(score, sem, confidenceLevel float64) (*model.ConfidenceInterval, error) {
	z, ok := stat.NormalQuantile(confidenceLevel)
	if !ok {
		return nil, util.ErrUnsupportedConfidence
	}

	lower := int(math.Round(score - z*sem))
	upper := int(math.Round(score + z*sem))

	lower = clampScore(lower, s.Cfg.Psychometrics.ScoreMin, s.Cfg.Psychometrics.ScoreMax)
	upper = clampScore(upper, s.Cfg.Psychometrics.ScoreMin, s.Cfg.Psychometrics.ScoreMax)

	return &model.ConfidenceInterval{
		Lower:           lower,
		Upper:           upper,
		ConfidenceLevel: confidenceLevel,
		SEM:             sem,
	}, nil
}

// ScoreEstimate 为一个观察分数生成置信区间。最近缓存的信度
// 低于可用下限或不可得时返回 nil——宁可不报告，也不给误导性
// 的过宽区间。
func (s *PrecisionService) ScoreEstimate(score float64) (*model.ConfidenceInterval, error) {
	r, ok := s.Reliability.CachedReliability()
	if !ok || r < s.Cfg.Psychometrics.ReliabilityFloor {
		return nil, nil
	}

	sem, err := s.ComputeSEM(r)
	if err != nil {
		return nil, err
	}
	return s.ComputeConfidenceInterval(score, sem, s.Cfg.Psychometrics.ConfidenceLevel)
}

func clampScore(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
