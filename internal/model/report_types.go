package model

import "time"

// 区分度分级，区间左闭右开，互不重叠
type DiscriminationTier string

const (
	DiscExcellent  DiscriminationTier = "excellent"  // ≥ 0.40
	DiscGood       DiscriminationTier = "good"       // [0.30, 0.40)
	DiscAcceptable DiscriminationTier = "acceptable" // [0.20, 0.30)
	DiscPoor       DiscriminationTier = "poor"       // [0.10, 0.20)
	DiscVeryPoor   DiscriminationTier = "very_poor"  // [0.00, 0.10)
	DiscNegative   DiscriminationTier = "negative"   // < 0.00
)

// 计算结果的状态标签，取代对错误文本的字符串匹配
type ResultStatus string

const (
	StatusOK               ResultStatus = "ok"
	StatusInsufficientData ResultStatus = "insufficient_data"
	StatusUnavailable      ResultStatus = "unavailable"
)

// DiscriminationResult 单题区分度计算结果
type DiscriminationResult struct {
	ItemID        uint         `json:"itemId"`
	Value         *float64     `json:"value"`
	ResponseCount int          `json:"responseCount"`
	Status        ResultStatus `json:"status"`
}

// FlagDecision 质量标记评估结果
type FlagDecision struct {
	ItemID         uint        `json:"itemId"`
	Transitioned   bool        `json:"transitioned"`
	PreviousFlag   QualityFlag `json:"previousFlag"`
	NewFlag        QualityFlag `json:"newFlag"`
	Reason         string      `json:"reason,omitempty"`
	Discrimination *float64    `json:"discrimination,omitempty"`
}

type GroupAverage struct {
	Group             string  `json:"group"`
	AvgDiscrimination float64 `json:"avgDiscrimination"`
	ItemCount         int     `json:"itemCount"`
}

type ActionItem struct {
	ItemID         uint        `json:"itemId"`
	ItemType       string      `json:"itemType"`
	DifficultyTier string      `json:"difficultyTier"`
	Discrimination float64     `json:"discrimination"`
	ResponseCount  int         `json:"responseCount"`
	QualityFlag    QualityFlag `json:"qualityFlag"`
}

// TrendDelta 近30天区分度均值变化
type TrendDelta struct {
	WindowDays  int     `json:"windowDays"`
	CurrentAvg  float64 `json:"currentAvg"`
	PreviousAvg float64 `json:"previousAvg"`
	Delta       float64 `json:"delta"`
}

// DiscriminationReport 管理端区分度总览
type DiscriminationReport struct {
	GeneratedAt  time.Time      `json:"generatedAt"`
	MinResponses int            `json:"minResponses"`
	TotalItems   int            `json:"totalItems"`
	RatedItems   int            `json:"ratedItems"`
	TierCounts   map[string]int `json:"tierCounts"`
	ByDifficulty []GroupAverage `json:"byDifficulty"`
	ByType       []GroupAverage `json:"byType"`
	ActionNeeded []ActionItem   `json:"actionNeeded"` // poor 以下，最差在前
	Trend        *TrendDelta    `json:"trend,omitempty"`
}

type SnapshotPoint struct {
	Discrimination *float64  `json:"discrimination"`
	ResponseCount  int       `json:"responseCount"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// ItemDiscriminationDetail 单题区分度详情
type ItemDiscriminationDetail struct {
	ItemID            uint                `json:"itemId"`
	ItemType          string              `json:"itemType"`
	DifficultyTier    string              `json:"difficultyTier"`
	Discrimination    *float64            `json:"discrimination"`
	ResponseCount     int                 `json:"responseCount"`
	Tier              *DiscriminationTier `json:"tier"`
	QualityFlag       QualityFlag         `json:"qualityFlag"`
	PercentileRank    *float64            `json:"percentileRank"`    // 在全部已评级题目中的百分位
	TypeAverage       *float64            `json:"typeAverage"`       // 同题型均值
	DifficultyAverage *float64            `json:"difficultyAverage"` // 同难度层均值
	History           []SnapshotPoint     `json:"history"`
}

type ItemTotalCorrelation struct {
	ItemID      uint    `json:"itemId"`
	Correlation float64 `json:"correlation"`
}

// ReliabilityResult 单一信度系数的计算结果。
// Status 为 insufficient_data 或 unavailable 时 Value 为空。
type ReliabilityResult struct {
	MetricType     MetricType   `json:"metricType"`
	Status         ResultStatus `json:"status"`
	Value          *float64     `json:"value"`
	SampleSize     int          `json:"sampleSize"`
	Interpretation string       `json:"interpretation,omitempty"`
	MeetsMinimum   bool         `json:"meetsMinimum"`

	// alpha 专有：各题的题总相关，删题建议由报告层读取
	ItemTotalCorrelations []ItemTotalCorrelation `json:"itemTotalCorrelations,omitempty"`

	// test_retest 专有
	MeanScoreChange *float64 `json:"meanScoreChange,omitempty"` // 练习效应

	// split_half 专有
	RawHalfCorrelation *float64 `json:"rawHalfCorrelation,omitempty"`
}

// ReliabilityReport 三个系数的合并报告，单项失败不影响其余
type ReliabilityReport struct {
	GeneratedAt     time.Time          `json:"generatedAt"`
	Alpha           *ReliabilityResult `json:"alpha"`
	TestRetest      *ReliabilityResult `json:"testRetest"`
	SplitHalf       *ReliabilityResult `json:"splitHalf"`
	Recommendations []string           `json:"recommendations"`
}

// ConfidenceInterval 围绕观察分数的置信区间，上下界已取整并压入量表范围
type ConfidenceInterval struct {
	Lower           int     `json:"lower"`
	Upper           int     `json:"upper"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	SEM             float64 `json:"sem"`
}
