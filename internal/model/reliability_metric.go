package model

import (
	"encoding/json"
	"time"
)

type MetricType string

const (
	MetricAlpha      MetricType = "alpha"
	MetricTestRetest MetricType = "test_retest"
	MetricSplitHalf  MetricType = "split_half"
)

func ValidMetricType(t string) bool {
	switch MetricType(t) {
	case MetricAlpha, MetricTestRetest, MetricSplitHalf:
		return true
	}
	return false
}

// ReliabilityMetric 信度历史记录，只追加不修改，支持趋势查询
type ReliabilityMetric struct {
	BaseModel
	MetricType   MetricType      `gorm:"size:20;index;not null" json:"metricType"`
	Value        float64         `gorm:"not null" json:"value"`
	SampleSize   int             `gorm:"not null" json:"sampleSize"`
	CalculatedAt time.Time       `gorm:"index;not null" json:"calculatedAt"`
	Details      json.RawMessage `gorm:"type:json" json:"details,omitempty"`
}

func (ReliabilityMetric) TableName() string {
	return "reliability_metrics"
}
