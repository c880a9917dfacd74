package model

import (
	"encoding/json"
	"time"
)

type QualityFlag string

const (
	FlagNormal      QualityFlag = "normal"
	FlagUnderReview QualityFlag = "under_review"
	FlagDeactivated QualityFlag = "deactivated"
)

// ValidQualityFlag 校验外部传入的标记值
func ValidQualityFlag(f string) bool {
	switch QualityFlag(f) {
	case FlagNormal, FlagUnderReview, FlagDeactivated:
		return true
	}
	return false
}

type DifficultyTier string

const (
	TierVeryEasy DifficultyTier = "very_easy"
	TierEasy     DifficultyTier = "easy"
	TierMedium   DifficultyTier = "medium"
	TierHard     DifficultyTier = "hard"
	TierVeryHard DifficultyTier = "very_hard"
)

// DifficultyTiers 按从易到难排序，用于固定卷分层
var DifficultyTiers = []DifficultyTier{TierVeryEasy, TierEasy, TierMedium, TierHard, TierVeryHard}

// swagger:model Item
// Item 题目。quality_flag 由引擎单向推进 normal → under_review，
// 其余转移只允许人工覆写；题目永不删除。
type Item struct {
	BaseModel
	Content        string          `gorm:"type:text;not null" json:"content"`
	Options        json.RawMessage `gorm:"type:json" json:"options,omitempty"`
	Answer         string          `gorm:"type:text" json:"-"`
	ItemType       string          `gorm:"size:50;index;not null" json:"itemType"` // verbal / numeric / spatial / logic / memory
	DifficultyTier DifficultyTier  `gorm:"size:20;index;not null" json:"difficultyTier"`
	Difficulty     float64         `gorm:"default:0" json:"difficulty"` // IRT b 参数，theta 量纲

	Discrimination       *float64    `json:"discrimination"` // 点二列相关，无足够作答时为空
	ResponseCount        int         `gorm:"default:0" json:"responseCount"`
	QualityFlag          QualityFlag `gorm:"size:20;index;default:'normal'" json:"qualityFlag"`
	QualityFlagReason    *string     `gorm:"type:text" json:"qualityFlagReason,omitempty"`
	QualityFlagUpdatedAt *time.Time  `json:"qualityFlagUpdatedAt,omitempty"`
}

func (Item) TableName() string {
	return "items"
}

// ItemStatSnapshot 区分度重算任务写入的历史快照，只追加不修改，
// 供趋势对比和单题历史查询使用
type ItemStatSnapshot struct {
	BaseModel
	ItemID         uint     `gorm:"index;not null" json:"itemId"`
	Discrimination *float64 `json:"discrimination"`
	ResponseCount  int      `gorm:"default:0" json:"responseCount"`
}

func (ItemStatSnapshot) TableName() string {
	return "item_stat_snapshots"
}
