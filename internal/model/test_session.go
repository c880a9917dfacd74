package model

import "time"

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// 终止原因
const (
	StopSEThreshold   = "se_threshold"
	StopMaxItems      = "max_items"
	StopPoolExhausted = "pool_exhausted"
)

// swagger:model TestSession
// TestSession 一次测验会话。theta/SE 只由自适应引擎写入，
// 完成或放弃后整行不再变化。
type TestSession struct {
	UUIDBase
	UserID uint          `gorm:"index;not null" json:"userId"`
	Mode   string        `gorm:"size:20;default:'adaptive'" json:"mode"`
	Status SessionStatus `gorm:"size:20;index;default:'in_progress'" json:"status"`

	Theta             float64 `gorm:"default:0" json:"theta"`
	SE                float64 `gorm:"default:1" json:"se"`
	ItemsAdministered int     `gorm:"default:0" json:"itemsAdministered"`
	CurrentItemID     *uint   `json:"currentItemId,omitempty"` // awaiting_response 状态下待作答的题
	TerminationReason *string `gorm:"size:30" json:"terminationReason,omitempty"`

	// 完成时由精度计算器填充；信度不可用时保持为空，绝不编造区间
	RawScore        *int       `json:"rawScore,omitempty"`
	SEM             *float64   `json:"sem,omitempty"`
	CILower         *int       `json:"ciLower,omitempty"`
	CIUpper         *int       `json:"ciUpper,omitempty"`
	ConfidenceLevel *float64   `json:"confidenceLevel,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func (TestSession) TableName() string {
	return "test_sessions"
}

// ResponseRecord 单题作答记录，写入后不可变。
// (session_id, item_id) 唯一，保证同一题重复提交幂等。
type ResponseRecord struct {
	BaseModel
	SessionID     string  `gorm:"type:varchar(36);uniqueIndex:uq_session_item;not null" json:"sessionId"`
	ItemID        uint    `gorm:"uniqueIndex:uq_session_item;index;not null" json:"itemId"`
	IsCorrect     bool    `gorm:"not null" json:"isCorrect"`
	AbilityAtTime float64 `gorm:"default:0" json:"abilityAtTime"` // 作答时刻的theta
	Position      int     `gorm:"default:0" json:"position"`      // 施测顺序，从1开始
}

func (ResponseRecord) TableName() string {
	return "response_records"
}
