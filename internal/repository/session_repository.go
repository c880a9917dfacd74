package repository

import (
	"cognitest_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(sess *model.TestSession) error {
	return r.DB.Create(sess).Error
}

func (r *SessionRepository) FindByID(id string) (*model.TestSession, error) {
	var sess model.TestSession
	err := r.DB.Where("id = ?", id).First(&sess).Error
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// AdvanceAbility 推进一步能力估计。条件更新保证同一会话的更新严格串行：
// 只有 items_administered 仍等于调用方读到的旧值且会话仍在进行中才生效。
func (r *SessionRepository) AdvanceAbility(id string, prevItems int, theta, se float64, currentItemID *uint) (bool, error) {
	res := r.DB.Model(&model.TestSession{}).
		Where("id = ? AND status = ? AND items_administered = ?", id, model.SessionInProgress, prevItems).
		Updates(map[string]interface{}{
			"theta":              theta,
			"se":                 se,
			"items_administered": prevItems + 1,
			"current_item_id":    currentItemID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetCurrentItem 记录 awaiting_response 状态下待作答的题
func (r *SessionRepository) SetCurrentItem(id string, itemID *uint) error {
	return r.DB.Model(&model.TestSession{}).
		Where("id = ? AND status = ?", id, model.SessionInProgress).
		Update("current_item_id", itemID).Error
}

// Complete 终止会话并写入分数与置信区间。只对 in_progress 生效，
// 重复调用安全。
func (r *SessionRepository) Complete(sess *model.TestSession, reason string, completedAt time.Time) (bool, error) {
	res := r.DB.Model(&model.TestSession{}).
		Where("id = ? AND status = ?", sess.ID, model.SessionInProgress).
		Updates(map[string]interface{}{
			"status":             model.SessionCompleted,
			"termination_reason": reason,
			"current_item_id":    nil,
			"raw_score":          sess.RawScore,
			"sem":                sess.SEM,
			"ci_lower":           sess.CILower,
			"ci_upper":           sess.CIUpper,
			"confidence_level":   sess.ConfidenceLevel,
			"completed_at":       completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Abandon 放弃会话，单向转移，只对 in_progress 生效
func (r *SessionRepository) Abandon(id string) (bool, error) {
	res := r.DB.Model(&model.TestSession{}).
		Where("id = ? AND status = ?", id, model.SessionInProgress).
		Updates(map[string]interface{}{
			"status":          model.SessionAbandoned,
			"current_item_id": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecentCompletedIDs 最近完成的会话ID，信度计算的取样窗口
func (r *SessionRepository) RecentCompletedIDs(limit int) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.TestSession{}).
		Where("status = ?", model.SessionCompleted).
		Order("completed_at DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// CompletedWithScores 全部有分数的已完成会话，按用户和完成时间排序，
// 重测配对在服务层完成
func (r *SessionRepository) CompletedWithScores() ([]model.TestSession, error) {
	var sessions []model.TestSession
	err := r.DB.Where("status = ? AND raw_score IS NOT NULL", model.SessionCompleted).
		Order("user_id ASC, completed_at ASC").
		Find(&sessions).Error
	return sessions, err
}
