package repository

import (
	"cognitest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseRepository struct {
	DB *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{DB: db}
}

// CreateIfAbsent 幂等写入：(session_id, item_id) 冲突时不做任何事。
// 返回本次是否真正插入了新记录。
func (r *ResponseRepository) CreateIfAbsent(rec *model.ResponseRecord) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "item_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ResponseRepository) AllForSession(sessionID string) ([]model.ResponseRecord, error) {
	var recs []model.ResponseRecord
	err := r.DB.Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&recs).Error
	return recs, err
}

func (r *ResponseRepository) FindBySessionAndItem(sessionID string, itemID uint) (*model.ResponseRecord, error) {
	var rec model.ResponseRecord
	err := r.DB.Where("session_id = ? AND item_id = ?", sessionID, itemID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ResponseRepository) CountForItem(itemID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ResponseRecord{}).Where("item_id = ?", itemID).Count(&count).Error
	return count, err
}

// ItemObservation 某题的一次观测：该会话是否答对 + 会话总分
type ItemObservation struct {
	SessionID  string
	IsCorrect  bool
	TotalScore float64
}

// ObservationsForItem 返回答过该题的每个会话的对错与总分，点二列相关的原始数据
func (r *ResponseRepository) ObservationsForItem(itemID uint) ([]ItemObservation, error) {
	var recs []model.ResponseRecord
	if err := r.DB.Where("item_id = ?", itemID).Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	sessionIDs := make([]string, 0, len(recs))
	for _, rec := range recs {
		sessionIDs = append(sessionIDs, rec.SessionID)
	}

	// 各会话总分（答对题数）
	type sessionTotal struct {
		SessionID string
		Total     float64
	}
	var totals []sessionTotal
	err := r.DB.Model(&model.ResponseRecord{}).
		Select("session_id, SUM(is_correct) AS total").
		Where("session_id IN ?", sessionIDs).
		Group("session_id").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	totalMap := make(map[string]float64, len(totals))
	for _, t := range totals {
		totalMap[t.SessionID] = t.Total
	}

	obs := make([]ItemObservation, 0, len(recs))
	for _, rec := range recs {
		obs = append(obs, ItemObservation{
			SessionID:  rec.SessionID,
			IsCorrect:  rec.IsCorrect,
			TotalScore: totalMap[rec.SessionID],
		})
	}
	return obs, nil
}

// ResponsesForSessions 取一批会话的全部作答，按会话与施测顺序排序
func (r *ResponseRepository) ResponsesForSessions(sessionIDs []string) ([]model.ResponseRecord, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var recs []model.ResponseRecord
	err := r.DB.Where("session_id IN ?", sessionIDs).
		Order("session_id ASC, position ASC").
		Find(&recs).Error
	return recs, err
}
