package repository

import (
	"cognitest_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ItemRepository struct {
	DB *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{DB: db}
}

func (r *ItemRepository) Create(item *model.Item) error {
	return r.DB.Create(item).Error
}

func (r *ItemRepository) FindByID(id uint) (*model.Item, error) {
	var item model.Item
	err := r.DB.First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) List(page, limit int) ([]model.Item, int64, error) {
	var items []model.Item
	var total int64

	if err := r.DB.Model(&model.Item{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.DB.Order("id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *ItemRepository) ListAll() ([]model.Item, error) {
	var items []model.Item
	err := r.DB.Order("id ASC").Find(&items).Error
	return items, err
}

// ListEligible 返回可施测题目：quality_flag 必须为 normal，且不在排除列表内
func (r *ItemRepository) ListEligible(excluded []uint) ([]model.Item, error) {
	var items []model.Item
	q := r.DB.Where("quality_flag = ?", model.FlagNormal)
	if len(excluded) > 0 {
		q = q.Where("id NOT IN ?", excluded)
	}
	err := q.Find(&items).Error
	return items, err
}

func (r *ItemRepository) UpdateDiscrimination(id uint, value *float64, responseCount int) error {
	return r.DB.Model(&model.Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"discrimination": value,
			"response_count": responseCount,
		}).Error
}

// TransitionFlag 条件更新：仅当当前标记仍为 from 时才推进到 to。
// 按行更新实现单写者胜出，并发的统计任务重复评估同一题时只有一次生效。
func (r *ItemRepository) TransitionFlag(id uint, from, to model.QualityFlag, reason string, at time.Time) (bool, error) {
	res := r.DB.Model(&model.Item{}).
		Where("id = ? AND quality_flag = ?", id, from).
		Updates(map[string]interface{}{
			"quality_flag":            to,
			"quality_flag_reason":     reason,
			"quality_flag_updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// OverrideFlag 人工覆写，不检查当前状态
func (r *ItemRepository) OverrideFlag(id uint, to model.QualityFlag, reason *string, at time.Time) error {
	res := r.DB.Model(&model.Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"quality_flag":            to,
			"quality_flag_reason":     reason,
			"quality_flag_updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
