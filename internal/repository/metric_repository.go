package repository

import (
	"cognitest_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ReliabilityMetricRepository struct {
	DB *gorm.DB
}

func NewReliabilityMetricRepository(db *gorm.DB) *ReliabilityMetricRepository {
	return &ReliabilityMetricRepository{DB: db}
}

func (r *ReliabilityMetricRepository) Create(m *model.ReliabilityMetric) error {
	return r.DB.Create(m).Error
}

// ListRecent 最近N天的信度历史，最新在前；metricType 为空则不过滤
func (r *ReliabilityMetricRepository) ListRecent(metricType string, days int) ([]model.ReliabilityMetric, error) {
	var metrics []model.ReliabilityMetric
	q := r.DB.Where("calculated_at >= ?", time.Now().AddDate(0, 0, -days))
	if metricType != "" {
		q = q.Where("metric_type = ?", metricType)
	}
	err := q.Order("calculated_at DESC").Find(&metrics).Error
	return metrics, err
}

type SnapshotRepository struct {
	DB *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{DB: db}
}

func (r *SnapshotRepository) Create(s *model.ItemStatSnapshot) error {
	return r.DB.Create(s).Error
}

func (r *SnapshotRepository) HistoryForItem(itemID uint, limit int) ([]model.ItemStatSnapshot, error) {
	var snaps []model.ItemStatSnapshot
	err := r.DB.Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}

// AvgDiscriminationAt 截止某时刻各题最近一次快照的区分度均值，
// 用于30天趋势对比
func (r *SnapshotRepository) AvgDiscriminationAt(cutoff time.Time) (float64, int, error) {
	subquery := r.DB.Model(&model.ItemStatSnapshot{}).
		Select("item_id, MAX(created_at) as max_date").
		Where("created_at <= ? AND discrimination IS NOT NULL", cutoff).
		Group("item_id")

	type aggRow struct {
		Avg   float64
		Rated int
	}
	var row aggRow
	err := r.DB.Model(&model.ItemStatSnapshot{}).
		Select("AVG(item_stat_snapshots.discrimination) as avg, COUNT(*) as rated").
		Joins("INNER JOIN (?) AS latest ON item_stat_snapshots.item_id = latest.item_id AND item_stat_snapshots.created_at = latest.max_date", subquery).
		Where("item_stat_snapshots.discrimination IS NOT NULL").
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Avg, row.Rated, nil
}
