package repository

import (
	"context"

	"repolink/internal/db"
	"repolink/internal/model"
)

type HistoryRepository struct {
	localPath string
}

func NewHistoryRepository(localPath string) *HistoryRepository {
	return &HistoryRepository{localPath: localPath}
}

func (r *HistoryRepository) Record(ctx context.Context, report model.CycleReport) error {
	rec := model.CycleRecord{
		LocalPath:  r.localPath,
		Cycle:      report.Cycle,
		Result:     report.Result,
		Action:     report.Action,
		Decision:   report.Decision,
		Applied:    report.Applied,
		ErrMsg:     report.Err,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}

	return db.DB.WithContext(ctx).Create(&rec).Error
}

type Stats struct {
	Total   int64 `json:"total"`
	Applied int64 `json:"applied"`
	Failed  int64 `json:"failed"`
}

func (r *HistoryRepository) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	q := db.DB.WithContext(ctx).Model(&model.CycleRecord{}).Where("local_path = ?", r.localPath)

	if err := q.Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.WithContext(ctx).Model(&model.CycleRecord{}).
		Where("local_path = ? AND applied = ?", r.localPath, true).
		Count(&stats.Applied).Error; err != nil {
		return stats, err
	}

	if err := db.DB.WithContext(ctx).Model(&model.CycleRecord{}).
		Where("local_path = ? AND err_msg <> ''", r.localPath).
		Count(&stats.Failed).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

func (r *HistoryRepository) GetRecent(ctx context.Context, limit int) ([]model.CycleRecord, error) {
	var records []model.CycleRecord
	result := db.DB.WithContext(ctx).
		Where("local_path = ?", r.localPath).
		Order("started_at desc").
		Limit(limit).
		Find(&records)

	return records, result.Error
}
