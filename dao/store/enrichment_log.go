package store

import (
	"context"
	"time"

	"datasearch/dao/model"

	"gorm.io/gorm"
)

// EnrichmentLogStore appends attempt records. Rows are immutable once
// written.
type EnrichmentLogStore struct {
	db *gorm.DB
}

func NewEnrichmentLogStore(db *gorm.DB) *EnrichmentLogStore {
	return &EnrichmentLogStore{db: db}
}

// LogEntry carries the optional fields of one attempt record.
type LogEntry struct {
	DatasetID     uint
	Stage         model.EnrichmentStage
	Result        model.EnrichmentResult
	AttemptNumber int
	Duration      time.Duration
	ErrorType     string
	ErrorMessage  string
	WorkerID      string
	TaskID        string
}

// Log appends one attempt record.
func (s *EnrichmentLogStore) Log(ctx context.Context, entry LogEntry) error {
	row := model.EnrichmentLog{
		DatasetID:     entry.DatasetID,
		Stage:         entry.Stage,
		Result:        entry.Result,
		AttemptNumber: entry.AttemptNumber,
		DurationMS:    entry.Duration.Milliseconds(),
		ErrorType:     entry.ErrorType,
		ErrorMessage:  entry.ErrorMessage,
		WorkerID:      entry.WorkerID,
		TaskID:        entry.TaskID,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// GetByDataset returns the most recent attempts for one dataset.
func (s *EnrichmentLogStore) GetByDataset(ctx context.Context, datasetID uint, limit int) ([]model.EnrichmentLog, error) {
	var out []model.EnrichmentLog
	err := s.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountAttempts counts logged attempts for a dataset and stage. This is the
// audit-trail view of the counter Dataset carries.
func (s *EnrichmentLogStore) CountAttempts(ctx context.Context, datasetID uint, stage model.EnrichmentStage) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.EnrichmentLog{}).
		Where("dataset_id = ? AND stage = ?", datasetID, stage).
		Count(&n).Error
	return n, err
}

// RecentFailures returns failed attempts newer than since.
func (s *EnrichmentLogStore) RecentFailures(ctx context.Context, since time.Time, limit int) ([]model.EnrichmentLog, error) {
	var out []model.EnrichmentLog
	err := s.db.WithContext(ctx).
		Where("result = ?", model.ResultFailed).
		Where("created_at >= ?", since).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// StageStats is one row of the grouped attempt statistics.
type StageStats struct {
	Stage         model.EnrichmentStage  `json:"stage"`
	Result        model.EnrichmentResult `json:"result"`
	Count         int64                  `json:"count"`
	AvgDurationMS float64                `json:"avg_duration_ms"`
}

// StatsByStageAndResult groups attempts in the window by stage and result.
func (s *EnrichmentLogStore) StatsByStageAndResult(ctx context.Context, window time.Duration) ([]StageStats, error) {
	since := time.Now().Add(-window)
	var out []StageStats
	err := s.db.WithContext(ctx).Model(&model.EnrichmentLog{}).
		Select("stage, result, count(*) as count, avg(duration_ms) as avg_duration_ms").
		Where("created_at >= ?", since).
		Group("stage").Group("result").
		Scan(&out).Error
	return out, err
}
