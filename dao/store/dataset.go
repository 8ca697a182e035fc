package store

import (
	"context"
	"encoding/json"
	"time"

	"datasearch/dao/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatasetStore owns all writes to the datasets table. Fetchers and the
// orchestrator go through it; nothing else mutates enrichment state.
type DatasetStore struct {
	db *gorm.DB
}

func NewDatasetStore(db *gorm.DB) *DatasetStore {
	return &DatasetStore{db: db}
}

// bulkUpsertColumns are the descriptive fields the ingestion paths may
// overwrite on conflict. Enrichment bookkeeping (attempts, last error,
// status, is_active, embedding) is owned by the Mark* transitions and is
// deliberately absent here, so re-running a seed or refresh never
// reactivates a failed dataset.
var bulkUpsertColumns = []string{
	"title", "url", "description", "tags", "license", "file_formats",
	"total_size_bytes", "column_names", "row_count",
	"download_count", "view_count", "like_count",
	"source_created_at", "source_updated_at",
	"source_meta", "updated_at",
}

// upsertColumns additionally lets a single targeted upsert advance status
// and embedding, matching the hydration path which writes a full record.
var upsertColumns = append([]string{
	"embedding", "static_score", "enrichment_status", "last_enriched_at",
}, bulkUpsertColumns...)

var datasetConflictKey = []clause.Column{
	{Name: "source_name"}, {Name: "external_id"},
}

// Upsert inserts or updates one dataset by its natural key and returns the
// stored row.
func (s *DatasetStore) Upsert(ctx context.Context, dataset *model.Dataset) (*model.Dataset, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   datasetConflictKey,
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(dataset).Error
	if err != nil {
		return nil, err
	}
	return s.GetByExternalID(ctx, dataset.SourceName, dataset.ExternalID)
}

// BulkUpsert lands a whole batch as one set-oriented statement. The batch
// either lands atomically or the whole call errors; callers may re-submit
// the same batch safely.
func (s *DatasetStore) BulkUpsert(ctx context.Context, datasets []model.Dataset) (int64, error) {
	if len(datasets) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   datasetConflictKey,
		DoUpdates: clause.AssignmentColumns(bulkUpsertColumns),
	}).Create(&datasets)
	return res.RowsAffected, res.Error
}

func (s *DatasetStore) GetByID(ctx context.Context, id uint) (*model.Dataset, error) {
	var d model.Dataset
	err := s.db.WithContext(ctx).First(&d, id).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DatasetStore) GetByExternalID(ctx context.Context, sourceName, externalID string) (*model.Dataset, error) {
	var d model.Dataset
	err := s.db.WithContext(ctx).
		Where("source_name = ? AND external_id = ?", sourceName, externalID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkEnriching moves the dataset to enriching and bumps the attempt counter
// in one conditional UPDATE, so concurrent markers of the same id never lose
// an increment.
func (s *DatasetStore) MarkEnriching(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enrichment_status":   model.StatusEnriching,
			"enrichment_attempts": gorm.Expr("enrichment_attempts + ?", 1),
		}).Error
}

// MarkEnriched finalizes a successful attempt, optionally writing the
// embedding when the embed phase supplies one.
func (s *DatasetStore) MarkEnriched(ctx context.Context, id uint, embedding []float32) error {
	values := map[string]any{
		"enrichment_status": model.StatusEnriched,
		"last_enriched_at":  time.Now(),
	}
	if embedding != nil {
		raw, err := json.Marshal(embedding)
		if err != nil {
			return err
		}
		values["embedding"] = raw
	}
	return s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ?", id).
		Updates(values).Error
}

// MarkFailed records the terminal failure and deactivates the dataset, which
// removes it from every future pending-work query.
func (s *DatasetStore) MarkFailed(ctx context.Context, id uint, message string) error {
	return s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enrichment_status":     model.StatusFailed,
			"last_enrichment_error": message,
			"is_active":             false,
		}).Error
}

// RequeuePending returns a dataset to the hydration queue after a
// non-terminal attempt failure. The attempt counter is untouched; only
// MarkEnriching moves it.
func (s *DatasetStore) RequeuePending(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ?", id).
		Where("enrichment_status = ?", model.StatusEnriching).
		Update("enrichment_status", model.StatusPending).Error
}

// GetPendingForEnrichment returns active minimal/pending datasets below the
// attempt ceiling, oldest-created first.
func (s *DatasetStore) GetPendingForEnrichment(ctx context.Context, sourceName string, limit, maxAttempts int) ([]model.Dataset, error) {
	var out []model.Dataset
	err := s.db.WithContext(ctx).
		Where("source_name = ?", sourceName).
		Where("enrichment_status IN ?", []model.EnrichmentStatus{model.StatusMinimal, model.StatusPending}).
		Where("enrichment_attempts < ?", maxAttempts).
		Where("is_active = ?", true).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetForEmbeddingGeneration returns active enriched datasets that still lack
// an embedding.
func (s *DatasetStore) GetForEmbeddingGeneration(ctx context.Context, limit int) ([]model.Dataset, error) {
	var out []model.Dataset
	err := s.db.WithContext(ctx).
		Where("enrichment_status = ?", model.StatusEnriched).
		Where("embedding IS NULL").
		Where("is_active = ?", true).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ResetStaleEnriching requeues datasets stuck in enriching longer than
// staleAfter, e.g. after a crashed worker. Returns the number requeued.
func (s *DatasetStore) ResetStaleEnriching(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter)
	res := s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("enrichment_status = ?", model.StatusEnriching).
		Where("updated_at < ?", cutoff).
		Update("enrichment_status", model.StatusPending)
	return res.RowsAffected, res.Error
}

// TouchLastChecked stamps last_checked_at, used by the click-through
// redirect as a cheap liveness signal.
func (s *DatasetStore) TouchLastChecked(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("id = ?", id).
		Update("last_checked_at", time.Now()).Error
}

// SearchByTitle is the thin lookup backing the search endpoint.
func (s *DatasetStore) SearchByTitle(ctx context.Context, q string, limit int) ([]model.Dataset, error) {
	var out []model.Dataset
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("enrichment_status = ?", model.StatusEnriched).
		Where("title LIKE ?", "%"+q+"%").
		Order("updated_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SourceStats aggregates dataset counts by status for one source.
type SourceStats struct {
	Source    string `json:"source"`
	Total     int64  `json:"total"`
	Minimal   int64  `json:"minimal"`
	Pending   int64  `json:"pending"`
	Enriching int64  `json:"enriching"`
	Enriched  int64  `json:"enriched"`
	Failed    int64  `json:"failed"`
	Skipped   int64  `json:"skipped"`
}

func (s *DatasetStore) CountBySource(ctx context.Context, sourceName string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("source_name = ?", sourceName).
		Count(&n).Error
	return n, err
}

func (s *DatasetStore) CountByStatus(ctx context.Context, sourceName string, status model.EnrichmentStatus) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Dataset{}).
		Where("source_name = ? AND enrichment_status = ?", sourceName, status).
		Count(&n).Error
	return n, err
}

func (s *DatasetStore) StatsBySource(ctx context.Context, sourceName string) (*SourceStats, error) {
	stats := &SourceStats{Source: sourceName}
	var err error
	if stats.Total, err = s.CountBySource(ctx, sourceName); err != nil {
		return nil, err
	}
	for status, target := range map[model.EnrichmentStatus]*int64{
		model.StatusMinimal:   &stats.Minimal,
		model.StatusPending:   &stats.Pending,
		model.StatusEnriching: &stats.Enriching,
		model.StatusEnriched:  &stats.Enriched,
		model.StatusFailed:    &stats.Failed,
		model.StatusSkipped:   &stats.Skipped,
	} {
		if *target, err = s.CountByStatus(ctx, sourceName, status); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
