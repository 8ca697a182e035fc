package model

import (
	"gorm.io/gorm"
)

// EnrichmentLog records one enrichment attempt. Rows are append-only and
// never updated, so attempt history survives independently of the mutable
// counter on Dataset.
type EnrichmentLog struct {
	gorm.Model
	DatasetID uint `gorm:"not null;index;index:idx_enrichment_logs_dataset_stage"`

	Stage  EnrichmentStage  `gorm:"type:varchar(50);not null;index:idx_enrichment_logs_dataset_stage"`
	Result EnrichmentResult `gorm:"type:varchar(50);not null;index"`

	AttemptNumber int    `gorm:"not null"`
	DurationMS    int64  `gorm:"type:bigint"`
	ErrorType     string `gorm:"type:varchar(100)"`
	ErrorMessage  string `gorm:"type:text"`
	WorkerID      string `gorm:"type:varchar(100)"`
	TaskID        string `gorm:"type:varchar(100)"`
}
