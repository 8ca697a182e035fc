package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dataset is the universal dataset record for all sources. A dataset is
// identified externally by the (source_name, external_id) pair; upserts on
// that key must never create a second row.
type Dataset struct {
	gorm.Model
	SourceName  string `gorm:"type:varchar(50);not null;index;uniqueIndex:idx_unique_external_dataset"`
	ExternalID  string `gorm:"type:varchar(255);not null;uniqueIndex:idx_unique_external_dataset"`
	Title       string `gorm:"type:text;not null"`
	URL         string `gorm:"type:varchar(512);not null"`
	Description string `gorm:"type:text"`

	Tags        datatypes.JSONSlice[string]
	License     string `gorm:"type:varchar(100)"`
	FileFormats datatypes.JSONSlice[string]
	ColumnNames datatypes.JSONSlice[string]

	TotalSizeBytes int64 `gorm:"type:bigint"`
	RowCount       int64 `gorm:"type:bigint"`
	DownloadCount  int64 `gorm:"type:bigint;not null;default:0"`
	ViewCount      int64 `gorm:"type:bigint;not null;default:0"`
	LikeCount      int64 `gorm:"type:bigint;not null;default:0"`

	SourceCreatedAt *time.Time
	SourceUpdatedAt *time.Time

	// Embedding holds the encoded vector as a JSON array, NULL until the
	// embed phase writes it.
	Embedding   datatypes.JSON
	StaticScore float64 `gorm:"type:float"`

	IsActive            bool             `gorm:"not null;default:true;index"`
	EnrichmentStatus    EnrichmentStatus `gorm:"type:varchar(20);not null;default:minimal;index"`
	EnrichmentAttempts  int              `gorm:"not null;default:0"`
	LastEnrichmentError string           `gorm:"type:text"`
	LastEnrichedAt      *time.Time
	LastCheckedAt       *time.Time

	SourceMeta datatypes.JSON

	EnrichmentLogs []EnrichmentLog `gorm:"constraint:OnDelete:CASCADE"`
}

// EmbeddingVector decodes the stored embedding. Returns nil when absent.
func (d *Dataset) EmbeddingVector() []float32 {
	if len(d.Embedding) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(d.Embedding, &v); err != nil {
		return nil
	}
	return v
}

// SetEmbeddingVector encodes the vector into the embedding column.
func (d *Dataset) SetEmbeddingVector(v []float32) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.Embedding = raw
	return nil
}

// ReadyForSearch reports whether the dataset can appear in search results.
func (d *Dataset) ReadyForSearch() bool {
	return d.IsActive && d.EnrichmentStatus == StatusEnriched && len(d.Embedding) > 0
}
