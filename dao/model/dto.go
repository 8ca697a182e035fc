package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// DatasetDTO is the canonical, validated shape of one provider record after
// normalization. Fetchers never hand untyped provider payloads past this
// boundary.
type DatasetDTO struct {
	SourceName  string
	ExternalID  string
	Title       string
	URL         string
	Description string

	Tags        []string
	License     string
	FileFormats []string
	ColumnNames []string

	TotalSizeBytes int64
	RowCount       int64
	DownloadCount  int64
	ViewCount      int64
	LikeCount      int64

	SourceCreatedAt *time.Time
	SourceUpdatedAt *time.Time

	SourceMeta map[string]any
}

// ToDataset converts the DTO into a storage row with the given initial
// status. Enrichment bookkeeping fields are left at their zero values; the
// store owns those.
func (dto *DatasetDTO) ToDataset(status EnrichmentStatus) Dataset {
	d := Dataset{
		SourceName:       dto.SourceName,
		ExternalID:       dto.ExternalID,
		Title:            dto.Title,
		URL:              dto.URL,
		Description:      dto.Description,
		Tags:             datatypes.NewJSONSlice(dto.Tags),
		License:          dto.License,
		FileFormats:      datatypes.NewJSONSlice(dto.FileFormats),
		ColumnNames:      datatypes.NewJSONSlice(dto.ColumnNames),
		TotalSizeBytes:   dto.TotalSizeBytes,
		RowCount:         dto.RowCount,
		DownloadCount:    dto.DownloadCount,
		ViewCount:        dto.ViewCount,
		LikeCount:        dto.LikeCount,
		SourceCreatedAt:  dto.SourceCreatedAt,
		SourceUpdatedAt:  dto.SourceUpdatedAt,
		IsActive:         true,
		EnrichmentStatus: status,
	}
	if dto.SourceMeta != nil {
		if raw, err := json.Marshal(dto.SourceMeta); err == nil {
			d.SourceMeta = raw
		}
	}
	return d
}
