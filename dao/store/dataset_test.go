package store

import (
	"context"
	"testing"
	"time"

	"datasearch/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// In-memory sqlite databases are per connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Dataset{}, &model.EnrichmentLog{}))
	return db
}

func testDataset(source, externalID string) model.Dataset {
	dto := model.DatasetDTO{
		SourceName:  source,
		ExternalID:  externalID,
		Title:       "Dataset " + externalID,
		URL:         "https://example.com/" + externalID,
		Description: "a test dataset",
		Tags:        []string{"nlp"},
	}
	return dto.ToDataset(model.StatusMinimal)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceHuggingFace, "user/corpus")
	first, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	again := testDataset(model.SourceHuggingFace, "user/corpus")
	again.Title = "Updated title"
	second, err := s.Upsert(ctx, &again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Updated title", second.Title)

	n, err := s.CountBySource(ctx, model.SourceHuggingFace)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBulkUpsertNeverTouchesEnrichmentState(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceKaggle, "owner/cars")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)

	require.NoError(t, s.MarkEnriching(ctx, stored.ID))
	require.NoError(t, s.MarkEnriched(ctx, stored.ID, []float32{0.5, 0.5}))

	// A later snapshot run re-submits the same record as minimal.
	_, err = s.BulkUpsert(ctx, []model.Dataset{testDataset(model.SourceKaggle, "owner/cars")})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, got.EnrichmentStatus)
	assert.Equal(t, 1, got.EnrichmentAttempts)
	assert.Equal(t, []float32{0.5, 0.5}, got.EmbeddingVector())
}

func TestBulkUpsertNeverReactivatesFailed(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceKaggle, "owner/broken")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, stored.ID, "detail fetch failed"))

	// The next seed run re-submits the same record with is_active set.
	_, err = s.BulkUpsert(ctx, []model.Dataset{testDataset(model.SourceKaggle, "owner/broken")})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.EnrichmentStatus)
	assert.False(t, got.IsActive)
}

func TestBulkUpsertRefreshesDescriptiveFields(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	_, err := s.BulkUpsert(ctx, []model.Dataset{testDataset(model.SourceKaggle, "owner/cars")})
	require.NoError(t, err)

	updated := testDataset(model.SourceKaggle, "owner/cars")
	updated.DownloadCount = 42
	updated.Description = "refreshed"
	_, err = s.BulkUpsert(ctx, []model.Dataset{updated})
	require.NoError(t, err)

	got, err := s.GetByExternalID(ctx, model.SourceKaggle, "owner/cars")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.DownloadCount)
	assert.Equal(t, "refreshed", got.Description)

	n, err := s.CountBySource(ctx, model.SourceKaggle)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkEnrichingIncrementsAttempts(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceHuggingFace, "a/b")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.MarkEnriching(ctx, stored.ID))
		got, err := s.GetByID(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.EnrichmentAttempts)
		assert.Equal(t, model.StatusEnriching, got.EnrichmentStatus)
	}
}

func TestAttemptCeilingExcludesFromPending(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceKaggle, "owner/limits")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)

	maxAttempts := 3
	for i := 0; i < maxAttempts; i++ {
		require.NoError(t, s.MarkEnriching(ctx, stored.ID))
		require.NoError(t, s.RequeuePending(ctx, stored.ID))
	}

	pending, err := s.GetPendingForEnrichment(ctx, model.SourceKaggle, 10, maxAttempts)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A higher ceiling makes it visible again.
	pending, err = s.GetPendingForEnrichment(ctx, model.SourceKaggle, 10, maxAttempts+1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMarkFailedDeactivates(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceKaggle, "owner/gone")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)

	require.NoError(t, s.MarkEnriching(ctx, stored.ID))
	require.NoError(t, s.MarkFailed(ctx, stored.ID, "not found upstream"))

	got, err := s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, model.StatusFailed, got.EnrichmentStatus)
	assert.Equal(t, "not found upstream", got.LastEnrichmentError)

	pending, err := s.GetPendingForEnrichment(ctx, model.SourceKaggle, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, pending)

	embeddable, err := s.GetForEmbeddingGeneration(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, embeddable)
}

func TestRequeuePendingOnlyMovesEnriching(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	ds := testDataset(model.SourceHuggingFace, "x/y")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)

	// Not enriching yet, so the requeue is a no-op.
	require.NoError(t, s.RequeuePending(ctx, stored.ID))
	got, err := s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMinimal, got.EnrichmentStatus)

	require.NoError(t, s.MarkEnriching(ctx, stored.ID))
	require.NoError(t, s.RequeuePending(ctx, stored.ID))
	got, err = s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.EnrichmentStatus)
	assert.Equal(t, 1, got.EnrichmentAttempts)
}

func TestGetForEmbeddingGeneration(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	withVector := testDataset(model.SourceHuggingFace, "a/withvec")
	storedVec, err := s.Upsert(ctx, &withVector)
	require.NoError(t, err)
	require.NoError(t, s.MarkEnriched(ctx, storedVec.ID, []float32{1, 0}))

	withoutVector := testDataset(model.SourceHuggingFace, "a/novec")
	storedNoVec, err := s.Upsert(ctx, &withoutVector)
	require.NoError(t, err)
	require.NoError(t, s.MarkEnriched(ctx, storedNoVec.ID, nil))

	rows, err := s.GetForEmbeddingGeneration(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, storedNoVec.ID, rows[0].ID)
}

func TestResetStaleEnriching(t *testing.T) {
	db := setupTestDB(t)
	s := NewDatasetStore(db)
	ctx := context.Background()

	ds := testDataset(model.SourceKaggle, "owner/stuck")
	stored, err := s.Upsert(ctx, &ds)
	require.NoError(t, err)
	require.NoError(t, s.MarkEnriching(ctx, stored.ID))

	// Fresh enriching rows are left alone.
	n, err := s.ResetStaleEnriching(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Backdate the row past the staleness window.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&model.Dataset{}).
		Where("id = ?", stored.ID).
		Update("updated_at", old).Error)

	n, err = s.ResetStaleEnriching(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.EnrichmentStatus)
}

func TestSearchByTitleOnlyReturnsEnriched(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	minimal := testDataset(model.SourceHuggingFace, "a/min")
	minimal.Title = "Titanic passengers"
	_, err := s.Upsert(ctx, &minimal)
	require.NoError(t, err)

	enriched := testDataset(model.SourceHuggingFace, "a/rich")
	enriched.Title = "Titanic survival"
	storedRich, err := s.Upsert(ctx, &enriched)
	require.NoError(t, err)
	require.NoError(t, s.MarkEnriched(ctx, storedRich.ID, nil))

	rows, err := s.SearchByTitle(ctx, "Titanic", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Titanic survival", rows[0].Title)
}

func TestStatsBySource(t *testing.T) {
	s := NewDatasetStore(setupTestDB(t))
	ctx := context.Background()

	a := testDataset(model.SourceKaggle, "o/a")
	_, err := s.Upsert(ctx, &a)
	require.NoError(t, err)

	b := testDataset(model.SourceKaggle, "o/b")
	storedB, err := s.Upsert(ctx, &b)
	require.NoError(t, err)
	require.NoError(t, s.MarkEnriching(ctx, storedB.ID))
	require.NoError(t, s.MarkEnriched(ctx, storedB.ID, nil))

	stats, err := s.StatsBySource(ctx, model.SourceKaggle)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Minimal)
	assert.Equal(t, int64(1), stats.Enriched)
	assert.Zero(t, stats.Failed)
}
