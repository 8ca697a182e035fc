package store

import (
	"context"
	"testing"
	"time"

	"datasearch/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAndCountAttempts(t *testing.T) {
	db := setupTestDB(t)
	logs := NewEnrichmentLogStore(db)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		err := logs.Log(ctx, LogEntry{
			DatasetID:     7,
			Stage:         model.StageAPIMetadata,
			Result:        model.ResultFailed,
			AttemptNumber: i,
			Duration:      150 * time.Millisecond,
			ErrorType:     "StatusError",
			ErrorMessage:  "503 from upstream",
			WorkerID:      "worker-1",
			TaskID:        "task-1",
		})
		require.NoError(t, err)
	}
	err := logs.Log(ctx, LogEntry{
		DatasetID: 7,
		Stage:     model.StageEmbedding,
		Result:    model.ResultSuccess,
	})
	require.NoError(t, err)

	n, err := logs.CountAttempts(ctx, 7, model.StageAPIMetadata)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = logs.CountAttempts(ctx, 7, model.StageEmbedding)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecentFailures(t *testing.T) {
	db := setupTestDB(t)
	logs := NewEnrichmentLogStore(db)
	ctx := context.Background()

	require.NoError(t, logs.Log(ctx, LogEntry{
		DatasetID: 1, Stage: model.StageAPIMetadata, Result: model.ResultFailed,
		ErrorMessage: "timeout",
	}))
	require.NoError(t, logs.Log(ctx, LogEntry{
		DatasetID: 2, Stage: model.StageAPIMetadata, Result: model.ResultSuccess,
	}))

	failures, err := logs.RecentFailures(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, uint(1), failures[0].DatasetID)
	assert.Equal(t, "timeout", failures[0].ErrorMessage)
}

func TestStatsByStageAndResult(t *testing.T) {
	db := setupTestDB(t)
	logs := NewEnrichmentLogStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, logs.Log(ctx, LogEntry{
			DatasetID: uint(i + 1),
			Stage:     model.StageAPIMetadata,
			Result:    model.ResultSuccess,
			Duration:  time.Duration(i+1) * 100 * time.Millisecond,
		}))
	}
	require.NoError(t, logs.Log(ctx, LogEntry{
		DatasetID: 9,
		Stage:     model.StageAPIMetadata,
		Result:    model.ResultFailed,
	}))

	stats, err := logs.StatsByStageAndResult(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byResult := map[model.EnrichmentResult]StageStats{}
	for _, row := range stats {
		byResult[row.Result] = row
	}
	assert.Equal(t, int64(3), byResult[model.ResultSuccess].Count)
	assert.Equal(t, float64(200), byResult[model.ResultSuccess].AvgDurationMS)
	assert.Equal(t, int64(1), byResult[model.ResultFailed].Count)
}
