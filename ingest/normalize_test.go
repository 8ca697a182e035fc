package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"datasearch/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFullRecord(t *testing.T) {
	raw := `{
		"id": "stanford/squad",
		"author": "stanford",
		"description": "reading comprehension",
		"tags": ["question-answering", "license:cc-by-4.0"],
		"cardData": {"pretty_name": "SQuAD", "license": "cc-by-4.0"},
		"lastModified": "2026-05-01T12:00:00Z",
		"createdAt": "2020-01-01T00:00:00Z",
		"downloads": 12345,
		"likes": 67
	}`
	dto, err := parseHFItem(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, model.SourceHuggingFace, dto.SourceName)
	assert.Equal(t, "stanford/squad", dto.ExternalID)
	assert.Equal(t, "SQuAD", dto.Title)
	assert.Equal(t, "https://huggingface.co/datasets/stanford/squad", dto.URL)
	assert.Equal(t, "cc-by-4.0", dto.License)
	assert.Equal(t, int64(12345), dto.DownloadCount)
	assert.Equal(t, int64(67), dto.LikeCount)
	require.NotNil(t, dto.SourceUpdatedAt)
	assert.Equal(t, 2026, dto.SourceUpdatedAt.Year())
	assert.Equal(t, "stanford", dto.SourceMeta["author"])
}

func TestNormalizeTitleFallsBackToIDSegment(t *testing.T) {
	dto, err := parseHFItem(json.RawMessage(`{"id": "someuser/my-corpus"}`))
	require.NoError(t, err)
	assert.Equal(t, "my-corpus", dto.Title)

	dto, err = parseHFItem(json.RawMessage(`{"id": "imdb"}`))
	require.NoError(t, err)
	assert.Equal(t, "imdb", dto.Title)
}

func TestNormalizeLicenseFromTag(t *testing.T) {
	dto, err := parseHFItem(json.RawMessage(`{"id": "a/b", "tags": ["nlp", "license:mit"]}`))
	require.NoError(t, err)
	assert.Equal(t, "mit", dto.License)
}

func TestNormalizeLicenseListTakesFirst(t *testing.T) {
	raw := `{"id": "a/b", "cardData": {"license": ["apache-2.0", "mit"]}}`
	dto, err := parseHFItem(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "apache-2.0", dto.License)
}

func TestNormalizeUpdateTimeFallbacks(t *testing.T) {
	// createdAt stands in for a missing lastModified.
	raw := `{"id": "a/b", "createdAt": "2021-03-04T05:06:07Z"}`
	dto, err := parseHFItem(json.RawMessage(raw))
	require.NoError(t, err)
	require.NotNil(t, dto.SourceUpdatedAt)
	assert.Equal(t, 2021, dto.SourceUpdatedAt.Year())

	// Both missing falls back to now.
	before := time.Now().UTC().Add(-time.Minute)
	dto, err = parseHFItem(json.RawMessage(`{"id": "a/b"}`))
	require.NoError(t, err)
	require.NotNil(t, dto.SourceUpdatedAt)
	assert.True(t, dto.SourceUpdatedAt.After(before))
}

func TestNormalizeRejectsMissingID(t *testing.T) {
	_, err := parseHFItem(json.RawMessage(`{"author": "nobody"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingID)
}

func TestParseReportsRecordIDOnMalformedItem(t *testing.T) {
	_, err := parseHFItem(json.RawMessage(`{"id": "a/broken", "downloads": "many"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a/broken")
}
