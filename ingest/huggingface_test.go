package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"datasearch/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHFClient(t *testing.T, handler http.HandlerFunc) (*HFClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewHFClient(HFClientConfig{
		BaseURL:   srv.URL,
		Token:     "test-token",
		PageSize:  2,
		PageDelay: time.Millisecond,
	})
	return client, srv
}

func hfItem(id string, modified time.Time) map[string]any {
	return map[string]any{
		"id":           id,
		"lastModified": modified.Format(time.RFC3339),
		"downloads":    10,
	}
}

func collectBatches(t *testing.T, it BatchIterator) []model.DatasetDTO {
	var out []model.DatasetDTO
	ctx := context.Background()
	for it.Next(ctx) {
		out = append(out, it.Batch()...)
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

func TestFetchLatestStopsAtCutoffWithinPage(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)
	var requests int32

	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "lastModified", r.URL.Query().Get("sort"))
		assert.Equal(t, "-1", r.URL.Query().Get("direction"))
		assert.Equal(t, "true", r.URL.Query().Get("full"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var page []map[string]any
		switch r.URL.Query().Get("offset") {
		case "0":
			page = []map[string]any{
				hfItem("a/one", now.Add(-time.Hour)),
				hfItem("a/two", now.Add(-2*time.Hour)),
			}
		case "2":
			page = []map[string]any{
				hfItem("a/three", now.Add(-3*time.Hour)),
				hfItem("a/stale", cutoff.Add(-time.Hour)),
			}
		default:
			t.Errorf("unexpected offset %s", r.URL.Query().Get("offset"))
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	got := collectBatches(t, client.FetchLatest(0, &cutoff))

	require.Len(t, got, 3)
	assert.Equal(t, "a/one", got[0].ExternalID)
	assert.Equal(t, "a/two", got[1].ExternalID)
	assert.Equal(t, "a/three", got[2].ExternalID)
	// The cutoff ends the walk; no third page is requested.
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestFetchLatestShortPageEndsWalk(t *testing.T) {
	now := time.Now().UTC()
	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := []map[string]any{hfItem("a/only", now)}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	got := collectBatches(t, client.FetchLatest(0, nil))
	assert.Empty(t, got)
}

func TestFetchLatest404IsCleanEnd(t *testing.T) {
	now := time.Now().UTC()
	var requests int32
	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) > 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		page := []map[string]any{
			hfItem("a/one", now),
			hfItem("a/two", now),
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	got := collectBatches(t, client.FetchLatest(0, nil))
	require.Len(t, got, 2)
}

func TestFetchLatestDropsInvalidAndContinues(t *testing.T) {
	now := time.Now().UTC()
	var requests int32
	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		var page []any
		if atomic.AddInt32(&requests, 1) == 1 {
			// Whole page fails validation; the walk must move on.
			page = []any{map[string]any{"author": "x"}, map[string]any{"author": "y"}}
		} else {
			page = []any{hfItem("a/good", now)}
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	got := collectBatches(t, client.FetchLatest(0, nil))
	// The second page is short, so nothing is yielded from it either; the
	// point is the first page's failures do not abort the walk.
	assert.Empty(t, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestFetchLatestHonorsLimit(t *testing.T) {
	now := time.Now().UTC()
	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		page := []map[string]any{
			hfItem(fmt.Sprintf("a/%s-1", offset), now),
			hfItem(fmt.Sprintf("a/%s-2", offset), now),
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	})

	got := collectBatches(t, client.FetchLatest(2, nil))
	assert.Len(t, got, 2)
}

func TestFetchDetail(t *testing.T) {
	now := time.Now().UTC()
	client, _ := newTestHFClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/corpus", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(hfItem("user/corpus", now)))
	})

	dto, err := client.FetchDetail(context.Background(), "user/corpus")
	require.NoError(t, err)
	assert.Equal(t, "user/corpus", dto.ExternalID)
	assert.Equal(t, "corpus", dto.Title)
}
