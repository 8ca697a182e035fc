package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"datasearch/dao/model"

	log "github.com/sirupsen/logrus"
)

// kagglePageSize is the fixed page size of the dataset list endpoint.
const kagglePageSize = 20

// metaSnapshotRef is the catalog's own reference for its bulk snapshot.
const metaSnapshotRef = "kaggle/meta-kaggle"

// KaggleConfig configures the Kaggle catalog API client. Username and Key
// are held as a basic-auth credential only.
type KaggleConfig struct {
	BaseURL    string
	Username   string
	Key        string
	Throttle   time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// KaggleClient fetches dataset summaries page by page and hydrates single
// datasets with full detail metadata.
type KaggleClient struct {
	cfg KaggleConfig
}

func NewKaggleClient(cfg KaggleConfig) *KaggleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.kaggle.com/api/v1"
	}
	if cfg.Throttle == 0 {
		cfg.Throttle = time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &KaggleClient{cfg: cfg}
}

// kaggleTime tolerates the timestamp shapes the catalog API emits.
type kaggleTime struct {
	time.Time
}

var kaggleTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *kaggleTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range kaggleTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

type kaggleDataset struct {
	Ref           string      `json:"ref"`
	Title         string      `json:"title"`
	Subtitle      string      `json:"subtitle"`
	CreatorName   string      `json:"creatorName"`
	TotalBytes    int64       `json:"totalBytes"`
	URL           string      `json:"url"`
	CreatedDate   *kaggleTime `json:"createdDate"`
	LastUpdated   *kaggleTime `json:"lastUpdated"`
	DownloadCount int64       `json:"downloadCount"`
	VoteCount     int64       `json:"voteCount"`
	ViewCount     int64       `json:"viewCount"`
	LicenseName   string      `json:"licenseName"`
	Description   string      `json:"description"`
}

type kaggleFile struct {
	Name       string      `json:"name"`
	TotalBytes int64       `json:"totalBytes"`
	Columns    []struct {
		Name string `json:"name"`
	} `json:"columns"`
}

type kaggleFileList struct {
	Files []kaggleFile `json:"datasetFiles"`
}

// FetchLatest walks the list endpoint in the given sort order (default
// most-recently-updated) and hydrates every reference, yielding one enriched
// batch per page. A non-zero limit caps the total.
func (c *KaggleClient) FetchLatest(sortBy string, limit int) BatchIterator {
	if sortBy == "" {
		sortBy = "updated"
	}
	return &kaggleIterator{client: c, sortBy: sortBy, limit: limit, page: 1}
}

type kaggleIterator struct {
	client *KaggleClient
	sortBy string
	limit  int

	page    int
	fetched int
	done    bool
	batch   []model.DatasetDTO
	err     error
}

func (it *kaggleIterator) Next(ctx context.Context) bool {
	for !it.done && it.err == nil {
		if it.limit > 0 && it.fetched >= it.limit {
			it.done = true
			return false
		}

		summaries, err := it.client.listPage(ctx, it.page, it.sortBy)
		if errors.Is(err, ErrEndOfData) {
			it.done = true
			return false
		}
		if err != nil {
			it.err = err
			return false
		}
		if len(summaries) == 0 {
			it.done = true
			return false
		}
		// A short page is the last one; its records are still hydrated.
		if len(summaries) < kagglePageSize {
			it.done = true
		}
		it.page++

		batch := it.hydratePage(ctx, summaries)
		if len(batch) > 0 {
			it.fetched += len(batch)
			it.batch = batch
			return true
		}
	}
	return false
}

// hydratePage fetches full detail for each summary, dropping references
// whose detail fetch fails.
func (it *kaggleIterator) hydratePage(ctx context.Context, summaries []kaggleDataset) []model.DatasetDTO {
	max := len(summaries)
	if it.limit > 0 && it.limit-it.fetched < max {
		max = it.limit - it.fetched
	}
	batch := make([]model.DatasetDTO, 0, max)
	for _, summary := range summaries {
		if len(batch) >= max {
			break
		}
		dto, err := it.client.FetchDetail(ctx, summary.Ref)
		if err != nil {
			log.Errorf("failed to fetch %s: %v", summary.Ref, err)
		} else {
			batch = append(batch, *dto)
		}
		if err := sleepContext(ctx, it.client.cfg.Throttle); err != nil {
			it.err = err
			break
		}
	}
	return batch
}

func (it *kaggleIterator) Batch() []model.DatasetDTO { return it.batch }
func (it *kaggleIterator) Err() error                { return it.err }

func (it *kaggleIterator) Close() error {
	it.done = true
	it.batch = nil
	return nil
}

// FetchDetail hydrates one dataset reference: primary detail plus the file/
// column listing, merged into a single DTO. A file-listing failure degrades
// to an empty file list; a primary-detail failure returns no result.
func (c *KaggleClient) FetchDetail(ctx context.Context, ref string) (*model.DatasetDTO, error) {
	var detail kaggleDataset
	err := c.cfg.Retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/datasets/view/"+ref, nil, &detail)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", ref, err)
	}
	if detail.Ref == "" {
		detail.Ref = ref
	}

	var files kaggleFileList
	err = c.cfg.Retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/datasets/list/files/"+ref, nil, &files)
	})
	if err != nil {
		log.Debugf("could not fetch files for %s: %v", ref, err)
		files.Files = nil
	}

	return normalizeKaggleDetail(&detail, files.Files)
}

// normalizeKaggleDetail merges the detail record and file listing into the
// canonical DTO.
func normalizeKaggleDetail(d *kaggleDataset, files []kaggleFile) (*model.DatasetDTO, error) {
	if d.Ref == "" {
		return nil, errMissingID
	}

	title := d.Title
	if title == "" {
		title = path.Base(d.Ref)
	}
	url := d.URL
	if url == "" {
		url = "https://www.kaggle.com/datasets/" + d.Ref
	} else if strings.HasPrefix(url, "/") {
		url = "https://www.kaggle.com" + url
	}
	description := d.Description
	if description == "" {
		description = d.Subtitle
	}

	dto := &model.DatasetDTO{
		SourceName:     model.SourceKaggle,
		ExternalID:     d.Ref,
		Title:          title,
		URL:            url,
		Description:    description,
		License:        d.LicenseName,
		TotalSizeBytes: d.TotalBytes,
		DownloadCount:  d.DownloadCount,
		ViewCount:      d.ViewCount,
		LikeCount:      d.VoteCount,
	}
	if d.CreatedDate != nil {
		dto.SourceCreatedAt = &d.CreatedDate.Time
	}
	if d.LastUpdated != nil {
		dto.SourceUpdatedAt = &d.LastUpdated.Time
	}

	formats := map[string]bool{}
	var columns []string
	var totalBytes int64
	for _, f := range files {
		if ext := strings.TrimPrefix(path.Ext(f.Name), "."); ext != "" {
			formats[strings.ToLower(ext)] = true
		}
		for _, col := range f.Columns {
			columns = append(columns, col.Name)
		}
		totalBytes += f.TotalBytes
	}
	for format := range formats {
		dto.FileFormats = append(dto.FileFormats, format)
	}
	dto.ColumnNames = columns
	if dto.TotalSizeBytes == 0 {
		dto.TotalSizeBytes = totalBytes
	}

	meta := map[string]any{"file_count": len(files)}
	if d.CreatorName != "" {
		meta["creator_name"] = d.CreatorName
	}
	if d.Subtitle != "" {
		meta["subtitle"] = d.Subtitle
	}
	dto.SourceMeta = meta
	return dto, nil
}

// CheckSnapshotUpdates reports whether the provider's bulk snapshot is newer
// than the local download time.
func (c *KaggleClient) CheckSnapshotUpdates(ctx context.Context, lastDownload time.Time) (bool, error) {
	var view kaggleDataset
	err := c.cfg.Retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/datasets/view/"+metaSnapshotRef, nil, &view)
	})
	if err != nil {
		return false, err
	}
	if view.LastUpdated == nil {
		log.Warn("no lastUpdated field on snapshot dataset")
		return false, nil
	}
	updated := view.LastUpdated.After(lastDownload)
	if updated {
		log.Infof("snapshot updates available: %s > %s", view.LastUpdated.Time, lastDownload)
	} else {
		log.Infof("snapshot up to date: %s <= %s", view.LastUpdated.Time, lastDownload)
	}
	return updated, nil
}

// listPage fetches one page of dataset summaries through the retry policy.
func (c *KaggleClient) listPage(ctx context.Context, page int, sortBy string) ([]kaggleDataset, error) {
	log.Infof("fetching kaggle page %d", page)
	var out []kaggleDataset
	err := c.cfg.Retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/datasets/list", map[string]string{
			"sortBy": sortBy,
			"page":   strconv.Itoa(page),
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *KaggleClient) getJSON(ctx context.Context, apiPath string, params map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+apiPath, http.NoBody)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Key)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusToError(resp.StatusCode, req.URL.String()); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
