package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"datasearch/dao/model"

	log "github.com/sirupsen/logrus"
)

const (
	snapshotFilename   = "Datasets.csv"
	snapshotBatchPause = 10 * time.Millisecond
)

// snapshotDateLayouts are the timestamp shapes seen in catalog snapshots.
var snapshotDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	time.RFC3339,
}

// SnapshotConfig configures the bulk catalog snapshot fetcher.
type SnapshotConfig struct {
	CacheDir    string
	DownloadURL string
	BatchSize   int
	HTTPClient  *http.Client
}

// SnapshotParser loads the full catalog snapshot CSV and produces normalized
// batches sorted by descending activity date.
type SnapshotParser struct {
	cfg SnapshotConfig
}

func NewSnapshotParser(cfg SnapshotConfig) *SnapshotParser {
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./data/meta_kaggle"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &SnapshotParser{cfg: cfg}
}

func (p *SnapshotParser) csvPath() string {
	return filepath.Join(p.cfg.CacheDir, snapshotFilename)
}

// DownloadIfNeeded fetches the snapshot unless it is already cached, or
// unconditionally when forced.
func (p *SnapshotParser) DownloadIfNeeded(ctx context.Context, force bool) (string, error) {
	path := p.csvPath()
	if _, err := os.Stat(path); err == nil && !force {
		log.Infof("snapshot cached at %s", path)
		return path, nil
	}
	if p.cfg.DownloadURL == "" {
		return "", fmt.Errorf("snapshot missing at %s and no download URL configured", path)
	}
	if err := os.MkdirAll(p.cfg.CacheDir, 0o755); err != nil {
		return "", err
	}

	log.Infof("downloading snapshot to %s", p.cfg.CacheDir)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DownloadURL, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := statusToError(resp.StatusCode, p.cfg.DownloadURL); err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	log.Info("snapshot download completed")
	return path, nil
}

// TotalCount returns the number of data rows in the cached snapshot, zero
// when no snapshot is cached.
func (p *SnapshotParser) TotalCount() (int, error) {
	f, err := os.Open(p.csvPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	count := -1 // discount the header
	for {
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Row-level damage does not abort the count, but an I/O error
			// from the underlying reader is permanent.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return 0, err
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// SnapshotStats describes the cached snapshot for observability.
type SnapshotStats struct {
	TotalDatasets int        `json:"total_datasets"`
	Cached        bool       `json:"cached"`
	Path          string     `json:"path"`
	SizeBytes     int64      `json:"size_bytes"`
	ModifiedAt    *time.Time `json:"modified_at,omitempty"`
}

func (p *SnapshotParser) Stats() (*SnapshotStats, error) {
	total, err := p.TotalCount()
	if err != nil {
		return nil, err
	}
	stats := &SnapshotStats{TotalDatasets: total, Path: p.csvPath()}
	if fi, err := os.Stat(p.csvPath()); err == nil {
		stats.Cached = true
		stats.SizeBytes = fi.Size()
		mt := fi.ModTime()
		stats.ModifiedAt = &mt
	}
	return stats, nil
}

// Batches loads the snapshot and yields fixed-size batches of normalized
// records, sorted by descending activity date and optionally filtered to
// activity >= minLastActivity. Rows without an activity date are never
// filtered out. Loading happens lazily on the first Next call.
func (p *SnapshotParser) Batches(minLastActivity *time.Time) BatchIterator {
	return &snapshotIterator{parser: p, minLastActivity: minLastActivity}
}

type snapshotIterator struct {
	parser          *SnapshotParser
	minLastActivity *time.Time

	loaded bool
	inner  *sliceBatches
	err    error
}

func (it *snapshotIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.loaded {
		records, err := it.parser.load(it.minLastActivity)
		if err != nil {
			it.err = err
			return false
		}
		it.inner = &sliceBatches{
			records:   records,
			batchSize: it.parser.cfg.BatchSize,
			delay: func(ctx context.Context) error {
				return sleepContext(ctx, snapshotBatchPause)
			},
		}
		it.loaded = true
	}
	return it.inner.Next(ctx)
}

func (it *snapshotIterator) Batch() []model.DatasetDTO {
	if it.inner == nil {
		return nil
	}
	return it.inner.Batch()
}

func (it *snapshotIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.inner == nil {
		return nil
	}
	return it.inner.Err()
}

func (it *snapshotIterator) Close() error {
	if it.inner != nil {
		return it.inner.Close()
	}
	return nil
}

// load reads the whole snapshot, skipping and logging unparsable rows, then
// filters and sorts.
func (p *SnapshotParser) load(minLastActivity *time.Time) ([]model.DatasetDTO, error) {
	path := p.csvPath()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	log.Infof("loading snapshot from %s", path)

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["Id"]; !ok {
		return nil, fmt.Errorf("snapshot header has no Id column")
	}

	var records []model.DatasetDTO
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Errorf("skipping damaged snapshot row: %v", err)
			continue
		}
		dto, err := parseSnapshotRow(row, col)
		if err != nil {
			log.Errorf("failed to parse dataset %s: %v", field(row, col, "Id"), err)
			continue
		}
		if minLastActivity != nil && dto.SourceUpdatedAt != nil &&
			dto.SourceUpdatedAt.Before(*minLastActivity) {
			continue
		}
		records = append(records, *dto)
	}
	log.Infof("loaded %d datasets from snapshot", len(records))

	// Descending activity date, rows without one last.
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].SourceUpdatedAt, records[j].SourceUpdatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return records, nil
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseSnapshotRow converts one CSV row into a minimal DTO. Seeded records
// carry only identity, counters and dates; hydration fills in the rest.
func parseSnapshotRow(row []string, col map[string]int) (*model.DatasetDTO, error) {
	rawID := field(row, col, "Id")
	if rawID == "" {
		return nil, errMissingID
	}
	if _, err := strconv.ParseInt(rawID, 10, 64); err != nil {
		return nil, fmt.Errorf("bad id %q: %w", rawID, err)
	}

	dto := &model.DatasetDTO{
		SourceName: model.SourceKaggle,
		ExternalID: rawID,
		Title:      "kaggle dataset " + rawID,
		URL:        "https://www.kaggle.com/datasets/" + rawID,
	}

	created, err := parseSnapshotDate(field(row, col, "CreationDate"))
	if err != nil {
		return nil, fmt.Errorf("bad creation date: %w", err)
	}
	dto.SourceCreatedAt = created

	activity, err := parseSnapshotDate(field(row, col, "LastActivityDate"))
	if err != nil {
		return nil, fmt.Errorf("bad activity date: %w", err)
	}
	dto.SourceUpdatedAt = activity

	dto.ViewCount = parseCount(field(row, col, "TotalViews"))
	dto.DownloadCount = parseCount(field(row, col, "TotalDownloads"))
	dto.LikeCount = parseCount(field(row, col, "TotalVotes"))
	return dto, nil
}

// parseSnapshotDate returns nil for an empty cell: a missing date is valid
// and means the row is unfilterable.
func parseSnapshotDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range snapshotDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
