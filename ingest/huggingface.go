package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"datasearch/dao/model"
	"datasearch/logutils"

	log "github.com/sirupsen/logrus"
)

// HFClientConfig configures the HuggingFace listing fetcher.
type HFClientConfig struct {
	BaseURL    string
	Token      string
	PageSize   int
	PageDelay  time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// HFClient walks the HuggingFace datasets listing most-recently-modified
// first.
type HFClient struct {
	cfg HFClientConfig
}

func NewHFClient(cfg HFClientConfig) *HFClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://huggingface.co/api/datasets"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.PageDelay == 0 {
		cfg.PageDelay = 300 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Token == "" {
		logutils.Log.Warn("no HuggingFace token configured, rate limits will be strict")
	}
	return &HFClient{cfg: cfg}
}

// FetchLatest returns a batch iterator over normalized records, newest
// first. A non-zero limit caps the total yielded; a non-nil cutoff stops the
// walk at the first record older than it.
func (c *HFClient) FetchLatest(limit int, cutoff *time.Time) BatchIterator {
	return &hfIterator{client: c, limit: limit, cutoff: cutoff}
}

type hfIterator struct {
	client *HFClient
	limit  int
	cutoff *time.Time

	offset  int
	fetched int
	done    bool
	batch   []model.DatasetDTO
	err     error
}

func (it *hfIterator) Next(ctx context.Context) bool {
	for !it.done && it.err == nil {
		if it.limit > 0 && it.fetched >= it.limit {
			it.done = true
			return false
		}
		if it.offset > 0 {
			if err := sleepContext(ctx, it.client.cfg.PageDelay); err != nil {
				it.err = err
				return false
			}
		}

		raw, err := it.client.fetchPage(ctx, it.offset)
		if errors.Is(err, ErrEndOfData) {
			log.Info("received 404, no more data available")
			it.done = true
			return false
		}
		if err != nil {
			it.err = err
			return false
		}
		// Short or empty page means the listing is exhausted.
		if len(raw) < it.client.cfg.PageSize {
			it.done = true
			return false
		}
		it.offset += it.client.cfg.PageSize

		batch, reachedCutoff := it.processPage(raw)
		if reachedCutoff {
			it.done = true
		}
		if len(batch) > 0 {
			it.fetched += len(batch)
			it.batch = batch
			return true
		}
		if !it.done {
			log.Warn("all items in page failed validation, moving to next page")
		}
	}
	return false
}

// processPage normalizes a page, dropping invalid records. On a configured
// cutoff, the first too-old record ends the walk: the listing is sorted
// descending, so everything after it is older still.
func (it *hfIterator) processPage(raw []json.RawMessage) ([]model.DatasetDTO, bool) {
	batch := make([]model.DatasetDTO, 0, len(raw))
	for _, item := range raw {
		dto, err := parseHFItem(item)
		if err != nil {
			log.Errorf("dropping record: %v", err)
			continue
		}
		if it.cutoff != nil && dto.SourceUpdatedAt.Before(*it.cutoff) {
			log.Infof("reached old dataset (%s), stopping", dto.SourceUpdatedAt)
			return batch, true
		}
		batch = append(batch, *dto)
	}
	return batch, false
}

func (it *hfIterator) Batch() []model.DatasetDTO { return it.batch }
func (it *hfIterator) Err() error                { return it.err }

func (it *hfIterator) Close() error {
	it.done = true
	it.batch = nil
	return nil
}

// FetchDetail loads one dataset record by its upstream id. The single
// dataset endpoint returns the same shape as a full listing item.
func (c *HFClient) FetchDetail(ctx context.Context, ref string) (*model.DatasetDTO, error) {
	var body []byte
	err := c.cfg.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+ref, http.NoBody)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "datasearch/1.0")
		req.Header.Set("Accept", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := statusToError(resp.StatusCode, req.URL.String()); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseHFItem(body)
}

// fetchPage requests one listing page through the retry policy.
func (c *HFClient) fetchPage(ctx context.Context, offset int) ([]json.RawMessage, error) {
	log.Infof("fetching HF page: offset=%d", offset)

	var page []json.RawMessage
	err := c.cfg.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, http.NoBody)
		if err != nil {
			return err
		}
		q := req.URL.Query()
		q.Set("sort", "lastModified")
		q.Set("direction", "-1")
		q.Set("full", "true")
		q.Set("limit", strconv.Itoa(c.cfg.PageSize))
		q.Set("offset", strconv.Itoa(offset))
		req.URL.RawQuery = q.Encode()
		req.Header.Set("User-Agent", "datasearch/1.0")
		req.Header.Set("Accept", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if rl := resp.Header.Get("RateLimit"); rl != "" {
			log.Debugf("RateLimit: %s", rl)
		}
		if err := statusToError(resp.StatusCode, req.URL.String()); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode listing page: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
