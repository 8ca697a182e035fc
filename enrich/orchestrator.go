package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datasearch/dao/model"
	"datasearch/dao/store"
	"datasearch/embedding"
	"datasearch/ingest"
	"datasearch/logutils"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// BulkSource provides the full catalog snapshot for seeding.
type BulkSource interface {
	DownloadIfNeeded(ctx context.Context, force bool) (string, error)
	TotalCount() (int, error)
	Batches(minLastActivity *time.Time) ingest.BatchIterator
}

// IncrementalSource walks a provider listing newest-first.
type IncrementalSource interface {
	Latest(limit int, cutoff *time.Time) ingest.BatchIterator
}

// DetailFetcher hydrates one reference with full metadata.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, ref string) (*model.DatasetDTO, error)
}

// Report is the aggregate outcome of one job run. Jobs return it even when
// individual items failed.
type Report struct {
	Fetched  int `json:"fetched"`
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`
}

// Config wires the orchestrator's collaborators and knobs.
type Config struct {
	Datasets *store.DatasetStore
	Logs     *store.EnrichmentLogStore

	Bulk        BulkSource
	Incremental map[string]IncrementalSource
	Detail      map[string]DetailFetcher
	Encoder     embedding.Encoder

	MaxAttempts    int
	HydrateWorkers int
	EmbedBatchSize int
	Throttle       time.Duration
	StaleAfter     time.Duration
	WorkerID       string
}

// Orchestrator sequences the ingestion phases: seed, refresh, hydrate,
// embed. Each job is independently invokable and safe to re-run; upserts are
// keyed by the natural key, so re-runs never duplicate rows.
type Orchestrator struct {
	cfg Config
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HydrateWorkers <= 0 {
		cfg.HydrateWorkers = 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 100
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	return &Orchestrator{cfg: cfg}
}

// Seed ingests the bulk snapshot, upserting every record as minimal.
// Existing rows keep their enrichment state; only descriptive fields are
// refreshed.
func (o *Orchestrator) Seed(ctx context.Context, force bool, minLastActivity *time.Time) (Report, error) {
	var report Report
	if o.cfg.Bulk == nil {
		return report, fmt.Errorf("no bulk source configured")
	}
	log.Info("starting seed from catalog snapshot")

	if _, err := o.cfg.Bulk.DownloadIfNeeded(ctx, force); err != nil {
		return report, err
	}
	if total, err := o.cfg.Bulk.TotalCount(); err == nil {
		log.Infof("total datasets in snapshot: %d", total)
	}

	it := o.cfg.Bulk.Batches(minLastActivity)
	defer it.Close()
	for it.Next(ctx) {
		batch := it.Batch()
		report.Fetched += len(batch)
		if err := o.upsertBatch(ctx, batch, model.StatusMinimal); err != nil {
			return report, err
		}
	}
	if err := it.Err(); err != nil {
		return report, err
	}
	log.Infof("seed completed: %d datasets upserted", report.Fetched)
	return report, nil
}

// Refresh walks a provider's listing newest-first and upserts the results.
// Incremental records arrive fully described, so new rows start enriched
// (the embed phase still owes them a vector); rows that already exist keep
// their status.
func (o *Orchestrator) Refresh(ctx context.Context, source string, limit int, cutoff *time.Time) (Report, error) {
	var report Report
	src, ok := o.cfg.Incremental[source]
	if !ok {
		return report, fmt.Errorf("no incremental source for %q", source)
	}
	log.Infof("starting refresh for %s: limit=%d", source, limit)

	it := src.Latest(limit, cutoff)
	defer it.Close()
	for it.Next(ctx) {
		batch := it.Batch()
		report.Fetched += len(batch)
		if err := o.upsertBatch(ctx, batch, model.StatusEnriched); err != nil {
			return report, err
		}
	}
	if err := it.Err(); err != nil {
		return report, err
	}
	log.Infof("refresh completed for %s: %d datasets", source, report.Fetched)
	return report, nil
}

func (o *Orchestrator) upsertBatch(ctx context.Context, batch []model.DatasetDTO, status model.EnrichmentStatus) error {
	rows := make([]model.Dataset, 0, len(batch))
	for i := range batch {
		rows = append(rows, batch[i].ToDataset(status))
	}
	_, err := o.cfg.Datasets.BulkUpsert(ctx, rows)
	return err
}

// Hydrate pulls pending datasets for the source and enriches each with
// detail metadata through a bounded worker pool. Per-item failures are
// counted and never abort the remaining items.
func (o *Orchestrator) Hydrate(ctx context.Context, source string, limit int) (Report, error) {
	var report Report
	fetcher, ok := o.cfg.Detail[source]
	if !ok {
		return report, fmt.Errorf("no detail fetcher for %q", source)
	}

	pending, err := o.cfg.Datasets.GetPendingForEnrichment(ctx, source, limit, o.cfg.MaxAttempts)
	if err != nil {
		return report, err
	}
	report.Fetched = len(pending)
	if len(pending) == 0 {
		return report, nil
	}
	taskID := uuid.NewString()
	log.Infof("hydrating %d datasets from %s (task %s)", len(pending), source, taskID)

	pool, err := ants.NewPool(o.cfg.HydrateWorkers)
	if err != nil {
		return report, err
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		enriched int
		failed   int
	)
	for i := range pending {
		ds := pending[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			ok := o.hydrateOne(ctx, fetcher, &ds, taskID)
			mu.Lock()
			if ok {
				enriched++
			} else {
				failed++
			}
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			failed++
			mu.Unlock()
		}
	}
	wg.Wait()

	report.Enriched = enriched
	report.Failed = failed
	log.Infof("hydration completed: %d enriched, %d failed", enriched, failed)
	return report, nil
}

// hydrateOne runs a single attempt: markEnriching, detail fetch, upsert of
// the enriched record, log row. Failures past the attempt ceiling mark the
// dataset failed and deactivate it; earlier failures requeue it as pending.
func (o *Orchestrator) hydrateOne(ctx context.Context, fetcher DetailFetcher, ds *model.Dataset, taskID string) bool {
	if err := o.cfg.Datasets.MarkEnriching(ctx, ds.ID); err != nil {
		log.Errorf("mark enriching %d: %v", ds.ID, err)
		return false
	}
	attempt := ds.EnrichmentAttempts + 1
	start := time.Now()

	dto, err := fetcher.FetchDetail(ctx, ds.ExternalID)
	duration := time.Since(start)

	entry := store.LogEntry{
		DatasetID:     ds.ID,
		Stage:         model.StageAPIMetadata,
		AttemptNumber: attempt,
		Duration:      duration,
		WorkerID:      o.cfg.WorkerID,
		TaskID:        taskID,
	}

	if err != nil {
		entry.Result = model.ResultFailed
		entry.ErrorType = fmt.Sprintf("%T", err)
		entry.ErrorMessage = err.Error()
		if logErr := o.cfg.Logs.Log(ctx, entry); logErr != nil {
			log.Errorf("log enrichment attempt %d: %v", ds.ID, logErr)
		}
		if attempt >= o.cfg.MaxAttempts {
			if failErr := o.cfg.Datasets.MarkFailed(ctx, ds.ID, err.Error()); failErr != nil {
				log.Errorf("mark failed %d: %v", ds.ID, failErr)
			}
		} else if requeueErr := o.cfg.Datasets.RequeuePending(ctx, ds.ID); requeueErr != nil {
			log.Errorf("requeue %d: %v", ds.ID, requeueErr)
		}
		o.throttle(ctx)
		return false
	}

	row := dto.ToDataset(model.StatusEnriched)
	if _, err := o.cfg.Datasets.Upsert(ctx, &row); err != nil {
		log.Errorf("upsert enriched %d: %v", ds.ID, err)
		o.throttle(ctx)
		return false
	}
	if err := o.cfg.Datasets.MarkEnriched(ctx, ds.ID, nil); err != nil {
		log.Errorf("mark enriched %d: %v", ds.ID, err)
		o.throttle(ctx)
		return false
	}

	entry.Result = model.ResultSuccess
	if err := o.cfg.Logs.Log(ctx, entry); err != nil {
		log.Errorf("log enrichment attempt %d: %v", ds.ID, err)
	}
	o.throttle(ctx)
	return true
}

func (o *Orchestrator) throttle(ctx context.Context) {
	if o.cfg.Throttle <= 0 {
		return
	}
	timer := time.NewTimer(o.cfg.Throttle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Embed batch-encodes title+description for enriched datasets lacking an
// embedding and writes the vectors back.
func (o *Orchestrator) Embed(ctx context.Context, limit int) (Report, error) {
	var report Report
	if o.cfg.Encoder == nil {
		return report, fmt.Errorf("no encoder configured")
	}
	if limit <= 0 {
		limit = o.cfg.EmbedBatchSize
	}

	rows, err := o.cfg.Datasets.GetForEmbeddingGeneration(ctx, limit)
	if err != nil {
		return report, err
	}
	report.Fetched = len(rows)
	if len(rows) == 0 {
		return report, nil
	}
	taskID := uuid.NewString()
	log.Infof("generating embeddings for %d datasets (task %s)", len(rows), taskID)

	texts := make([]string, len(rows))
	for i := range rows {
		texts[i] = embedding.MetadataText(rows[i].Title, rows[i].Description)
	}
	vectors, err := o.cfg.Encoder.EncodeBatch(ctx, texts)
	if err != nil {
		return report, err
	}

	for i := range rows {
		entry := store.LogEntry{
			DatasetID:     rows[i].ID,
			Stage:         model.StageEmbedding,
			AttemptNumber: 1,
			WorkerID:      o.cfg.WorkerID,
			TaskID:        taskID,
		}
		start := time.Now()
		err := o.cfg.Datasets.MarkEnriched(ctx, rows[i].ID, vectors[i])
		entry.Duration = time.Since(start)
		if err != nil {
			report.Failed++
			entry.Result = model.ResultFailed
			entry.ErrorType = fmt.Sprintf("%T", err)
			entry.ErrorMessage = err.Error()
		} else {
			report.Enriched++
			entry.Result = model.ResultSuccess
		}
		if logErr := o.cfg.Logs.Log(ctx, entry); logErr != nil {
			log.Errorf("log embedding attempt %d: %v", rows[i].ID, logErr)
		}
	}
	log.Infof("embedding completed: %d written, %d failed", report.Enriched, report.Failed)
	return report, nil
}

// ResetStale requeues datasets stuck in enriching longer than the staleness
// timeout, recovering from crashed attempts.
func (o *Orchestrator) ResetStale(ctx context.Context) (int64, error) {
	n, err := o.cfg.Datasets.ResetStaleEnriching(ctx, o.cfg.StaleAfter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logutils.Log.Warnf("requeued %d stale enriching datasets", n)
	}
	return n, nil
}
