package enrich

import (
	"time"

	"datasearch/ingest"
)

// HFSource adapts the HuggingFace client to IncrementalSource.
type HFSource struct {
	Client *ingest.HFClient
}

func (s HFSource) Latest(limit int, cutoff *time.Time) ingest.BatchIterator {
	return s.Client.FetchLatest(limit, cutoff)
}

// KaggleSource adapts the Kaggle API client to IncrementalSource. The list
// endpoint has no cutoff parameter; its walk is limit-bounded.
type KaggleSource struct {
	Client *ingest.KaggleClient
	SortBy string
}

func (s KaggleSource) Latest(limit int, _ *time.Time) ingest.BatchIterator {
	return s.Client.FetchLatest(s.SortBy, limit)
}
