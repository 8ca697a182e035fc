package ingest

import (
	"context"

	"datasearch/dao/model"
)

// BatchIterator is the pull-based sequence of normalized batches every
// fetcher produces. Consumers call Next until it returns false, then check
// Err; abandoning iteration early requires Close so held resources (open
// response bodies, loaded snapshots) are released. Iterators restart from
// scratch; they are not resumable mid-stream.
type BatchIterator interface {
	Next(ctx context.Context) bool
	Batch() []model.DatasetDTO
	Err() error
	Close() error
}

// sliceBatches adapts an in-memory record set to BatchIterator, yielding
// fixed-size slices with an optional inter-batch pause.
type sliceBatches struct {
	records   []model.DatasetDTO
	batchSize int
	delay     func(ctx context.Context) error

	pos   int
	batch []model.DatasetDTO
	err   error
}

func (it *sliceBatches) Next(ctx context.Context) bool {
	if it.err != nil || it.pos >= len(it.records) {
		return false
	}
	if it.pos > 0 && it.delay != nil {
		if err := it.delay(ctx); err != nil {
			it.err = err
			return false
		}
	}
	end := it.pos + it.batchSize
	if end > len(it.records) {
		end = len(it.records)
	}
	it.batch = it.records[it.pos:end]
	it.pos = end
	return true
}

func (it *sliceBatches) Batch() []model.DatasetDTO { return it.batch }
func (it *sliceBatches) Err() error                { return it.err }

func (it *sliceBatches) Close() error {
	it.records = nil
	it.batch = nil
	return nil
}
