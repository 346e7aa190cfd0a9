package extract

import (
	"context"
	"fmt"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/stats"
)

// Getter issues one detail request.
type Getter interface {
	Get(ctx context.Context, entity catalog.Entity, ids []fieldroutes.ID) ([]fieldroutes.Record, error)
}

// Fetcher turns ids into full records using sequential fixed-size batches.
type Fetcher struct {
	API       Getter
	BatchSize int
	Log       logger.Logger
}

// FetchResult holds the records of every batch, in batch order.
type FetchResult struct {
	Records []fieldroutes.Record
	Batches int
}

// Fetch requests ids in batches of BatchSize. The first failed batch aborts the fetch and the
// records gathered so far are discarded. No ids means no requests.
func (f *Fetcher) Fetch(ctx context.Context, entity catalog.Entity, ids []fieldroutes.ID, watcher *stats.UnitWatcher) (FetchResult, error) {
	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = constants.FetchBatchSize
	}
	total := (len(ids) + batchSize - 1) / batchSize
	result := FetchResult{Records: make([]fieldroutes.Record, 0, len(ids))}
	for start := 0; start < len(ids); start += batchSize {
		batch := result.Batches + 1
		if err := ctx.Err(); err != nil {
			return FetchResult{}, FetchError{Batch: batch, TotalBatches: total, Err: err}
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		records, err := f.API.Get(ctx, entity, ids[start:end])
		if err != nil {
			return FetchResult{}, FetchError{Batch: batch, TotalBatches: total, Err: err}
		}
		result.Records = append(result.Records, records...)
		result.Batches = batch
		watcher.AddFetched(len(records))
		f.Log.Debug(fmt.Sprintf("%v batch %v/%v returned %v records", entity.Name, batch, total, len(records)))
	}
	return result, nil
}
