package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/stats"
)

// Extractor runs the search-union-fetch pipeline for one (entity, tenant) pair.
type Extractor struct {
	API       fieldroutes.API
	PageSize  int
	BatchSize int
	Log       logger.Logger
	Watcher   *stats.UnitWatcher
}

// TenantResult is the outcome of one (entity, tenant) extraction.
// Failures are reported here rather than returned as errors.
type TenantResult struct {
	Entity       string               `json:"entity"`
	TenantID     string               `json:"tenant_id"`
	TenantName   string               `json:"tenant_name"`
	StartDate    string               `json:"start_date"`
	EndDate      string               `json:"end_date"`
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	Searches     []SearchResult       `json:"searches"`
	UniqueIDs    int                  `json:"unique_ids"`
	FetchBatches int                  `json:"fetch_batches"`
	RecordCount  int                  `json:"record_count"`
	RowsLoaded   int                  `json:"rows_loaded"`
	Attempts     int                  `json:"attempts"`
	Calls        stats.Calls          `json:"api_call_stats"`
	DurationSec  float64              `json:"duration_sec"`
	Records      []fieldroutes.Record `json:"-"`
}

// Extract searches every date field of the entity (or once without a date predicate when it has
// none), unions the ids, then fetches the records. Records are kept only when every step succeeded.
func (x *Extractor) Extract(ctx context.Context, entity catalog.Entity, start, end string) TenantResult {
	started := time.Now()
	creds := x.API.Tenant()
	log := x.Log.WithFields(map[string]interface{}{"entity": entity.Name, "tenant": creds.ID})
	result := TenantResult{
		Entity:     entity.Name,
		TenantID:   creds.ID,
		TenantName: creds.Name,
		StartDate:  start,
		EndDate:    end,
		Searches:   make([]SearchResult, 0, len(entity.DateFields)),
	}
	finish := func() TenantResult {
		result.Calls = x.API.Calls()
		result.DurationSec = time.Since(started).Seconds()
		stats.ObserveUnitDuration(entity.Name, result.Success, result.DurationSec)
		return result
	}

	if err := ValidateDateRange(start, end); err != nil {
		result.Error = err.Error()
		log.Warn(fmt.Sprintf("extraction rejected: %v", err))
		return finish()
	}

	dateFields := entity.DateFields
	if len(dateFields) == 0 {
		dateFields = []string{""} // reference data: one unconditional search
	}
	paginator := &Paginator{API: x.API, PageSize: x.PageSize, Log: log}
	combined := NewIdentifierSet()
	for _, field := range dateFields {
		sr, err := paginator.Search(ctx, entity, field, start, end)
		if err != nil {
			result.Error = err.Error()
			log.Warn(fmt.Sprintf("extraction failed: %v", err))
			return finish()
		}
		combined.Union(sr.IDs())
		result.Searches = append(result.Searches, sr)
	}
	result.UniqueIDs = combined.Len()
	x.Watcher.AddIDs(combined.Len())
	log.Info(fmt.Sprintf("found %v unique ids across %v searches", combined.Len(), len(result.Searches)))

	fetcher := &Fetcher{API: x.API, BatchSize: x.BatchSize, Log: log}
	fr, err := fetcher.Fetch(ctx, entity, combined.Sorted(), x.Watcher)
	if err != nil {
		result.Error = err.Error()
		log.Warn(fmt.Sprintf("extraction failed: %v", err))
		return finish()
	}
	result.Records = fr.Records
	result.RecordCount = len(fr.Records)
	result.FetchBatches = fr.Batches
	result.Success = true
	stats.ObserveRecordsExtracted(entity.Name, creds.ID, len(fr.Records))
	log.Info(fmt.Sprintf("fetched %v records in %v batches", len(fr.Records), fr.Batches))
	return finish()
}
