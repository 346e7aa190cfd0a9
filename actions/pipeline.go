package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/extract"
	"github.com/relloyd/fieldpipe/load"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms/shared"
	"github.com/relloyd/fieldpipe/staging"
	"github.com/relloyd/fieldpipe/stats"
	"github.com/relloyd/fieldpipe/tenant"
)

// PipelineConfig holds the collaborators shared by every pipeline run.
type PipelineConfig struct {
	Log             logger.Logger
	Catalog         *catalog.Catalog
	Tenants         *tenant.Store
	NewClient       extract.ClientFactory
	Warehouse       shared.Connector
	RawDatabase     string
	StagingDatabase string
	Schema          string
	Archiver        *load.S3Archiver // optional
	Concurrency     int
	PageSize        int
	FetchBatchSize  int
	RetryInterval   time.Duration
	Progress        stats.ProgressReporter
	Now             func() time.Time
}

func (cfg *PipelineConfig) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

// PipelineRequest is what the scheduler supplies for one run.
type PipelineRequest struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Entities   []string `json:"entities,omitempty"` // empty means the whole catalog
	Tenants    []string `json:"tenants,omitempty"`  // empty means every tenant with credentials
	BatchSize  int      `json:"batch_size"`         // raw rows per commit
	MaxRetries int      `json:"max_retries"`
	RunStaging bool     `json:"run_staging"`
}

// IncrementalRequest derives the date window from a lookback relative to now.
type IncrementalRequest struct {
	HoursLookback int      `json:"hours_lookback"`
	Entities      []string `json:"entities,omitempty"`
	Tenants       []string `json:"tenants,omitempty"`
	BatchSize     int      `json:"batch_size"`
	MaxRetries    int      `json:"max_retries"`
	RunStaging    bool     `json:"run_staging"`
}

type PipelineSummary struct {
	TotalEntities      int `json:"total_entities"`
	SuccessfulEntities int `json:"successful_entities"`
	FailedEntities     int `json:"failed_entities"`
	TotalRecords       int `json:"total_records"`
}

// PipelineResult is the structured outcome of a run. Success means at least one entity succeeded;
// callers inspect EntityResults for the rest.
type PipelineResult struct {
	Success       bool             `json:"success"`
	BatchID       string           `json:"batch_id"`
	DateRange     string           `json:"date_range"`
	Summary       PipelineSummary  `json:"summary"`
	EntityResults []extract.Result `json:"entity_results"`
	StagingResult *staging.Summary `json:"staging_result"`
	DurationSec   float64          `json:"duration_sec"`
}

// RunFullPipeline extracts every requested entity from every requested tenant into the raw layer,
// tagged with one batch id, then merges the entities that succeeded into staging when asked to.
// Unknown entity names and bad dates are returned as errors before any remote call is made.
func RunFullPipeline(ctx context.Context, cfg *PipelineConfig, req PipelineRequest) (PipelineResult, error) {
	return runPipeline(ctx, cfg, req, constants.BatchIDPrefixFull)
}

// RunIncrementalPipeline runs the full pipeline over [now - HoursLookback, now].
func RunIncrementalPipeline(ctx context.Context, cfg *PipelineConfig, req IncrementalRequest) (PipelineResult, error) {
	if req.HoursLookback <= 0 {
		req.HoursLookback = constants.IncrementalLookbackHrs
	}
	if req.BatchSize <= 0 {
		req.BatchSize = constants.IncrementalBatchSize
	}
	start, end := IncrementalWindow(cfg.now(), req.HoursLookback)
	return runPipeline(ctx, cfg, PipelineRequest{
		StartDate:  start,
		EndDate:    end,
		Entities:   req.Entities,
		Tenants:    req.Tenants,
		BatchSize:  req.BatchSize,
		MaxRetries: req.MaxRetries,
		RunStaging: req.RunStaging,
	}, constants.BatchIDPrefixIncr)
}

// RunSingleEntityPipeline runs the full pipeline for one entity.
func RunSingleEntityPipeline(ctx context.Context, cfg *PipelineConfig, entity string, req PipelineRequest) (PipelineResult, error) {
	req.Entities = []string{entity}
	return runPipeline(ctx, cfg, req, constants.BatchIDPrefixEntity)
}

// RunStaging merges the named entities (all when empty), scoped to batchID when it is set.
func RunStaging(ctx context.Context, cfg *PipelineConfig, entities []string, batchID string) (staging.Summary, error) {
	return newMerger(cfg).MergeEntities(ctx, entities, batchID)
}

// StagingStatistics reports row counts and freshness of the named staging tables (all when empty).
func StagingStatistics(ctx context.Context, cfg *PipelineConfig, entities []string) ([]staging.Statistics, error) {
	selected, err := cfg.Catalog.Select(entities)
	if err != nil {
		return nil, err
	}
	m := newMerger(cfg)
	retval := make([]staging.Statistics, 0, len(selected))
	for _, e := range selected {
		s, err := m.Statistics(ctx, e.Name)
		if err != nil {
			return retval, err
		}
		retval = append(retval, s)
	}
	return retval, nil
}

// IncrementalWindow returns the dates covering the lookback hours up to now.
func IncrementalWindow(now time.Time, hoursLookback int) (start string, end string) {
	return now.Add(-time.Duration(hoursLookback) * time.Hour).Format(constants.DateFormat), now.Format(constants.DateFormat)
}

func newMerger(cfg *PipelineConfig) *staging.Merger {
	m := staging.NewMerger(cfg.Log, cfg.Warehouse, cfg.Catalog)
	if cfg.RawDatabase != "" {
		m.RawDatabase = cfg.RawDatabase
	}
	if cfg.StagingDatabase != "" {
		m.StagingDatabase = cfg.StagingDatabase
	}
	if cfg.Schema != "" {
		m.Schema = cfg.Schema
	}
	return m
}

func runPipeline(ctx context.Context, cfg *PipelineConfig, req PipelineRequest, batchPrefix string) (PipelineResult, error) {
	started := cfg.now()
	if err := extract.ValidateDateRange(req.StartDate, req.EndDate); err != nil {
		return PipelineResult{}, err
	}
	entities, err := cfg.Catalog.Select(req.Entities)
	if err != nil {
		return PipelineResult{}, err
	}
	batchID := NewBatchID(batchPrefix, started)
	log := cfg.Log.WithFields(map[string]interface{}{"batch": batchID})
	log.Info(fmt.Sprintf("starting pipeline for %v entities from %v to %v", len(entities), req.StartDate, req.EndDate))

	rawLoader := load.NewRawLoader(cfg.Log, cfg.Warehouse)
	if req.BatchSize > 0 {
		rawLoader.ChunkSize = req.BatchSize
	}
	sink := &load.RawSink{
		Loader:   rawLoader,
		Database: valueOrDefault(cfg.RawDatabase, constants.DefaultRawDatabase),
		Schema:   valueOrDefault(cfg.Schema, constants.DefaultSchema),
		BatchID:  batchID,
		Archiver: cfg.Archiver,
	}
	orch := &extract.Orchestrator{
		Tenants:         cfg.Tenants,
		NewClient:       cfg.NewClient,
		PrimaryTenantID: constants.PrimaryTenantID,
		Concurrency:     cfg.Concurrency,
		PageSize:        cfg.PageSize,
		BatchSize:       cfg.FetchBatchSize,
		Retry:           extract.RetryPolicy{MaxRetries: req.MaxRetries, InitialInterval: cfg.RetryInterval},
		Sink:            sink,
		Progress:        cfg.Progress,
		Log:             cfg.Log,
	}

	result := PipelineResult{
		BatchID:       batchID,
		DateRange:     fmt.Sprintf("%v to %v", req.StartDate, req.EndDate),
		EntityResults: make([]extract.Result, 0, len(entities)),
	}
	succeeded := make([]string, 0, len(entities))
	for _, e := range entities {
		if ctx.Err() != nil {
			result.EntityResults = append(result.EntityResults, extract.Result{
				Entity: e.Name, Global: !e.TenantScoped, StartDate: req.StartDate, EndDate: req.EndDate, Error: ctx.Err().Error(),
			})
			continue
		}
		r, err := orch.Run(ctx, e, req.Tenants, req.StartDate, req.EndDate)
		if err != nil { // dates were validated above so this is unexpected
			return result, err
		}
		result.EntityResults = append(result.EntityResults, r)
		if entitySucceeded(r) {
			succeeded = append(succeeded, e.Name)
			result.Summary.TotalRecords += r.TotalRecords
			log.Info(fmt.Sprintf("%v: %v records from %v tenant(s)", e.Name, r.TotalRecords, len(r.SuccessfulTenants)))
		} else {
			log.Error(fmt.Sprintf("%v: %v", e.Name, r.Error))
		}
	}
	result.Summary.TotalEntities = len(entities)
	result.Summary.SuccessfulEntities = len(succeeded)
	result.Summary.FailedEntities = len(entities) - len(succeeded)
	result.Success = len(succeeded) > 0

	if req.RunStaging && len(succeeded) > 0 && ctx.Err() == nil {
		s, err := newMerger(cfg).MergeEntities(ctx, succeeded, batchID)
		if err != nil {
			return result, err
		}
		result.StagingResult = &s
	}
	result.DurationSec = cfg.now().Sub(started).Seconds()
	log.Info(fmt.Sprintf("pipeline finished: %v of %v entities succeeded, %v records",
		result.Summary.SuccessfulEntities, result.Summary.TotalEntities, result.Summary.TotalRecords))
	return result, nil
}

// entitySucceeded requires every selected tenant to have succeeded. Rows landed by the successful
// tenants of a partial result stay in the raw layer and are picked up by the next merge without a
// batch filter.
func entitySucceeded(r extract.Result) bool {
	return r.Success
}

func valueOrDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
