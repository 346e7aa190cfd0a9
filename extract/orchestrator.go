package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/stats"
	"github.com/relloyd/fieldpipe/tenant"
	"golang.org/x/sync/errgroup"
)

// ClientFactory builds an API client for one tenant. Each extraction unit gets its own client so
// call accounting is per unit.
type ClientFactory func(creds tenant.Credentials) fieldroutes.API

// Sink receives the records of each successful tenant extraction, e.g. the raw loader.
type Sink interface {
	Load(ctx context.Context, entity catalog.Entity, creds tenant.Credentials, records []fieldroutes.Record) (int, error)
}

// Orchestrator fans one entity out across tenants.
type Orchestrator struct {
	Tenants         *tenant.Store
	NewClient       ClientFactory
	PrimaryTenantID string // global entities avoid this tenant when another is available
	Concurrency     int    // tenants extracted at once; <= 1 means sequentially
	PageSize        int
	BatchSize       int
	Retry           RetryPolicy
	Sink            Sink
	Progress        stats.ProgressReporter
	Log             logger.Logger
}

// Result is the outcome of one entity across the selected tenants.
type Result struct {
	Entity            string         `json:"entity"`
	Global            bool           `json:"global"`
	StartDate         string         `json:"start_date"`
	EndDate           string         `json:"end_date"`
	Success           bool           `json:"success"`
	Error             string         `json:"error,omitempty"`
	TenantCount       int            `json:"tenant_count"`
	SuccessfulTenants []string       `json:"successful_tenants"`
	FailedTenants     []string       `json:"failed_tenants"`
	TotalUniqueIDs    int            `json:"total_unique_ids"`
	TotalRecords      int            `json:"total_records"`
	TotalRowsLoaded   int            `json:"total_rows_loaded"`
	Calls             stats.Calls    `json:"api_call_stats"`
	Tenants           []TenantResult `json:"tenant_results"`
}

// Run extracts entity from each selected tenant (all tenants when tenantIDs is empty) and, when a
// Sink is set, hands each successful tenant's records to it. One tenant failing never stops the
// others. Success means every selected tenant succeeded. Only an invalid date range is returned
// as an error.
func (o *Orchestrator) Run(ctx context.Context, entity catalog.Entity, tenantIDs []string, start, end string) (Result, error) {
	if err := ValidateDateRange(start, end); err != nil {
		return Result{}, err
	}
	log := o.Log.WithFields(map[string]interface{}{"entity": entity.Name})
	result := Result{
		Entity:            entity.Name,
		Global:            !entity.TenantScoped,
		StartDate:         start,
		EndDate:           end,
		SuccessfulTenants: make([]string, 0),
		FailedTenants:     make([]string, 0),
		Tenants:           make([]TenantResult, 0),
	}
	selected, missing := o.Tenants.Select(tenantIDs)
	if len(missing) > 0 {
		log.Warn(fmt.Sprintf("skipping tenants without credentials: %v", strings.Join(missing, ", ")))
	}
	if !entity.TenantScoped {
		selected = o.pickGlobalTenant(selected)
	}
	result.TenantCount = len(selected)
	if len(selected) == 0 {
		result.Error = "no tenant credentials available"
		log.Error(result.Error)
		return result, nil
	}
	log.Info(fmt.Sprintf("extracting %v to %v from %v tenant(s)", start, end, len(selected)))

	units := make([]TenantResult, len(selected))
	if o.Concurrency <= 1 {
		for idx, creds := range selected {
			units[idx] = o.runUnit(ctx, entity, creds, start, end)
		}
	} else {
		g := errgroup.Group{}
		g.SetLimit(o.Concurrency)
		for idx, creds := range selected {
			idx, creds := idx, creds
			g.Go(func() error {
				units[idx] = o.runUnit(ctx, entity, creds, start, end) // each goroutine owns one slot
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, u := range units {
		result.Tenants = append(result.Tenants, u)
		result.Calls = result.Calls.Add(u.Calls)
		if u.Success {
			result.SuccessfulTenants = append(result.SuccessfulTenants, u.TenantID)
			result.TotalUniqueIDs += u.UniqueIDs
			result.TotalRecords += u.RecordCount
			result.TotalRowsLoaded += u.RowsLoaded
		} else {
			result.FailedTenants = append(result.FailedTenants, u.TenantID)
		}
	}
	result.Success = len(result.FailedTenants) == 0
	if !result.Success {
		result.Error = fmt.Sprintf("%v of %v tenant(s) failed", len(result.FailedTenants), len(selected))
	}
	log.Info(fmt.Sprintf("finished: %v succeeded, %v failed, %v records",
		len(result.SuccessfulTenants), len(result.FailedTenants), result.TotalRecords))
	return result, nil
}

// pickGlobalTenant returns the first tenant that is not the primary one, else the first tenant.
func (o *Orchestrator) pickGlobalTenant(candidates []tenant.Credentials) []tenant.Credentials {
	if len(candidates) == 0 {
		return candidates
	}
	primary := o.PrimaryTenantID
	if primary == "" {
		primary = constants.PrimaryTenantID
	}
	for _, c := range candidates {
		if c.ID != primary {
			return []tenant.Credentials{c}
		}
	}
	return candidates[:1]
}

func (o *Orchestrator) runUnit(ctx context.Context, entity catalog.Entity, creds tenant.Credentials, start, end string) TenantResult {
	var watcher *stats.UnitWatcher
	if o.Progress != nil {
		watcher = o.Progress.AddUnitWatcher(entity.Name + "/" + creds.ID)
	}
	defer watcher.Finish()
	api := o.NewClient(creds)
	x := &Extractor{API: api, PageSize: o.PageSize, BatchSize: o.BatchSize, Log: o.Log, Watcher: watcher}
	result, attempts := o.Retry.run(ctx, func() TenantResult {
		watcher.Reset() // progress reflects the current attempt only
		return x.Extract(ctx, entity, start, end)
	})
	result.Attempts = attempts
	if result.Success && o.Sink != nil {
		n, err := o.Sink.Load(ctx, entity, creds, result.Records)
		result.RowsLoaded = n
		if err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("raw load failed after %v rows: %v", n, err)
			o.Log.WithFields(map[string]interface{}{"entity": entity.Name, "tenant": creds.ID}).Error(result.Error)
		}
		result.Records = nil // persisted, so release them
	}
	return result
}
