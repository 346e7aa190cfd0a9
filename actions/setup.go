package actions

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/aws/s3"
	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/load"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/rdbms/shared"
	"github.com/relloyd/fieldpipe/stats"
	"github.com/relloyd/fieldpipe/tenant"
)

// SetupOptions are the settings used to wire real collaborators into a PipelineConfig.
type SetupOptions struct {
	APIBaseURL       string
	APITimeout       time.Duration
	CatalogFile      string // optional override of the embedded catalog
	RawDatabase      string
	StagingDatabase  string
	Schema           string
	ArchiveURL       string // optional s3://bucket/prefix
	ArchiveRegion    string
	Concurrency      int
	RetryInterval    time.Duration
	ProgressSeconds  int
	Getenv           func(string) string
	CredentialsFile  *config.File // nil means environment only
	WarehouseOpener  func(ctx context.Context, log logger.Logger, d rdbms.SnowflakeConnectionDetails) (shared.Connector, error)
	SkipWarehouseCfg bool // set by commands that do not touch the warehouse
}

// LoadCatalog returns the embedded catalog unless file is set.
func LoadCatalog(file string) (*catalog.Catalog, error) {
	if file == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(file)
}

// LoadTenants reads tenant credentials from the credentials file first and the environment second.
func LoadTenants(log logger.Logger, file *config.File, getenv func(string) string) (*tenant.Store, error) {
	chain := tenant.ChainProvider{}
	if file != nil {
		chain = append(chain, &tenant.FileProvider{File: file})
	}
	chain = append(chain, &tenant.EnvProvider{Log: log, Getenv: getenv})
	return tenant.LoadStore(chain)
}

// NewPipelineConfig wires the catalog, tenant store, API client factory, warehouse connection and
// optional S3 archive. The returned func releases the warehouse connection and stops progress logging.
func NewPipelineConfig(ctx context.Context, log logger.Logger, opts SetupOptions) (*PipelineConfig, func(), error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cat, err := LoadCatalog(opts.CatalogFile)
	if err != nil {
		return nil, nil, err
	}
	tenants, err := LoadTenants(log, opts.CredentialsFile, getenv)
	if err != nil {
		return nil, nil, err
	}
	baseURL := opts.APIBaseURL
	if baseURL == "" && opts.CredentialsFile != nil {
		if err := opts.CredentialsFile.Get(config.CredentialsKeyAPIBaseURL, &baseURL); err != nil && !config.IsKeyNotFound(err) {
			return nil, nil, err
		}
	}
	if baseURL == "" {
		baseURL = constants.DefaultAPIBaseURL
	}
	timeout := opts.APITimeout
	if timeout <= 0 {
		timeout = constants.DefaultAPITimeoutSecs * time.Second
	}
	cfg := &PipelineConfig{
		Log:             log,
		Catalog:         cat,
		Tenants:         tenants,
		RawDatabase:     opts.RawDatabase,
		StagingDatabase: opts.StagingDatabase,
		Schema:          opts.Schema,
		Concurrency:     opts.Concurrency,
		RetryInterval:   opts.RetryInterval,
		NewClient: func(creds tenant.Credentials) fieldroutes.API {
			return fieldroutes.NewClient(log, baseURL, creds, timeout)
		},
	}
	closers := make([]func(), 0, 2)
	closeAll := func() {
		for idx := len(closers) - 1; idx >= 0; idx-- {
			closers[idx]()
		}
	}
	if opts.ArchiveURL != "" {
		bucket, err := s3.ParseURL(opts.ArchiveURL, opts.ArchiveRegion)
		if err != nil {
			return nil, nil, err
		}
		client, err := s3.NewClient(bucket)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "error creating S3 client for %v", bucket)
		}
		cfg.Archiver = &load.S3Archiver{Client: client, Log: log}
	}
	if !opts.SkipWarehouseCfg {
		d, err := rdbms.LoadSnowflakeConnectionDetails(getenv, opts.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RawDatabase == "" {
			cfg.RawDatabase = d.Database
		}
		if cfg.Schema == "" {
			cfg.Schema = d.Schema
		}
		opener := opts.WarehouseOpener
		if opener == nil {
			opener = rdbms.NewSnowflakeConnection
		}
		db, err := opener(ctx, log, d)
		if err != nil {
			return nil, nil, err
		}
		cfg.Warehouse = db
		closers = append(closers, db.Close)
	}
	if opts.ProgressSeconds > 0 {
		pm := stats.NewProgressManager(log, stats.SetProgressDumpFrequency(opts.ProgressSeconds))
		pm.StartDumping()
		cfg.Progress = pm
		closers = append(closers, pm.StopDumping)
	}
	return cfg, closeAll, nil
}
