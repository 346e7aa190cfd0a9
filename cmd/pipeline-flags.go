package cmd

import (
	"context"
	"os"
	"time"

	"github.com/relloyd/fieldpipe/actions"
	"github.com/relloyd/fieldpipe/config"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/spf13/cobra"
)

// pipelineFlags are shared by every command that talks to the API or the warehouse.
type pipelineFlags struct {
	logLevel        string
	logFormat       string
	apiBaseURL      string
	apiTimeoutSecs  int
	catalogFile     string
	rawDatabase     string
	stagingDatabase string
	schema          string
	archiveURL      string
	archiveRegion   string
	concurrency     int
	retryInterval   int
	statsSecs       int
}

var pipeFlags = pipelineFlags{}

// register adds the shared flags to c, with the log level defaulting to defaultLogLevel.
func (p *pipelineFlags) register(c *cobra.Command, defaultLogLevel string) {
	switches.addFlag(c, &p.logLevel, "log-level", defaultLogLevel, false, "")
	switches.addFlag(c, &p.logFormat, "log-format", "text", false, "")
	switches.addFlag(c, &p.apiBaseURL, "api-base-url", "", false, "")
	switches.addFlag(c, &p.apiTimeoutSecs, "api-timeout", "300", false, "")
	switches.addFlag(c, &p.catalogFile, "catalog-file", "", false, "")
	switches.addFlag(c, &p.rawDatabase, "raw-database", "", false, "")
	switches.addFlag(c, &p.stagingDatabase, "staging-database", constants.DefaultStagingDatabase, false, "")
	switches.addFlag(c, &p.schema, "schema", "", false, "")
	switches.addFlag(c, &p.archiveURL, "archive-url", "", false, "")
	switches.addFlag(c, &p.archiveRegion, "archive-region", "", false, "")
	switches.addFlag(c, &p.concurrency, "concurrency", "1", false, "")
	switches.addFlag(c, &p.retryInterval, "retry-interval", "5", false, "")
	switches.addFlag(c, &p.statsSecs, "stats", "0", false, "")
}

func (p *pipelineFlags) logger() logger.Logger {
	return logger.NewLoggerWithFormat(constants.ServiceName, p.logLevel, p.logFormat, stackDumpOnPanic)
}

// setup builds the pipeline configuration. Credentials come from the encrypted credentials file
// unless we are in twelveFactorMode, where only the environment is used.
func (p *pipelineFlags) setup(ctx context.Context, log logger.Logger) (*actions.PipelineConfig, func(), error) {
	var credentials *config.File
	if !twelveFactorMode {
		credentials = config.Credentials
	}
	return actions.NewPipelineConfig(ctx, log, actions.SetupOptions{
		APIBaseURL:      p.apiBaseURL,
		APITimeout:      time.Duration(p.apiTimeoutSecs) * time.Second,
		CatalogFile:     p.catalogFile,
		RawDatabase:     p.rawDatabase,
		StagingDatabase: p.stagingDatabase,
		Schema:          p.schema,
		ArchiveURL:      p.archiveURL,
		ArchiveRegion:   p.archiveRegion,
		Concurrency:     p.concurrency,
		RetryInterval:   time.Duration(p.retryInterval) * time.Second,
		ProgressSeconds: p.statsSecs,
		Getenv:          os.Getenv,
		CredentialsFile: credentials,
	})
}
