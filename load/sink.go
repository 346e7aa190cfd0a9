package load

import (
	"context"

	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/stats"
	"github.com/relloyd/fieldpipe/tenant"
)

// RawSink lands each tenant's extracted records in <Database>.<Schema>.<entity table>, tagged with
// one batch id for the whole run. When Archiver is set the records are also copied to S3; archive
// failures are logged and do not fail the load.
type RawSink struct {
	Loader   *RawLoader
	Database string
	Schema   string
	BatchID  string
	Archiver *S3Archiver
}

func (s *RawSink) Load(ctx context.Context, entity catalog.Entity, creds tenant.Credentials, records []fieldroutes.Record) (int, error) {
	t := rdbms.NewSchemaTable(s.Database, s.Schema, entity.Table)
	n, err := s.Loader.Append(ctx, t, records, s.BatchID, SourceTag(entity.Name, creds.ID))
	stats.ObserveRowsLoaded(entity.Name, n)
	if err != nil {
		return n, err
	}
	if s.Archiver != nil && len(records) > 0 {
		if _, aErr := s.Archiver.Archive(ctx, entity.Name, s.BatchID, creds.ID, records); aErr != nil {
			s.Loader.Log.Warn(aErr)
		}
	}
	return n, nil
}
