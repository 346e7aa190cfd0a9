package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/relloyd/fieldpipe/aws/s3"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
)

const ndjsonContentType = "application/x-ndjson"

// S3Archiver keeps a copy of each tenant's raw records as newline delimited JSON.
// Keys are <entity>/<batch id>/<tenant id>.ndjson below the client prefix.
type S3Archiver struct {
	Client s3.Client
	Log    logger.Logger
}

// ArchiveKey returns the object key used for one tenant's records in a batch.
func ArchiveKey(entity, batchID, tenantID string) string {
	return path.Join(entity, batchID, tenantID+".ndjson")
}

// Archive writes records and returns the key written. Unserialisable records are skipped.
func (a *S3Archiver) Archive(ctx context.Context, entity, batchID, tenantID string, records []fieldroutes.Record) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	written := 0
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			a.Log.Warn("archive skipping record that cannot be serialised: ", err)
			continue
		}
		if err = enc.Encode(json.RawMessage(b)); err != nil {
			return "", err
		}
		written++
	}
	key := ArchiveKey(entity, batchID, tenantID)
	if err := a.Client.Put(ctx, key, ndjsonContentType, buf.Bytes()); err != nil {
		return "", fmt.Errorf("error archiving %v records to %v: %w", written, key, err)
	}
	a.Log.Debug("archived ", written, " records to ", key)
	return key, nil
}

// ListBatch returns the archive keys written for entity in batchID.
func (a *S3Archiver) ListBatch(ctx context.Context, entity, batchID string) ([]string, error) {
	return a.Client.List(ctx, path.Join(entity, batchID)+"/")
}
