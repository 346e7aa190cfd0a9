package load

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/rdbms/shared"
)

// RawLoader appends fetched records to append-only raw capture tables.
type RawLoader struct {
	Db               shared.Connector
	ChunkSize        int // rows per transaction
	RowsPerStatement int // rows per multi-row INSERT
	Log              logger.Logger
}

func NewRawLoader(log logger.Logger, db shared.Connector) *RawLoader {
	return &RawLoader{
		Db:               db,
		ChunkSize:        constants.RawLoadChunkSize,
		RowsPerStatement: constants.RawInsertRowsPerStmt,
		Log:              log,
	}
}

// RawTableDDL returns the CREATE TABLE statement for a raw capture table.
func RawTableDDL(t rdbms.SchemaTable) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
	ID NUMBER AUTOINCREMENT PRIMARY KEY,
	RAW_JSON VARIANT,
	LOAD_TIMESTAMP TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP(),
	SOURCE_FILE VARCHAR(255),
	BATCH_ID VARCHAR(255)
)`, t)
}

// SourceTag identifies where a raw row came from, e.g. fieldroutes_api_customer_office_3.
func SourceTag(entity string, tenantID string) string {
	return fmt.Sprintf("%v_%v_%v", constants.SourceTagPrefix, entity, tenantID)
}

// EnsureTable creates the schema and raw capture table if they are missing.
func (l *RawLoader) EnsureTable(ctx context.Context, t rdbms.SchemaTable) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := l.Db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %v", t.SchemaName())); err != nil {
		return errors.Wrapf(err, "error creating schema %v", t.SchemaName())
	}
	if _, err := l.Db.ExecContext(ctx, RawTableDDL(t)); err != nil {
		return errors.Wrapf(err, "error creating raw table %v", t)
	}
	return nil
}

// Append writes records to t in chunks, committing after each chunk, and returns the number of rows
// inserted. Records that cannot be serialised are skipped with a warning. On error the failing chunk
// is rolled back and the rows committed by earlier chunks are still counted.
func (l *RawLoader) Append(ctx context.Context, t rdbms.SchemaTable, records []fieldroutes.Record, batchID string, sourceTag string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := l.EnsureTable(ctx, t); err != nil {
		return 0, err
	}
	chunkSize := l.ChunkSize
	if chunkSize <= 0 {
		chunkSize = constants.RawLoadChunkSize
	}
	log := l.Log.WithFields(map[string]interface{}{"table": t.String(), "batch": batchID})
	inserted := 0
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		n, err := l.appendChunk(ctx, log, t, records[start:end], batchID, sourceTag)
		if err != nil {
			return inserted, errors.Wrapf(err, "error loading rows %v-%v into %v", start+1, end, t)
		}
		inserted += n
		log.Debug("committed ", n, " raw rows; total ", inserted)
	}
	log.Info("loaded ", inserted, " of ", len(records), " records")
	return inserted, nil
}

func (l *RawLoader) appendChunk(ctx context.Context, log logger.Logger, t rdbms.SchemaTable, records []fieldroutes.Record, batchID string, sourceTag string) (n int, err error) {
	rowsPerStmt := l.RowsPerStatement
	if rowsPerStmt <= 0 {
		rowsPerStmt = constants.RawInsertRowsPerStmt
	}
	tx, err := l.Db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warn("rollback failed: ", rbErr)
			}
		}
	}()
	batch := shared.NewRawInsertGenerator(log, t.String())
	batch.InitBatch(rowsPerStmt)
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, batch.GetStatement(), batch.GetValues()...); err != nil {
			return err
		}
		n += batch.Len()
		batch.InitBatch(rowsPerStmt)
		return nil
	}
	for _, r := range records {
		doc, mErr := json.Marshal(r)
		if mErr != nil {
			log.Warn("skipping record that cannot be serialised: ", mErr)
			continue
		}
		full, bErr := batch.AddValuesToBatch([]interface{}{string(doc), sourceTag, batchID})
		if bErr != nil {
			return 0, bErr
		}
		if full {
			if err = flush(); err != nil {
				return 0, err
			}
		}
	}
	if err = flush(); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
