package staging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/constants"
	"github.com/relloyd/fieldpipe/load"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/rdbms/shared"
	"github.com/relloyd/fieldpipe/stats"
)

// State is the progress of one entity through one merge invocation.
type State string

const (
	StatePending     State = "PENDING"
	StateSchemaReady State = "SCHEMA_READY"
	StateTableReady  State = "TABLE_READY"
	StateMerged      State = "MERGED"
	StateFailed      State = "FAILED"
)

// Column names of the single row returned by a Snowflake MERGE.
const (
	mergeColRowsInserted = "number of rows inserted"
	mergeColRowsUpdated  = "number of rows updated"
)

type MergeResult struct {
	Entity             string  `json:"entity"`
	Table              string  `json:"table"`
	BatchID            string  `json:"batch_id,omitempty"`
	State              State   `json:"state"`
	Success            bool    `json:"success"`
	RowsInserted       int64   `json:"rows_inserted"`
	RowsUpdated        int64   `json:"rows_updated"`
	TotalRowsProcessed int64   `json:"total_rows_processed"`
	Error              string  `json:"error,omitempty"`
	DurationSec        float64 `json:"duration_sec"`
}

// Summary aggregates a multi-entity merge.
type Summary struct {
	Success       bool          `json:"success"`
	BatchID       string        `json:"batch_id,omitempty"`
	TotalEntities int           `json:"total_entities"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	RowsInserted  int64         `json:"rows_inserted"`
	RowsUpdated   int64         `json:"rows_updated"`
	Entities      []MergeResult `json:"entities_processed"`
}

// Merger reconciles raw captures in RawDatabase into typed tables in StagingDatabase.
// At most one merge per entity table may be in flight; callers enforce this.
type Merger struct {
	Db              shared.Connector
	RawDatabase     string
	StagingDatabase string
	Schema          string
	Catalog         *catalog.Catalog
	Log             logger.Logger
}

func NewMerger(log logger.Logger, db shared.Connector, cat *catalog.Catalog) *Merger {
	return &Merger{
		Db:              db,
		RawDatabase:     constants.DefaultRawDatabase,
		StagingDatabase: constants.DefaultStagingDatabase,
		Schema:          constants.DefaultSchema,
		Catalog:         cat,
		Log:             log,
	}
}

func (m *Merger) rawTable(e catalog.Entity) rdbms.SchemaTable {
	return rdbms.NewSchemaTable(m.RawDatabase, m.Schema, e.Table)
}

func (m *Merger) stagingTable(e catalog.Entity) rdbms.SchemaTable {
	return rdbms.NewSchemaTable(m.StagingDatabase, m.Schema, e.Table)
}

// EnsureSchema creates the staging database and schema if they are missing.
func (m *Merger) EnsureSchema(ctx context.Context) error {
	if _, err := m.Db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %v", m.StagingDatabase)); err != nil {
		return errors.Wrapf(err, "error creating database %v", m.StagingDatabase)
	}
	if _, err := m.Db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %v.%v", m.StagingDatabase, m.Schema)); err != nil {
		return errors.Wrapf(err, "error creating schema %v.%v", m.StagingDatabase, m.Schema)
	}
	return nil
}

// EnsureTables creates the staging table for e, and its raw capture table so that merging an
// entity that was never loaded is a no-op rather than a failure.
func (m *Merger) EnsureTables(ctx context.Context, e catalog.Entity) error {
	rl := &load.RawLoader{Db: m.Db, Log: m.Log}
	if err := rl.EnsureTable(ctx, m.rawTable(e)); err != nil {
		return err
	}
	st := m.stagingTable(e)
	if err := st.Validate(); err != nil {
		return err
	}
	if _, err := m.Db.ExecContext(ctx, GenerateTableDDL(e, st)); err != nil {
		return errors.Wrapf(err, "error creating staging table %v", st)
	}
	return nil
}

// MergeEntity upserts the raw captures of one entity, optionally only those of batchID, into its
// staging table. Only an unknown entity name is returned as an error; warehouse failures are
// reported in the result with State FAILED.
func (m *Merger) MergeEntity(ctx context.Context, name string, batchID string) (MergeResult, error) {
	e, err := m.Catalog.Get(name)
	if err != nil {
		return MergeResult{Entity: name, State: StateFailed, Error: err.Error()}, err
	}
	return m.mergeEntity(ctx, e, batchID), nil
}

func (m *Merger) mergeEntity(ctx context.Context, e catalog.Entity, batchID string) (result MergeResult) {
	started := time.Now()
	result = MergeResult{Entity: e.Name, Table: m.stagingTable(e).String(), BatchID: batchID, State: StatePending}
	log := m.Log.WithFields(map[string]interface{}{"entity": e.Name, "batch": batchID})
	fail := func(err error) MergeResult {
		log.Error("merge failed after state ", result.State, ": ", err)
		result.State = StateFailed
		result.Success = false
		result.Error = err.Error()
		result.DurationSec = time.Since(started).Seconds()
		return result
	}

	if err := m.EnsureSchema(ctx); err != nil {
		return fail(err)
	}
	result.State = StateSchemaReady
	if err := m.EnsureTables(ctx, e); err != nil {
		return fail(err)
	}
	result.State = StateTableReady

	cfg := NewMergeSqlConfig(e, m.rawTable(e), m.stagingTable(e), batchID != "")
	args := make([]interface{}, 0, 1)
	if batchID != "" {
		args = append(args, batchID)
	}
	inserted, updated, err := m.execMerge(ctx, GenerateMergeSql(cfg), args)
	if err != nil {
		return fail(errors.Wrapf(err, "merge into %v", result.Table))
	}
	result.State = StateMerged
	result.Success = true
	result.RowsInserted = inserted
	result.RowsUpdated = updated
	result.TotalRowsProcessed = inserted + updated
	result.DurationSec = time.Since(started).Seconds()
	stats.ObserveMerge(e.Name, inserted, updated)
	log.Info("merged: ", inserted, " inserted, ", updated, " updated")
	return result
}

// execMerge runs the MERGE in its own transaction and returns the rows inserted and updated.
func (m *Merger) execMerge(ctx context.Context, sql string, args []interface{}) (inserted int64, updated int64, err error) {
	tx, err := m.Db.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				m.Log.Warn("rollback failed: ", rbErr)
			}
		}
	}()
	m.Log.Debug("merge SQL: ", sql)
	rows, err := tx.QueryContext(ctx, sql, args...)
	if err != nil {
		return 0, 0, err
	}
	inserted, updated, err = readMergeCounts(rows)
	if cErr := rows.Close(); err == nil && cErr != nil {
		err = cErr
	}
	if err != nil {
		return 0, 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func readMergeCounts(rows shared.Rows) (inserted int64, updated int64, err error) {
	cols, err := rows.Columns()
	if err != nil {
		return 0, 0, err
	}
	insIdx, updIdx := 0, 1
	for idx, c := range cols {
		switch strings.ToLower(c) {
		case mergeColRowsInserted:
			insIdx = idx
		case mergeColRowsUpdated:
			updIdx = idx
		}
	}
	for rows.Next() {
		vals, err := scanRow(rows, len(cols))
		if err != nil {
			return 0, 0, err
		}
		if insIdx < len(vals) {
			inserted += toInt64(vals[insIdx])
		}
		if updIdx < len(vals) {
			updated += toInt64(vals[updIdx])
		}
	}
	return inserted, updated, rows.Err()
}

// MergeEntities merges the named entities in order. Names are checked against the catalog before
// any statement runs; after that a failed entity never stops its siblings.
func (m *Merger) MergeEntities(ctx context.Context, names []string, batchID string) (Summary, error) {
	entities, err := m.Catalog.Select(names)
	if err != nil {
		return Summary{}, err
	}
	return m.mergeAll(ctx, entities, batchID), nil
}

// MergeAll merges every catalog entity.
func (m *Merger) MergeAll(ctx context.Context, batchID string) Summary {
	return m.mergeAll(ctx, m.Catalog.Entities(), batchID)
}

func (m *Merger) mergeAll(ctx context.Context, entities []catalog.Entity, batchID string) Summary {
	s := Summary{Success: true, BatchID: batchID, TotalEntities: len(entities), Entities: make([]MergeResult, 0, len(entities))}
	for _, e := range entities {
		var r MergeResult
		if err := ctx.Err(); err != nil {
			r = MergeResult{Entity: e.Name, Table: m.stagingTable(e).String(), BatchID: batchID, State: StateFailed, Error: err.Error()}
		} else {
			r = m.mergeEntity(ctx, e, batchID)
		}
		s.Entities = append(s.Entities, r)
		if r.Success {
			s.Successful++
			s.RowsInserted += r.RowsInserted
			s.RowsUpdated += r.RowsUpdated
		} else {
			s.Failed++
			s.Success = false
		}
	}
	return s
}

func scanRow(rows shared.Rows, n int) ([]interface{}, error) {
	vals := make([]interface{}, n)
	ptrs := make([]interface{}, n)
	for idx := range vals {
		ptrs[idx] = &vals[idx]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
