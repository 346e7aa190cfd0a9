package staging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/relloyd/fieldpipe/catalog"
	h "github.com/relloyd/fieldpipe/helper"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/rdbms/shared"
)

var testLog = logger.NewLogger("fieldpipe", "error", false)

const widgetCatalog = `
- name: widget
  tenantScoped: true
  dateFields: [dateUpdated]
  idField: widgetID
  idListField: widgetIDs
  table: WIDGET_FACT
  staging:
    key: WIDGET_ID
    lastUpdated: DATE_UPDATED
    columns:
      - {name: WIDGET_ID, path: widgetID, kind: number, type: NUMBER}
      - {name: DATE_UPDATED, path: dateUpdated, kind: timestamp, type: TIMESTAMP_NTZ}
      - {name: IS_ACTIVE, path: status, kind: flag, type: BOOLEAN}
    statistics:
      - {name: active_widgets, expression: "SUM(CASE WHEN IS_ACTIVE THEN 1 ELSE 0 END)"}
- name: gadget
  tenantScoped: false
  dateFields: []
  idField: gadgetID
  idListField: gadgetIDs
  table: GADGET_DIM
  staging:
    key: GADGET_ID
    lastUpdated: DATE_UPDATED
    columns:
      - {name: GADGET_ID, path: gadgetID, kind: number, type: NUMBER}
      - {name: DATE_UPDATED, path: dateUpdated, kind: timestamp, type: TIMESTAMP_NTZ}
`

func widgetCat(t *testing.T) *catalog.Catalog {
	c, err := catalog.Parse([]byte(widgetCatalog))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGenerateMergeSql(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := widgetCat(t).Get("widget")
	raw := rdbms.NewSchemaTable("RAW_DB_DEV", "FIELDROUTES", "WIDGET_FACT")
	stg := rdbms.NewSchemaTable("STAGING_DB_DEV", "FIELDROUTES", "WIDGET_FACT")

	expected := `MERGE INTO STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT AS tgt USING (
SELECT RAW_JSON:widgetID::NUMBER AS WIDGET_ID,
TRY_TO_TIMESTAMP_NTZ(NULLIF(RAW_JSON:dateUpdated::STRING, '0000-00-00 00:00:00')) AS DATE_UPDATED,
CASE WHEN RAW_JSON:status::STRING = '1' THEN TRUE ELSE FALSE END AS IS_ACTIVE,
LOAD_TIMESTAMP AS RAW_LOAD_TIMESTAMP, BATCH_ID, SOURCE_FILE
FROM RAW_DB_DEV.FIELDROUTES.WIDGET_FACT
WHERE RAW_JSON:widgetID::NUMBER IS NOT NULL AND BATCH_ID = ?
QUALIFY ROW_NUMBER() OVER (PARTITION BY RAW_JSON:widgetID::NUMBER
ORDER BY TRY_TO_TIMESTAMP_NTZ(NULLIF(RAW_JSON:dateUpdated::STRING, '0000-00-00 00:00:00')) DESC NULLS LAST, LOAD_TIMESTAMP DESC) = 1
) AS src
ON tgt.WIDGET_ID = src.WIDGET_ID
WHEN MATCHED AND (src.DATE_UPDATED > tgt.DATE_UPDATED OR (src.RAW_LOAD_TIMESTAMP > tgt.RAW_LOAD_TIMESTAMP
AND (src.DATE_UPDATED >= tgt.DATE_UPDATED OR src.DATE_UPDATED IS NULL OR tgt.DATE_UPDATED IS NULL))) THEN UPDATE SET
tgt.DATE_UPDATED = src.DATE_UPDATED, tgt.IS_ACTIVE = src.IS_ACTIVE,
tgt.RAW_LOAD_TIMESTAMP = src.RAW_LOAD_TIMESTAMP, tgt.STAGING_LOAD_TIMESTAMP = CURRENT_TIMESTAMP(),
tgt.BATCH_ID = src.BATCH_ID, tgt.SOURCE_FILE = src.SOURCE_FILE
WHEN NOT MATCHED THEN INSERT (WIDGET_ID, DATE_UPDATED, IS_ACTIVE, RAW_LOAD_TIMESTAMP, STAGING_LOAD_TIMESTAMP, BATCH_ID, SOURCE_FILE)
VALUES (src.WIDGET_ID, src.DATE_UPDATED, src.IS_ACTIVE, src.RAW_LOAD_TIMESTAMP, CURRENT_TIMESTAMP(), src.BATCH_ID, src.SOURCE_FILE)`

	got := GenerateMergeSql(NewMergeSqlConfig(e, raw, stg, true))
	g.Expect(h.NormaliseWhiteSpace(got)).To(Equal(h.NormaliseWhiteSpace(expected)))

	// Without a batch the source is the whole raw table.
	got = GenerateMergeSql(NewMergeSqlConfig(e, raw, stg, false))
	g.Expect(got).NotTo(ContainSubstring("BATCH_ID = ?"))
	g.Expect(h.NormaliseWhiteSpace(got)).To(ContainSubstring("WHERE RAW_JSON:widgetID::NUMBER IS NOT NULL QUALIFY"))
}

func TestGenerateMergeSqlCustomerIsActive(t *testing.T) {
	g := NewGomegaWithT(t)
	e, err := catalog.Default().Get("customer")
	g.Expect(err).To(BeNil())
	got := GenerateMergeSql(NewMergeSqlConfig(e,
		rdbms.NewSchemaTable("RAW_DB_DEV", "FIELDROUTES", e.Table),
		rdbms.NewSchemaTable("STAGING_DB_DEV", "FIELDROUTES", e.Table), true))
	g.Expect(got).To(ContainSubstring("CASE WHEN RAW_JSON:status::STRING = '1' THEN TRUE ELSE FALSE END AS IS_ACTIVE"))
	g.Expect(got).To(ContainSubstring("PARTITION BY RAW_JSON:customerID::NUMBER"))
	g.Expect(got).To(ContainSubstring("ON tgt.CUSTOMER_ID = src.CUSTOMER_ID"))
}

func TestGenerateTableDDL(t *testing.T) {
	g := NewGomegaWithT(t)
	e, _ := widgetCat(t).Get("widget")
	expected := `CREATE TABLE IF NOT EXISTS STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT (
WIDGET_ID NUMBER PRIMARY KEY, DATE_UPDATED TIMESTAMP_NTZ, IS_ACTIVE BOOLEAN,
RAW_LOAD_TIMESTAMP TIMESTAMP_NTZ, STAGING_LOAD_TIMESTAMP TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP(),
BATCH_ID VARCHAR(255), SOURCE_FILE VARCHAR(255) )`
	got := GenerateTableDDL(e, rdbms.NewSchemaTable("STAGING_DB_DEV", "FIELDROUTES", "WIDGET_FACT"))
	g.Expect(h.NormaliseWhiteSpace(got)).To(Equal(h.NormaliseWhiteSpace(expected)))
}

func mergeCounts(ins, upd int64) shared.Rows {
	return shared.NewMockRows([]string{"number of rows inserted", "number of rows updated"}, []interface{}{ins, upd})
}

func TestMergeEntityHappyPath(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	db.OnQuery = func(q string, args []interface{}) (shared.Rows, error) {
		return mergeCounts(3, 1), nil
	}
	m := NewMerger(testLog, db, widgetCat(t))

	r, err := m.MergeEntity(context.Background(), "widget", "b1")
	g.Expect(err).To(BeNil())
	g.Expect(r.Success).To(BeTrue())
	g.Expect(r.State).To(Equal(StateMerged))
	g.Expect(r.RowsInserted).To(Equal(int64(3)))
	g.Expect(r.RowsUpdated).To(Equal(int64(1)))
	g.Expect(r.TotalRowsProcessed).To(Equal(int64(4)))
	g.Expect(r.Table).To(Equal("STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT"))

	stmts := db.Statements()
	g.Expect(stmts).To(HaveLen(6))
	g.Expect(stmts[0].Sql).To(Equal("CREATE DATABASE IF NOT EXISTS STAGING_DB_DEV"))
	g.Expect(stmts[1].Sql).To(Equal("CREATE SCHEMA IF NOT EXISTS STAGING_DB_DEV.FIELDROUTES"))
	g.Expect(stmts[2].Sql).To(Equal("CREATE SCHEMA IF NOT EXISTS RAW_DB_DEV.FIELDROUTES"))
	g.Expect(stmts[3].Sql).To(HavePrefix("CREATE TABLE IF NOT EXISTS RAW_DB_DEV.FIELDROUTES.WIDGET_FACT"))
	g.Expect(stmts[4].Sql).To(HavePrefix("CREATE TABLE IF NOT EXISTS STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT"))
	g.Expect(stmts[5].Sql).To(HavePrefix("MERGE INTO STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT"))
	g.Expect(stmts[5].InTx).To(BeTrue())
	g.Expect(stmts[5].Args).To(Equal([]interface{}{"b1"}))
	g.Expect(db.Commits()).To(Equal(1))
}

func TestMergeEntityUnknown(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	m := NewMerger(testLog, db, widgetCat(t))
	r, err := m.MergeEntity(context.Background(), "nope", "")
	g.Expect(catalog.IsUnknownEntity(err)).To(BeTrue())
	g.Expect(r.State).To(Equal(StateFailed))
	g.Expect(db.Statements()).To(BeEmpty())

	_, err = m.MergeEntities(context.Background(), []string{"widget", "nope"}, "")
	g.Expect(catalog.IsUnknownEntity(err)).To(BeTrue())
	g.Expect(db.Statements()).To(BeEmpty(), "names are validated before any statement runs")
}

func TestMergeFailureDoesNotStopSiblings(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	db.FailOn = func(q string) error {
		if strings.HasPrefix(q, "MERGE INTO STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT") {
			return errors.New("numeric value 'abc' is not recognized")
		}
		return nil
	}
	db.OnQuery = func(q string, args []interface{}) (shared.Rows, error) {
		return mergeCounts(2, 0), nil
	}
	m := NewMerger(testLog, db, widgetCat(t))

	s := m.MergeAll(context.Background(), "")
	g.Expect(s.Success).To(BeFalse())
	g.Expect(s.TotalEntities).To(Equal(2))
	g.Expect(s.Successful).To(Equal(1))
	g.Expect(s.Failed).To(Equal(1))
	g.Expect(s.RowsInserted).To(Equal(int64(2)))
	g.Expect(s.Entities[0].Entity).To(Equal("widget"))
	g.Expect(s.Entities[0].State).To(Equal(StateFailed))
	g.Expect(s.Entities[0].Error).To(ContainSubstring("numeric value 'abc'"))
	g.Expect(s.Entities[1].State).To(Equal(StateMerged))
	g.Expect(db.Rollbacks()).To(Equal(1))
	g.Expect(db.Commits()).To(Equal(1))
	// No batch filter means no bind arguments.
	g.Expect(db.StatementsContaining("MERGE INTO STAGING_DB_DEV.FIELDROUTES.GADGET_DIM")[0].Args).To(BeEmpty())
}

func TestMergeFailsWhenTableCannotBeCreated(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	db.FailOn = func(q string) error {
		if strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS STAGING_DB_DEV") {
			return errors.New("insufficient privileges")
		}
		return nil
	}
	r, err := NewMerger(testLog, db, widgetCat(t)).MergeEntity(context.Background(), "widget", "")
	g.Expect(err).To(BeNil())
	g.Expect(r.Success).To(BeFalse())
	g.Expect(r.State).To(Equal(StateFailed))
	g.Expect(r.Error).To(ContainSubstring("insufficient privileges"))
	g.Expect(db.StatementsContaining("MERGE")).To(BeEmpty())
}

func TestStatistics(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	earliest := time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)
	db.OnQuery = func(q string, args []interface{}) (shared.Rows, error) {
		return shared.NewMockRows([]string{"TOTAL_RECORDS", "EARLIEST_UPDATE", "LATEST_UPDATE", "UNIQUE_BATCHES", "ACTIVE_WIDGETS"},
			[]interface{}{int64(10), earliest, nil, int64(2), "7"}), nil
	}
	m := NewMerger(testLog, db, widgetCat(t))

	q, err := m.StatisticsSql("widget")
	g.Expect(err).To(BeNil())
	g.Expect(q).To(Equal("SELECT COUNT(*) AS total_records, MIN(DATE_UPDATED) AS earliest_update, MAX(DATE_UPDATED) AS latest_update, " +
		"COUNT(DISTINCT BATCH_ID) AS unique_batches, SUM(CASE WHEN IS_ACTIVE THEN 1 ELSE 0 END) AS active_widgets " +
		"FROM STAGING_DB_DEV.FIELDROUTES.WIDGET_FACT"))

	s, err := m.Statistics(context.Background(), "widget")
	g.Expect(err).To(BeNil())
	g.Expect(s.TotalRecords).To(Equal(int64(10)))
	g.Expect(*s.EarliestUpdate).To(Equal("2025-06-08 10:00:00"))
	g.Expect(s.LatestUpdate).To(BeNil())
	g.Expect(s.UniqueBatches).To(Equal(int64(2)))
	g.Expect(s.Extra).To(Equal(map[string]interface{}{"active_widgets": int64(7)}))
}

func TestSupersedes(t *testing.T) {
	g := NewGomegaWithT(t)
	t1 := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	l1 := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	l2 := l1.Add(time.Minute)

	g.Expect(Supersedes(Version{&t1, l2}, Version{&t2, l1})).To(BeTrue(), "later last-updated wins even if loaded earlier")
	g.Expect(Supersedes(Version{&t2, l1}, Version{&t1, l2})).To(BeFalse(), "older last-updated never wins")
	g.Expect(Supersedes(Version{&t1, l1}, Version{&t1, l2})).To(BeTrue(), "equal last-updated falls to raw load")
	g.Expect(Supersedes(Version{&t1, l1}, Version{&t1, l1})).To(BeFalse(), "same capture is a no-op")
	g.Expect(Supersedes(Version{nil, l1}, Version{&t1, l2})).To(BeTrue())
	g.Expect(Supersedes(Version{&t1, l2}, Version{nil, l1})).To(BeFalse())

	g.Expect(Newer(Version{&t2, l1}, Version{&t1, l2})).To(BeTrue())
	g.Expect(Newer(Version{nil, l2}, Version{&t1, l1})).To(BeFalse(), "nulls sort last")
	g.Expect(Newer(Version{&t1, l2}, Version{&t1, l1})).To(BeTrue())
}

func TestMergeSqlMatchedClauseFollowsSupersedes(t *testing.T) {
	e, _ := widgetCat(t).Get("widget")
	raw := rdbms.NewSchemaTable("RAW_DB_DEV", "FIELDROUTES", "WIDGET_FACT")
	stg := rdbms.NewSchemaTable("STAGING_DB_DEV", "FIELDROUTES", "WIDGET_FACT")
	sql := h.NormaliseWhiteSpace(GenerateMergeSql(NewMergeSqlConfig(e, raw, stg, false)))
	from := strings.Index(sql, "WHEN MATCHED AND ") + len("WHEN MATCHED AND ")
	to := strings.Index(sql, " THEN UPDATE SET")
	if from < len("WHEN MATCHED AND ") || to < from {
		t.Fatalf("no WHEN MATCHED clause in %v", sql)
	}
	clause := sql[from:to]

	t1 := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	l1 := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	l2 := l1.Add(time.Minute)
	updated := []*time.Time{nil, &t1, &t2}
	loads := [][2]time.Time{{l1, l2}, {l2, l1}, {l1, l1}}
	for _, storedLU := range updated {
		for _, incomingLU := range updated {
			for _, l := range loads {
				stored := Version{LastUpdated: storedLU, RawLoaded: l[0]}
				incoming := Version{LastUpdated: incomingLU, RawLoaded: l[1]}
				got := evalPredicate(clause, map[string]*time.Time{
					"src.DATE_UPDATED":           incoming.LastUpdated,
					"tgt.DATE_UPDATED":           stored.LastUpdated,
					"src." + ColRawLoadTimestamp: &incoming.RawLoaded,
					"tgt." + ColRawLoadTimestamp: &stored.RawLoaded,
				}) == sqlTrue
				if got != Supersedes(stored, incoming) {
					t.Errorf("stored %+v incoming %+v: SQL says %v", stored, incoming, got)
				}
			}
		}
	}
}

// fakeWarehouse applies MERGE statements in memory using the same latest-wins rules as the SQL.
type capture struct {
	key         int64
	lastUpdated *time.Time
	loaded      time.Time
	batch       string
	status      string
}

func (c capture) version() Version {
	return Version{LastUpdated: c.lastUpdated, RawLoaded: c.loaded}
}

type fakeWarehouse struct {
	raw    []capture
	staged map[int64]capture
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{staged: map[int64]capture{}}
}

func (w *fakeWarehouse) onQuery(q string, args []interface{}) (shared.Rows, error) {
	if !strings.HasPrefix(q, "MERGE INTO") {
		return shared.NewMockRows(nil), nil
	}
	batch := ""
	if len(args) == 1 {
		batch = args[0].(string)
	}
	best := map[int64]capture{}
	for _, c := range w.raw {
		if batch != "" && c.batch != batch {
			continue
		}
		if b, ok := best[c.key]; !ok || Newer(c.version(), b.version()) {
			best[c.key] = c
		}
	}
	var ins, upd int64
	for k, c := range best {
		s, ok := w.staged[k]
		switch {
		case !ok:
			w.staged[k] = c
			ins++
		case Supersedes(s.version(), c.version()):
			w.staged[k] = c
			upd++
		}
	}
	return mergeCounts(ins, upd), nil
}

func newFakeMerger(t *testing.T, w *fakeWarehouse) *Merger {
	db := shared.NewMockConnection()
	db.OnQuery = w.onQuery
	return NewMerger(testLog, db, widgetCat(t))
}

func TestMergeIsIdempotent(t *testing.T) {
	g := NewGomegaWithT(t)
	ts := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	loaded := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	w := newFakeWarehouse()
	for k := int64(1); k <= 3; k++ {
		w.raw = append(w.raw, capture{key: k, lastUpdated: &ts, loaded: loaded, batch: "b1", status: "1"})
	}
	w.raw = append(w.raw, capture{key: 1, lastUpdated: &ts, loaded: loaded.Add(-time.Hour), batch: "b1", status: "0"})
	m := newFakeMerger(t, w)

	first, err := m.MergeEntity(context.Background(), "widget", "b1")
	g.Expect(err).To(BeNil())
	g.Expect(first.RowsInserted).To(Equal(int64(3)))
	g.Expect(first.RowsUpdated).To(Equal(int64(0)))
	snapshot := map[int64]capture{}
	for k, v := range w.staged {
		snapshot[k] = v
	}
	g.Expect(w.staged[1].status).To(Equal("1"), "latest raw load of a key wins within a batch")

	second, err := m.MergeEntity(context.Background(), "widget", "b1")
	g.Expect(err).To(BeNil())
	g.Expect(second.RowsInserted).To(Equal(int64(0)))
	g.Expect(second.RowsUpdated).To(Equal(int64(0)))
	g.Expect(w.staged).To(Equal(snapshot))
}

func TestMergeLatestWinsInEitherLoadOrder(t *testing.T) {
	t1 := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	l1 := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	l2 := l1.Add(time.Hour)
	cases := []struct {
		name   string
		first  capture
		second capture
	}{
		{"older first", capture{key: 9, lastUpdated: &t1, loaded: l1, batch: "b1", status: "T1"}, capture{key: 9, lastUpdated: &t2, loaded: l2, batch: "b2", status: "T2"}},
		{"newer first", capture{key: 9, lastUpdated: &t2, loaded: l1, batch: "b1", status: "T2"}, capture{key: 9, lastUpdated: &t1, loaded: l2, batch: "b2", status: "T1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			// Merge after each load.
			w := newFakeWarehouse()
			m := newFakeMerger(t, w)
			w.raw = append(w.raw, tc.first)
			_, err := m.MergeEntity(context.Background(), "widget", tc.first.batch)
			g.Expect(err).To(BeNil())
			w.raw = append(w.raw, tc.second)
			_, err = m.MergeEntity(context.Background(), "widget", tc.second.batch)
			g.Expect(err).To(BeNil())
			g.Expect(w.staged[9].status).To(Equal("T2"))

			// One merge over the whole raw table.
			w = newFakeWarehouse()
			m = newFakeMerger(t, w)
			w.raw = append(w.raw, tc.first, tc.second)
			r, err := m.MergeEntity(context.Background(), "widget", "")
			g.Expect(err).To(BeNil())
			g.Expect(r.RowsInserted).To(Equal(int64(1)))
			g.Expect(w.staged[9].status).To(Equal("T2"))
		})
	}
}
