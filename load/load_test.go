package load

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/relloyd/fieldpipe/aws/s3"
	"github.com/relloyd/fieldpipe/catalog"
	"github.com/relloyd/fieldpipe/fieldroutes"
	"github.com/relloyd/fieldpipe/logger"
	"github.com/relloyd/fieldpipe/rdbms"
	"github.com/relloyd/fieldpipe/rdbms/shared"
	"github.com/relloyd/fieldpipe/tenant"
)

var testLog = logger.NewLogger("fieldpipe", "error", false)

var rawTable = rdbms.NewSchemaTable("RAW_DB_DEV", "FIELDROUTES", "CUSTOMER_FACT")

func records(n int) []fieldroutes.Record {
	retval := make([]fieldroutes.Record, n)
	for idx := range retval {
		retval[idx] = fieldroutes.Record{"customerID": idx + 1, "status": "1"}
	}
	return retval
}

func TestAppendChunksAndCommits(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	l := &RawLoader{Db: db, ChunkSize: 5, RowsPerStatement: 2, Log: testLog}

	n, err := l.Append(context.Background(), rawTable, records(12), "b1", "fieldroutes_api_customer_office_1")
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(12))
	g.Expect(db.Commits()).To(Equal(3))
	g.Expect(db.Rollbacks()).To(Equal(0))

	g.Expect(db.StatementsContaining("CREATE SCHEMA IF NOT EXISTS RAW_DB_DEV.FIELDROUTES")).To(HaveLen(1))
	ddl := db.StatementsContaining("CREATE TABLE IF NOT EXISTS RAW_DB_DEV.FIELDROUTES.CUSTOMER_FACT")
	g.Expect(ddl).To(HaveLen(1))
	g.Expect(ddl[0].Sql).To(ContainSubstring("ID NUMBER AUTOINCREMENT PRIMARY KEY"))
	g.Expect(ddl[0].Sql).To(ContainSubstring("LOAD_TIMESTAMP TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP()"))

	inserts := db.StatementsContaining("INSERT INTO RAW_DB_DEV.FIELDROUTES.CUSTOMER_FACT")
	g.Expect(inserts).To(HaveLen(7)) // 2+2+1, 2+2+1, 2
	for _, st := range inserts {
		g.Expect(st.InTx).To(BeTrue())
	}
	g.Expect(inserts[0].Args).To(Equal([]interface{}{
		`{"customerID":1,"status":"1"}`, "fieldroutes_api_customer_office_1", "b1",
		`{"customerID":2,"status":"1"}`, "fieldroutes_api_customer_office_1", "b1",
	}))
	g.Expect(inserts[2].Args).To(HaveLen(3))
}

func TestAppendSkipsUnserialisableRecords(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	l := NewRawLoader(testLog, db)
	recs := records(3)
	recs[1] = fieldroutes.Record{"customerID": 2, "bad": make(chan int)}

	n, err := l.Append(context.Background(), rawTable, recs, "b1", "tag")
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(2))
	inserts := db.StatementsContaining("INSERT INTO")
	g.Expect(inserts).To(HaveLen(1))
	g.Expect(inserts[0].Args).To(HaveLen(6))
}

func TestAppendRollsBackFailedChunk(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	var mu sync.Mutex
	inserts := 0
	db.FailOn = func(q string) error {
		if strings.HasPrefix(q, "INSERT") {
			mu.Lock()
			defer mu.Unlock()
			inserts++
			if inserts == 2 {
				return errors.New("warehouse unavailable")
			}
		}
		return nil
	}
	l := &RawLoader{Db: db, ChunkSize: 5, RowsPerStatement: 5, Log: testLog}

	n, err := l.Append(context.Background(), rawTable, records(12), "b1", "tag")
	g.Expect(err).To(MatchError(ContainSubstring("warehouse unavailable")))
	g.Expect(err.Error()).To(ContainSubstring("rows 6-10"))
	g.Expect(n).To(Equal(5))
	g.Expect(db.Commits()).To(Equal(1))
	g.Expect(db.Rollbacks()).To(Equal(1))
}

func TestAppendNothing(t *testing.T) {
	g := NewGomegaWithT(t)
	db := shared.NewMockConnection()
	n, err := NewRawLoader(testLog, db).Append(context.Background(), rawTable, nil, "b1", "tag")
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(0))
	g.Expect(db.Statements()).To(BeEmpty())
}

func TestAppendStopsWhenCancelled(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRawLoader(testLog, shared.NewMockConnection()).Append(ctx, rawTable, records(1), "b1", "tag")
	g.Expect(err).To(Equal(context.Canceled))
}

type memClient struct {
	objects map[string][]byte
	fail    error
}

func (m *memClient) Put(ctx context.Context, key, contentType string, data []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.objects[key] = data
	return nil
}

func (m *memClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, s3.ErrKeyNotFound
	}
	return b, nil
}

func (m *memClient) List(ctx context.Context, key string) ([]string, error) {
	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, key) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestRawSinkLoadsAndArchives(t *testing.T) {
	g := NewGomegaWithT(t)
	ent, err := catalog.Default().Get("customer")
	g.Expect(err).To(BeNil())
	db := shared.NewMockConnection()
	mc := &memClient{objects: map[string][]byte{}}
	sink := &RawSink{
		Loader:   NewRawLoader(testLog, db),
		Database: "RAW_DB_DEV",
		Schema:   "FIELDROUTES",
		BatchID:  "full_pipeline_20250609_010203_x",
		Archiver: &S3Archiver{Client: mc, Log: testLog},
	}
	creds := tenant.Credentials{ID: "office_3", Name: "Office 3", APIKey: "k", Token: "t"}

	n, err := sink.Load(context.Background(), ent, creds, records(2))
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(2))
	inserts := db.StatementsContaining("INSERT INTO RAW_DB_DEV.FIELDROUTES." + ent.Table)
	g.Expect(inserts).To(HaveLen(1))
	g.Expect(inserts[0].Args[1]).To(Equal("fieldroutes_api_customer_office_3"))
	g.Expect(inserts[0].Args[2]).To(Equal("full_pipeline_20250609_010203_x"))

	keys, err := sink.Archiver.ListBatch(context.Background(), "customer", "full_pipeline_20250609_010203_x")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(Equal([]string{"customer/full_pipeline_20250609_010203_x/office_3.ndjson"}))
	g.Expect(string(mc.objects[keys[0]])).To(Equal("{\"customerID\":1,\"status\":\"1\"}\n{\"customerID\":2,\"status\":\"1\"}\n"))

	// Archive failures do not fail the load.
	mc.fail = errors.New("access denied")
	n, err = sink.Load(context.Background(), ent, creds, records(1))
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(1))
}
