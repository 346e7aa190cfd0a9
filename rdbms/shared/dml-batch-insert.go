package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/logger"
)

// RawCaptureColumns are the values supplied per row to RawInsertTxtBatch, in order.
var RawCaptureColumns = []string{"RAW_JSON", "SOURCE_FILE", "BATCH_ID"}

// RawInsertTxtBatch implements SqlStmtTxtBatcher for append-only raw capture tables.
// It generates one multi-row INSERT per batch; RAW_JSON is bound as text and parsed into a VARIANT.
type RawInsertTxtBatch struct {
	Log                    logger.Logger
	Table                  string // fully qualified <database>.<schema>.<table>
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
	sqlStmtTemplate        string
	sqlStmt                string
	sqlValues              []interface{}
}

// NewRawInsertGenerator returns a batcher that writes into table.
func NewRawInsertGenerator(log logger.Logger, table string) *RawInsertTxtBatch {
	o := &RawInsertTxtBatch{Log: log, Table: table}
	o.sqlStmtTemplate = fmt.Sprintf("INSERT INTO %v (%v) SELECT PARSE_JSON(column1), column2, column3 FROM VALUES <VALUES>",
		table, strings.Join(RawCaptureColumns, ", "))
	o.Log.Debug("setup raw INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
	return o
}

func (o *RawInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(RawCaptureColumns))
}

func (o *RawInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in INSERT batch")
	}
	if len(values) != len(RawCaptureColumns) {
		return false, errors.New("the number of values supplied does not match the number of table columns")
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++
	return o.rowsInBatch >= o.batchSize, nil
}

func (o *RawInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *RawInsertTxtBatch) Len() int {
	return o.rowsInBatch
}

// GetStatement returns SQL for the rows added so far.
// The statement is cached while consecutive batches have the same number of rows.
func (o *RawInsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch || o.sqlStmt == "" {
		row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(RawCaptureColumns)), ", ") + ")"
		allRows := make([]string, o.rowsInBatch)
		for idx := range allRows {
			allRows[idx] = row
		}
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", strings.Join(allRows, ", "), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	return o.sqlStmt
}
