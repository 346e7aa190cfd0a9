package catalog

import (
	"fmt"

	"github.com/relloyd/fieldpipe/constants"
)

// ColumnKind says how a raw JSON attribute is projected into a typed staging column.
type ColumnKind string

const (
	KindString    ColumnKind = "string"
	KindNumber    ColumnKind = "number"
	KindTimestamp ColumnKind = "timestamp"
	KindDate      ColumnKind = "date"
	KindFlag      ColumnKind = "flag"
)

func (k ColumnKind) valid() bool {
	switch k {
	case KindString, KindNumber, KindTimestamp, KindDate, KindFlag:
		return true
	}
	return false
}

// Column maps one attribute path in RAW_JSON to a staging column.
type Column struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Kind ColumnKind `json:"kind"`
	Type string     `json:"type"` // warehouse data type used in the table DDL
}

// Expression returns the SQL that projects the column from RAW_JSON.
// Timestamps are parsed leniently: the all-zero sentinel and unparseable values become NULL.
func (c Column) Expression() string {
	switch c.Kind {
	case KindNumber:
		return fmt.Sprintf("RAW_JSON:%v::%v", c.Path, c.Type)
	case KindTimestamp:
		return fmt.Sprintf("TRY_TO_TIMESTAMP_NTZ(NULLIF(RAW_JSON:%v::STRING, '%v'))", c.Path, constants.ZeroDateTimeSentinel)
	case KindDate:
		return fmt.Sprintf("TRY_TO_DATE(RAW_JSON:%v::STRING)", c.Path)
	case KindFlag:
		return fmt.Sprintf("CASE WHEN RAW_JSON:%v::STRING = '1' THEN TRUE ELSE FALSE END", c.Path)
	default:
		return fmt.Sprintf("RAW_JSON:%v::STRING", c.Path)
	}
}

// Definition returns the column clause used in CREATE TABLE.
func (c Column) Definition() string {
	return fmt.Sprintf("%v %v", c.Name, c.Type)
}

// Statistic is an extra aggregate reported for a staging table.
type Statistic struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}
