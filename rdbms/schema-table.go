package rdbms

import (
	"fmt"
	"regexp"
	"strings"
)

var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// SchemaTable is a fully qualified Snowflake object name: <database>.<schema>.<table>.
// Names are interpolated into SQL text so they are restricted to unquoted identifiers.
type SchemaTable struct {
	Database string `errorTxt:"database" mandatory:"yes"`
	Schema   string `errorTxt:"schema" mandatory:"yes"`
	Table    string `errorTxt:"table" mandatory:"yes"`
}

func NewSchemaTable(database, schema, table string) SchemaTable {
	return SchemaTable{Database: database, Schema: schema, Table: table}
}

// ParseSchemaTable splits "db.schema.table".
func ParseSchemaTable(s string) (SchemaTable, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return SchemaTable{}, fmt.Errorf("expected <database>.<schema>.<table>; got %q", s)
	}
	st := NewSchemaTable(parts[0], parts[1], parts[2])
	return st, st.Validate()
}

// Validate checks every part is a plain identifier.
func (st SchemaTable) Validate() error {
	for _, part := range []string{st.Database, st.Schema, st.Table} {
		if !reIdentifier.MatchString(part) {
			return fmt.Errorf("invalid identifier %q in %v", part, st.String())
		}
	}
	return nil
}

// SchemaName returns <database>.<schema>.
func (st SchemaTable) SchemaName() string {
	return st.Database + "." + st.Schema
}

// WithTable returns the same database and schema with another table.
func (st SchemaTable) WithTable(table string) SchemaTable {
	st.Table = table
	return st
}

func (st SchemaTable) String() string {
	return fmt.Sprintf("%v.%v.%v", st.Database, st.Schema, st.Table)
}
