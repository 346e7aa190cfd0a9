package shared

import (
	"context"
)

// Connector abstracts all access to Go SQL functionality so components can be tested without a
// warehouse.
type Connector interface {
	Begin(ctx context.Context) (Transacter, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	Close()
	GetType() string
}

// Transacter is a unit of work on a Connector.
type Transacter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	Commit() error
	Rollback() error
}

type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows is satisfied by *sql.Rows.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// SqlStmtGenerator returns the SQL text to execute.
type SqlStmtGenerator interface {
	GetStatement() string
}

// SqlStmtTxtBatcher is used to combine rows into one multi-row statement, aiming to reduce network
// round trips.
type SqlStmtTxtBatcher interface {
	SqlStmtGenerator
	InitBatch(batchSize int)                             // reset variables and preallocate slices for the given batch size.
	AddValuesToBatch(values []interface{}) (bool, error) // add values to SQL statement; true means the batch is full.
	GetValues() []interface{}                            // all values added so far, to be bound to the statement.
	Len() int                                            // rows in the batch.
}
