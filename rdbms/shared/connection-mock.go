package shared

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// MockStatement is one statement captured by MockConnection.
type MockStatement struct {
	Sql  string
	Args []interface{}
	InTx bool
}

// MockConnection is a Connector that records every statement instead of talking to a warehouse.
// FailOn may return an error to fail a statement; OnQuery supplies result sets for queries.
type MockConnection struct {
	FailOn  func(query string) error
	OnQuery func(query string, args []interface{}) (Rows, error)
	DbType  string

	mu         sync.Mutex
	statements []MockStatement
	commits    int
	rollbacks  int
	closed     bool
}

func NewMockConnection() *MockConnection {
	return &MockConnection{DbType: "mock"}
}

func (c *MockConnection) Begin(ctx context.Context) (Transacter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.FailOn != nil {
		if err := c.FailOn("BEGIN"); err != nil {
			return nil, err
		}
	}
	return &MockTx{conn: c}, nil
}

func (c *MockConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.exec(ctx, false, query, args)
}

func (c *MockConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return c.query(ctx, false, query, args)
}

func (c *MockConnection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockConnection) GetType() string {
	return c.DbType
}

// Statements returns a copy of everything executed so far.
func (c *MockConnection) Statements() []MockStatement {
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]MockStatement, len(c.statements))
	copy(retval, c.statements)
	return retval
}

// StatementsContaining returns captured statements whose SQL contains s.
func (c *MockConnection) StatementsContaining(s string) []MockStatement {
	var retval []MockStatement
	for _, st := range c.Statements() {
		if strings.Contains(st.Sql, s) {
			retval = append(retval, st)
		}
	}
	return retval
}

func (c *MockConnection) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *MockConnection) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

func (c *MockConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockConnection) record(inTx bool, query string, args []interface{}) error {
	c.mu.Lock()
	c.statements = append(c.statements, MockStatement{Sql: query, Args: args, InTx: inTx})
	c.mu.Unlock()
	if c.FailOn != nil {
		return c.FailOn(query)
	}
	return nil
}

func (c *MockConnection) exec(ctx context.Context, inTx bool, query string, args []interface{}) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.record(inTx, query, args); err != nil {
		return nil, err
	}
	return mockResult(0), nil
}

func (c *MockConnection) query(ctx context.Context, inTx bool, query string, args []interface{}) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.record(inTx, query, args); err != nil {
		return nil, err
	}
	if c.OnQuery != nil {
		return c.OnQuery(query, args)
	}
	return NewMockRows(nil), nil
}

// MockTx records statements against its parent MockConnection.
type MockTx struct {
	conn *MockConnection
	done bool
}

func (t *MockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.conn.exec(ctx, true, query, args)
}

func (t *MockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return t.conn.query(ctx, true, query, args)
}

func (t *MockTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if t.conn.FailOn != nil {
		if err := t.conn.FailOn("COMMIT"); err != nil {
			return err
		}
	}
	t.conn.mu.Lock()
	t.conn.commits++
	t.conn.mu.Unlock()
	return nil
}

func (t *MockTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.conn.mu.Lock()
	t.conn.rollbacks++
	t.conn.mu.Unlock()
	return nil
}

type mockResult int64

func (r mockResult) LastInsertId() (int64, error) { return 0, nil }
func (r mockResult) RowsAffected() (int64, error) { return int64(r), nil }

// MockRows is a canned result set.
type MockRows struct {
	cols []string
	data [][]interface{}
	idx  int
	err  error
}

// NewMockRows returns rows with the given column names and values.
func NewMockRows(cols []string, data ...[]interface{}) *MockRows {
	return &MockRows{cols: cols, data: data, idx: -1}
}

// WithError makes Err return err once iteration completes.
func (r *MockRows) WithError(err error) *MockRows {
	r.err = err
	return r
}

func (r *MockRows) Columns() ([]string, error) {
	return r.cols, nil
}

func (r *MockRows) Next() bool {
	if r.idx+1 >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *MockRows) Err() error {
	return r.err
}

func (r *MockRows) Close() error {
	return nil
}

func (r *MockRows) Scan(dest ...interface{}) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return fmt.Errorf("scan called without a current row")
	}
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %v destination arguments in Scan, got %v", len(row), len(dest))
	}
	for i, v := range row {
		if err := assign(dest[i], v); err != nil {
			return fmt.Errorf("column %v: %v", i, err)
		}
	}
	return nil
}

func assign(dest interface{}, v interface{}) error {
	switch d := dest.(type) {
	case sql.Scanner:
		return d.Scan(v)
	case *interface{}:
		*d = v
		return nil
	case *string:
		if v == nil {
			return fmt.Errorf("cannot scan NULL into *string")
		}
		*d = fmt.Sprint(v)
		return nil
	case *int64:
		switch n := v.(type) {
		case int64:
			*d = n
		case int:
			*d = int64(n)
		case float64:
			*d = int64(n)
		default:
			return fmt.Errorf("cannot scan %T into *int64", v)
		}
		return nil
	case *int:
		switch n := v.(type) {
		case int64:
			*d = int(n)
		case int:
			*d = n
		case float64:
			*d = int(n)
		default:
			return fmt.Errorf("cannot scan %T into *int", v)
		}
		return nil
	case *float64:
		switch n := v.(type) {
		case float64:
			*d = n
		case int64:
			*d = float64(n)
		case int:
			*d = float64(n)
		default:
			return fmt.Errorf("cannot scan %T into *float64", v)
		}
		return nil
	}
	return fmt.Errorf("unsupported scan destination %T", dest)
}
