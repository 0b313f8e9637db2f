// Package storage provides the relational storage engine the record mapper
// writes to: named tables with typed columns, addressed by SQL fragments.
package storage

import (
	"context"
)

// Row is one table row as ordered column names and values.
type Row struct {
	Columns []string
	Values  []any
}

// Add appends a column value.
func (r *Row) Add(column string, value any) {
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, value)
}

// Get returns the value of column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.Columns)
}

// Query describes a filtered table scan. Empty fields are omitted from the
// generated statement; Columns defaults to all columns and Limit <= 0 means
// no limit.
type Query struct {
	Columns []string
	Where   string
	Args    []any
	GroupBy string
	Having  string
	OrderBy string
	Limit   int
}

// Cursor iterates over query results without materializing them.
// *sql.Rows satisfies it.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Executor runs statements against the store, either directly or inside a
// transaction.
type Executor interface {
	// Execute runs a DDL statement.
	Execute(ctx context.Context, stmt string) error

	// Insert adds a row and returns its generated id.
	Insert(ctx context.Context, table string, row Row) (int64, error)

	// Update sets the row's columns on every row matching where and returns
	// the number of rows changed.
	Update(ctx context.Context, table string, row Row, where string, args ...any) (int64, error)

	// Delete removes the rows matching where and returns how many were removed.
	// An empty where removes every row.
	Delete(ctx context.Context, table string, where string, args ...any) (int64, error)

	// Query runs a filtered scan and returns all rows.
	Query(ctx context.Context, table string, q Query) ([]Row, error)

	// QueryCursor runs a filtered scan and returns an open cursor. The caller
	// must close it before issuing further statements on the same engine.
	QueryCursor(ctx context.Context, table string, q Query) (Cursor, error)

	// CountRows returns the number of rows in table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// Tx is an Executor bound to a transaction.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

// Engine is the storage engine: an Executor that can also start transactions.
type Engine interface {
	Executor

	// Begin starts a transaction. Statements issued on the engine itself
	// while the transaction is open wait for it to finish.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the underlying connection.
	Close() error
}

// Inspector is implemented by engines that can report the definition a table
// was created with.
type Inspector interface {
	// TableSQL returns the stored CREATE TABLE text of table. ok is false when
	// the table does not exist.
	TableSQL(ctx context.Context, table string) (stmt string, ok bool, err error)
}
