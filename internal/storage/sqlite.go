package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-sqlite3"

	"github.com/arkilian/simpleorm/internal/logx"
	"github.com/arkilian/simpleorm/pkg/errors"
)

// SQLiteOptions configures the SQLite engine.
type SQLiteOptions struct {
	// JournalMode is the SQLite journal mode (default WAL)
	JournalMode string

	// BusyTimeoutMs is how long a statement waits on a locked database
	BusyTimeoutMs int

	// StmtCacheSize bounds the prepared statement cache
	StmtCacheSize int

	// Logger receives engine messages (nil logs through the process logger)
	Logger *logx.Logger
}

// DefaultSQLiteOptions returns the default engine options.
func DefaultSQLiteOptions() SQLiteOptions {
	return SQLiteOptions{
		JournalMode:   "WAL",
		BusyTimeoutMs: 5000,
		StmtCacheSize: 64,
	}
}

// SQLiteEngine implements Engine over a single SQLite file.
type SQLiteEngine struct {
	db   *sql.DB // Single connection shared by every table
	path string
	log  *logx.Logger

	// Prepared statement cache, keyed by SQL text
	stmts  *lru.Cache[string, *sql.Stmt]
	stmtMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the SQLite file at path.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteEngine, error) {
	defaults := DefaultSQLiteOptions()
	if opts.JournalMode == "" {
		opts.JournalMode = defaults.JournalMode
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = defaults.BusyTimeoutMs
	}
	if opts.StmtCacheSize <= 0 {
		opts.StmtCacheSize = defaults.StmtCacheSize
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", path, opts.JournalMode, opts.BusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify(fmt.Sprintf("open %s", path), err)
	}

	stmts, err := lru.NewWithEvict[string, *sql.Stmt](opts.StmtCacheSize, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to create statement cache: %w", err)
	}

	opts.Logger.Printf("storage: opened %s (journal=%s)", path, opts.JournalMode)
	return &SQLiteEngine{db: db, path: path, log: opts.Logger, stmts: stmts}, nil
}

// Path returns the database file path.
func (e *SQLiteEngine) Path() string {
	return e.path
}

// Execute runs a DDL statement. Cached statements are dropped afterwards
// since they may refer to a table that no longer has the same shape.
func (e *SQLiteEngine) Execute(ctx context.Context, stmt string) error {
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return classify("execute", err)
	}
	e.purgeStatements()
	return nil
}

func (e *SQLiteEngine) Insert(ctx context.Context, table string, row Row) (int64, error) {
	return insert(ctx, e.runner(), table, row)
}

func (e *SQLiteEngine) Update(ctx context.Context, table string, row Row, where string, args ...any) (int64, error) {
	return update(ctx, e.runner(), table, row, where, args)
}

func (e *SQLiteEngine) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return deleteRows(ctx, e.runner(), table, where, args)
}

func (e *SQLiteEngine) Query(ctx context.Context, table string, q Query) ([]Row, error) {
	return query(ctx, e.runner(), table, q)
}

func (e *SQLiteEngine) QueryCursor(ctx context.Context, table string, q Query) (Cursor, error) {
	return queryCursor(ctx, e.runner(), table, q)
}

func (e *SQLiteEngine) CountRows(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, e.runner(), table)
}

// Begin starts a transaction.
func (e *SQLiteEngine) Begin(ctx context.Context) (Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	return &sqliteTx{tx: tx, engine: e}, nil
}

// Tables lists the user tables of the database in name order.
func (e *SQLiteEngine) Tables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, classify("list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify("list tables", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list tables", err)
	}
	return tables, nil
}

// TableSQL returns the CREATE TABLE text SQLite recorded for table. SQLite
// keeps the statement without its IF NOT EXISTS clause and trailing semicolon.
func (e *SQLiteEngine) TableSQL(ctx context.Context, table string) (string, bool, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE", table)
	if err != nil {
		return "", false, classify("inspect table", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", false, classify("inspect table", err)
		}
		return "", false, nil
	}
	var stmt string
	if err := rows.Scan(&stmt); err != nil {
		return "", false, classify("inspect table", err)
	}
	return stmt, true, nil
}

// Close releases cached statements and the connection.
func (e *SQLiteEngine) Close() error {
	e.purgeStatements()
	if err := e.db.Close(); err != nil {
		return classify("close", err)
	}
	e.log.Printf("storage: closed %s", e.path)
	return nil
}

func (e *SQLiteEngine) runner() runner {
	return &dbRunner{e: e}
}

func (e *SQLiteEngine) prepare(ctx context.Context, q string) (*sql.Stmt, error) {
	e.stmtMu.Lock()
	defer e.stmtMu.Unlock()

	if stmt, ok := e.stmts.Get(q); ok {
		return stmt, nil
	}
	stmt, err := e.db.PrepareContext(ctx, q)
	if err != nil {
		return nil, err
	}
	e.stmts.Add(q, stmt)
	return stmt, nil
}

func (e *SQLiteEngine) purgeStatements() {
	e.stmtMu.Lock()
	defer e.stmtMu.Unlock()
	e.stmts.Purge()
}

// sqliteTx implements Tx. Statements run directly on the transaction: the
// cached statements belong to the pool's only connection, which the
// transaction holds.
type sqliteTx struct {
	tx     *sql.Tx
	engine *SQLiteEngine
	ddl    bool
}

func (t *sqliteTx) Execute(ctx context.Context, stmt string) error {
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return classify("execute", err)
	}
	t.ddl = true
	return nil
}

func (t *sqliteTx) Insert(ctx context.Context, table string, row Row) (int64, error) {
	return insert(ctx, t.tx, table, row)
}

func (t *sqliteTx) Update(ctx context.Context, table string, row Row, where string, args ...any) (int64, error) {
	return update(ctx, t.tx, table, row, where, args)
}

func (t *sqliteTx) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return deleteRows(ctx, t.tx, table, where, args)
}

func (t *sqliteTx) Query(ctx context.Context, table string, q Query) ([]Row, error) {
	return query(ctx, t.tx, table, q)
}

func (t *sqliteTx) QueryCursor(ctx context.Context, table string, q Query) (Cursor, error) {
	return queryCursor(ctx, t.tx, table, q)
}

func (t *sqliteTx) CountRows(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, t.tx, table)
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return classify("commit", err)
	}
	if t.ddl {
		t.engine.purgeStatements()
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		return classify("rollback", err)
	}
	return nil
}

// runner is the subset of *sql.DB / *sql.Tx the statement helpers need.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// dbRunner routes engine-level statements through the statement cache.
type dbRunner struct {
	e *SQLiteEngine
}

func (r *dbRunner) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	stmt, err := r.e.prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

func (r *dbRunner) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	stmt, err := r.e.prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

func insert(ctx context.Context, r runner, table string, row Row) (int64, error) {
	var q string
	if row.Len() == 0 {
		q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", row.Len()), ", ")
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(row.Columns, ", "), placeholders)
	}

	res, err := r.ExecContext(ctx, q, row.Values...)
	if err != nil {
		return 0, classify(fmt.Sprintf("insert into %s", table), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify(fmt.Sprintf("insert into %s", table), err)
	}
	return id, nil
}

func update(ctx context.Context, r runner, table string, row Row, where string, args []any) (int64, error) {
	if row.Len() == 0 {
		return 0, nil
	}
	sets := make([]string, row.Len())
	for i, c := range row.Columns {
		sets[i] = c + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	if where != "" {
		q += " WHERE " + where
	}

	all := make([]any, 0, row.Len()+len(args))
	all = append(all, row.Values...)
	all = append(all, args...)

	res, err := r.ExecContext(ctx, q, all...)
	if err != nil {
		return 0, classify(fmt.Sprintf("update %s", table), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Sprintf("update %s", table), err)
	}
	return n, nil
}

func deleteRows(ctx context.Context, r runner, table string, where string, args []any) (int64, error) {
	q := "DELETE FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	res, err := r.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(fmt.Sprintf("delete from %s", table), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Sprintf("delete from %s", table), err)
	}
	return n, nil
}

func query(ctx context.Context, r runner, table string, q Query) ([]Row, error) {
	rows, err := r.QueryContext(ctx, buildSelect(table, q), q.Args...)
	if err != nil {
		return nil, classify(fmt.Sprintf("query %s", table), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(fmt.Sprintf("query %s", table), err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(fmt.Sprintf("scan %s", table), err)
		}
		names := make([]string, len(cols))
		copy(names, cols)
		result = append(result, Row{Columns: names, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Sprintf("query %s", table), err)
	}
	return result, nil
}

func queryCursor(ctx context.Context, r runner, table string, q Query) (Cursor, error) {
	rows, err := r.QueryContext(ctx, buildSelect(table, q), q.Args...)
	if err != nil {
		return nil, classify(fmt.Sprintf("query %s", table), err)
	}
	return rows, nil
}

func countRows(ctx context.Context, r runner, table string) (int64, error) {
	rows, err := r.QueryContext(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return 0, classify(fmt.Sprintf("count %s", table), err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, classify(fmt.Sprintf("count %s", table), err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, classify(fmt.Sprintf("count %s", table), err)
	}
	return n, nil
}

func buildSelect(table string, q Query) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(q.Columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if q.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where)
	}
	if q.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(q.GroupBy)
	}
	if q.Having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(q.Having)
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String()
}

// classify wraps a driver error into a storage error, marking busy and
// locked conditions retryable.
func classify(op string, err error) error {
	var se sqlite3.Error
	if stderrors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return errors.NewStorageError(errors.CodeBusy, op, err)
		case sqlite3.ErrConstraint:
			return errors.NewStorageError(errors.CodeConstraint, op, err)
		}
	}
	return errors.NewStorageError(errors.CodeStorage, op, err)
}
