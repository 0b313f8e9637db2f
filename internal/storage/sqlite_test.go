package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/simpleorm/pkg/errors"
)

const createItems = "CREATE TABLE IF NOT EXISTS Item(id INTEGER PRIMARY KEY AUTOINCREMENT, " +
	"code TEXT UNIQUE ON CONFLICT REPLACE, qty INTEGER, price REAL, data BLOB);"

func newTestEngine(t *testing.T) *SQLiteEngine {
	t.Helper()
	engine, err := OpenSQLite(filepath.Join(t.TempDir(), "storage_test.db"), SQLiteOptions{StmtCacheSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	require.NoError(t, engine.Execute(context.Background(), createItems))
	return engine
}

func itemRow(code string, qty int64, price float64) Row {
	var r Row
	r.Add("code", code)
	r.Add("qty", qty)
	r.Add("price", price)
	r.Add("data", []byte(code))
	return r
}

func TestRow(t *testing.T) {
	var r Row
	r.Add("a", int64(1))
	r.Add("b", "x")

	assert.Equal(t, 2, r.Len())
	v, ok := r.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = r.Get("c")
	assert.False(t, ok)
}

func TestSQLiteEngine_InsertQuery(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	id1, err := engine.Insert(ctx, "Item", itemRow("A", 2, 1.5))
	require.NoError(t, err)
	id2, err := engine.Insert(ctx, "Item", itemRow("B", 5, 3.25))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	rows, err := engine.Query(ctx, "Item", Query{OrderBy: "id"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	code, _ := rows[1].Get("code")
	qty, _ := rows[1].Get("qty")
	price, _ := rows[1].Get("price")
	data, _ := rows[1].Get("data")
	id, _ := rows[1].Get("id")
	assert.Equal(t, "B", code)
	assert.Equal(t, int64(5), qty)
	assert.Equal(t, 3.25, price)
	assert.Equal(t, []byte("B"), data)
	assert.Equal(t, int64(2), id)
}

func TestSQLiteEngine_QueryClauses(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for i, code := range []string{"A", "B", "C", "D"} {
		_, err := engine.Insert(ctx, "Item", itemRow(code, int64(i%2), float64(i)))
		require.NoError(t, err)
	}

	rows, err := engine.Query(ctx, "Item", Query{Where: "qty = ?", Args: []any{int64(1)}, OrderBy: "code DESC"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	code, _ := rows[0].Get("code")
	assert.Equal(t, "D", code)

	rows, err = engine.Query(ctx, "Item", Query{OrderBy: "id", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = engine.Query(ctx, "Item", Query{
		Columns: []string{"qty", "COUNT(*) AS n"},
		GroupBy: "qty",
		Having:  "COUNT(*) > ?",
		Args:    []any{int64(1)},
		OrderBy: "qty",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"qty", "n"}, rows[0].Columns)
	n, _ := rows[0].Get("n")
	assert.Equal(t, int64(2), n)
}

func TestSQLiteEngine_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	id, err := engine.Insert(ctx, "Item", itemRow("A", 1, 1))
	require.NoError(t, err)

	n, err := engine.Update(ctx, "Item", itemRow("A", 9, 1), "id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = engine.Update(ctx, "Item", itemRow("Z", 9, 1), "id = ?", int64(99))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = engine.Update(ctx, "Item", Row{}, "id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = engine.Delete(ctx, "Item", "id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = engine.Delete(ctx, "Item", "id = ?", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLiteEngine_UniqueReplace(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	_, err := engine.Insert(ctx, "Item", itemRow("A", 1, 1))
	require.NoError(t, err)
	id, err := engine.Insert(ctx, "Item", itemRow("A", 7, 1))
	require.NoError(t, err)

	count, err := engine.CountRows(ctx, "Item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, err := engine.Query(ctx, "Item", Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	qty, _ := rows[0].Get("qty")
	rowID, _ := rows[0].Get("id")
	assert.Equal(t, int64(7), qty)
	assert.Equal(t, id, rowID)
}

func TestSQLiteEngine_InsertDefaultValues(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	require.NoError(t, engine.Execute(ctx, "CREATE TABLE IF NOT EXISTS Marker(id INTEGER PRIMARY KEY AUTOINCREMENT);"))

	id, err := engine.Insert(ctx, "Marker", Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestSQLiteEngine_Transaction(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	tx, err := engine.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "Item", itemRow("A", 1, 1))
	require.NoError(t, err)
	n, err := tx.CountRows(ctx, "Item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "a second rollback is a no-op")

	n, err = engine.CountRows(ctx, "Item")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	tx, err = engine.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "Item", itemRow("B", 1, 1))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	n, err = engine.CountRows(ctx, "Item")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteEngine_DDLInTransactionPurgesCache(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	_, err := engine.Insert(ctx, "Item", itemRow("A", 1, 1))
	require.NoError(t, err)

	tx, err := engine.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Execute(ctx, "DROP TABLE IF EXISTS Item;"))
	require.NoError(t, tx.Execute(ctx, "CREATE TABLE IF NOT EXISTS Item(id INTEGER PRIMARY KEY AUTOINCREMENT, code TEXT);"))
	require.NoError(t, tx.Commit())

	var r Row
	r.Add("code", "fresh")
	id, err := engine.Insert(ctx, "Item", r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestSQLiteEngine_QueryCursor(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for _, code := range []string{"A", "B"} {
		_, err := engine.Insert(ctx, "Item", itemRow(code, 1, 1))
		require.NoError(t, err)
	}

	cur, err := engine.QueryCursor(ctx, "Item", Query{Columns: []string{"code"}, OrderBy: "code"})
	require.NoError(t, err)

	var codes []string
	for cur.Next() {
		var c string
		require.NoError(t, cur.Scan(&c))
		codes = append(codes, c)
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())
	assert.Equal(t, []string{"A", "B"}, codes)
}

func TestSQLiteEngine_Tables(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	tables, err := engine.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Item"}, tables)
}

func TestSQLiteEngine_Errors(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	_, err := engine.Query(ctx, "Missing", Query{})
	assert.ErrorIs(t, err, errors.ErrStorage)
	assert.False(t, errors.IsRetryable(err))

	err = engine.Execute(ctx, "CREATE TABLE Strict(id INTEGER PRIMARY KEY, name TEXT NOT NULL);")
	require.NoError(t, err)
	var r Row
	r.Add("name", nil)
	_, err = engine.Insert(ctx, "Strict", r)
	assert.ErrorIs(t, err, errors.ErrStorage)
	assert.Equal(t, errors.CodeConstraint, errors.GetCode(err))
}

func TestBuildSelect(t *testing.T) {
	assert.Equal(t, "SELECT * FROM T", buildSelect("T", Query{}))
	assert.Equal(t,
		"SELECT a, b FROM T WHERE a = ? GROUP BY b HAVING COUNT(*) > 1 ORDER BY a DESC LIMIT 5",
		buildSelect("T", Query{
			Columns: []string{"a", "b"},
			Where:   "a = ?",
			GroupBy: "b",
			Having:  "COUNT(*) > 1",
			OrderBy: "a DESC",
			Limit:   5,
		}))
}

func TestTableSQL(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	stmt, ok, err := engine.TableSQL(ctx, "item")
	require.NoError(t, err)
	assert.True(t, ok, "table names match case-insensitively")
	assert.Equal(t, "CREATE TABLE Item(id INTEGER PRIMARY KEY AUTOINCREMENT, "+
		"code TEXT UNIQUE ON CONFLICT REPLACE, qty INTEGER, price REAL, data BLOB)", stmt)

	_, ok, err = engine.TableSQL(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
