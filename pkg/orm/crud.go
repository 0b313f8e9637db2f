package orm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/arkilian/simpleorm/internal/mapper"
	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Save inserts rec when it has no id yet and updates its row otherwise.
// Referenced records are saved first. The resulting id is set on rec and
// returned.
func (db *DB) Save(ctx context.Context, rec types.Record) (int64, error) {
	if rec == nil {
		return 0, errors.NewInvalidSchemaError("orm: cannot save a nil record")
	}
	engine, err := db.ensure(ctx, rec.RecordType())
	if err != nil {
		return 0, err
	}
	return mapper.NewSession(engine).WithLogger(db.log).Save(ctx, rec)
}

// Delete removes the row of rec. It reports whether a row was removed; in
// that case rec's id is reset to 0.
func (db *DB) Delete(ctx context.Context, rec types.Record) (bool, error) {
	if rec == nil {
		return false, errors.NewInvalidSchemaError("orm: cannot delete a nil record")
	}
	engine, err := db.ensure(ctx, rec.RecordType())
	if err != nil {
		return false, err
	}
	return mapper.NewSession(engine).WithLogger(db.log).Delete(ctx, rec)
}

// Get returns the records of rt matching q. Referenced records are loaded
// with one point query per reference.
func (db *DB) Get(ctx context.Context, rt *types.RecordType, q Query) ([]types.Record, error) {
	engine, err := db.ensure(ctx, rt)
	if err != nil {
		return nil, err
	}

	q.Columns = nil
	rows, err := engine.Query(ctx, rt.Name, q)
	if err != nil {
		return nil, errors.Annotate(err, map[string]interface{}{"table": rt.Name})
	}

	session := mapper.NewSession(engine).WithLogger(db.log)
	records := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := session.Deserialize(ctx, rt, row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetAll returns every record of rt.
func (db *DB) GetAll(ctx context.Context, rt *types.RecordType) ([]types.Record, error) {
	return db.Get(ctx, rt, Query{})
}

// SaveAll saves records of type rt in a single transaction. When any save
// fails the transaction is rolled back and every id assigned during the
// batch is reset to 0.
func (db *DB) SaveAll(ctx context.Context, rt *types.RecordType, records []types.Record) error {
	engine, err := db.ensure(ctx, rt)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if rec == nil {
			return errors.NewInvalidSchemaError(fmt.Sprintf("orm: record %d of batch is nil", i))
		}
		if rec.RecordType() != rt {
			return errors.NewInvalidSchemaError(fmt.Sprintf("orm: record %d of batch is a %s, not a %s",
				i, rec.RecordType().Name, rt.Name))
		}
	}
	if len(records) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	tx, err := engine.Begin(ctx)
	if err != nil {
		return err
	}
	db.log.Printf("orm: batch %s started (%d %s records)", batchID, len(records), rt.Name)

	session := mapper.NewSession(tx).WithLogger(db.log)
	for i, rec := range records {
		if _, err := session.Save(ctx, rec); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.log.Printf("[WARN] orm: batch %s rollback failed: %v", batchID, rbErr)
			}
			session.Revert()
			db.log.Printf("[WARN] orm: batch %s rolled back at record %d of %d: %v", batchID, i+1, len(records), err)
			return fmt.Errorf("orm: batch save of %s failed at record %d: %w", rt.Name, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		session.Revert()
		db.log.Printf("[WARN] orm: batch %s commit failed: %v", batchID, err)
		return fmt.Errorf("orm: batch save of %s failed to commit: %w", rt.Name, err)
	}
	db.log.Printf("orm: batch %s committed (%d inserted)", batchID, len(session.Inserted()))
	return nil
}

// DeleteWhere removes the rows of rt matching where and returns how many
// were removed. An empty where removes every row.
func (db *DB) DeleteWhere(ctx context.Context, rt *types.RecordType, where string, args ...any) (int64, error) {
	engine, err := db.ensure(ctx, rt)
	if err != nil {
		return 0, err
	}
	n, err := engine.Delete(ctx, rt.Name, where, args...)
	if err != nil {
		return 0, errors.Annotate(err, map[string]interface{}{"table": rt.Name})
	}
	return n, nil
}

// Count returns the number of rows of rt.
func (db *DB) Count(ctx context.Context, rt *types.RecordType) (int64, error) {
	engine, err := db.ensure(ctx, rt)
	if err != nil {
		return 0, err
	}
	n, err := engine.CountRows(ctx, rt.Name)
	if err != nil {
		return 0, errors.Annotate(err, map[string]interface{}{"table": rt.Name})
	}
	return n, nil
}

// QueryRaw runs q against the table of rt and returns the raw cursor. Ref
// columns hold ids and are not resolved. The cursor must be closed before
// the DB is used again.
func (db *DB) QueryRaw(ctx context.Context, rt *types.RecordType, q Query) (Cursor, error) {
	engine, err := db.ensure(ctx, rt)
	if err != nil {
		return nil, err
	}
	cur, err := engine.QueryCursor(ctx, rt.Name, q)
	if err != nil {
		return nil, errors.Annotate(err, map[string]interface{}{"table": rt.Name})
	}
	return cur, nil
}

// SchemaVersion sets up rt if needed and returns the schema version of its
// table.
func (db *DB) SchemaVersion(ctx context.Context, rt *types.RecordType) (int, error) {
	if _, err := db.ensure(ctx, rt); err != nil {
		return 0, err
	}
	db.ensureMu.Lock()
	defer db.ensureMu.Unlock()
	return db.versions[rt], nil
}

// Snapshot returns the recorded schema of table. ok is false when the table
// has never been set up.
func (db *DB) Snapshot(ctx context.Context, table string) (snap Snapshot, ok bool, err error) {
	_, tracker, err := db.conn()
	if err != nil {
		return Snapshot{}, false, err
	}
	return tracker.Snapshot(ctx, table)
}

// Snapshots returns every recorded schema, sorted by table name.
func (db *DB) Snapshots(ctx context.Context) ([]Snapshot, error) {
	_, tracker, err := db.conn()
	if err != nil {
		return nil, err
	}
	return tracker.Snapshots(ctx)
}

// Tables lists the physical tables of the database with their row counts.
func (db *DB) Tables(ctx context.Context) ([]TableInfo, error) {
	engine, _, err := db.conn()
	if err != nil {
		return nil, err
	}
	lister, ok := engine.(interface {
		Tables(ctx context.Context) ([]string, error)
	})
	if !ok {
		return nil, fmt.Errorf("orm: storage engine %T cannot list tables", engine)
	}

	names, err := lister.Tables(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		n, err := engine.CountRows(ctx, name)
		if err != nil {
			return nil, errors.Annotate(err, map[string]interface{}{"table": name})
		}
		infos = append(infos, TableInfo{Name: name, Rows: n})
	}
	return infos, nil
}
