// Package mapper converts records to storage rows and back, cascading saves
// and loads through Ref fields.
package mapper

import (
	"context"
	"fmt"

	"github.com/arkilian/simpleorm/internal/logx"
	"github.com/arkilian/simpleorm/internal/storage"
	"github.com/arkilian/simpleorm/internal/typemap"
	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Session maps records through one Executor, which may be a transaction.
// It remembers the records it inserted so their ids can be reset when the
// surrounding transaction is rolled back.
type Session struct {
	exec     storage.Executor
	log      *logx.Logger
	inserted []types.Record
}

// NewSession creates a session writing through exec.
func NewSession(exec storage.Executor) *Session {
	return &Session{exec: exec}
}

// WithLogger routes the session's messages through l and returns s.
func (s *Session) WithLogger(l *logx.Logger) *Session {
	s.log = l
	return s
}

// Serialize encodes every persistent field of rec in declaration order. A
// populated Ref field is saved first and its id stored; an empty one stores 0.
func (s *Session) Serialize(ctx context.Context, rec types.Record) (storage.Row, error) {
	rt := rec.RecordType()
	var row storage.Row

	for _, f := range rt.Fields {
		v := f.Get(rec)
		if err, ok := v.(error); ok {
			return storage.Row{}, fieldError(rt, f, rec.RecordID(), err)
		}

		if f.Type == types.TypeRef {
			var refID int64
			if ref, ok := v.(types.Record); ok {
				id, err := s.Save(ctx, ref)
				if err != nil {
					return storage.Row{}, fmt.Errorf("mapper: cascade save of %s.%s: %w", rt.Name, f.Name, err)
				}
				refID = id
			}
			v = refID
		}

		cell, err := typemap.Encode(f.Type, v)
		if err != nil {
			return storage.Row{}, fieldError(rt, f, rec.RecordID(), err)
		}
		row.Add(f.Name, cell)
	}
	return row, nil
}

// Deserialize builds a new record of type rt from row. Ref fields holding a
// nonzero id are loaded with a point query; a zero id or a missing row leaves
// the reference unset.
func (s *Session) Deserialize(ctx context.Context, rt *types.RecordType, row storage.Row) (types.Record, error) {
	rec := rt.New()

	idCell, ok := row.Get(types.IDColumn)
	if !ok {
		return nil, errors.Annotate(errors.NewCellMismatchError("row has no id column"),
			map[string]interface{}{"table": rt.Name})
	}
	id, err := typemap.Decode(types.TypeLong, idCell)
	if err != nil {
		return nil, errors.Annotate(err, map[string]interface{}{"table": rt.Name, "field": types.IDColumn})
	}
	rec.SetRecordID(id.(int64))

	for _, f := range rt.Fields {
		cell, ok := row.Get(f.Name)
		if !ok {
			return nil, fieldError(rt, f, rec.RecordID(), errors.NewCellMismatchError("column missing from row"))
		}
		v, err := typemap.Decode(f.Type, cell)
		if err != nil {
			return nil, fieldError(rt, f, rec.RecordID(), err)
		}

		if f.Type == types.TypeRef {
			refID := v.(int64)
			if refID == 0 {
				continue
			}
			ref, found, err := s.Find(ctx, f.RefTarget(), refID)
			if err != nil {
				return nil, fmt.Errorf("mapper: load of %s.%s: %w", rt.Name, f.Name, err)
			}
			if !found {
				continue
			}
			v = ref
		}

		if err := f.Set(rec, v); err != nil {
			return nil, fieldError(rt, f, rec.RecordID(), err)
		}
	}
	return rec, nil
}

// Save inserts rec when its id is 0 and updates the row matching its id
// otherwise. The resulting id is written back to rec and returned.
func (s *Session) Save(ctx context.Context, rec types.Record) (int64, error) {
	rt := rec.RecordType()
	row, err := s.Serialize(ctx, rec)
	if err != nil {
		return 0, err
	}

	id := rec.RecordID()
	if id == 0 {
		newID, err := s.exec.Insert(ctx, rt.Name, row)
		if err != nil {
			return 0, errors.Annotate(err, map[string]interface{}{"table": rt.Name})
		}
		rec.SetRecordID(newID)
		s.inserted = append(s.inserted, rec)
		return newID, nil
	}

	n, err := s.exec.Update(ctx, rt.Name, row, types.IDColumn+" = ?", id)
	if err != nil {
		return 0, errors.Annotate(err, map[string]interface{}{"table": rt.Name, "id": id})
	}
	if n == 0 && row.Len() > 0 {
		s.log.Printf("[WARN] mapper: update of %s id=%d matched no row", rt.Name, id)
	}
	rec.SetRecordID(id)
	return id, nil
}

// Delete removes the row matching rec's id. When a row was removed the id is
// reset to 0 and true returned; otherwise rec is left untouched.
func (s *Session) Delete(ctx context.Context, rec types.Record) (bool, error) {
	rt := rec.RecordType()
	id := rec.RecordID()
	if id == 0 {
		return false, nil
	}

	n, err := s.exec.Delete(ctx, rt.Name, types.IDColumn+" = ?", id)
	if err != nil {
		return false, errors.Annotate(err, map[string]interface{}{"table": rt.Name, "id": id})
	}
	if n == 0 {
		return false, nil
	}
	rec.SetRecordID(0)
	return true, nil
}

// Find loads the record of type rt with the given id.
func (s *Session) Find(ctx context.Context, rt *types.RecordType, id int64) (types.Record, bool, error) {
	rows, err := s.exec.Query(ctx, rt.Name, storage.Query{
		Where: types.IDColumn + " = ?",
		Args:  []any{id},
		Limit: 1,
	})
	if err != nil {
		return nil, false, errors.Annotate(err, map[string]interface{}{"table": rt.Name, "id": id})
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	rec, err := s.Deserialize(ctx, rt, rows[0])
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Inserted returns the records this session inserted, in order.
func (s *Session) Inserted() []types.Record {
	return s.inserted
}

// Revert resets the id of every record inserted by the session to 0. It is
// called after the transaction holding those inserts was rolled back.
func (s *Session) Revert() {
	for _, rec := range s.inserted {
		rec.SetRecordID(0)
	}
	s.inserted = nil
}

func fieldError(rt *types.RecordType, f *types.Field, id int64, err error) error {
	return errors.Annotate(err, map[string]interface{}{"table": rt.Name, "field": f.Name, "id": id})
}
