package orm

import (
	"context"
	"fmt"

	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Find is Get returning concrete records. T must be the type rt's
// constructor produces.
func Find[T types.Record](ctx context.Context, db *DB, rt *types.RecordType, q Query) ([]T, error) {
	records, err := db.Get(ctx, rt, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		typed, ok := rec.(T)
		if !ok {
			return nil, errors.NewInvalidSchemaError(fmt.Sprintf("orm: %s constructor returned %T", rt.Name, rec))
		}
		out = append(out, typed)
	}
	return out, nil
}

// All returns every record of rt as T.
func All[T types.Record](ctx context.Context, db *DB, rt *types.RecordType) ([]T, error) {
	return Find[T](ctx, db, rt, Query{})
}

// First returns the first record of rt matching q. ok is false when nothing
// matched.
func First[T types.Record](ctx context.Context, db *DB, rt *types.RecordType, q Query) (rec T, ok bool, err error) {
	q.Limit = 1
	found, err := Find[T](ctx, db, rt, q)
	if err != nil || len(found) == 0 {
		return rec, false, err
	}
	return found[0], true, nil
}
