// Package schema synthesizes table definitions from record type descriptors.
package schema

import (
	"fmt"
	"strings"

	"github.com/arkilian/simpleorm/internal/typemap"
	"github.com/arkilian/simpleorm/pkg/catalog"
	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// uniqueClause turns a duplicate insert into an overwrite of the existing row.
const uniqueClause = " UNIQUE ON CONFLICT REPLACE"

// Columns returns the column definitions of rt: the primary key first, then
// one column per persistent field sorted by field name.
func Columns(rt *types.RecordType) ([]types.ColumnDef, error) {
	fields := catalog.SortedFields(rt)
	cols := make([]types.ColumnDef, 0, len(fields)+1)
	cols = append(cols, types.ColumnDef{Name: types.IDColumn, Type: types.ColumnInteger, PrimaryKey: true})

	for _, f := range fields {
		colType, err := typemap.ColumnType(f.Type)
		if err != nil {
			return nil, errors.NewUnsupportedFieldError(rt.Name, f.Name, err.Error())
		}
		if f.Type == types.TypeRef && f.RefTarget() == nil {
			return nil, errors.NewUnsupportedFieldError(rt.Name, f.Name, "reference target resolved to nil")
		}
		cols = append(cols, types.ColumnDef{Name: f.Name, Type: colType, Unique: f.Unique})
	}
	return cols, nil
}

// Synthesize returns the canonical create statement for rt. It is pure: the
// same field set always yields the same text, independent of declaration
// order.
func Synthesize(rt *types.RecordType) (string, error) {
	cols, err := Columns(rt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(rt.Name)
	sb.WriteString("(id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, col := range cols[1:] {
		sb.WriteString(", ")
		sb.WriteString(col.Name)
		sb.WriteString(" ")
		sb.WriteString(col.Type)
		if col.Unique {
			sb.WriteString(uniqueClause)
		}
	}
	sb.WriteString(");")
	return sb.String(), nil
}

// DropStatement returns the statement removing rt's table.
func DropStatement(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
}

// Plan returns the record types that must exist before rt can be used, in
// creation order: every Ref target precedes the types referring to it and rt
// itself comes last. A type reached again while it is still being expanded
// means the references form a cycle, which fails with CyclicSchemaError.
func Plan(rt *types.RecordType) ([]*types.RecordType, error) {
	p := &planner{
		inProgress: make(map[string]bool),
		done:       make(map[string]bool),
	}
	if err := p.visit(rt, nil); err != nil {
		return nil, err
	}
	return p.order, nil
}

type planner struct {
	inProgress map[string]bool
	done       map[string]bool
	order      []*types.RecordType
}

func (p *planner) visit(rt *types.RecordType, path []string) error {
	if p.done[rt.Name] {
		return nil
	}
	path = append(path, rt.Name)
	if p.inProgress[rt.Name] {
		return errors.NewCyclicSchemaError(fmt.Sprintf("record types reference each other: %s", strings.Join(path, " -> ")))
	}
	p.inProgress[rt.Name] = true

	for _, f := range rt.Fields {
		if f.Type != types.TypeRef {
			continue
		}
		target := f.RefTarget()
		if target == nil {
			return errors.NewUnsupportedFieldError(rt.Name, f.Name, "reference target resolved to nil")
		}
		if err := p.visit(target, path); err != nil {
			return err
		}
	}

	delete(p.inProgress, rt.Name)
	p.done[rt.Name] = true
	p.order = append(p.order, rt)
	return nil
}
