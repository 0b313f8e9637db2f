// Package types defines the record, field and schema descriptors shared by
// the catalog, the schema synthesizer and the record mapper.
package types

import "fmt"

// SemanticType is the canonical value category of a persistent field,
// independent of the Go type used to hold it.
type SemanticType int

const (
	TypeInvalid SemanticType = iota
	TypeChar
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeBoolean
	TypeBytes
	TypeString
	TypeDate
	TypeRef
)

var semanticTypeNames = map[SemanticType]string{
	TypeChar:    "Char",
	TypeByte:    "Byte",
	TypeShort:   "Short",
	TypeInt:     "Int",
	TypeLong:    "Long",
	TypeFloat:   "Float",
	TypeDouble:  "Double",
	TypeBoolean: "Boolean",
	TypeBytes:   "Bytes",
	TypeString:  "String",
	TypeDate:    "Date",
	TypeRef:     "Ref",
}

func (t SemanticType) String() string {
	if name, ok := semanticTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SemanticType(%d)", int(t))
}

// Valid reports whether t is one of the supported semantic types.
func (t SemanticType) Valid() bool {
	_, ok := semanticTypeNames[t]
	return ok
}

// Column types understood by the storage engine.
const (
	ColumnInteger = "INTEGER"
	ColumnReal    = "REAL"
	ColumnText    = "TEXT"
	ColumnBlob    = "BLOB"
)

// IDColumn is the primary key column every table carries.
const IDColumn = "id"

// ColumnDef defines a single column of a synthesized table.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the SQLite type: TEXT, INTEGER, BLOB, REAL
	Type string `json:"type"`

	// Unique marks a replace-on-conflict uniqueness constraint
	Unique bool `json:"unique"`

	// PrimaryKey indicates whether this column is the primary key
	PrimaryKey bool `json:"primary_key"`
}

// Field describes one persistent field of a record type.
//
// Get and Set are type-erased accessors produced by the catalog builder. Get
// returns the Go value held by the record (for Ref fields, a Record or nil);
// Set stores a decoded value (for Ref fields, a Record) back into the record.
// When the record is not of the Go type the field was declared on, Get
// returns the error instead of a value and Set returns it.
type Field struct {
	Name   string
	Type   SemanticType
	Unique bool

	// Target resolves the referenced record type of a Ref field. It is a
	// thunk so that types may be declared in any order.
	Target func() *RecordType

	Get func(Record) any
	Set func(Record, any) error
}

// RefTarget returns the referenced record type, or nil for non-Ref fields.
func (f *Field) RefTarget() *RecordType {
	if f.Type != TypeRef || f.Target == nil {
		return nil
	}
	return f.Target()
}

// RecordType describes a persistent record: its table name, its fields in
// declaration order (base fields first) and how to construct an instance.
type RecordType struct {
	Name   string
	Fields []*Field
	Base   *RecordType

	newFn func() Record
}

// NewRecordType creates a record type descriptor. It is normally called by
// the catalog builder rather than directly.
func NewRecordType(name string, base *RecordType, fields []*Field, newFn func() Record) *RecordType {
	return &RecordType{
		Name:   name,
		Fields: fields,
		Base:   base,
		newFn:  newFn,
	}
}

// New returns a fresh, unsaved instance of the record type.
func (rt *RecordType) New() Record {
	return rt.newFn()
}

// Field looks up a field by name.
func (rt *RecordType) Field(name string) (*Field, bool) {
	for _, f := range rt.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// String implements fmt.Stringer.
func (rt *RecordType) String() string {
	return rt.Name
}
