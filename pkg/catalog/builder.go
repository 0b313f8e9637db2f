// Package catalog declares persistent record types without reflection.
//
// Each record type is described once, typically in a package-level variable,
// by a Builder that binds field names to typed pointer accessors:
//
//	var addressType = catalog.Define("Address", func() *Address { return &Address{} }).
//		String("city", func(a *Address) *string { return &a.City }).
//		MustBuild()
//
//	func (a *Address) RecordType() *types.RecordType { return addressType }
//
// Only fields registered on the builder are persistent; every other struct
// field is ignored by the mapper.
//
// Ref targets are passed as functions so a type may name types declared
// after it. A type that references itself, directly or through another
// type, has to be assigned in an init function to avoid an initialization
// cycle.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// FieldOption modifies a field while it is being declared.
type FieldOption func(*types.Field)

// Unique marks the field with a replace-on-conflict uniqueness constraint:
// inserting a second row with the same value overwrites the first.
func Unique() FieldOption {
	return func(f *types.Field) { f.Unique = true }
}

// Builder accumulates the persistent fields of record type T.
type Builder[T types.Record] struct {
	name       string
	newFn      func() T
	base       *types.RecordType
	baseFields []*types.Field
	fields     []*types.Field
	err        error
}

// Define starts the description of a record type stored in table name.
func Define[T types.Record](name string, newFn func() T) *Builder[T] {
	return &Builder[T]{name: name, newFn: newFn}
}

// Char declares a single-character field stored as one-rune TEXT.
func (b *Builder[T]) Char(name string, acc func(T) *rune, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeChar, acc, opts)
}

// Byte declares an 8-bit integer field.
func (b *Builder[T]) Byte(name string, acc func(T) *int8, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeByte, acc, opts)
}

// Short declares a 16-bit integer field.
func (b *Builder[T]) Short(name string, acc func(T) *int16, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeShort, acc, opts)
}

// Int declares a 32-bit integer field.
func (b *Builder[T]) Int(name string, acc func(T) *int32, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeInt, acc, opts)
}

// Long declares a 64-bit integer field.
func (b *Builder[T]) Long(name string, acc func(T) *int64, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeLong, acc, opts)
}

// Float declares a single-precision field stored as REAL.
func (b *Builder[T]) Float(name string, acc func(T) *float32, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeFloat, acc, opts)
}

// Double declares a double-precision field stored as REAL.
func (b *Builder[T]) Double(name string, acc func(T) *float64, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeDouble, acc, opts)
}

// Boolean declares a field stored as INTEGER 0 or 1.
func (b *Builder[T]) Boolean(name string, acc func(T) *bool, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeBoolean, acc, opts)
}

// Bytes declares a BLOB field.
func (b *Builder[T]) Bytes(name string, acc func(T) *[]byte, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeBytes, acc, opts)
}

// String declares a TEXT field.
func (b *Builder[T]) String(name string, acc func(T) *string, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeString, acc, opts)
}

// Date declares a time field stored as epoch milliseconds.
func (b *Builder[T]) Date(name string, acc func(T) *time.Time, opts ...FieldOption) *Builder[T] {
	return scalar(b, name, types.TypeDate, acc, opts)
}

// Field declares a field with explicit accessors. The semantic type is
// checked at Build time; a type outside the supported set fails with
// UnsupportedFieldError.
func (b *Builder[T]) Field(name string, st types.SemanticType, get func(T) any, set func(T, any) error, opts ...FieldOption) *Builder[T] {
	f := &types.Field{Name: name, Type: st}
	if get != nil && set != nil {
		f.Get = func(r types.Record) any {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			return get(t)
		}
		f.Set = func(r types.Record, v any) error {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			return set(t, v)
		}
	}
	return b.add(f, opts)
}

// Ref declares a field referencing another record type. The referenced
// record is saved before its owner and only its id is stored. acc returns a
// pointer to the field holding the reference (for example **Address).
func Ref[T, R types.Record](b *Builder[T], name string, target func() *types.RecordType, acc func(T) *R, opts ...FieldOption) *Builder[T] {
	f := &types.Field{
		Name:   name,
		Type:   types.TypeRef,
		Target: target,
		Get: func(r types.Record) any {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			v := *acc(t)
			var zero R
			if any(v) == any(zero) {
				return nil
			}
			return types.Record(v)
		},
		Set: func(r types.Record, v any) error {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			if v == nil {
				var zero R
				*acc(t) = zero
				return nil
			}
			rv, ok := v.(R)
			if !ok {
				return errors.NewCellMismatchError(fmt.Sprintf("field %s: cannot assign %T", name, v))
			}
			*acc(t) = rv
			return nil
		},
	}
	return b.add(f, opts)
}

// Inherit adds the persistent fields of base ahead of T's own fields. project
// returns the embedded base value inside a T. Only one level is supported: a
// base that itself inherits is rejected at Build time.
func Inherit[T, B types.Record](b *Builder[T], base *types.RecordType, project func(T) B) *Builder[T] {
	if b.err != nil {
		return b
	}
	if b.base != nil {
		b.err = errors.NewInvalidSchemaError(fmt.Sprintf("%s: base type already set to %s", b.name, b.base.Name))
		return b
	}
	if base == nil {
		b.err = errors.NewInvalidSchemaError(fmt.Sprintf("%s: nil base type", b.name))
		return b
	}
	if base.Base != nil {
		b.err = errors.NewInvalidSchemaError(fmt.Sprintf(
			"%s: base %s already inherits from %s, only one level of inheritance is supported",
			b.name, base.Name, base.Base.Name))
		return b
	}

	b.base = base
	for _, bf := range base.Fields {
		bf := bf
		b.baseFields = append(b.baseFields, &types.Field{
			Name:   bf.Name,
			Type:   bf.Type,
			Unique: bf.Unique,
			Target: bf.Target,
			Get: func(r types.Record) any {
				t, err := cast[T](r, bf.Name)
				if err != nil {
					return err
				}
				return bf.Get(project(t))
			},
			Set: func(r types.Record, v any) error {
				t, err := cast[T](r, bf.Name)
				if err != nil {
					return err
				}
				return bf.Set(project(t), v)
			},
		})
	}
	return b
}

// Build validates the declaration and returns the record type.
func (b *Builder[T]) Build() (*types.RecordType, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !ValidIdentifier(b.name) {
		return nil, errors.NewInvalidSchemaError(fmt.Sprintf("invalid table name %q", b.name))
	}
	if b.newFn == nil {
		return nil, errors.NewInvalidSchemaError(fmt.Sprintf("%s: missing constructor", b.name))
	}

	fields := make([]*types.Field, 0, len(b.baseFields)+len(b.fields))
	fields = append(fields, b.baseFields...)
	fields = append(fields, b.fields...)

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !ValidIdentifier(f.Name) {
			return nil, errors.NewInvalidSchemaError(fmt.Sprintf("%s: invalid field name %q", b.name, f.Name))
		}
		// SQLite column names are case-insensitive
		key := strings.ToLower(f.Name)
		if key == types.IDColumn {
			return nil, errors.NewInvalidSchemaError(fmt.Sprintf("%s: field name %q is reserved", b.name, f.Name))
		}
		if seen[key] {
			return nil, errors.NewInvalidSchemaError(fmt.Sprintf("%s: duplicate field %q", b.name, f.Name))
		}
		seen[key] = true

		if !f.Type.Valid() {
			return nil, errors.NewUnsupportedFieldError(b.name, f.Name,
				fmt.Sprintf("semantic type %s has no column mapping", f.Type))
		}
		if f.Type == types.TypeRef && f.Target == nil {
			return nil, errors.NewUnsupportedFieldError(b.name, f.Name, "reference field without target type")
		}
		if f.Get == nil || f.Set == nil {
			return nil, errors.NewInvalidSchemaError(fmt.Sprintf("%s: field %q has no accessors", b.name, f.Name))
		}
	}

	newFn := b.newFn
	return types.NewRecordType(b.name, b.base, fields, func() types.Record { return newFn() }), nil
}

// MustBuild is like Build but panics on error. It is intended for
// package-level declarations.
func (b *Builder[T]) MustBuild() *types.RecordType {
	rt, err := b.Build()
	if err != nil {
		panic(err)
	}
	return rt
}

func (b *Builder[T]) add(f *types.Field, opts []FieldOption) *Builder[T] {
	if b.err != nil {
		return b
	}
	for _, opt := range opts {
		opt(f)
	}
	b.fields = append(b.fields, f)
	return b
}

func scalar[T types.Record, V any](b *Builder[T], name string, st types.SemanticType, acc func(T) *V, opts []FieldOption) *Builder[T] {
	f := &types.Field{
		Name: name,
		Type: st,
		Get: func(r types.Record) any {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			return *acc(t)
		},
		Set: func(r types.Record, v any) error {
			t, err := cast[T](r, name)
			if err != nil {
				return err
			}
			tv, ok := v.(V)
			if !ok {
				var zero V
				return errors.NewCellMismatchError(fmt.Sprintf("field %s expects %T, got %T", name, zero, v))
			}
			*acc(t) = tv
			return nil
		},
	}
	return b.add(f, opts)
}

// cast recovers the declaring Go type of a record. A record whose
// RecordType returns a descriptor built for another type fails here.
func cast[T types.Record](r types.Record, field string) (T, error) {
	t, ok := r.(T)
	if !ok {
		var zero T
		return zero, errors.NewCellMismatchError(fmt.Sprintf("field %s is declared on %T, record is %T", field, zero, r))
	}
	return t, nil
}
