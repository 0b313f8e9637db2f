// Package typemap maps semantic field types to SQLite column types and
// converts field values to and from storable cells.
package typemap

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

// ColumnType returns the column type used to store st.
func ColumnType(st types.SemanticType) (string, error) {
	switch st {
	case types.TypeChar, types.TypeString:
		return types.ColumnText, nil
	case types.TypeByte, types.TypeShort, types.TypeInt, types.TypeLong,
		types.TypeBoolean, types.TypeDate, types.TypeRef:
		return types.ColumnInteger, nil
	case types.TypeFloat, types.TypeDouble:
		return types.ColumnReal, nil
	case types.TypeBytes:
		return types.ColumnBlob, nil
	default:
		return "", unsupported(st)
	}
}

// Encode converts a field value to a cell. Ref values are expected to be
// already resolved to the referenced record's id (int64). Values SQLite
// would store altered, NaN and runes outside the Unicode scalar range, fail
// with RangeError.
func Encode(st types.SemanticType, v any) (any, error) {
	switch st {
	case types.TypeChar:
		r, ok := v.(rune)
		if !ok {
			return nil, mismatch(st, v)
		}
		if !utf8.ValidRune(r) {
			return nil, outOfRange(st, fmt.Sprintf("%U", r))
		}
		return string(r), nil
	case types.TypeByte:
		n, ok := v.(int8)
		if !ok {
			return nil, mismatch(st, v)
		}
		return int64(n), nil
	case types.TypeShort:
		n, ok := v.(int16)
		if !ok {
			return nil, mismatch(st, v)
		}
		return int64(n), nil
	case types.TypeInt:
		n, ok := v.(int32)
		if !ok {
			return nil, mismatch(st, v)
		}
		return int64(n), nil
	case types.TypeLong, types.TypeRef:
		n, ok := v.(int64)
		if !ok {
			return nil, mismatch(st, v)
		}
		return n, nil
	case types.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(st, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case types.TypeFloat:
		f, ok := v.(float32)
		if !ok {
			return nil, mismatch(st, v)
		}
		if math.IsNaN(float64(f)) {
			return nil, outOfRange(st, f)
		}
		return float64(f), nil
	case types.TypeDouble:
		f, ok := v.(float64)
		if !ok {
			return nil, mismatch(st, v)
		}
		if math.IsNaN(f) {
			return nil, outOfRange(st, f)
		}
		return f, nil
	case types.TypeBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, mismatch(st, v)
		}
		return b, nil
	case types.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(st, v)
		}
		return s, nil
	case types.TypeDate:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch(st, v)
		}
		return t.UnixMilli(), nil
	default:
		return nil, unsupported(st)
	}
}

// Decode converts a cell read from storage into the Go value of st. A NULL
// cell decodes to the zero value. Ref cells decode to the raw id (int64);
// resolving the referenced record is the mapper's job.
func Decode(st types.SemanticType, cell any) (any, error) {
	switch st {
	case types.TypeChar:
		s, err := toString(st, cell)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return rune(0), nil
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	case types.TypeByte:
		n, err := toInt64(st, cell)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, outOfRange(st, n)
		}
		return int8(n), nil
	case types.TypeShort:
		n, err := toInt64(st, cell)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, outOfRange(st, n)
		}
		return int16(n), nil
	case types.TypeInt:
		n, err := toInt64(st, cell)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, outOfRange(st, n)
		}
		return int32(n), nil
	case types.TypeLong, types.TypeRef:
		return toInt64(st, cell)
	case types.TypeBoolean:
		n, err := toInt64(st, cell)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case types.TypeFloat:
		f, err := toFloat64(st, cell)
		if err != nil {
			return nil, err
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, outOfRange(st, f)
		}
		return float32(f), nil
	case types.TypeDouble:
		return toFloat64(st, cell)
	case types.TypeBytes:
		switch c := cell.(type) {
		case nil:
			return []byte(nil), nil
		case []byte:
			return c, nil
		case string:
			return []byte(c), nil
		default:
			return nil, mismatch(st, cell)
		}
	case types.TypeString:
		return toString(st, cell)
	case types.TypeDate:
		if cell == nil {
			return time.Time{}, nil
		}
		n, err := toInt64(st, cell)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(n).UTC(), nil
	default:
		return nil, unsupported(st)
	}
}

func toInt64(st types.SemanticType, cell any) (int64, error) {
	switch c := cell.(type) {
	case nil:
		return 0, nil
	case int64:
		return c, nil
	case int:
		return int64(c), nil
	case bool:
		if c {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, mismatch(st, cell)
	}
}

func toFloat64(st types.SemanticType, cell any) (float64, error) {
	switch c := cell.(type) {
	case nil:
		return 0, nil
	case float64:
		return c, nil
	case int64:
		// REAL affinity may still hand back integral values as int64
		return float64(c), nil
	default:
		return 0, mismatch(st, cell)
	}
}

func toString(st types.SemanticType, cell any) (string, error) {
	switch c := cell.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	case []byte:
		return string(c), nil
	default:
		return "", mismatch(st, cell)
	}
}

func unsupported(st types.SemanticType) error {
	return errors.New(errors.ErrCategorySchema, errors.CodeUnsupportedField,
		fmt.Sprintf("semantic type %s has no column mapping", st))
}

func mismatch(st types.SemanticType, v any) error {
	return errors.NewCellMismatchError(fmt.Sprintf("%s cannot hold %T", st, v))
}

func outOfRange(st types.SemanticType, v any) error {
	return errors.NewRangeError(fmt.Sprintf("%v does not fit %s", v, st))
}
