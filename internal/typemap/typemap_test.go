package typemap

import (
	"math"
	"testing"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/simpleorm/pkg/errors"
	"github.com/arkilian/simpleorm/pkg/types"
)

func TestColumnType(t *testing.T) {
	tests := []struct {
		st   types.SemanticType
		want string
	}{
		{types.TypeChar, "TEXT"},
		{types.TypeString, "TEXT"},
		{types.TypeByte, "INTEGER"},
		{types.TypeShort, "INTEGER"},
		{types.TypeInt, "INTEGER"},
		{types.TypeLong, "INTEGER"},
		{types.TypeBoolean, "INTEGER"},
		{types.TypeDate, "INTEGER"},
		{types.TypeRef, "INTEGER"},
		{types.TypeFloat, "REAL"},
		{types.TypeDouble, "REAL"},
		{types.TypeBytes, "BLOB"},
	}
	for _, tt := range tests {
		got, err := ColumnType(tt.st)
		require.NoError(t, err, tt.st.String())
		assert.Equal(t, tt.want, got, tt.st.String())
	}

	_, err := ColumnType(types.TypeInvalid)
	assert.ErrorIs(t, err, errors.ErrUnsupportedField)
	_, err = ColumnType(types.SemanticType(42))
	assert.ErrorIs(t, err, errors.ErrUnsupportedField)
}

func TestEncode(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		st   types.SemanticType
		in   any
		want any
	}{
		{types.TypeChar, 'x', "x"},
		{types.TypeChar, 'ß', "ß"},
		{types.TypeByte, int8(-5), int64(-5)},
		{types.TypeShort, int16(300), int64(300)},
		{types.TypeInt, int32(70000), int64(70000)},
		{types.TypeLong, int64(1) << 40, int64(1) << 40},
		{types.TypeRef, int64(7), int64(7)},
		{types.TypeBoolean, true, int64(1)},
		{types.TypeBoolean, false, int64(0)},
		{types.TypeFloat, float32(1.5), float64(1.5)},
		{types.TypeDouble, 2.25, 2.25},
		{types.TypeBytes, []byte{1, 2}, []byte{1, 2}},
		{types.TypeString, "Linz", "Linz"},
		{types.TypeDate, created, created.UnixMilli()},
	}
	for _, tt := range tests {
		got, err := Encode(tt.st, tt.in)
		require.NoError(t, err, tt.st.String())
		assert.Equal(t, tt.want, got, tt.st.String())
	}
}

func TestEncode_Mismatch(t *testing.T) {
	_, err := Encode(types.TypeInt, int64(1))
	assert.ErrorIs(t, err, errors.ErrCellMismatch)

	_, err = Encode(types.TypeString, 3)
	assert.ErrorIs(t, err, errors.ErrCellMismatch)

	_, err = Encode(types.SemanticType(42), 3)
	assert.ErrorIs(t, err, errors.ErrUnsupportedField)
}

func TestEncode_RejectsUnstorableValues(t *testing.T) {
	tests := []struct {
		st types.SemanticType
		in any
	}{
		{types.TypeDouble, math.NaN()},
		{types.TypeFloat, float32(math.NaN())},
		{types.TypeChar, rune(0xD800)},
		{types.TypeChar, rune(-1)},
		{types.TypeChar, rune(unicode.MaxRune + 1)},
	}
	for _, tt := range tests {
		_, err := Encode(tt.st, tt.in)
		assert.ErrorIs(t, err, errors.ErrRange, "%s %v", tt.st, tt.in)
	}

	v, err := Encode(types.TypeDouble, math.Inf(-1))
	require.NoError(t, err, "infinities are stored as REAL")
	assert.Equal(t, math.Inf(-1), v)
}

func TestDecode_Null(t *testing.T) {
	tests := []struct {
		st   types.SemanticType
		want any
	}{
		{types.TypeChar, rune(0)},
		{types.TypeByte, int8(0)},
		{types.TypeShort, int16(0)},
		{types.TypeInt, int32(0)},
		{types.TypeLong, int64(0)},
		{types.TypeRef, int64(0)},
		{types.TypeBoolean, false},
		{types.TypeFloat, float32(0)},
		{types.TypeDouble, float64(0)},
		{types.TypeBytes, []byte(nil)},
		{types.TypeString, ""},
		{types.TypeDate, time.Time{}},
	}
	for _, tt := range tests {
		got, err := Decode(tt.st, nil)
		require.NoError(t, err, tt.st.String())
		assert.Equal(t, tt.want, got, tt.st.String())
	}
}

func TestDecode_Range(t *testing.T) {
	tests := []struct {
		st   types.SemanticType
		cell any
	}{
		{types.TypeByte, int64(128)},
		{types.TypeByte, int64(-129)},
		{types.TypeShort, int64(math.MaxInt16 + 1)},
		{types.TypeInt, int64(math.MinInt32 - 1)},
		{types.TypeFloat, math.MaxFloat64},
	}
	for _, tt := range tests {
		_, err := Decode(tt.st, tt.cell)
		assert.ErrorIs(t, err, errors.ErrRange, "%s %v", tt.st, tt.cell)
	}

	v, err := Decode(types.TypeByte, int64(-128))
	require.NoError(t, err)
	assert.Equal(t, int8(-128), v)
}

func TestDecode_Conversions(t *testing.T) {
	v, err := Decode(types.TypeBoolean, int64(5))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Decode(types.TypeChar, "Linz")
	require.NoError(t, err)
	assert.Equal(t, 'L', v)

	v, err = Decode(types.TypeChar, "")
	require.NoError(t, err)
	assert.Equal(t, rune(0), v)

	v, err = Decode(types.TypeDouble, int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = Decode(types.TypeBytes, "raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), v)

	v, err = Decode(types.TypeDate, int64(1700000000123))
	require.NoError(t, err)
	assert.True(t, time.UnixMilli(1700000000123).Equal(v.(time.Time)))
	assert.Equal(t, time.UTC, v.(time.Time).Location())
}

func TestDecode_Mismatch(t *testing.T) {
	_, err := Decode(types.TypeInt, "12")
	assert.ErrorIs(t, err, errors.ErrCellMismatch)

	_, err = Decode(types.TypeString, int64(12))
	assert.ErrorIs(t, err, errors.ErrCellMismatch)

	_, err = Decode(types.TypeBytes, 1.5)
	assert.ErrorIs(t, err, errors.ErrCellMismatch)

	_, err = Decode(types.SemanticType(42), nil)
	assert.ErrorIs(t, err, errors.ErrUnsupportedField)
}

func roundTrip(st types.SemanticType, v any) (any, error) {
	cell, err := Encode(st, v)
	if err != nil {
		return nil, err
	}
	return Decode(st, cell)
}

// TestProperty_RoundTrip checks that Decode(Encode(v)) == v for every value
// representable by the field's Go type.
func TestProperty_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Byte round-trips", prop.ForAll(
		func(v int8) bool {
			got, err := roundTrip(types.TypeByte, v)
			return err == nil && got == v
		},
		gen.Int8(),
	))

	properties.Property("Short round-trips", prop.ForAll(
		func(v int16) bool {
			got, err := roundTrip(types.TypeShort, v)
			return err == nil && got == v
		},
		gen.Int16(),
	))

	properties.Property("Int round-trips", prop.ForAll(
		func(v int32) bool {
			got, err := roundTrip(types.TypeInt, v)
			return err == nil && got == v
		},
		gen.Int32(),
	))

	properties.Property("Long round-trips", prop.ForAll(
		func(v int64) bool {
			got, err := roundTrip(types.TypeLong, v)
			return err == nil && got == v
		},
		gen.Int64(),
	))

	properties.Property("Float round-trips", prop.ForAll(
		func(v float32) bool {
			got, err := roundTrip(types.TypeFloat, v)
			return err == nil && got == v
		},
		gen.Float32(),
	))

	properties.Property("Double round-trips", prop.ForAll(
		func(v float64) bool {
			got, err := roundTrip(types.TypeDouble, v)
			return err == nil && got == v
		},
		gen.Float64(),
	))

	properties.Property("Boolean round-trips", prop.ForAll(
		func(v bool) bool {
			got, err := roundTrip(types.TypeBoolean, v)
			return err == nil && got == v
		},
		gen.Bool(),
	))

	properties.Property("String round-trips", prop.ForAll(
		func(v string) bool {
			got, err := roundTrip(types.TypeString, v)
			return err == nil && got == v
		},
		gen.AnyString(),
	))

	properties.Property("Char round-trips", prop.ForAll(
		func(v rune) bool {
			got, err := roundTrip(types.TypeChar, v)
			return err == nil && got == v
		},
		gen.UnicodeChar(unicode.L),
	))

	properties.Property("Char round-trips valid runes and rejects the rest", prop.ForAll(
		func(v int32) bool {
			got, err := roundTrip(types.TypeChar, rune(v))
			if !utf8.ValidRune(rune(v)) {
				return errors.GetCode(err) == errors.CodeRange
			}
			return err == nil && got == rune(v)
		},
		gen.OneGenOf(
			gen.Int32(),
			gen.Int32Range(0xD800, 0xDFFF),
			gen.Int32Range(0, unicode.MaxRune),
		),
	))

	properties.Property("Date round-trips at millisecond precision", prop.ForAll(
		func(ms int64) bool {
			v := time.UnixMilli(ms)
			got, err := roundTrip(types.TypeDate, v)
			return err == nil && got.(time.Time).Equal(v)
		},
		gen.Int64Range(-62135596800000, 253402300799999), // years 1 to 9999
	))

	properties.TestingRun(t)
}
