package types

import (
	"reflect"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		spec any
		want Type
	}{
		{"canonical", Int32, Int32},
		{"canonical fixed binary", FixedBinary(16), FixedBinary(16)},
		{"arrow int32", arrow.PrimitiveTypes.Int32, Int32},
		{"arrow int64", arrow.PrimitiveTypes.Int64, Int64},
		{"arrow float64", arrow.PrimitiveTypes.Float64, Float64},
		{"arrow bool", arrow.FixedWidthTypes.Boolean, Bool},
		{"arrow string", arrow.BinaryTypes.String, String},
		{"arrow large string", arrow.BinaryTypes.LargeString, String},
		{"arrow fixed binary", &arrow.FixedSizeBinaryType{ByteWidth: 4}, FixedBinary(4)},
		{"arrow timestamp ms", &arrow.TimestampType{Unit: arrow.Millisecond}, TimestampMillis},
		{"arrow timestamp s", &arrow.TimestampType{Unit: arrow.Second}, TimestampSeconds},
		{"arrow null", arrow.Null, Null},
		{"arrow objectid extension", NewObjectIDType(), ObjectID},
		{"arrow decimal extension", NewDecimal128StringType(), Decimal128String},
		{"bson int32", bsontype.Int32, Int32},
		{"bson double", bsontype.Double, Float64},
		{"bson objectid", bsontype.ObjectID, ObjectID},
		{"bson decimal128", bsontype.Decimal128, Decimal128String},
		{"bson datetime", bsontype.DateTime, TimestampMillis},
		{"driver objectid", reflect.TypeOf(primitive.ObjectID{}), ObjectID},
		{"driver decimal128", reflect.TypeOf(primitive.Decimal128{}), Decimal128String},
		{"driver datetime", reflect.TypeOf(primitive.DateTime(0)), TimestampMillis},
		{"go int", reflect.TypeOf(0), Int64},
		{"go float32", reflect.TypeOf(float32(0)), Float64},
		{"go bool", reflect.TypeOf(true), Bool},
		{"go string", reflect.TypeOf(""), String},
		{"go time", reflect.TypeOf(time.Time{}), TimestampMillis},
		{"name str", "str", String},
		{"name float", "float", Float64},
		{"name padded", " Int32 ", Int32},
		{"name datetime", "datetime64[ms]", TimestampMillis},
		{"name seconds", "timestamp[s]", TimestampSeconds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.spec, "f")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Unsupported(t *testing.T) {
	specs := []any{
		nil,
		"complex128",
		arrow.PrimitiveTypes.Uint8,
		&arrow.Decimal256Type{Precision: 10, Scale: 2},
		&arrow.TimestampType{Unit: arrow.Nanosecond},
		bsontype.Array,
		reflect.TypeOf([]int{}),
		42,
	}

	for _, spec := range specs {
		_, err := Normalize(spec, "price")
		require.Error(t, err, "spec %v", spec)
		assert.True(t, errors.IsUnsupportedType(err))

		var e *errors.Error
		require.True(t, errors.As(err, &e))
		field, _ := e.Detail("field")
		assert.Equal(t, "price", field)
	}
}

func TestMustNormalize_Panics(t *testing.T) {
	assert.Equal(t, Int64, MustNormalize("int64"))
	assert.Panics(t, func() { MustNormalize("nope") })
}

func TestType_ArrowType(t *testing.T) {
	all := []Type{Null, Int32, Int64, Float64, Bool, String, ObjectID, Decimal128String,
		TimestampMillis, TimestampSeconds, FixedBinary(7)}

	for _, typ := range all {
		t.Run(typ.String(), func(t *testing.T) {
			back, err := Normalize(typ.ArrowType(), "")
			require.NoError(t, err)
			assert.Equal(t, typ, back)
		})
	}

	ts := TimestampMillis.ArrowType().(*arrow.TimestampType)
	assert.Empty(t, ts.TimeZone)
	assert.Equal(t, 12, ObjectID.ByteWidth())
	assert.Equal(t, "fixed_binary[7]", FixedBinary(7).String())
}

func TestObjectIDArray(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := array.NewExtensionBuilder(mem, NewObjectIDType())
	defer b.Release()

	oid := primitive.NewObjectID()
	b.StorageBuilder().(*array.FixedSizeBinaryBuilder).Append(oid[:])
	b.AppendNull()

	arr := b.NewArray()
	defer arr.Release()

	oids, ok := arr.(*ObjectIDArray)
	require.True(t, ok, "got %T", arr)
	assert.Equal(t, oid, oids.Value(0))
	assert.Equal(t, oid.Hex(), oids.ValueStr(0))
	assert.Equal(t, primitive.NilObjectID, oids.Value(1))
	assert.Equal(t, array.NullValueStr, oids.ValueStr(1))
}

func TestDecimal128StringArray(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := array.NewExtensionBuilder(mem, NewDecimal128StringType())
	defer b.Release()
	b.StorageBuilder().(*array.StringBuilder).Append("123.45")

	arr := b.NewArray()
	defer arr.Release()

	decs := arr.(*Decimal128StringArray)
	assert.Equal(t, "123.45", decs.Value(0))
	d, err := decs.Decimal128(0)
	require.NoError(t, err)
	assert.Equal(t, "123.45", d.String())
}

func TestExtensionTypesRegistered(t *testing.T) {
	for _, name := range []string{ObjectIDExtensionName, Decimal128ExtensionName} {
		assert.NotNil(t, arrow.GetExtensionType(name), name)
	}

	_, err := NewObjectIDType().Deserialize(arrow.BinaryTypes.String, "")
	assert.Error(t, err)
	ext, err := NewDecimal128StringType().Deserialize(arrow.BinaryTypes.String, "")
	require.NoError(t, err)
	assert.True(t, arrow.TypeEqual(ext, NewDecimal128StringType()))
}
