package types

import (
	"reflect"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
)

// normalizer resolves one family of type specs. ok is false when the spec
// does not belong to the family.
type normalizer struct {
	family string
	fn     func(spec any) (Type, bool)
}

// normalizers are tried in order; the first family that recognizes a spec wins.
var normalizers = []normalizer{
	{family: "canonical", fn: fromCanonical},
	{family: "arrow", fn: fromArrow},
	{family: "bson", fn: fromBSON},
	{family: "native", fn: fromNative},
}

var bsonMarkers = map[bsontype.Type]Type{
	bsontype.Int32:      Int32,
	bsontype.Int64:      Int64,
	bsontype.Double:     Float64,
	bsontype.Boolean:    Bool,
	bsontype.String:     String,
	bsontype.ObjectID:   ObjectID,
	bsontype.Decimal128: Decimal128String,
	bsontype.DateTime:   TimestampMillis,
	bsontype.Null:       Null,
}

var reflectTypes = map[reflect.Type]Type{
	// driver-native types
	reflect.TypeOf(primitive.ObjectID{}):   ObjectID,
	reflect.TypeOf(primitive.Decimal128{}): Decimal128String,
	reflect.TypeOf(primitive.DateTime(0)):  TimestampMillis,
	reflect.TypeOf(primitive.Null{}):       Null,
	// Go scalars
	reflect.TypeOf(int32(0)):    Int32,
	reflect.TypeOf(int64(0)):    Int64,
	reflect.TypeOf(int(0)):      Int64,
	reflect.TypeOf(float64(0)):  Float64,
	reflect.TypeOf(float32(0)):  Float64,
	reflect.TypeOf(false):       Bool,
	reflect.TypeOf(""):          String,
	reflect.TypeOf(time.Time{}): TimestampMillis,
}

var typeNames = map[string]Type{
	"int32":          Int32,
	"int64":          Int64,
	"int":            Int64,
	"float":          Float64,
	"float64":        Float64,
	"double":         Float64,
	"bool":           Bool,
	"str":            String,
	"string":         String,
	"datetime":       TimestampMillis,
	"datetime64[ms]": TimestampMillis,
	"timestamp[ms]":  TimestampMillis,
	"timestamp[s]":   TimestampSeconds,
	"objectid":       ObjectID,
	"decimal128":     Decimal128String,
	"null":           Null,
}

// Normalize resolves spec into its canonical Type. field is only used to
// build the error when no family recognizes spec.
func Normalize(spec any, field string) (Type, error) {
	if spec != nil {
		for _, n := range normalizers {
			if t, ok := n.fn(spec); ok {
				return t, nil
			}
		}
	}
	return Type{}, errors.Newf(errors.ErrorTypeUnsupportedType,
		"field %q: unsupported type spec %v (%T)", field, spec, spec).
		WithDetail("field", field).
		WithDetail("spec", spec)
}

// MustNormalize is like Normalize but panics on an unsupported spec
func MustNormalize(spec any) Type {
	t, err := Normalize(spec, "")
	if err != nil {
		panic(err)
	}
	return t
}

func fromCanonical(spec any) (Type, bool) {
	t, ok := spec.(Type)
	return t, ok
}

func fromArrow(spec any) (Type, bool) {
	dt, ok := spec.(arrow.DataType)
	if !ok {
		return Type{}, false
	}
	switch dt.ID() {
	case arrow.INT32:
		return Int32, true
	case arrow.INT64:
		return Int64, true
	case arrow.FLOAT64:
		return Float64, true
	case arrow.BOOL:
		return Bool, true
	case arrow.STRING, arrow.LARGE_STRING:
		return String, true
	case arrow.NULL:
		return Null, true
	case arrow.FIXED_SIZE_BINARY:
		return FixedBinary(dt.(*arrow.FixedSizeBinaryType).ByteWidth), true
	case arrow.TIMESTAMP:
		switch dt.(*arrow.TimestampType).Unit {
		case arrow.Millisecond:
			return TimestampMillis, true
		case arrow.Second:
			return TimestampSeconds, true
		}
	case arrow.EXTENSION:
		switch dt.(arrow.ExtensionType).ExtensionName() {
		case ObjectIDExtensionName:
			return ObjectID, true
		case Decimal128ExtensionName:
			return Decimal128String, true
		}
	}
	return Type{}, false
}

func fromBSON(spec any) (Type, bool) {
	switch s := spec.(type) {
	case bsontype.Type:
		t, ok := bsonMarkers[s]
		return t, ok
	case reflect.Type:
		if s.PkgPath() != reflect.TypeOf(primitive.ObjectID{}).PkgPath() {
			return Type{}, false
		}
		t, ok := reflectTypes[s]
		return t, ok
	}
	return Type{}, false
}

func fromNative(spec any) (Type, bool) {
	switch s := spec.(type) {
	case reflect.Type:
		t, ok := reflectTypes[s]
		return t, ok
	case string:
		t, ok := typeNames[strings.ToLower(strings.TrimSpace(s))]
		return t, ok
	}
	return Type{}, false
}
