package materialize

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/ajitpratap0/mongoarrow/pkg/types"
)

// appendFunc appends one present, non-null BSON value to a column builder
type appendFunc func(v bson.RawValue) error

// coercionError describes why a value does not fit its column; the
// materializer attaches field and document position.
type coercionError struct {
	reason string
	value  bson.RawValue
}

func (e *coercionError) Error() string { return e.reason }

func mismatch(v bson.RawValue, t types.Type) error {
	return &coercionError{
		reason: fmt.Sprintf("cannot convert BSON %s to %s", v.Type, t),
		value:  v,
	}
}

func overflow(v bson.RawValue, t types.Type) error {
	return &coercionError{
		reason: fmt.Sprintf("value %s overflows %s", v, t),
		value:  v,
	}
}

// isNull folds absent keys, BSON null and BSON undefined into one null marker
func isNull(v bson.RawValue) bool {
	return v.IsZero() || v.Type == bsontype.Null || v.Type == bsontype.Undefined
}

// newAppender returns the appender for a column of type t backed by b
func newAppender(t types.Type, b array.Builder) appendFunc {
	switch t.Kind() {
	case types.KindInt32:
		bld := b.(*array.Int32Builder)
		return func(v bson.RawValue) error {
			switch v.Type {
			case bsontype.Int32:
				bld.Append(v.Int32())
			case bsontype.Int64:
				n := v.Int64()
				if n < math.MinInt32 || n > math.MaxInt32 {
					return overflow(v, t)
				}
				bld.Append(int32(n))
			default:
				return mismatch(v, t)
			}
			return nil
		}
	case types.KindInt64:
		bld := b.(*array.Int64Builder)
		return func(v bson.RawValue) error {
			switch v.Type {
			case bsontype.Int32:
				bld.Append(int64(v.Int32()))
			case bsontype.Int64:
				bld.Append(v.Int64())
			default:
				return mismatch(v, t)
			}
			return nil
		}
	case types.KindFloat64:
		bld := b.(*array.Float64Builder)
		return func(v bson.RawValue) error {
			switch v.Type {
			case bsontype.Double:
				bld.Append(v.Double())
			case bsontype.Int32:
				bld.Append(float64(v.Int32()))
			case bsontype.Int64:
				n := v.Int64()
				f := float64(n)
				// above 2^53 the conversion rounds; float64(MaxInt64) rounds up to 2^63
				if f >= math.MaxInt64 || int64(f) != n {
					return overflow(v, t)
				}
				bld.Append(f)
			default:
				return mismatch(v, t)
			}
			return nil
		}
	case types.KindBool:
		bld := b.(*array.BooleanBuilder)
		return func(v bson.RawValue) error {
			if v.Type != bsontype.Boolean {
				return mismatch(v, t)
			}
			bld.Append(v.Boolean())
			return nil
		}
	case types.KindString:
		bld := b.(*array.StringBuilder)
		return func(v bson.RawValue) error {
			switch v.Type {
			case bsontype.String:
				bld.Append(v.StringValue())
			case bsontype.Symbol:
				bld.Append(v.Symbol())
			default:
				return mismatch(v, t)
			}
			return nil
		}
	case types.KindObjectID:
		bld := b.(*array.ExtensionBuilder).StorageBuilder().(*array.FixedSizeBinaryBuilder)
		return func(v bson.RawValue) error {
			if v.Type != bsontype.ObjectID {
				return mismatch(v, t)
			}
			oid := v.ObjectID()
			bld.Append(oid[:])
			return nil
		}
	case types.KindFixedBinary:
		bld := b.(*array.FixedSizeBinaryBuilder)
		return func(v bson.RawValue) error {
			switch v.Type {
			case bsontype.ObjectID:
				if t.ByteWidth() != len(v.ObjectID()) {
					return mismatch(v, t)
				}
				oid := v.ObjectID()
				bld.Append(oid[:])
			case bsontype.Binary:
				_, data := v.Binary()
				if len(data) != t.ByteWidth() {
					return mismatch(v, t)
				}
				bld.Append(data)
			default:
				return mismatch(v, t)
			}
			return nil
		}
	case types.KindDecimal128:
		bld := b.(*array.ExtensionBuilder).StorageBuilder().(*array.StringBuilder)
		return func(v bson.RawValue) error {
			if v.Type != bsontype.Decimal128 {
				return mismatch(v, t)
			}
			bld.Append(v.Decimal128().String())
			return nil
		}
	case types.KindTimestampMillis:
		bld := b.(*array.TimestampBuilder)
		return func(v bson.RawValue) error {
			if v.Type != bsontype.DateTime {
				return mismatch(v, t)
			}
			bld.Append(arrow.Timestamp(v.DateTime()))
			return nil
		}
	case types.KindTimestampSeconds:
		bld := b.(*array.TimestampBuilder)
		return func(v bson.RawValue) error {
			if v.Type != bsontype.DateTime {
				return mismatch(v, t)
			}
			bld.Append(arrow.Timestamp(floorDiv(v.DateTime(), 1000)))
			return nil
		}
	default:
		// null columns hold nothing but nulls
		return func(v bson.RawValue) error {
			return mismatch(v, t)
		}
	}
}

// floorDiv divides rounding toward negative infinity so pre-epoch instants
// land in the second that contains them.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
