// Package types is the registry of canonical column types. Every type spec a
// caller may hand to a schema, whether a Go type, a BSON type marker or an
// Arrow data type, resolves to exactly one canonical Type here.
package types

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Kind tags a canonical column type
type Kind uint8

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindFloat64
	KindBool
	KindString
	KindFixedBinary
	KindObjectID
	KindDecimal128
	KindTimestampMillis
	KindTimestampSeconds
)

var kindNames = [...]string{
	KindNull:             "null",
	KindInt32:            "int32",
	KindInt64:            "int64",
	KindFloat64:          "float64",
	KindBool:             "bool",
	KindString:           "string",
	KindFixedBinary:      "fixed_binary",
	KindObjectID:         "objectid",
	KindDecimal128:       "decimal128",
	KindTimestampMillis:  "timestamp[ms]",
	KindTimestampSeconds: "timestamp[s]",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Type is a resolved canonical column type. It is a comparable value: two
// Types are equal iff kind and width match.
type Type struct {
	kind  Kind
	width int
}

var (
	Null             = Type{kind: KindNull}
	Int32            = Type{kind: KindInt32}
	Int64            = Type{kind: KindInt64}
	Float64          = Type{kind: KindFloat64}
	Bool             = Type{kind: KindBool}
	String           = Type{kind: KindString}
	ObjectID         = Type{kind: KindObjectID, width: objectIDWidth}
	Decimal128String = Type{kind: KindDecimal128}
	TimestampMillis  = Type{kind: KindTimestampMillis}
	TimestampSeconds = Type{kind: KindTimestampSeconds}
)

// FixedBinary returns the fixed-length binary type of n bytes
func FixedBinary(n int) Type {
	return Type{kind: KindFixedBinary, width: n}
}

func (t Type) Kind() Kind { return t.kind }

// ByteWidth is the fixed byte width for binary kinds, 0 otherwise
func (t Type) ByteWidth() int { return t.width }

func (t Type) String() string {
	if t.kind == KindFixedBinary {
		return fmt.Sprintf("fixed_binary[%d]", t.width)
	}
	return t.kind.String()
}

// ArrowType returns the Arrow descriptor columns of this type are built with
func (t Type) ArrowType() arrow.DataType {
	switch t.kind {
	case KindInt32:
		return arrow.PrimitiveTypes.Int32
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindString:
		return arrow.BinaryTypes.String
	case KindFixedBinary:
		return &arrow.FixedSizeBinaryType{ByteWidth: t.width}
	case KindObjectID:
		return NewObjectIDType()
	case KindDecimal128:
		return NewDecimal128StringType()
	case KindTimestampMillis:
		return &arrow.TimestampType{Unit: arrow.Millisecond}
	case KindTimestampSeconds:
		return &arrow.TimestampType{Unit: arrow.Second}
	default:
		return arrow.Null
	}
}
