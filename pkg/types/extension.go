package types

import (
	"fmt"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// ObjectIDExtensionName is the IPC extension name of ObjectIDType
	ObjectIDExtensionName = "mongoarrow.objectid"
	// Decimal128ExtensionName is the IPC extension name of Decimal128StringType
	Decimal128ExtensionName = "mongoarrow.decimal128"

	objectIDWidth = 12
)

// ObjectIDType stores BSON ObjectIds as FixedSizeBinary(12)
type ObjectIDType struct {
	arrow.ExtensionBase
}

// NewObjectIDType returns an ObjectIDType with its storage type set
func NewObjectIDType() *ObjectIDType {
	return &ObjectIDType{ExtensionBase: arrow.ExtensionBase{Storage: &arrow.FixedSizeBinaryType{ByteWidth: objectIDWidth}}}
}

// ArrayType returns TypeOf(ObjectIDArray{}) for constructing ObjectId arrays
func (*ObjectIDType) ArrayType() reflect.Type {
	return reflect.TypeOf(ObjectIDArray{})
}

func (*ObjectIDType) ExtensionName() string { return ObjectIDExtensionName }

func (e *ObjectIDType) String() string {
	return fmt.Sprintf("extension<%s>", e.ExtensionName())
}

func (*ObjectIDType) Serialize() string { return "" }

// Deserialize expects storageType to be FixedSizeBinaryType{ByteWidth: 12}
func (*ObjectIDType) Deserialize(storageType arrow.DataType, _ string) (arrow.ExtensionType, error) {
	if !arrow.TypeEqual(storageType, &arrow.FixedSizeBinaryType{ByteWidth: objectIDWidth}) {
		return nil, fmt.Errorf("invalid storage type for ObjectIDType: %s", storageType)
	}
	return NewObjectIDType(), nil
}

func (e *ObjectIDType) ExtensionEquals(other arrow.ExtensionType) bool {
	return e.ExtensionName() == other.ExtensionName()
}

// ObjectIDArray is a FixedSizeBinary(12) array viewed as ObjectIds
type ObjectIDArray struct {
	array.ExtensionArrayBase
}

// Value returns the ObjectId at i, or the zero ObjectId when the slot is null
func (a *ObjectIDArray) Value(i int) primitive.ObjectID {
	var oid primitive.ObjectID
	if a.IsNull(i) {
		return oid
	}
	copy(oid[:], a.Storage().(*array.FixedSizeBinary).Value(i))
	return oid
}

func (a *ObjectIDArray) ValueStr(i int) string {
	if a.IsNull(i) {
		return array.NullValueStr
	}
	return a.Value(i).Hex()
}

// Decimal128StringType stores BSON Decimal128 values as their string form
type Decimal128StringType struct {
	arrow.ExtensionBase
}

// NewDecimal128StringType returns a Decimal128StringType with String storage
func NewDecimal128StringType() *Decimal128StringType {
	return &Decimal128StringType{ExtensionBase: arrow.ExtensionBase{Storage: arrow.BinaryTypes.String}}
}

func (*Decimal128StringType) ArrayType() reflect.Type {
	return reflect.TypeOf(Decimal128StringArray{})
}

func (*Decimal128StringType) ExtensionName() string { return Decimal128ExtensionName }

func (e *Decimal128StringType) String() string {
	return fmt.Sprintf("extension<%s>", e.ExtensionName())
}

func (*Decimal128StringType) Serialize() string { return "" }

func (*Decimal128StringType) Deserialize(storageType arrow.DataType, _ string) (arrow.ExtensionType, error) {
	if !arrow.TypeEqual(storageType, arrow.BinaryTypes.String) {
		return nil, fmt.Errorf("invalid storage type for Decimal128StringType: %s", storageType)
	}
	return NewDecimal128StringType(), nil
}

func (e *Decimal128StringType) ExtensionEquals(other arrow.ExtensionType) bool {
	return e.ExtensionName() == other.ExtensionName()
}

// Decimal128StringArray is a String array holding decimal128 text
type Decimal128StringArray struct {
	array.ExtensionArrayBase
}

// Value returns the decimal text at i
func (a *Decimal128StringArray) Value(i int) string {
	return a.Storage().(*array.String).Value(i)
}

// Decimal128 parses the value at i back into a BSON Decimal128
func (a *Decimal128StringArray) Decimal128(i int) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(a.Value(i))
}

func (a *Decimal128StringArray) ValueStr(i int) string {
	if a.IsNull(i) {
		return array.NullValueStr
	}
	return a.Value(i)
}

func init() {
	for _, ext := range []arrow.ExtensionType{NewObjectIDType(), NewDecimal128StringType()} {
		if arrow.GetExtensionType(ext.ExtensionName()) != nil {
			continue
		}
		if err := arrow.RegisterExtensionType(ext); err != nil {
			panic(err)
		}
	}
}

var (
	_ arrow.ExtensionType  = (*ObjectIDType)(nil)
	_ arrow.ExtensionType  = (*Decimal128StringType)(nil)
	_ array.ExtensionArray = (*ObjectIDArray)(nil)
	_ array.ExtensionArray = (*Decimal128StringArray)(nil)
)
