// Package project walks a finished Table row by row and yields one BSON
// document per row, the inverse of package materialize.
package project

import (
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/metrics"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
	"github.com/ajitpratap0/mongoarrow/pkg/types"
)

// NullMode selects how null slots appear in projected documents
type NullMode int

const (
	// OmitNulls leaves the key out of the document
	OmitNulls NullMode = iota
	// NullMarker keeps the key with a BSON null value
	NullMarker
)

type options struct {
	nulls NullMode
}

// Option configures a projection
type Option func(*options)

// WithNulls sets the null convention
func WithNulls(mode NullMode) Option {
	return func(o *options) { o.nulls = mode }
}

// valueFunc reads the value of row i from a column known to be non-null there
type valueFunc func(i int) any

// Documents yields (row index, document) for every row of t in order. The
// sequence is single-pass; calling Documents again starts a new walk.
func Documents(t *table.Table, opts ...Option) iter.Seq2[int, bson.D] {
	return Record(t.Record(), t.Schema(), opts...)
}

// Record is Documents over an Arrow record laid out by s
func Record(rec arrow.Record, s *schema.Schema, opts ...Option) iter.Seq2[int, bson.D] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(int, bson.D) bool) {
		fields := s.Fields()
		cols := make([]arrow.Array, len(fields))
		readers := make([]valueFunc, len(fields))
		for i, f := range fields {
			cols[i] = rec.Column(i)
			readers[i] = newReader(f.Type, cols[i])
		}

		rows := int(rec.NumRows())
		for row := 0; row < rows; row++ {
			doc := make(bson.D, 0, len(fields))
			for i, f := range fields {
				if cols[i].IsNull(row) {
					if o.nulls == NullMarker {
						doc = append(doc, bson.E{Key: f.Name, Value: nil})
					}
					continue
				}
				doc = append(doc, bson.E{Key: f.Name, Value: readers[i](row)})
			}
			metrics.DocumentsProjected.Inc()
			if !yield(row, doc) {
				return
			}
		}
	}
}

// All collects every projected document of t
func All(t *table.Table, opts ...Option) []bson.D {
	docs := make([]bson.D, 0, t.NumRows())
	for _, doc := range Documents(t, opts...) {
		docs = append(docs, doc)
	}
	return docs
}

// Validate checks that rec's columns have the Arrow types s declares, so a
// projection over it cannot fail halfway.
func Validate(rec arrow.Record, s *schema.Schema) error {
	if int(rec.NumCols()) != s.Len() {
		return errors.Newf(errors.ErrorTypeSchemaShape,
			"record has %d columns, schema declares %d", rec.NumCols(), s.Len())
	}
	for i, f := range s.Fields() {
		if !arrow.TypeEqual(rec.Column(i).DataType(), f.Type.ArrowType()) {
			return errors.Newf(errors.ErrorTypeUnsupportedType,
				"column %q has type %s, schema declares %s", f.Name, rec.Column(i).DataType(), f.Type).
				WithDetail("field", f.Name)
		}
	}
	return nil
}

func newReader(t types.Type, col arrow.Array) valueFunc {
	switch t.Kind() {
	case types.KindInt32:
		a := col.(*array.Int32)
		return func(i int) any { return a.Value(i) }
	case types.KindInt64:
		a := col.(*array.Int64)
		return func(i int) any { return a.Value(i) }
	case types.KindFloat64:
		a := col.(*array.Float64)
		return func(i int) any { return a.Value(i) }
	case types.KindBool:
		a := col.(*array.Boolean)
		return func(i int) any { return a.Value(i) }
	case types.KindString:
		a := col.(*array.String)
		return func(i int) any { return a.Value(i) }
	case types.KindObjectID:
		a := col.(*types.ObjectIDArray)
		return func(i int) any { return a.Value(i) }
	case types.KindDecimal128:
		a := col.(*types.Decimal128StringArray)
		return func(i int) any {
			d, err := a.Decimal128(i)
			if err != nil {
				// not a decimal string; keep the text rather than drop the value
				return a.Value(i)
			}
			return d
		}
	case types.KindFixedBinary:
		a := col.(*array.FixedSizeBinary)
		return func(i int) any {
			data := make([]byte, t.ByteWidth())
			copy(data, a.Value(i))
			return primitive.Binary{Subtype: bson.TypeBinaryGeneric, Data: data}
		}
	case types.KindTimestampMillis:
		a := col.(*array.Timestamp)
		return func(i int) any { return primitive.DateTime(a.Value(i)) }
	case types.KindTimestampSeconds:
		a := col.(*array.Timestamp)
		return func(i int) any { return primitive.DateTime(int64(a.Value(i)) * 1000) }
	default:
		return func(int) any { return nil }
	}
}
