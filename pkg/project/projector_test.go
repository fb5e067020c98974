package project

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/materialize"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
	"github.com/ajitpratap0/mongoarrow/pkg/types"
)

var allTypes = schema.MustNew(bson.D{
	{Key: "_id", Value: types.ObjectID},
	{Key: "i32", Value: types.Int32},
	{Key: "i64", Value: types.Int64},
	{Key: "f", Value: types.Float64},
	{Key: "b", Value: types.Bool},
	{Key: "s", Value: types.String},
	{Key: "dec", Value: types.Decimal128String},
	{Key: "ms", Value: types.TimestampMillis},
	{Key: "sec", Value: types.TimestampSeconds},
	{Key: "bin", Value: types.FixedBinary(2)},
})

func materializeDocs(t *testing.T, s *schema.Schema, docs ...any) *table.Table {
	t.Helper()
	m := materialize.New(materialize.WithAllocator(memory.NewGoAllocator()), materialize.WithLogger(zaptest.NewLogger(t)))
	tbl, err := m.Materialize(context.Background(), materialize.Marshal(docs...), s)
	require.NoError(t, err)
	return tbl
}

func TestDocuments_Values(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, _ := primitive.ParseDecimal128("-12.50")
	when := primitive.NewDateTimeFromTime(time.Date(2022, 1, 2, 3, 4, 5, 600_000_000, time.UTC))

	tbl := materializeDocs(t, allTypes, bson.D{
		{Key: "_id", Value: oid},
		{Key: "i32", Value: int32(1)},
		{Key: "i64", Value: int64(2)},
		{Key: "f", Value: 2.5},
		{Key: "b", Value: true},
		{Key: "s", Value: "x"},
		{Key: "dec", Value: dec},
		{Key: "ms", Value: when},
		{Key: "sec", Value: when},
		{Key: "bin", Value: primitive.Binary{Data: []byte{9, 8}}},
	})
	defer tbl.Release()

	docs := All(tbl)
	require.Len(t, docs, 1)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: oid},
		{Key: "i32", Value: int32(1)},
		{Key: "i64", Value: int64(2)},
		{Key: "f", Value: 2.5},
		{Key: "b", Value: true},
		{Key: "s", Value: "x"},
		{Key: "dec", Value: dec},
		{Key: "ms", Value: when},
		{Key: "sec", Value: primitive.DateTime(1641092645000)},
		{Key: "bin", Value: primitive.Binary{Subtype: bson.TypeBinaryGeneric, Data: []byte{9, 8}}},
	}, docs[0])
}

func TestDocuments_NullConventions(t *testing.T) {
	s := schema.MustNew(bson.D{{Key: "a", Value: types.Int32}, {Key: "b", Value: types.String}})
	tbl := materializeDocs(t, s, bson.M{"a": int32(1)}, bson.M{"b": "y", "a": nil})
	defer tbl.Release()

	assert.Equal(t, []bson.D{
		{{Key: "a", Value: int32(1)}},
		{{Key: "b", Value: "y"}},
	}, All(tbl))

	assert.Equal(t, []bson.D{
		{{Key: "a", Value: int32(1)}, {Key: "b", Value: nil}},
		{{Key: "a", Value: nil}, {Key: "b", Value: "y"}},
	}, All(tbl, WithNulls(NullMarker)))
}

func TestDocuments_RowIndexAndEarlyStop(t *testing.T) {
	s := schema.MustNew(bson.D{{Key: "n", Value: types.Int64}})
	tbl := materializeDocs(t, s, bson.M{"n": int64(0)}, bson.M{"n": int64(1)}, bson.M{"n": int64(2)})
	defer tbl.Release()

	var seen []int
	for i, doc := range Documents(tbl) {
		assert.Equal(t, int64(i), doc[0].Value)
		seen = append(seen, i)
		if i == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)

	// a fresh walk starts from the first row
	n := 0
	for range Documents(tbl) {
		n++
	}
	assert.Equal(t, 3, n)
}

func TestRoundTrip(t *testing.T) {
	dec, _ := primitive.ParseDecimal128("1E+3")
	docs := []any{
		bson.M{"_id": primitive.NewObjectID(), "i32": int32(-3), "f": 0.1, "dec": dec},
		bson.M{"_id": primitive.NewObjectID(), "s": "héllo", "b": false, "ms": primitive.DateTime(-1)},
		bson.M{"_id": primitive.NewObjectID(), "sec": primitive.DateTime(-1500), "bin": primitive.Binary{Data: []byte{0, 1}}},
		bson.M{},
	}

	first := materializeDocs(t, allTypes, docs...)
	defer first.Release()

	projected := make([]any, 0, len(docs))
	for _, d := range Documents(first) {
		projected = append(projected, d)
	}
	second := materializeDocs(t, allTypes, projected...)
	defer second.Release()

	require.Equal(t, first.NumRows(), second.NumRows())
	for i := 0; i < first.NumCols(); i++ {
		assert.True(t, array.Equal(first.Column(i), second.Column(i)), "column %s", allTypes.Field(i).Name)
	}
}

func TestValidate(t *testing.T) {
	tbl := materializeDocs(t, allTypes, bson.M{})
	defer tbl.Release()
	require.NoError(t, Validate(tbl.Record(), allTypes))

	other := schema.MustNew(bson.D{{Key: "_id", Value: types.String}})
	err := Validate(tbl.Record(), other)
	assert.True(t, errors.IsSchemaShape(err))

	swapped := allTypes.Fields()
	swapped[1].Type = types.Int64
	err = Validate(tbl.Record(), schema.MustNew(swapped))
	assert.True(t, errors.IsUnsupportedType(err))
}
