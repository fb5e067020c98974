package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/mongoarrow/pkg/compression"
	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/materialize"
	"github.com/ajitpratap0/mongoarrow/pkg/project"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
	"github.com/ajitpratap0/mongoarrow/pkg/types"
	"github.com/ajitpratap0/mongoarrow/pkg/writer"
)

var (
	oid1 = primitive.ObjectID{0x5f, 0x1e, 0x2d, 0x3c, 0x4b, 0x5a, 0x69, 0x78, 0x87, 0x76, 0x65, 0x54}
	oid2 = primitive.ObjectID{0x5f, 0x1e, 0x2d, 0x3c, 0x4b, 0x5a, 0x69, 0x78, 0x87, 0x76, 0x65, 0x55}
)

func ordersTable(t *testing.T) *table.Table {
	t.Helper()
	price, err := primitive.ParseDecimal128("19.99")
	require.NoError(t, err)

	s := schema.MustNew(bson.D{
		{Key: "_id", Value: types.ObjectID},
		{Key: "qty", Value: types.Int64},
		{Key: "price", Value: types.Decimal128String},
		{Key: "note", Value: types.String},
	})
	m := materialize.New(materialize.WithAllocator(memory.NewGoAllocator()), materialize.WithLogger(zaptest.NewLogger(t)))
	tbl, err := m.Materialize(context.Background(), materialize.Marshal(
		bson.D{{Key: "_id", Value: oid1}, {Key: "qty", Value: int64(3)}, {Key: "price", Value: price}, {Key: "note", Value: "gift"}},
		bson.D{{Key: "_id", Value: oid2}, {Key: "qty", Value: int32(1)}},
	), s)
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl
}

func TestArrowFile_RoundTrip(t *testing.T) {
	tbl := ordersTable(t)

	for _, codec := range []string{"none", "zstd", "lz4"} {
		t.Run(codec, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "orders.arrow")
			f, err := os.Create(path)
			require.NoError(t, err)
			require.NoError(t, writeArrowFile(f, tbl, codec, memory.NewGoAllocator()))
			require.NoError(t, f.Close())

			f, err = os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			n := 0
			for rec, err := range arrowRecords(f, memory.NewGoAllocator()) {
				require.NoError(t, err)
				n++

				got, err := table.FromRecord(rec)
				require.NoError(t, err)
				assert.True(t, tbl.Schema().Equal(got.Schema()))
				for i := 0; i < tbl.NumCols(); i++ {
					assert.True(t, array.Equal(tbl.Column(i), got.Column(i)), "column %d", i)
				}

				ids, ok := got.Column(0).(*types.ObjectIDArray)
				require.True(t, ok)
				assert.Equal(t, oid2, ids.Value(1))
			}
			assert.Equal(t, 1, n)
		})
	}
}

func TestSchemaFromArrowFile(t *testing.T) {
	tbl := ordersTable(t)
	path := filepath.Join(t.TempDir(), "orders.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, writeArrowFile(f, tbl, "none", memory.NewGoAllocator()))
	require.NoError(t, f.Close())

	s, err := schemaFromArrowFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "qty", "price", "note"}, s.Names())

	_, err = schemaFromArrowFile(filepath.Join(t.TempDir(), "missing.arrow"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestJSONLines_RoundTrip(t *testing.T) {
	tbl := ordersTable(t)

	for _, alg := range []compression.Algorithm{compression.None, compression.Gzip, compression.Zstd, compression.S2} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeJSONLines(&buf, tbl, alg, project.OmitNulls))

			m := materialize.New(materialize.WithAllocator(memory.NewGoAllocator()))
			got, err := m.Materialize(context.Background(), jsonLines(&buf, alg), tbl.Schema())
			require.NoError(t, err)
			defer got.Release()

			require.Equal(t, tbl.NumRows(), got.NumRows())
			for i := 0; i < tbl.NumCols(); i++ {
				assert.True(t, array.Equal(tbl.Column(i), got.Column(i)), "column %d", i)
			}
		})
	}
}

func TestWriteJSONLines_NullMarker(t *testing.T) {
	tbl := ordersTable(t)

	var buf bytes.Buffer
	require.NoError(t, writeJSONLines(&buf, tbl, compression.None, project.NullMarker))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"note":null`)
	assert.Contains(t, lines[0], `{"$oid":"5f1e2d3c4b5a697887766554"}`)

	buf.Reset()
	require.NoError(t, writeJSONLines(&buf, tbl, compression.None, project.OmitNulls))
	assert.NotContains(t, buf.String(), "null")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

type closeCounter struct {
	io.Writer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestWriteJSONLines_ClosesCompressorOnce(t *testing.T) {
	tbl := ordersTable(t)

	var counter *closeCounter
	orig := newCompressedWriter
	newCompressedWriter = func(dst io.Writer, _ compression.Algorithm, _ compression.Level) (io.WriteCloser, error) {
		counter = &closeCounter{Writer: dst}
		return counter, nil
	}
	t.Cleanup(func() { newCompressedWriter = orig })

	var buf bytes.Buffer
	require.NoError(t, writeJSONLines(&buf, tbl, compression.Zstd, project.OmitNulls))
	assert.Equal(t, 1, counter.closes)

	err := writeJSONLines(failingWriter{}, tbl, compression.Zstd, project.OmitNulls)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
	assert.Equal(t, 1, counter.closes)
}

func TestJSONLines_SkipsBlankAndReportsLine(t *testing.T) {
	in := "{\"a\": 1}\n\n{\"a\": 2}\nnot json\n"
	var (
		docs []bson.Raw
		last error
	)
	for raw, err := range jsonLines(strings.NewReader(in), compression.None) {
		if err != nil {
			last = err
			break
		}
		docs = append(docs, raw)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, int32(2), docs[1].Lookup("a").Int32())

	var e *errors.Error
	require.True(t, errors.As(last, &e))
	line, ok := e.Detail("line")
	require.True(t, ok)
	assert.Equal(t, 4, line)
}

func TestParseDocument(t *testing.T) {
	doc, err := parseDocument("")
	require.NoError(t, err)
	assert.Empty(t, doc)

	doc, err = parseDocument(`{"status": "paid", "_id": {"$oid": "5f1e2d3c4b5a697887766554"}}`)
	require.NoError(t, err)
	require.Len(t, doc, 2)
	assert.Equal(t, "status", doc[0].Key)
	assert.Equal(t, oid1, doc[1].Value)

	_, err = parseDocument("{status")
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestParsePipeline(t *testing.T) {
	p, err := parsePipeline(`[{"$match": {"qty": {"$gt": 1}}}, {"$limit": 5}]`)
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, "$match", p[0][0].Key)
	assert.Equal(t, "$limit", p[1][0].Key)

	p, err = parsePipeline("[]")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = parsePipeline(`{"$match": {}}`)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestIsJSONLines(t *testing.T) {
	assert.True(t, isJSONLines("orders.jsonl"))
	assert.True(t, isJSONLines("orders.ndjson.gz"))
	assert.True(t, isJSONLines("/data/ORDERS.JSONL.zst"))
	assert.False(t, isJSONLines("orders.arrow"))
	assert.False(t, isJSONLines("orders.gz"))
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report(&buf, &writer.WriteResult{InsertedCount: 5, Batches: 1}, nil))
	assert.JSONEq(t, `{"nInserted": 5, "batches": 1}`, buf.String())

	buf.Reset()
	werr := &writer.ArrowWriteError{
		NInserted:   3,
		Partial:     true,
		Batch:       1,
		WriteErrors: []writer.WriteError{{Index: 3, Code: 11000, Message: "E11000 duplicate key"}},
	}
	err := report(&buf, nil, werr)
	assert.Same(t, werr, err)
	assert.JSONEq(t, `{"nInserted": 3, "batches": 1, "writeErrors": [{"index": 3, "code": 11000, "errmsg": "E11000 duplicate key"}]}`, buf.String())
}
