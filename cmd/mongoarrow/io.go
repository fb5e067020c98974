package main

import (
	"bufio"
	"io"
	"iter"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ajitpratap0/mongoarrow/pkg/compression"
	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/project"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
)

// maxLineSize bounds a single JSON-lines document
const maxLineSize = 16 << 20

// writeArrowFile writes t as an Arrow IPC file with the given body codec
func writeArrowFile(w io.Writer, t *table.Table, codec string, mem memory.Allocator) error {
	opts := []ipc.Option{ipc.WithSchema(t.Record().Schema()), ipc.WithAllocator(mem)}
	switch codec {
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	}

	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "creating arrow file")
	}
	if err := fw.Write(t.Record()); err != nil {
		_ = fw.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "writing arrow record")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "closing arrow file")
	}
	return nil
}

// arrowRecords yields every record of an Arrow IPC file. Each record is
// only valid until the next one is requested.
func arrowRecords(f *os.File, mem memory.Allocator) iter.Seq2[arrow.Record, error] {
	return func(yield func(arrow.Record, error) bool) {
		fr, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
		if err != nil {
			yield(nil, errors.Wrap(err, errors.ErrorTypeFile, "opening arrow file"))
			return
		}
		defer fr.Close()

		for i := 0; i < fr.NumRecords(); i++ {
			rec, err := fr.Record(i)
			if err != nil {
				yield(nil, errors.Wrap(err, errors.ErrorTypeFile, "reading arrow record"))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

var newCompressedWriter = compression.NewWriter

// writeJSONLines writes one canonical extended JSON document per row
func writeJSONLines(w io.Writer, t *table.Table, alg compression.Algorithm, nulls project.NullMode) error {
	cw, err := newCompressedWriter(w, alg, compression.Default)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = cw.Close()
		}
	}()
	bw := bufio.NewWriter(cw)

	for _, doc := range project.Documents(t, project.WithNulls(nulls)) {
		line, err := bson.MarshalExtJSON(doc, true, false)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "encoding document")
		}
		if _, err := bw.Write(line); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "writing document")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "writing document")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "flushing output")
	}
	closed = true
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "closing output")
	}
	return nil
}

// jsonLines yields one BSON document per non-blank extended JSON line of r
func jsonLines(r io.Reader, alg compression.Algorithm) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		cr, err := compression.NewReader(r, alg)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cr.Close()

		sc := bufio.NewScanner(cr)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		line := 0
		for sc.Scan() {
			line++
			text := sc.Bytes()
			if len(text) == 0 {
				continue
			}
			var doc bson.D
			if err := bson.UnmarshalExtJSON(text, false, &doc); err != nil {
				yield(nil, errors.Wrap(err, errors.ErrorTypeFile, "decoding extended JSON").WithDetail("line", line))
				return
			}
			raw, err := bson.Marshal(doc)
			if !yield(bson.Raw(raw), err) || err != nil {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, errors.Wrap(err, errors.ErrorTypeFile, "reading input"))
		}
	}
}

// parseDocument decodes a relaxed extended JSON document flag value
func parseDocument(text string) (bson.D, error) {
	var doc bson.D
	if text == "" {
		return bson.D{}, nil
	}
	if err := bson.UnmarshalExtJSON([]byte(text), false, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "invalid extended JSON document").WithDetail("input", text)
	}
	return doc, nil
}

// parsePipeline decodes a relaxed extended JSON array of stages
func parsePipeline(text string) (mongo.Pipeline, error) {
	// extended JSON must be a document at the top level
	var wrapper struct {
		Stages []bson.D `bson:"stages"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"stages":`+text+`}`), false, &wrapper); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "invalid pipeline").WithDetail("input", text)
	}
	return mongo.Pipeline(wrapper.Stages), nil
}
