// Package materialize converts a stream of BSON documents into Arrow columns
// laid out by a Schema, in a single pass over the stream.
//
// Every declared field gets one builder; each document appends exactly one
// slot, a value or a null, to every builder, so all columns end with one row
// per document. A value that cannot be converted to its column's type aborts
// the whole pass: no partial table is ever returned.
package materialize

import (
	"context"
	"iter"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/logger"
	"github.com/ajitpratap0/mongoarrow/pkg/metrics"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
)

// ctxCheckInterval is how many documents are appended between context checks
const ctxCheckInterval = 1024

// Materializer turns document streams into Tables. It is safe for concurrent
// use; each call owns its builders for the duration of the pass.
type Materializer struct {
	allocator memory.Allocator
	logger    *zap.Logger
	pool      *BuilderPool
}

// Option configures a Materializer
type Option func(*Materializer)

// WithAllocator sets the Arrow allocator used for column buffers
func WithAllocator(mem memory.Allocator) Option {
	return func(m *Materializer) { m.allocator = mem }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Materializer) { m.logger = l }
}

// WithBuilderPool shares a builder pool between materializers
func WithBuilderPool(p *BuilderPool) Option {
	return func(m *Materializer) { m.pool = p }
}

// New creates a Materializer
func New(opts ...Option) *Materializer {
	m := &Materializer{}
	for _, opt := range opts {
		opt(m)
	}
	if m.allocator == nil {
		m.allocator = memory.NewGoAllocator()
	}
	if m.logger == nil {
		m.logger = logger.Named("materializer")
	}
	if m.pool == nil {
		m.pool = NewBuilderPool(m.allocator, m.logger)
	}
	return m
}

// Materialize consumes docs once and returns a Table with one column per
// field of s. Absent, null and undefined values become nulls; fields not
// declared in s are ignored. An empty stream yields an empty, fully typed
// table.
func (m *Materializer) Materialize(ctx context.Context, docs iter.Seq2[bson.Raw, error], s *schema.Schema) (tbl *table.Table, err error) {
	if s == nil {
		return nil, errors.New(errors.ErrorTypeSchemaShape, "schema is required")
	}
	timer := metrics.NewTimer("materialize")
	log := logger.WithContext(ctx, m.logger)

	pooled := m.pool.Get(s.ArrowSchema())
	rb := pooled.Builder()

	fields := s.Fields()
	appenders := make([]appendFunc, len(fields))
	for i, f := range fields {
		appenders[i] = newAppender(f.Type, rb.Field(i))
	}

	rows := 0
	sealed := false
	defer func() {
		if !sealed {
			pooled.Discard()
			log.Debug("materialization aborted", zap.Int("document", rows), zap.Error(err))
		}
		metrics.ObserveMaterialize(rows, err)
		timer.ObserveDuration(err)
	}()

	for raw, iterErr := range docs {
		if iterErr != nil {
			return nil, errors.Wrap(iterErr, errors.ErrorTypeQuery, "reading documents").
				WithDetail("document", rows)
		}
		if rows%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for i, f := range fields {
			v := raw.Lookup(f.Name)
			fb := rb.Field(i)
			if isNull(v) {
				fb.AppendNull()
				continue
			}
			if err := appenders[i](v); err != nil {
				return nil, valueError(err, f.Name, rows, v)
			}
		}
		rows++
	}

	rec := pooled.NewRecord()
	sealed = true
	tbl, err = table.New(s, rec)
	if err != nil {
		rec.Release()
		log.Error("materialized columns are not rectangular", zap.Error(err))
		return nil, err
	}

	log.Debug("materialized documents",
		zap.Int("rows", rows),
		zap.Int("fields", len(fields)),
		zap.Duration("duration", timer.Stop()))
	return tbl, nil
}

// MaterializeDocuments is Materialize over an in-memory slice of documents
func (m *Materializer) MaterializeDocuments(ctx context.Context, docs []bson.Raw, s *schema.Schema) (*table.Table, error) {
	return m.Materialize(ctx, Documents(docs...), s)
}

// Documents adapts a slice of raw documents to a document stream
func Documents(docs ...bson.Raw) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Marshal adapts arbitrary documents (bson.D, bson.M, structs) to a document
// stream, marshaling each one lazily.
func Marshal(docs ...any) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		for _, d := range docs {
			b, err := bson.Marshal(d)
			if !yield(bson.Raw(b), err) || err != nil {
				return
			}
		}
	}
}

func valueError(cause error, field string, doc int, v bson.RawValue) error {
	return errors.Newf(errors.ErrorTypeValue, "field %q, document %d: %v", field, doc, cause).
		WithDetail("field", field).
		WithDetail("document", doc).
		WithDetail("value", v.String()).
		WithDetail("bson_type", v.Type.String())
}
