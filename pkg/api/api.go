// Package api is the collaborator-facing surface of mongoarrow: it runs find
// and aggregate queries shaped by a Schema and materializes the results, and
// writes tables back through the bulk write batcher.
package api

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/logger"
	"github.com/ajitpratap0/mongoarrow/pkg/materialize"
	"github.com/ajitpratap0/mongoarrow/pkg/observability"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
	"github.com/ajitpratap0/mongoarrow/pkg/writer"
)

// Finder is the part of *mongo.Collection used by FindArrowAll
type Finder interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// Aggregator is the part of *mongo.Collection used by AggregateArrowAll
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

type queryOptions struct {
	sort         interface{}
	limit        int64
	skip         int64
	materializer *materialize.Materializer
	namespace    string
}

// QueryOption configures FindArrowAll and AggregateArrowAll
type QueryOption func(*queryOptions)

// WithSort sets the find sort document
func WithSort(sort interface{}) QueryOption {
	return func(o *queryOptions) { o.sort = sort }
}

// WithLimit caps the number of documents returned by find
func WithLimit(n int64) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

func WithSkip(n int64) QueryOption {
	return func(o *queryOptions) { o.skip = n }
}

// WithMaterializer overrides the default materializer
func WithMaterializer(m *materialize.Materializer) QueryOption {
	return func(o *queryOptions) { o.materializer = m }
}

// WithNamespace labels spans with "db.collection"
func WithNamespace(ns string) QueryOption {
	return func(o *queryOptions) { o.namespace = ns }
}

func buildOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.materializer == nil {
		o.materializer = materialize.New()
	}
	return o
}

// FindArrowAll runs a find that projects exactly the fields of s and
// materializes every returned document.
func FindArrowAll(ctx context.Context, coll Finder, filter interface{}, s *schema.Schema, opts ...QueryOption) (tbl *table.Table, err error) {
	if s == nil {
		return nil, errors.New(errors.ErrorTypeSchemaShape, "schema is required")
	}
	o := buildOptions(opts)
	ctx = logger.WithOperation(ctx, "find", o.namespace)
	ctx, span := observability.StartSpan(ctx, "find",
		attribute.String("mongo.namespace", o.namespace),
		attribute.Int("schema.fields", s.Len()))
	defer func() { observability.EndSpan(span, err) }()

	if filter == nil {
		filter = bson.D{}
	}
	findOpts := options.Find().SetProjection(s.Projection())
	if o.sort != nil {
		findOpts.SetSort(o.sort)
	}
	if o.limit > 0 {
		findOpts.SetLimit(o.limit)
	}
	if o.skip > 0 {
		findOpts.SetSkip(o.skip)
	}

	cur, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "find failed")
	}
	tbl, err = o.materializer.Materialize(ctx, CursorSeq(ctx, cur), s)
	if err == nil {
		span.SetAttributes(attribute.Int("result.rows", tbl.NumRows()))
	}
	return tbl, err
}

// AggregateArrowAll runs pipeline with one trailing $project stage for the
// fields of s and materializes the output. The caller's pipeline is not
// modified.
func AggregateArrowAll(ctx context.Context, coll Aggregator, pipeline mongo.Pipeline, s *schema.Schema, opts ...QueryOption) (tbl *table.Table, err error) {
	if s == nil {
		return nil, errors.New(errors.ErrorTypeSchemaShape, "schema is required")
	}
	o := buildOptions(opts)
	ctx = logger.WithOperation(ctx, "aggregate", o.namespace)
	ctx, span := observability.StartSpan(ctx, "aggregate",
		attribute.String("mongo.namespace", o.namespace),
		attribute.Int("pipeline.stages", len(pipeline)+1))
	defer func() { observability.EndSpan(span, err) }()

	stages := make(mongo.Pipeline, 0, len(pipeline)+1)
	stages = append(stages, pipeline...)
	stages = append(stages, s.ProjectStage())

	cur, err := coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "aggregate failed")
	}
	tbl, err = o.materializer.Materialize(ctx, CursorSeq(ctx, cur), s)
	if err == nil {
		span.SetAttributes(attribute.Int("result.rows", tbl.NumRows()))
	}
	return tbl, err
}

// Write inserts t into coll with the default batch size
func Write(ctx context.Context, coll writer.Collection, t *table.Table, opts ...writer.Option) (res *writer.WriteResult, err error) {
	ns := namespaceOf(coll)
	ctx = logger.WithOperation(ctx, "write", ns)
	ctx, span := observability.StartSpan(ctx, "write", attribute.String("mongo.namespace", ns))
	defer func() { observability.EndSpan(span, err) }()
	if t != nil {
		span.SetAttributes(attribute.Int("table.rows", t.NumRows()))
	}
	return writer.New(writer.NewMongoInserter(coll), opts...).Write(ctx, t)
}

// namespaceOf returns "db.collection" for a *mongo.Collection and "" for
// other collection implementations
func namespaceOf(coll writer.Collection) string {
	c, ok := coll.(interface {
		Name() string
		Database() *mongo.Database
	})
	if !ok {
		return ""
	}
	if db := c.Database(); db != nil {
		return db.Name() + "." + c.Name()
	}
	return c.Name()
}

// CursorSeq adapts a cursor to a single-pass document stream. The cursor is
// closed when the stream ends or the consumer stops early. Each yielded
// document is only valid until the next one is requested.
func CursorSeq(ctx context.Context, cur *mongo.Cursor) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			if !yield(cur.Current, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}
