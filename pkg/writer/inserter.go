package writer

import (
	"context"
	stderrors "errors"
	"slices"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertResult is the outcome of one InsertMany call. WriteErrors carry
// batch-relative indices.
type InsertResult struct {
	InsertedCount int
	WriteErrors   []WriteError
}

// Inserter submits one batch of documents
type Inserter interface {
	InsertMany(ctx context.Context, docs []interface{}) (InsertResult, error)
}

// InserterFunc adapts a function to Inserter
type InserterFunc func(ctx context.Context, docs []interface{}) (InsertResult, error)

func (f InserterFunc) InsertMany(ctx context.Context, docs []interface{}) (InsertResult, error) {
	return f(ctx, docs)
}

// Collection is the part of *mongo.Collection used for inserts
type Collection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoInserter performs ordered inserts into a collection
type MongoInserter struct {
	coll Collection
}

// NewMongoInserter wraps coll
func NewMongoInserter(coll Collection) *MongoInserter {
	return &MongoInserter{coll: coll}
}

// InsertMany inserts docs in order. Per-document rejections are returned in
// the result with a nil error. A write concern error alone counts every
// document as inserted and is returned as the error; anything else is a
// transport failure.
func (m *MongoInserter) InsertMany(ctx context.Context, docs []interface{}) (InsertResult, error) {
	_, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return InsertResult{InsertedCount: len(docs)}, nil
	}

	var bwe mongo.BulkWriteException
	if !stderrors.As(err, &bwe) {
		return InsertResult{}, err
	}
	if len(bwe.WriteErrors) == 0 {
		if bwe.WriteConcernError != nil {
			// the documents were applied; only the acknowledgement fell short
			return InsertResult{InsertedCount: len(docs)}, err
		}
		return InsertResult{}, err
	}

	res := InsertResult{WriteErrors: make([]WriteError, 0, len(bwe.WriteErrors))}
	for _, we := range bwe.WriteErrors {
		res.WriteErrors = append(res.WriteErrors, WriteError{
			BatchIndex: we.Index,
			Code:       we.Code,
			Message:    we.Message,
		})
	}
	slices.SortFunc(res.WriteErrors, func(a, b WriteError) int { return a.BatchIndex - b.BatchIndex })
	// ordered inserts stop at the first rejected document
	res.InsertedCount = res.WriteErrors[0].BatchIndex
	return res, nil
}
