// Package writer inserts Arrow tables into MongoDB in bounded, strictly
// sequential batches and aggregates partial failures with row indices of the
// source table.
package writer

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/logger"
	"github.com/ajitpratap0/mongoarrow/pkg/metrics"
	"github.com/ajitpratap0/mongoarrow/pkg/project"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
	"github.com/ajitpratap0/mongoarrow/pkg/table"
)

// DefaultBatchSize is the number of documents per InsertMany call
const DefaultBatchSize = 100_000

// WriteResult summarizes a fully successful write
type WriteResult struct {
	InsertedCount int
	Batches       int
}

// Batcher splits tables into batches and submits them one at a time
type Batcher struct {
	inserter  Inserter
	batchSize int
	nulls     project.NullMode
	logger    *zap.Logger
}

// Option configures a Batcher
type Option func(*Batcher)

// WithBatchSize sets the maximum documents per batch; values below 1 are ignored
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Batcher) { b.logger = l }
}

// WithNullMarker writes null slots as explicit BSON nulls instead of
// omitting the key.
func WithNullMarker() Option {
	return func(b *Batcher) { b.nulls = project.NullMarker }
}

// New creates a Batcher submitting through ins
func New(ins Inserter, opts ...Option) *Batcher {
	b := &Batcher{
		inserter:  ins,
		batchSize: DefaultBatchSize,
		nulls:     project.OmitNulls,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Named("writer")
	}
	return b
}

// BatchSize returns the configured batch size
func (b *Batcher) BatchSize() int { return b.batchSize }

// Write inserts every row of t. On the first batch with write errors or a
// transport failure it stops and returns an *ArrowWriteError; earlier
// batches stay committed.
func (b *Batcher) Write(ctx context.Context, t *table.Table) (*WriteResult, error) {
	if t == nil {
		return nil, errors.New(errors.ErrorTypeWrite, "nothing to write")
	}
	return b.write(ctx, t.Record(), t.Schema())
}

// WriteRecord is Write for an Arrow record built outside this module. A
// column with no canonical equivalent fails before anything is sent.
func (b *Batcher) WriteRecord(ctx context.Context, rec arrow.Record) (*WriteResult, error) {
	s, err := schema.FromArrow(rec.Schema())
	if err != nil {
		return nil, err
	}
	if err := project.Validate(rec, s); err != nil {
		return nil, err
	}
	return b.write(ctx, rec, s)
}

func (b *Batcher) write(ctx context.Context, rec arrow.Record, s *schema.Schema) (*WriteResult, error) {
	total := int(rec.NumRows())
	res := &WriteResult{}
	log := logger.WithContext(ctx, b.logger)
	if total == 0 {
		return res, nil
	}

	batch := make([]interface{}, 0, min(b.batchSize, total))
	offset := 0
	flush := func() error {
		if err := ctx.Err(); err != nil {
			return b.fail(log, res, offset, err, nil)
		}
		ir, err := b.inserter.InsertMany(ctx, batch)
		metrics.ObserveBatch(ir.InsertedCount, len(ir.WriteErrors), batchErr(err, ir))
		res.InsertedCount += ir.InsertedCount
		if err != nil || len(ir.WriteErrors) > 0 {
			return b.fail(log, res, offset, err, ir.WriteErrors)
		}
		log.Debug("batch inserted",
			zap.Int("batch", res.Batches),
			zap.Int("documents", len(batch)),
			zap.Int("inserted_total", res.InsertedCount))
		res.Batches++
		offset += len(batch)
		batch = make([]interface{}, 0, min(b.batchSize, total-offset))
		return nil
	}

	for _, doc := range project.Record(rec, s, project.WithNulls(b.nulls)) {
		batch = append(batch, doc)
		if len(batch) == b.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	log.Info("write complete",
		zap.Int("inserted", res.InsertedCount),
		zap.Int("batches", res.Batches))
	return res, nil
}

// fail builds the aggregated error for the batch starting at row offset
func (b *Batcher) fail(log *zap.Logger, res *WriteResult, offset int, cause error, relative []WriteError) error {
	werr := &ArrowWriteError{
		NInserted: res.InsertedCount,
		Batch:     res.Batches,
		Cause:     cause,
		Partial:   res.InsertedCount > 0,
	}
	for _, we := range relative {
		we.Index = offset + we.BatchIndex
		werr.WriteErrors = append(werr.WriteErrors, we)
	}

	fields := []zap.Field{
		zap.Int("batch", res.Batches),
		zap.Int("offset", offset),
		zap.Int("inserted", res.InsertedCount),
		zap.Int("write_errors", len(werr.WriteErrors)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	log.Error("write stopped", fields...)
	return werr
}

func batchErr(err error, ir InsertResult) error {
	if err != nil {
		return err
	}
	if len(ir.WriteErrors) > 0 {
		return errors.New(errors.ErrorTypeWrite, "documents rejected")
	}
	return nil
}
