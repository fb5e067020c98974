package materialize

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"
)

// BuilderPool recycles Arrow RecordBuilders between materialization passes,
// keyed by schema fingerprint. A builder handed out by Get belongs to exactly
// one pass until it is returned.
type BuilderPool struct {
	pools     map[string]*sync.Pool
	poolMutex sync.RWMutex
	allocator memory.Allocator
	logger    *zap.Logger

	stats struct {
		hits     int64
		misses   int64
		discards int64
	}
	statsMutex sync.Mutex
}

// PooledBuilder wraps a RecordBuilder with the pool it came from
type PooledBuilder struct {
	builder *array.RecordBuilder
	key     string
	pool    *BuilderPool
}

// NewBuilderPool creates a new builder pool with the given allocator
func NewBuilderPool(allocator memory.Allocator, logger *zap.Logger) *BuilderPool {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuilderPool{
		pools:     make(map[string]*sync.Pool),
		allocator: allocator,
		logger:    logger,
	}
}

// Get returns an empty builder for schema, reusing a pooled one when available
func (p *BuilderPool) Get(schema *arrow.Schema) *PooledBuilder {
	key := schema.Fingerprint()
	if item := p.poolFor(key).Get(); item != nil {
		if pooled, ok := item.(*PooledBuilder); ok && pooled.builder != nil {
			p.incrementHits()
			return pooled
		}
		p.logger.Warn("unexpected item in builder pool", zap.String("schema", key))
	}

	p.incrementMisses()
	return &PooledBuilder{
		builder: array.NewRecordBuilder(p.allocator, schema),
		key:     key,
		pool:    p,
	}
}

// Put returns an empty builder to the pool
func (p *BuilderPool) Put(pooled *PooledBuilder) {
	if pooled == nil || pooled.builder == nil {
		return
	}
	p.poolFor(pooled.key).Put(pooled)
}

// Stats returns pool hit, miss and discard counts
func (p *BuilderPool) Stats() (hits, misses, discards int64) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	return p.stats.hits, p.stats.misses, p.stats.discards
}

func (p *BuilderPool) poolFor(key string) *sync.Pool {
	p.poolMutex.RLock()
	sp, ok := p.pools[key]
	p.poolMutex.RUnlock()
	if ok {
		return sp
	}

	p.poolMutex.Lock()
	defer p.poolMutex.Unlock()
	if sp, ok = p.pools[key]; !ok {
		sp = &sync.Pool{}
		p.pools[key] = sp
	}
	return sp
}

func (p *BuilderPool) incrementHits() {
	p.statsMutex.Lock()
	p.stats.hits++
	p.statsMutex.Unlock()
}

func (p *BuilderPool) incrementMisses() {
	p.statsMutex.Lock()
	p.stats.misses++
	p.statsMutex.Unlock()
}

func (p *BuilderPool) incrementDiscards() {
	p.statsMutex.Lock()
	p.stats.discards++
	p.statsMutex.Unlock()
}

// Builder returns the underlying RecordBuilder
func (pb *PooledBuilder) Builder() *array.RecordBuilder {
	return pb.builder
}

// NewRecord seals the builder's columns into a record and returns the
// builder, now empty, to the pool.
func (pb *PooledBuilder) NewRecord() arrow.Record {
	rec := pb.builder.NewRecord()
	pb.pool.Put(pb)
	return rec
}

// Discard drops everything appended so far. Columns may hold different
// lengths after a failed row, so the builder is released rather than sealed
// and is not returned to the pool.
func (pb *PooledBuilder) Discard() {
	pb.pool.incrementDiscards()
	pb.pool.logger.Debug("discarding record builder", zap.String("schema", pb.key))
	pb.Release()
}

// Release frees the builder without returning it to the pool
func (pb *PooledBuilder) Release() {
	if pb.builder != nil {
		pb.builder.Release()
		pb.builder = nil
	}
}
