// Package table holds the immutable result of a materialization: equal-length
// Arrow columns together with the Schema that produced them.
package table

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
)

// Table is a finished, read-only column set. It is reference counted through
// the underlying Arrow record; readers may share it without locking.
type Table struct {
	schema *schema.Schema
	record arrow.Record
}

// New wraps rec, taking ownership of the caller's reference. It fails if the
// record's columns disagree on length or do not line up with s.
func New(s *schema.Schema, rec arrow.Record) (*Table, error) {
	if s == nil || rec == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "table requires a schema and a record")
	}
	if int(rec.NumCols()) != s.Len() {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"record has %d columns, schema declares %d", rec.NumCols(), s.Len())
	}
	rows := int(rec.NumRows())
	for i, col := range rec.Columns() {
		if col.Len() != rows {
			return nil, errors.Newf(errors.ErrorTypeInternal,
				"column %q has %d rows, expected %d", s.Field(i).Name, col.Len(), rows).
				WithDetail("field", s.Field(i).Name)
		}
	}
	return &Table{schema: s, record: rec}, nil
}

// FromRecord wraps an Arrow record built elsewhere, deriving its Schema.
// The record is retained; the caller keeps its own reference.
func FromRecord(rec arrow.Record) (*Table, error) {
	s, err := schema.FromArrow(rec.Schema())
	if err != nil {
		return nil, err
	}
	rec.Retain()
	t, err := New(s, rec)
	if err != nil {
		rec.Release()
		return nil, err
	}
	return t, nil
}

func (t *Table) Schema() *schema.Schema { return t.schema }

// Record returns the underlying Arrow record without retaining it
func (t *Table) Record() arrow.Record { return t.record }

func (t *Table) NumRows() int { return int(t.record.NumRows()) }

func (t *Table) NumCols() int { return int(t.record.NumCols()) }

// Column returns the i-th column in schema order
func (t *Table) Column(i int) arrow.Array { return t.record.Column(i) }

// ColumnByName returns the column for a declared field
func (t *Table) ColumnByName(name string) (arrow.Array, bool) {
	i, ok := t.schema.FieldIndex(name)
	if !ok {
		return nil, false
	}
	return t.record.Column(i), true
}

func (t *Table) Retain() { t.record.Retain() }

func (t *Table) Release() { t.record.Release() }
