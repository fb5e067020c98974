// Package schema defines the ordered field-to-type mapping that drives both
// the query projection sent to MongoDB and the column layout of the Arrow
// output.
//
// A Schema is built once from user input and is immutable afterwards, so a
// single instance may be shared by any number of concurrent queries and writes.
//
// # Sources
//
// New accepts either a mapping or a sequence of (name, type) pairs:
//
//	s, err := schema.New(bson.D{{Key: "_id", Value: types.ObjectID}, {Key: "qty", Value: "int32"}})
//	s, err := schema.New([][2]any{{"_id", types.ObjectID}, {"qty", arrow.PrimitiveTypes.Int32}})
//
// Type values are resolved by types.Normalize.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/types"
)

// Field is a single named column of a Schema
type Field struct {
	Name string
	Type types.Type
}

// Schema is an ordered, duplicate-free mapping of field name to canonical type
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a Schema from a mapping (bson.D, bson.M, map[string]any) or a
// sequence of 2-element pairs. Repeated names in a sequence overwrite the
// earlier type but keep the earlier position.
func New(source any) (*Schema, error) {
	b := newBuilder()
	switch src := source.(type) {
	case *Schema:
		if src == nil {
			return nil, shapeError(source)
		}
		return src, nil
	case bson.D:
		for _, e := range src {
			if err := b.add(e.Key, e.Value); err != nil {
				return nil, err
			}
		}
	case bson.M:
		if err := b.addMap(src); err != nil {
			return nil, err
		}
	case map[string]any:
		if err := b.addMap(src); err != nil {
			return nil, err
		}
	case map[string]types.Type:
		m := make(map[string]any, len(src))
		for k, v := range src {
			m[k] = v
		}
		if err := b.addMap(m); err != nil {
			return nil, err
		}
	case []Field:
		for _, f := range src {
			if err := b.add(f.Name, f.Type); err != nil {
				return nil, err
			}
		}
	case [][2]any:
		for _, p := range src {
			if err := b.addPair(p[0], p[1]); err != nil {
				return nil, err
			}
		}
	case [][]any:
		for _, p := range src {
			if err := b.addElement(p); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, p := range src {
			if err := b.addElement(p); err != nil {
				return nil, err
			}
		}
	default:
		return nil, shapeError(source)
	}
	return b.build(), nil
}

// MustNew is like New but panics if the source is invalid
func MustNew(source any) *Schema {
	s, err := New(source)
	if err != nil {
		panic(err)
	}
	return s
}

// FromArrow derives a Schema from an Arrow schema, failing on any field
// whose Arrow type has no canonical equivalent.
func FromArrow(as *arrow.Schema) (*Schema, error) {
	if as == nil {
		return nil, errors.New(errors.ErrorTypeSchemaShape, "arrow schema is nil")
	}
	b := newBuilder()
	for _, f := range as.Fields() {
		if err := b.add(f.Name, f.Type); err != nil {
			return nil, err
		}
	}
	return b.build(), nil
}

// Len returns the number of fields
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in schema order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the i-th field
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Names returns the field names in schema order
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the type declared for name
func (s *Schema) Lookup(name string) (types.Type, bool) {
	i, ok := s.index[name]
	if !ok {
		return types.Type{}, false
	}
	return s.fields[i].Type, true
}

// FieldIndex returns the position of name in field order
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Equal reports whether other is a *Schema with the same field-to-type
// mapping. Field order is ignored.
func (s *Schema) Equal(other any) bool {
	o, ok := other.(*Schema)
	if !ok || o == nil || s == nil {
		return ok && o == nil && s == nil
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for _, f := range s.fields {
		t, ok := o.Lookup(f.Name)
		if !ok || t != f.Type {
			return false
		}
	}
	return true
}

// Projection is the find projection requesting every declared field, in
// schema order, and nothing else.
func (s *Schema) Projection() bson.D {
	proj := make(bson.D, 0, len(s.fields))
	for _, f := range s.fields {
		proj = append(proj, bson.E{Key: f.Name, Value: true})
	}
	return proj
}

// ProjectStage is the trailing $project stage appended to aggregations
func (s *Schema) ProjectStage() bson.D {
	return bson.D{{Key: "$project", Value: s.Projection()}}
}

// ArrowSchema returns the Arrow schema of tables built from s. Every field
// is nullable.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = arrow.Field{Name: f.Name, Type: f.Type.ArrowType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteString("schema<")
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", f.Name, f.Type)
	}
	sb.WriteString(">")
	return sb.String()
}

type builder struct {
	fields []Field
	index  map[string]int
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

func (b *builder) add(name string, spec any) error {
	t, err := types.Normalize(spec, name)
	if err != nil {
		return err
	}
	if i, ok := b.index[name]; ok {
		b.fields[i].Type = t
		return nil
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, Field{Name: name, Type: t})
	return nil
}

// addMap adds the entries of an unordered map in sorted key order
func (b *builder) addMap(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := b.add(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addPair(name, spec any) error {
	n, ok := name.(string)
	if !ok {
		return errors.Newf(errors.ErrorTypeSchemaShape,
			"schema field name must be a string, got %T", name).
			WithDetail("name", name)
	}
	return b.add(n, spec)
}

func (b *builder) addElement(elem any) error {
	switch e := elem.(type) {
	case Field:
		return b.add(e.Name, e.Type)
	case bson.E:
		return b.add(e.Key, e.Value)
	case [2]any:
		return b.addPair(e[0], e[1])
	case []any:
		if len(e) == 2 {
			return b.addPair(e[0], e[1])
		}
		return pairError(elem, len(e))
	default:
		return pairError(elem, -1)
	}
}

func (b *builder) build() *Schema {
	return &Schema{fields: b.fields, index: b.index}
}

func shapeError(source any) error {
	return errors.Newf(errors.ErrorTypeSchemaShape,
		"schema must be a mapping or sequence, got %T", source)
}

func pairError(elem any, arity int) error {
	return errors.New(errors.ErrorTypeSchemaShape, "schema must be a sequence of 2-element pairs").
		WithDetail("element", elem).
		WithDetail("arity", arity)
}
