package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/schema"
)

// LoadSchema reads a schema file: a YAML (or JSON) mapping of field name to
// type name, for example
//
//	_id: objectid
//	qty: int32
//	placed_at: datetime
//
// Field order follows the file.
func LoadSchema(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read schema file")
	}
	return ParseSchema(data)
}

// ParseSchema parses the schema file format described by LoadSchema
func ParseSchema(data []byte) (*schema.Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchemaShape, "failed to parse schema")
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New(errors.ErrorTypeSchemaShape, "schema file must be a mapping of field name to type")
	}

	m := doc.Content[0]
	pairs := make([][2]any, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, errors.Newf(errors.ErrorTypeSchemaShape,
				"field %q: type must be a name, line %d", key.Value, val.Line).
				WithDetail("field", key.Value)
		}
		pairs = append(pairs, [2]any{key.Value, val.Value})
	}
	return schema.New(pairs)
}
