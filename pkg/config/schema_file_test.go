package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/types"
)

func TestParseSchema_KeepsFileOrder(t *testing.T) {
	s, err := ParseSchema([]byte("qty: int32\n_id: objectid\nplaced_at: datetime\nprice: decimal128\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"qty", "_id", "placed_at", "price"}, s.Names())

	typ, _ := s.Lookup("placed_at")
	assert.Equal(t, types.TimestampMillis, typ)
}

func TestParseSchema_JSON(t *testing.T) {
	s, err := ParseSchema([]byte(`{"b": "bool", "a": "float64"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, s.Names())
}

func TestParseSchema_Errors(t *testing.T) {
	_, err := ParseSchema([]byte("- a\n- b\n"))
	assert.True(t, errors.IsSchemaShape(err))

	_, err = ParseSchema([]byte("a:\n  nested: int32\n"))
	assert.True(t, errors.IsSchemaShape(err))

	_, err = ParseSchema([]byte("a: uint8\n"))
	assert.True(t, errors.IsUnsupportedType(err))

	_, err = ParseSchema([]byte(""))
	assert.True(t, errors.IsSchemaShape(err))
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("_id: int64\n"), 0o600))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = LoadSchema(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}
