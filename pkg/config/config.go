// Package config holds the settings of the mongoarrow command line tool.
//
// Settings are resolved in layers: built-in defaults, then an optional YAML
// file (with ${VAR_NAME} environment substitution), then MONGOARROW_*
// environment variables and finally command line flags bound through viper.
//
//	v := viper.New()
//	_ = v.BindPFlag("mongo.uri", cmd.Flags().Lookup("uri"))
//	cfg, err := config.Resolve("mongoarrow.yaml", v)
package config

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
	"github.com/ajitpratap0/mongoarrow/pkg/writer"
)

// Output formats
const (
	FormatArrow = "arrow"
	FormatJSONL = "jsonl"
)

// Config is the complete tool configuration
type Config struct {
	Mongo  MongoConfig  `yaml:"mongo" json:"mongo"`
	Write  WriteConfig  `yaml:"write" json:"write"`
	Output OutputConfig `yaml:"output" json:"output"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Trace  TraceConfig  `yaml:"trace" json:"trace"`
}

// MongoConfig locates the collection to read from or write to
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// WriteConfig controls bulk writes
type WriteConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// NullMarker writes null slots as BSON null instead of omitting the key
	NullMarker bool `yaml:"null_marker" json:"null_marker"`
}

// OutputConfig controls how query results are written
type OutputConfig struct {
	// Format is "arrow" (IPC file) or "jsonl" (canonical extended JSON lines)
	Format string `yaml:"format" json:"format"`
	// Compression is the IPC body codec for arrow (none, zstd, lz4) or the
	// stream codec for jsonl (none, gzip, zstd, snappy, s2, lz4)
	Compression string `yaml:"compression" json:"compression"`
}

type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

type TraceConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Mongo: MongoConfig{
			URI: "mongodb://localhost:27017",
		},
		Write: WriteConfig{
			BatchSize: writer.DefaultBatchSize,
		},
		Output: OutputConfig{
			Format:      FormatArrow,
			Compression: "none",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Trace: TraceConfig{
			SamplingRate: 1.0,
		},
	}
}

var ipcCodecs = map[string]bool{"none": true, "zstd": true, "lz4": true}

var streamCodecs = map[string]bool{"none": true, "gzip": true, "zstd": true, "snappy": true, "s2": true, "lz4": true}

// Validate checks the configuration for values the tool cannot act on
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return configError("mongo.uri is required")
	}
	if c.Write.BatchSize <= 0 {
		return configError("write.batch_size must be positive")
	}
	c.Output.Format = strings.ToLower(c.Output.Format)
	c.Output.Compression = strings.ToLower(c.Output.Compression)
	if c.Output.Compression == "" {
		c.Output.Compression = "none"
	}
	switch c.Output.Format {
	case FormatArrow:
		if !ipcCodecs[c.Output.Compression] {
			return configError(fmt.Sprintf("output.compression %q is not supported for arrow", c.Output.Compression))
		}
	case FormatJSONL:
		if !streamCodecs[c.Output.Compression] {
			return configError(fmt.Sprintf("output.compression %q is not supported for jsonl", c.Output.Compression))
		}
	default:
		return configError(fmt.Sprintf("output.format %q must be %q or %q", c.Output.Format, FormatArrow, FormatJSONL))
	}
	if c.Trace.SamplingRate < 0 || c.Trace.SamplingRate > 1 {
		return configError("trace.sampling_rate must be between 0 and 1")
	}
	return nil
}

// RequireCollection checks that a database and collection were given
func (c *Config) RequireCollection() error {
	if c.Mongo.Database == "" || c.Mongo.Collection == "" {
		return configError("mongo.database and mongo.collection are required")
	}
	return nil
}

// Namespace returns "database.collection"
func (c *Config) Namespace() string {
	return c.Mongo.Database + "." + c.Mongo.Collection
}

func configError(msg string) error {
	return errors.New(errors.ErrorTypeConfig, msg)
}
