package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. MONGOARROW_MONGO_URI
const EnvPrefix = "MONGOARROW"

// Load reads a YAML file into cfg, substituting ${VAR_NAME} references
// with environment values first. Keys missing from the file keep their
// current values in cfg.
func Load(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // path comes from the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read config file")
	}

	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	return nil
}

// Save writes cfg as YAML
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file")
	}
	return nil
}

// Resolve layers defaults, the YAML file at filePath (skipped when empty),
// MONGOARROW_* environment variables and any flags bound to v, then
// validates the result. v may be nil.
func Resolve(filePath string, v *viper.Viper) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := Load(filePath, cfg); err != nil {
			return nil, err
		}
	}

	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyOverrides(cfg, v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key explicitly set in v onto cfg
func applyOverrides(cfg *Config, v *viper.Viper) {
	str := map[string]*string{
		"mongo.uri":          &cfg.Mongo.URI,
		"mongo.database":     &cfg.Mongo.Database,
		"mongo.collection":   &cfg.Mongo.Collection,
		"output.format":      &cfg.Output.Format,
		"output.compression": &cfg.Output.Compression,
		"log.level":          &cfg.Log.Level,
		"log.encoding":       &cfg.Log.Encoding,
	}
	for key, dst := range str {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	flags := map[string]*bool{
		"write.null_marker": &cfg.Write.NullMarker,
		"log.development":   &cfg.Log.Development,
		"trace.enabled":     &cfg.Trace.Enabled,
	}
	for key, dst := range flags {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("write.batch_size") {
		cfg.Write.BatchSize = v.GetInt("write.batch_size")
	}
	if v.IsSet("trace.sampling_rate") {
		cfg.Trace.SamplingRate = v.GetFloat64("trace.sampling_rate")
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var sb strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		sb.WriteString(content[:start])
		sb.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	sb.WriteString(content)
	return sb.String()
}
