package cli

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/piilink/internal/paths"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "PIILINK"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# piilink configuration
# Every key can be overridden from the environment, e.g. PIILINK_SCAN_THRESHOLD=0.9.

backend: sqlite

# Data directory (optional; overridable by --data-dir)
# data_dir:

# User recorded in the audit log (default: $USER)
# user:

scan:
  sample_n: 200
  threshold: 0.85
  workers: 4
  patterns: [EMAIL_ADDRESS, CPR]

ner:
  # Name an Ollama model to tag PERSON and LOCATION, e.g. llama3.2:3b
  ollama_model: ""
  ollama_host: ""

audit:
  # Defaults to <data_dir>/audit_logs
  dir: ""

log:
  level: info
  json: false
  file: ""
`

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	def := types.DefaultConfig()
	v.SetDefault("backend", def.Backend)
	v.SetDefault("data_dir", "")
	v.SetDefault("user", "")
	v.SetDefault("scan.sample_n", def.Scan.SampleN)
	v.SetDefault("scan.threshold", def.Scan.Threshold)
	v.SetDefault("scan.workers", def.Scan.Workers)
	v.SetDefault("scan.patterns", def.Scan.Patterns)
	v.SetDefault("ner.ollama_model", "")
	v.SetDefault("ner.ollama_host", "")
	v.SetDefault("audit.dir", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. A config file that disappears before it is
// read is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.Wrap(err, "reading config")
	}
	return v, nil
}

// decodeConfig unmarshals v into a validated Config.
func decodeConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithHint(err, "check config.yaml or the PIILINK_ environment variables")
	}
	return cfg, nil
}

// ensureDefaultConfigFile creates configDir and a default config.yaml if the
// file does not exist.
func ensureDefaultConfigFile(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, "checking config file")
	}
	return errors.Wrap(os.WriteFile(path, []byte(defaultConfigYAML), 0o644), "writing default config")
}
