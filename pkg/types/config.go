package types

import "github.com/cockroachdb/errors"

// Config holds store selection and scan parameters.
type Config struct {
	Backend string      `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir string      `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	User    string      `json:"user" yaml:"user" mapstructure:"user"`
	Scan    ScanConfig  `json:"scan" yaml:"scan" mapstructure:"scan"`
	NER     NERConfig   `json:"ner" yaml:"ner" mapstructure:"ner"`
	Audit   AuditConfig `json:"audit" yaml:"audit" mapstructure:"audit"`
	Log     LogConfig   `json:"log" yaml:"log" mapstructure:"log"`
}

// ScanConfig controls extraction and linking.
type ScanConfig struct {
	SampleN   int      `json:"sample_n" yaml:"sample_n" mapstructure:"sample_n"`
	Threshold float64  `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Workers   int      `json:"workers" yaml:"workers" mapstructure:"workers"`
	Patterns  []string `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
}

// NERConfig selects the optional model-backed classifier. An empty
// OllamaModel disables it.
type NERConfig struct {
	OllamaModel string `json:"ollama_model" yaml:"ollama_model" mapstructure:"ollama_model"`
	OllamaHost  string `json:"ollama_host" yaml:"ollama_host" mapstructure:"ollama_host"`
}

// AuditConfig locates the audit log directory. Empty means
// <data_dir>/audit_logs.
type AuditConfig struct {
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	JSON  bool   `json:"json" yaml:"json" mapstructure:"json"`
	File  string `json:"file" yaml:"file" mapstructure:"file"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Scan defaults.
const (
	DefaultSampleN   = 200
	DefaultThreshold = 0.85
	DefaultWorkers   = 4
)

// PatternTypes lists the fragment types that have a built-in pattern detector.
var PatternTypes = []string{TypeEmail, TypeCPR, TypePhone, TypeCreditCard, TypeIBAN}

// DefaultPatterns are enabled when the configuration names none.
var DefaultPatterns = []string{TypeEmail, TypeCPR}

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrThresholdInvalid = errors.New("threshold must be in (0, 1]")
	ErrSampleInvalid    = errors.New("sample size must be positive")
	ErrWorkersInvalid   = errors.New("workers must not be negative")
	ErrPatternUnknown   = errors.New("unknown pattern")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// DefaultConfig returns a sqlite configuration with scan defaults applied.
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		Scan: ScanConfig{
			SampleN:   DefaultSampleN,
			Threshold: DefaultThreshold,
			Workers:   DefaultWorkers,
			Patterns:  append([]string(nil), DefaultPatterns...),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return c.Scan.Validate()
}

// Validate checks the scan parameters.
func (s ScanConfig) Validate() error {
	if s.Threshold <= 0 || s.Threshold > 1 {
		return ErrThresholdInvalid
	}
	if s.SampleN <= 0 {
		return ErrSampleInvalid
	}
	if s.Workers < 0 {
		return ErrWorkersInvalid
	}
	known := make(map[string]bool, len(PatternTypes))
	for _, p := range PatternTypes {
		known[p] = true
	}
	for _, p := range s.Patterns {
		if !known[p] {
			return errors.Wrapf(ErrPatternUnknown, "%q", p)
		}
	}
	return nil
}
