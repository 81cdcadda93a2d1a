package detect

import (
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// FromConfig builds the registry a scan uses: the configured pattern
// detectors, or the defaults when none are named, followed by an Ollama
// person/location tagger when a model is configured.
func FromConfig(cfg types.Config) (*Registry, error) {
	names := cfg.Scan.Patterns
	if len(names) == 0 {
		names = types.DefaultPatterns
	}
	patterns, err := PatternsByName(names)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(patterns...)

	if cfg.NER.OllamaModel != "" {
		c, err := NewOllamaClassifier(cfg.NER.OllamaHost, cfg.NER.OllamaModel)
		if err != nil {
			return nil, err
		}
		reg.Register(NewClassifierDetector("ollama", c, types.TypePerson, types.TypeLocation))
	}
	return reg, nil
}
