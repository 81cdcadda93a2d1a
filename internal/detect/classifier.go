package detect

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Span is a typed region of text reported by a Classifier. Start and End are
// byte offsets with End exclusive.
type Span struct {
	Type  string
	Start int
	End   int
	Score float64
}

// Classifier is a model-backed recognizer such as a named-entity tagger.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Span, error)
}

// DefaultClassifyTimeout bounds a single Classify call made by a
// ClassifierDetector.
const DefaultClassifyTimeout = 30 * time.Second

// ClassifierDetector adapts a Classifier to the Detector interface. Only the
// configured entity types are kept; an empty type set keeps everything.
type ClassifierDetector struct {
	name       string
	classifier Classifier
	types      map[string]bool
	timeout    time.Duration
	logger     *zap.SugaredLogger
}

// NewClassifierDetector wraps c under name. keep lists the span types to
// report, e.g. PERSON.
func NewClassifierDetector(name string, c Classifier, keep ...string) *ClassifierDetector {
	d := &ClassifierDetector{
		name:       name,
		classifier: c,
		timeout:    DefaultClassifyTimeout,
		logger:     logging.ComponentLogger("detect"),
	}
	if len(keep) > 0 {
		d.types = make(map[string]bool, len(keep))
		for _, t := range keep {
			d.types[t] = true
		}
	}
	return d
}

// WithTimeout sets the per-call timeout. Zero disables it.
func (d *ClassifierDetector) WithTimeout(timeout time.Duration) *ClassifierDetector {
	d.timeout = timeout
	return d
}

// Name returns the detector name.
func (d *ClassifierDetector) Name() string { return d.name }

// Detect classifies text and converts the kept spans into fragments.
func (d *ClassifierDetector) Detect(text, source string) ([]types.Fragment, error) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	spans, err := d.classifier.Classify(ctx, text)
	if err != nil {
		return nil, errors.Wrapf(err, "classifier %s", d.name)
	}

	var out []types.Fragment
	for _, s := range spans {
		if d.types != nil && !d.types[s.Type] {
			continue
		}
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			d.logger.Debugw("Dropping out-of-range span",
				logging.FieldDetector, d.name,
				"start", s.Start,
				"end", s.End,
			)
			continue
		}
		out = append(out, types.Fragment{
			Type:     s.Type,
			Value:    text[s.Start:s.End],
			Source:   source,
			Metadata: offsetMeta(d.name, s.Start),
		})
	}
	return out, nil
}
