// Package detect extracts typed PII fragments from text. An Extractor runs
// every registered Detector over the same text and unions the results; the
// same substring may be reported by several detectors under different types.
package detect

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Detector finds PII in a text. Implementations must not mutate shared state
// and must be safe for concurrent use.
type Detector interface {
	Name() string
	Detect(text, source string) ([]types.Fragment, error)
}

// Registry holds detectors in registration order.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewRegistry returns a registry holding ds.
func NewRegistry(ds ...Detector) *Registry {
	r := &Registry{}
	for _, d := range ds {
		r.Register(d)
	}
	return r
}

// Register appends d. A nil detector is ignored.
func (r *Registry) Register(d Detector) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
}

// Detectors returns a snapshot of the registered detectors.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Detector(nil), r.detectors...)
}

// Names returns the registered detector names in order.
func (r *Registry) Names() []string {
	ds := r.Detectors()
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name()
	}
	return names
}

// Extractor turns raw text into fragments using a registry of detectors.
type Extractor struct {
	registry *Registry
	logger   *zap.SugaredLogger
}

// NewExtractor creates an Extractor over registry. A nil logger uses the
// "detect" component logger.
func NewExtractor(registry *Registry, logger *zap.SugaredLogger) *Extractor {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Extractor{
		registry: registry,
		logger:   logging.OrComponent(logger, "detect"),
	}
}

// Detect runs every detector over text and returns the union of their
// fragments. A failing or panicking detector is logged and skipped; the
// others still contribute.
func (e *Extractor) Detect(text, source string) []types.Fragment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var lines []int
	if strings.Contains(text, "\n") {
		lines = lineStarts(text)
	}

	var out []types.Fragment
	for _, d := range e.registry.Detectors() {
		frags, err := runDetector(d, text, source)
		if err != nil {
			e.logger.Warnw("Detector failed",
				logging.FieldDetector, d.Name(),
				logging.FieldSource, source,
				logging.FieldError, err,
			)
			continue
		}
		for _, f := range frags {
			if f.Source == "" {
				f.Source = source
			}
			if f.Meta(MetaOffset) != "" && lines != nil && f.Meta(types.MetaLine) == "" {
				if off, err := strconv.Atoi(f.Meta(MetaOffset)); err == nil {
					f = f.WithMeta(types.MetaLine, strconv.Itoa(lineOf(lines, off)))
				}
			}
			if f.Metadata != nil {
				delete(f.Metadata, MetaOffset)
			}
			out = append(out, f)
		}
	}
	return out
}

// runDetector isolates a single detector so a panic does not abort the scan.
func runDetector(d Detector, text, source string) (frags []types.Fragment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("detector panicked: %v", r)
		}
	}()
	return d.Detect(text, source)
}

// MetaOffset is a transient metadata key detectors set to the byte offset of
// a match; the extractor converts it to a line number and removes it.
const MetaOffset = "_offset"

// lineStarts returns the byte offsets at which each line of text begins.
func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 1-based line containing byte offset off.
func lineOf(starts []int, off int) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > off })
}

func offsetMeta(detector string, off int) map[string]string {
	return map[string]string{
		types.MetaDetector: detector,
		MetaOffset:         strconv.Itoa(off),
	}
}
