package detect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

type stubDetector struct {
	name  string
	frags []types.Fragment
	err   error
	panic bool
}

func (s stubDetector) Name() string { return s.name }

func (s stubDetector) Detect(text, source string) ([]types.Fragment, error) {
	if s.panic {
		panic("boom")
	}
	return s.frags, s.err
}

func defaultExtractor(t *testing.T) *Extractor {
	t.Helper()
	ds, err := PatternsByName(types.DefaultPatterns)
	require.NoError(t, err)
	return NewExtractor(NewRegistry(ds...), nil)
}

func TestExtractorDefaultPatterns(t *testing.T) {
	e := defaultExtractor(t)

	frags := e.Detect("Contact alice@example.com, CPR 010190-1234.", "notes.txt")
	require.Len(t, frags, 2)

	assert.Equal(t, types.TypeEmail, frags[0].Type)
	assert.Equal(t, "alice@example.com", frags[0].Value)
	assert.Equal(t, "notes.txt", frags[0].Source)
	assert.Equal(t, types.TypeEmail, frags[0].Meta(types.MetaDetector))

	assert.Equal(t, types.TypeCPR, frags[1].Type)
	assert.Equal(t, "010190-1234", frags[1].Value)
}

func TestExtractorEmptyText(t *testing.T) {
	e := defaultExtractor(t)
	assert.Empty(t, e.Detect("", "x"))
	assert.Empty(t, e.Detect("   \n\t", "x"))
}

func TestExtractorNoMatches(t *testing.T) {
	e := defaultExtractor(t)
	assert.Empty(t, e.Detect("nothing to see here", "x"))
}

func TestExtractorRecordsLineNumbers(t *testing.T) {
	e := defaultExtractor(t)

	frags := e.Detect("first line\nsecond bob@example.org\nthird 111111-2222", "f.log")
	require.Len(t, frags, 2)
	assert.Equal(t, "2", frags[0].Meta(types.MetaLine))
	assert.Equal(t, "3", frags[1].Meta(types.MetaLine))
	assert.Empty(t, frags[0].Meta(MetaOffset))
}

func TestExtractorSingleLineHasNoLineNumber(t *testing.T) {
	e := defaultExtractor(t)

	frags := e.Detect("bob@example.org", "f.log")
	require.Len(t, frags, 1)
	assert.Empty(t, frags[0].Meta(types.MetaLine))
	assert.Empty(t, frags[0].Meta(MetaOffset))
}

func TestExtractorIsolatesFailingDetectors(t *testing.T) {
	good := stubDetector{
		name:  "good",
		frags: []types.Fragment{{Type: types.TypePerson, Value: "Alice"}},
	}
	reg := NewRegistry(
		stubDetector{name: "broken", err: errors.New("model offline")},
		stubDetector{name: "panicky", panic: true},
		good,
	)
	e := NewExtractor(reg, nil)

	frags := e.Detect("Alice was here", "doc")
	require.Len(t, frags, 1)
	assert.Equal(t, "Alice", frags[0].Value)
	assert.Equal(t, "doc", frags[0].Source, "empty source is defaulted")
}

func TestExtractorOverlappingTypes(t *testing.T) {
	reg := NewRegistry(
		stubDetector{name: "a", frags: []types.Fragment{{Type: types.TypePerson, Value: "Jordan"}}},
		stubDetector{name: "b", frags: []types.Fragment{{Type: types.TypeLocation, Value: "Jordan"}}},
	)
	frags := NewExtractor(reg, nil).Detect("Jordan", "s")
	require.Len(t, frags, 2)
	assert.Equal(t, types.TypePerson, frags[0].Type)
	assert.Equal(t, types.TypeLocation, frags[1].Type)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(nil)
	reg.Register(stubDetector{name: "one"})
	reg.Register(stubDetector{name: "two"})

	assert.Equal(t, []string{"one", "two"}, reg.Names())
	assert.Len(t, reg.Detectors(), 2)
}

func TestLineOf(t *testing.T) {
	starts := lineStarts("ab\ncd\n\nef")
	assert.Equal(t, []int{0, 3, 6, 7}, starts)
	assert.Equal(t, 1, lineOf(starts, 0))
	assert.Equal(t, 1, lineOf(starts, 2))
	assert.Equal(t, 2, lineOf(starts, 3))
	assert.Equal(t, 4, lineOf(starts, 8))
}
