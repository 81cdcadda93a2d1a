package detect

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

// PatternDetector reports every match of a regular expression as a fragment
// of a fixed type. Validate, when set, filters out matches that have the
// right shape but fail a checksum or similar test.
type PatternDetector struct {
	fragType string
	re       *regexp.Regexp
	validate func(string) bool
}

// NewPatternDetector compiles expr into a detector emitting fragType.
func NewPatternDetector(fragType, expr string, validate func(string) bool) (*PatternDetector, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling pattern for %s", fragType)
	}
	return &PatternDetector{fragType: fragType, re: re, validate: validate}, nil
}

// Name returns the fragment type the detector emits.
func (p *PatternDetector) Name() string { return p.fragType }

// Detect returns one fragment per match.
func (p *PatternDetector) Detect(text, source string) ([]types.Fragment, error) {
	var out []types.Fragment
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		if p.validate != nil && !p.validate(value) {
			continue
		}
		out = append(out, types.Fragment{
			Type:     p.fragType,
			Value:    value,
			Source:   source,
			Metadata: offsetMeta(p.fragType, loc[0]),
		})
	}
	return out, nil
}

// Built-in expressions. Email and CPR follow the scanner's historical
// patterns; the others are opt-in.
const (
	EmailPattern      = `[\p{L}\p{N}_.-]+@[\p{L}\p{N}_.-]+\.[\p{L}\p{N}_]+`
	CPRPattern        = `\b\d{6}-\d{4}\b`
	PhonePattern      = `\+?\d[\d\s\-()]{7,}\d`
	CreditCardPattern = `\b(?:\d[ -]?){12,18}\d\b`
	IBANPattern       = `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`
)

var builtinPatterns = map[string]struct {
	expr     string
	validate func(string) bool
}{
	types.TypeEmail:      {EmailPattern, nil},
	types.TypeCPR:        {CPRPattern, nil},
	types.TypePhone:      {PhonePattern, nil},
	types.TypeCreditCard: {CreditCardPattern, luhnValid},
	types.TypeIBAN:       {IBANPattern, nil},
}

// PatternsByName builds the built-in pattern detectors for the given fragment
// types, in the order given. Unknown names are an error.
func PatternsByName(names []string) ([]Detector, error) {
	out := make([]Detector, 0, len(names))
	for _, name := range names {
		b, ok := builtinPatterns[name]
		if !ok {
			return nil, errors.Wrapf(types.ErrPatternUnknown, "%q", name)
		}
		d, err := NewPatternDetector(name, b.expr, b.validate)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// luhnValid reports whether the digits of s pass the Luhn checksum.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
