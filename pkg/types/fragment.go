package types

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Well-known fragment types. Detectors may emit other type tags; these are
// the ones the built-in detectors and label map know about.
const (
	TypeEmail      = "EMAIL_ADDRESS"
	TypePerson     = "PERSON"
	TypeCPR        = "CPR"
	TypePhone      = "PHONE_NUMBER"
	TypeCreditCard = "CREDIT_CARD"
	TypeIBAN       = "IBAN_CODE"
	TypeLocation   = "LOCATION"
	TypeUnknown    = "UNKNOWN"
)

// Metadata keys carried in Fragment.Metadata.
const (
	MetaLine     = "line"
	MetaRow      = "row"
	MetaColumn   = "column"
	MetaField    = "field"
	MetaDetector = "detector"
)

// Fragment is a single detected PII occurrence. Type, Value and Source are
// always set by the extractor; Confidence is assigned by the linker.
type Fragment struct {
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	Source     string            `json:"source"`
	Confidence float64           `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key, or "" if unset.
func (f Fragment) Meta(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}

// WithMeta returns a copy of f with key set to value.
func (f Fragment) WithMeta(key, value string) Fragment {
	md := make(map[string]string, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		md[k] = v
	}
	md[key] = value
	f.Metadata = md
	return f
}

// StoredFragment is a fragment row owned by an entity.
type StoredFragment struct {
	FragID     string    `json:"frag_id"`
	EntityID   string    `json:"entity_id"`
	Type       string    `json:"frag_type"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

var identifierLabels = map[string]string{
	"UK_NHS":        "NHS Number",
	TypePhone:       "Phone Number",
	"EMAIL":         "Email Address",
	TypeEmail:       "Email Address",
	TypeCPR:         "CPR Number",
	"PERSON_NAME":   "Name",
	TypePerson:      "Name",
	"SSN":           "Social Security Number",
	"US_SSN":        "Social Security Number",
	TypeCreditCard:  "Credit Card",
	TypeIBAN:        "IBAN",
	"ADDRESS":       "Address",
	"DATE_OF_BIRTH": "Date of Birth",
}

// IdentifierLabel returns a human-readable identifier name for a fragment.
// A column or field name recorded at scan time wins over the type label.
func IdentifierLabel(f Fragment) string {
	if c := f.Meta(MetaColumn); c != "" {
		return c
	}
	if c := f.Meta(MetaField); c != "" {
		return c
	}
	return TypeLabel(f.Type)
}

// TypeLabel maps a fragment type tag to its display label. Unknown tags are
// title-cased with underscores replaced by spaces.
func TypeLabel(fragType string) string {
	if fragType == "" {
		return "Unknown Identifier"
	}
	if l, ok := identifierLabels[fragType]; ok {
		return l
	}
	words := strings.Split(strings.ToLower(fragType), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// DisplaySource renders the provenance of a fragment, including the line or
// row number when the scanner recorded one.
func DisplaySource(f Fragment) string {
	if f.Source == "" {
		return "Unknown Source"
	}
	if line := f.Meta(MetaLine); line != "" {
		return f.Source + " (Line " + line + ")"
	}
	if row := f.Meta(MetaRow); row != "" {
		return f.Source + " (Row " + row + ")"
	}
	return f.Source
}

// PIIID derives the short display identifier of a stored PII item. It is
// stable for the same entity, type and value.
func PIIID(entityID, fragType, value string) string {
	sum := md5.Sum([]byte(entityID + "-" + fragType + "-" + value))
	return "PII-" + hex.EncodeToString(sum[:])[:8]
}
