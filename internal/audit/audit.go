// Package audit records scan, linking, access and erasure operations as
// append-only JSON files, one file per operation.
//
// Writing an entry never blocks or undoes the operation it describes;
// callers log a failed Record and carry on.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Operation kinds.
const (
	OpScan    = "scan"
	OpLinking = "linking"
	OpAccess  = "access"
	OpErasure = "erasure"
)

// Entry is one audit record. Only the fields relevant to the operation are
// set; the rest are omitted from the file.
type Entry struct {
	Operation    string    `json:"operation"`
	TimestampUTC time.Time `json:"timestamp_utc"`

	User        string `json:"user,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`

	EntityID         string `json:"entity_id,omitempty"`
	FragmentsDeleted int    `json:"fragments_deleted,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Purpose          string `json:"purpose,omitempty"`

	ProofHash      string   `json:"proof_hash,omitempty"`
	Rows           int      `json:"rows,omitempty"`
	Cols           int      `json:"cols,omitempty"`
	SourceFiles    []string `json:"source_files,omitempty"`
	FragmentsFound int      `json:"fragments_found,omitempty"`
	EntitiesLinked int      `json:"entities_linked,omitempty"`
	Threshold      float64  `json:"threshold,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(e Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record does nothing.
func (Nop) Record(Entry) error { return nil }

// proofSample bounds how many fragment types go into a proof hash.
const proofSample = 100

// ProofHash fingerprints a scan without retaining PII: the SHA-256 of the
// JSON list of the first 100 fragment types, rendered with ", " separators.
func ProofHash(fragments []types.Fragment) string {
	n := min(len(fragments), proofSample)
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		b, _ := json.Marshal(fragments[i].Type)
		parts[i] = string(b)
	}
	sum := sha256.Sum256([]byte("[" + strings.Join(parts, ", ") + "]"))
	return hex.EncodeToString(sum[:])
}
