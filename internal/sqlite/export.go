// This file exports the erasure register as JSONL.
package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/piilink/internal/logging"
)

// erasureJSON is one line of an erasure export.
type erasureJSON struct {
	ErasureID        string `json:"erasure_id"`
	EntityID         string `json:"entity_id"`
	FragmentsDeleted int    `json:"fragments_deleted"`
	RequestedBy      string `json:"requested_by"`
	Reason           string `json:"reason"`
	Timestamp        string `json:"timestamp"`
}

// ExportErasures writes every erasure record, newest first, to path as JSON
// lines. The file is replaced atomically. It returns the number of records
// written.
func (s *Store) ExportErasures(ctx context.Context, path string) (int, error) {
	erasures, err := s.ListErasures(ctx, 0)
	if err != nil {
		return 0, err
	}

	records := make([]json.RawMessage, 0, len(erasures))
	for _, e := range erasures {
		b, err := json.Marshal(erasureJSON{
			ErasureID:        e.ErasureID,
			EntityID:         e.EntityID,
			FragmentsDeleted: e.FragmentsDeleted,
			RequestedBy:      e.RequestedBy,
			Reason:           e.Reason,
			Timestamp:        formatTime(e.Timestamp),
		})
		if err != nil {
			return 0, errors.Wrapf(err, "encoding erasure %s", e.ErasureID)
		}
		records = append(records, b)
	}

	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	s.logger.Infow("Exported erasures",
		logging.FieldPath, path,
		logging.FieldCount, len(records),
	)
	return len(records), nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()

	fail := func(err error, msg string) error {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, msg)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(err, "writing record")
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(err, "writing newline")
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err, "flushing buffer")
	}
	if err := tmp.Sync(); err != nil {
		return fail(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "renaming temp file")
	}
	return nil
}
