package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/logging"
)

// DirName is the default audit directory inside the data directory.
const DirName = "audit_logs"

const filePrefix = "audit_"

// FileLog writes each entry to its own file named
// audit_<unix nanos>_<random>.json, so file names sort in time order.
type FileLog struct {
	dir    string
	logger *zap.SugaredLogger
	now    func() time.Time
}

var _ Recorder = (*FileLog)(nil)

// NewFileLog creates dir if needed.
func NewFileLog(dir string, logger *zap.SugaredLogger) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating audit directory %s", dir)
	}
	return &FileLog{
		dir:    dir,
		logger: logging.OrComponent(logger, "audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dir returns the directory entries are written to.
func (l *FileLog) Dir() string { return l.dir }

// Record stamps e with the current time if it has none and writes it
// atomically.
func (l *FileLog) Record(e Entry) error {
	if e.Operation == "" {
		return errors.New("audit entry has no operation")
	}
	if e.TimestampUTC.IsZero() {
		e.TimestampUTC = l.now()
	}
	e.TimestampUTC = e.TimestampUTC.UTC()

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding audit entry")
	}
	name := fmt.Sprintf("%s%019d_%s.json", filePrefix, e.TimestampUTC.UnixNano(), uuid.NewString()[:8])
	if err := writeFileAtomic(filepath.Join(l.dir, name), data); err != nil {
		return err
	}
	l.logger.Debugw("Audit entry written", logging.FieldOperation, e.Operation, logging.FieldFile, name)
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns all of them.
func (l *FileLog) Recent(limit int) ([]Entry, error) {
	return l.scan(limit, func(Entry) bool { return true })
}

// ByUser returns the entries whose user or requested_by is user, newest
// first.
func (l *FileLog) ByUser(user string) ([]Entry, error) {
	return l.scan(0, func(e Entry) bool { return e.User == user || e.RequestedBy == user })
}

// ByEntity returns the entries about entityID, newest first.
func (l *FileLog) ByEntity(entityID string) ([]Entry, error) {
	return l.scan(0, func(e Entry) bool { return e.EntityID == entityID })
}

// scan reads entry files newest first and keeps those matching keep.
// Unreadable files are logged and skipped.
func (l *FileLog) scan(limit int, keep func(Entry) bool) ([]Entry, error) {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading audit directory %s", l.dir)
	}
	var names []string
	for _, de := range dirEntries {
		n := de.Name()
		if de.IsDir() || !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, n)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := []Entry{}
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(l.dir, n))
		if err != nil {
			l.logger.Warnw("Skipping unreadable audit entry", logging.FieldFile, n, logging.FieldError, err)
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			l.logger.Warnw("Skipping malformed audit entry", logging.FieldFile, n, logging.FieldError, err)
			continue
		}
		if !keep(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// writeFileAtomic writes data to a temp file in the same directory, syncs
// it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".audit-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing audit entry")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "syncing audit entry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing audit entry")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "renaming audit entry")
	}
	return nil
}
