// Package sqlite implements the entity store on SQLite.
//
// The database lives at <data_dir>/piilink.db. Writes are serialized twice:
// an in-process RWMutex orders goroutines and an advisory file lock on
// <data_dir>/.piilink.lock orders processes sharing the data directory.
// Reads take only the read lock and always query live rows.
package sqlite

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// File names inside the data directory.
const (
	dbFileName   = "piilink.db"
	lockFileName = ".piilink.lock"
)

// lockRetry is how often a blocked writer retries the file lock.
const lockRetry = 25 * time.Millisecond

// timeLayout is fixed width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ types.EntityStore = (*Store)(nil)

// Store implements types.EntityStore.
type Store struct {
	mu      sync.RWMutex
	closed  bool
	db      *sql.DB
	lock    *flock.Flock
	dataDir string
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// Open creates the data directory if needed, opens the database and applies
// the schema. Existing data is kept.
func Open(cfg types.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data directory %s", dataDir)
	}

	dsn := "file:" + filepath.Join(dataDir, dbFileName) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := newStore(db, dataDir)
	s.logger.Debugw("Store opened", logging.FieldPath, dataDir)
	return s, nil
}

// newStore wraps an open database. The schema is assumed to exist.
func newStore(db *sql.DB, dataDir string) *Store {
	return &Store{
		db:      db,
		lock:    flock.New(filepath.Join(dataDir, lockFileName)),
		dataDir: dataDir,
		logger:  logging.ComponentLogger("store"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "closing database")
	}
	return nil
}

// read runs fn under the read lock.
func (s *Store) read(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrStoreClosed
	}
	return fn()
}

// write runs fn inside a transaction while holding both write locks. A
// failing fn or commit rolls the transaction back. Not-found and validation
// errors are returned as they are; anything else is marked ErrPersistence.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return types.MarkPersistence(err, "acquiring store lock")
	}
	if !locked {
		return types.MarkPersistence(errors.New("store lock not acquired"), op)
	}
	defer func() { _ = s.lock.Unlock() }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.MarkPersistence(err, "beginning transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isTyped(err) {
			return err
		}
		return types.MarkPersistence(err, op)
	}
	if err := tx.Commit(); err != nil {
		return types.MarkPersistence(err, "committing "+op)
	}
	return nil
}

func isTyped(err error) bool {
	return errors.IsAny(err,
		types.ErrEntityNotFound,
		types.ErrFragmentNotFound,
		types.ErrInvalidID,
		types.ErrInvalidMapping,
		types.ErrPersistence,
	)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
