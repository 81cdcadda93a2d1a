// Tests for opening, closing and locking the SQLite entity store.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

func testConfig(dir string) types.Config {
	cfg := types.DefaultConfig()
	cfg.DataDir = dir
	return cfg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock makes s stamp rows with start, start+1s, start+2s, ...
func fixedClock(s *Store, start time.Time) {
	next := start
	s.now = func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := Open(testConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, dbFileName))
	assert.NoError(t, err)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Backend = ""
	_, err := Open(cfg)
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
}

func TestOpenKeepsExistingData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, types.Mapping{0: {EntityID: "E-000001", Confidence: 1}},
		[]types.Fragment{{Type: types.TypeEmail, Value: "a@b.dk", Source: "f"}}))
	require.NoError(t, s.Close())

	s, err = Open(testConfig(dir))
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Entity.FragmentCount)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(testConfig(t.TempDir()))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s, err := Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err = s.Get(ctx, "E-000001")
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	_, err = s.Statistics(ctx)
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	_, err = s.EraseEntity(ctx, "E-000001", "u", "r")
	assert.ErrorIs(t, err, types.ErrStoreClosed)
}

func TestWriteWaitsForFileLock(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on real timers")
	}
	s := openTestStore(t)

	other := newStore(s.db, s.dataDir)
	locked, err := other.lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = s.EraseEntity(ctx, "E-000001", "u", "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPersistence))

	require.NoError(t, other.lock.Unlock())
	_, err = s.EraseEntity(context.Background(), "E-000001", "u", "r")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestTimestampsSortLexically(t *testing.T) {
	a := formatTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	b := formatTime(time.Date(2024, 1, 2, 3, 4, 5, 100, time.UTC))
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)
	assert.True(t, parseTime(b).Equal(time.Date(2024, 1, 2, 3, 4, 5, 100, time.UTC)))
}

func entityID(n int) string {
	return fmt.Sprintf("E-%06d", n)
}
