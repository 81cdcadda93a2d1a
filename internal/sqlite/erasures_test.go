// Tests for fragment deletion, entity erasure and statistics.
package sqlite

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

func TestDeleteFragmentKeepsEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)

	res, err := s.DeleteFragment(ctx, rec.Fragments[1].FragID, "dpo", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, "E-000001", res.EntityID)
	assert.Equal(t, 1, res.Remaining)
	assert.False(t, res.EntityErased)
	assert.Empty(t, res.ErasureID)

	rec, err = s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Entity.FragmentCount)
	assert.Equal(t, 1.0, rec.Entity.Confidence)
	assertCountInvariant(t, s)

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.ErasuresPerformed)
}

func TestDeleteLastFragmentCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	rec, err := s.Get(ctx, "E-000002")
	require.NoError(t, err)
	require.Len(t, rec.Fragments, 1)

	res, err := s.DeleteFragment(ctx, rec.Fragments[0].FragID, "dpo", "request")
	require.NoError(t, err)
	assert.True(t, res.EntityErased)
	assert.Zero(t, res.Remaining)
	assert.Regexp(t, `^ER-`, res.ErasureID)

	_, err = s.Get(ctx, "E-000002")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	erasures, err := s.ListErasures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, erasures, 1)
	assert.Equal(t, res.ErasureID, erasures[0].ErasureID)
	assert.Equal(t, "E-000002", erasures[0].EntityID)
	assert.Equal(t, 1, erasures[0].FragmentsDeleted)
	assert.Equal(t, "dpo", erasures[0].RequestedBy)
	assert.Equal(t, "request", erasures[0].Reason)
}

func TestDeleteFragmentNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.DeleteFragment(ctx, "E-000001-nope", "u", "r")
	assert.ErrorIs(t, err, types.ErrFragmentNotFound)
	assert.False(t, errors.Is(err, types.ErrPersistence))

	_, err = s.DeleteFragment(ctx, "", "u", "r")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestEraseEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	n, err := s.EraseEntity(ctx, "E-000001", "dpo", "art. 17")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Get(ctx, "E-000001")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	var left int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM fragments WHERE entity_id = ?", "E-000001").Scan(&left))
	assert.Zero(t, left)

	n, err = s.EraseEntity(ctx, "E-000001", "dpo", "again")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	assert.Zero(t, n)

	erasures, err := s.ListErasures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, erasures, 1)
	assert.Equal(t, 2, erasures[0].FragmentsDeleted)
	assert.Equal(t, "art. 17", erasures[0].Reason)
	assertCountInvariant(t, s)
}

func TestListErasuresNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixedClock(s, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	_, err := s.EraseEntity(ctx, "E-000002", "u", "first")
	require.NoError(t, err)
	_, err = s.EraseEntity(ctx, "E-000001", "u", "second")
	require.NoError(t, err)

	erasures, err := s.ListErasures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, erasures, 2)
	assert.Equal(t, "second", erasures[0].Reason)
	assert.Equal(t, "first", erasures[1].Reason)

	one, err := s.ListErasures(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestStatistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, &types.Statistics{}, st)

	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))
	_, err = s.EraseEntity(ctx, "E-000002", "u", "r")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx,
		types.Mapping{0: {EntityID: "E-000003", Confidence: 1}},
		[]types.Fragment{{Type: types.TypePerson, Value: "Bo"}},
	))

	st, err = s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalEntities)
	assert.Equal(t, 3, st.TotalFragments)
	assert.Equal(t, 1.5, st.AvgFragmentsPerEntity)
	assert.Equal(t, 1, st.ErasuresPerformed)
}

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newStore(db, t.TempDir()), mock
}

func TestEraseEntityRollsBack(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT (SELECT COUNT(*) FROM fragments WHERE entity_id = ?) FROM entities")).
		WithArgs("E-000001", "E-000001").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fragments WHERE entity_id = ?")).
		WithArgs("E-000001").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM entities WHERE entity_id = ?")).
		WithArgs("E-000001").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	n, err := s.EraseEntity(context.Background(), "E-000001", "u", "r")
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, types.ErrPersistence))
	assert.False(t, errors.Is(err, types.ErrEntityNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnInsertFailure(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT created_at FROM entities WHERE entity_id = ?")).
		WithArgs("E-000001").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fragments")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM entities")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO entities")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fragments")).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := s.Save(context.Background(),
		types.Mapping{0: {EntityID: "E-000001", Confidence: 1}},
		[]types.Fragment{{Type: types.TypeEmail, Value: "a@b.dk"}},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureIsPersistenceError(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT entity_id FROM fragments WHERE frag_id = ?")).
		WithArgs("F1").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}).AddRow("E-000001"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fragments WHERE frag_id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM fragments")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE entities SET fragment_count")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := s.DeleteFragment(context.Background(), "F1", "u", "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}
