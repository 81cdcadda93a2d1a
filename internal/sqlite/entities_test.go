// Tests for saving, reading and searching entities.
package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

// sampleScan is three fragments linked into two entities.
func sampleScan() (types.Mapping, []types.Fragment) {
	frags := []types.Fragment{
		{Type: types.TypeEmail, Value: "alice@example.com", Source: "users.csv", Metadata: map[string]string{types.MetaLine: "3"}},
		{Type: types.TypeEmail, Value: "alice@example.com", Source: "crm.customers"},
		{Type: types.TypeCPR, Value: "010190-1234", Source: "hr.txt"},
	}
	mapping := types.Mapping{
		0: {EntityID: "E-000001", Confidence: 1.0},
		1: {EntityID: "E-000001", Confidence: 0.9},
		2: {EntityID: "E-000002", Confidence: 1.0},
	}
	return mapping, frags
}

// assertCountInvariant checks fragment_count against the live rows of every
// entity.
func assertCountInvariant(t *testing.T, s *Store) {
	t.Helper()
	rows, err := s.db.Query(`SELECT e.entity_id, e.fragment_count,
		(SELECT COUNT(*) FROM fragments f WHERE f.entity_id = e.entity_id) FROM entities e`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var (
			id          string
			count, live int
		)
		require.NoError(t, rows.Scan(&id, &count, &live))
		assert.Equal(t, live, count, "entity %s", id)
	}
	require.NoError(t, rows.Err())
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()

	require.NoError(t, s.Save(ctx, mapping, frags))

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.Equal(t, "E-000001", rec.Entity.EntityID)
	assert.Equal(t, 2, rec.Entity.FragmentCount)
	assert.InDelta(t, 0.95, rec.Entity.Confidence, 1e-9)
	require.Len(t, rec.Fragments, 2)

	f := rec.Fragments[0]
	assert.True(t, strings.HasPrefix(f.FragID, "E-000001-"))
	assert.Equal(t, types.TypeEmail, f.Type)
	assert.Equal(t, "alice@example.com", f.Value)
	assert.Equal(t, "users.csv (Line 3)", f.Source)
	assert.Equal(t, 1.0, f.Confidence)
	assert.Equal(t, 0.9, rec.Fragments[1].Confidence)
	assert.NotEqual(t, rec.Fragments[0].FragID, rec.Fragments[1].FragID)

	assertCountInvariant(t, s)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "E-999999")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestSaveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()

	require.NoError(t, s.Save(ctx, mapping, frags))
	first, err := s.Statistics(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, mapping, frags))
	second, err := s.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, second.TotalFragments)

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Entity.FragmentCount)
	assertCountInvariant(t, s)
}

func TestSaveKeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(s, start)
	mapping, frags := sampleScan()

	require.NoError(t, s.Save(ctx, mapping, frags))
	require.NoError(t, s.Save(ctx, mapping, frags))

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.True(t, rec.Entity.CreatedAt.Equal(start))
	assert.True(t, rec.Entity.UpdatedAt.Equal(start.Add(time.Second)))
}

func TestSaveReplacesOnlyMappedEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	// A later scan only mentions E-000002.
	require.NoError(t, s.Save(ctx,
		types.Mapping{0: {EntityID: "E-000002", Confidence: 1}, 1: {EntityID: "E-000002", Confidence: 0.8}},
		[]types.Fragment{
			{Type: types.TypeCPR, Value: "010190-1234", Source: "hr.txt"},
			{Type: types.TypeCPR, Value: "010190-1235", Source: "hr2.txt"},
		},
	))

	rec, err := s.Get(ctx, "E-000001")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Entity.FragmentCount)

	rec, err = s.Get(ctx, "E-000002")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Entity.FragmentCount)
	assertCountInvariant(t, s)
}

func TestSaveSkipsUnmappedFragments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	frags := []types.Fragment{
		{Type: types.TypeEmail, Value: "a@b.dk"},
		{Type: types.TypeEmail, Value: ""},
	}
	require.NoError(t, s.Save(ctx, types.Mapping{0: {EntityID: "E-000001", Confidence: 1}}, frags))

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalFragments)
}

func TestSaveEmptyMapping(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Save(context.Background(), nil, nil))
}

func TestSaveRejectsBadMapping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	frags := []types.Fragment{{Type: types.TypeEmail, Value: "a@b.dk"}}

	err := s.Save(ctx, types.Mapping{3: {EntityID: "E-000001"}}, frags)
	assert.ErrorIs(t, err, types.ErrInvalidMapping)

	err = s.Save(ctx, types.Mapping{0: {EntityID: ""}}, frags)
	assert.ErrorIs(t, err, types.ErrInvalidID)

	st, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalEntities)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mapping, frags := sampleScan()
	require.NoError(t, s.Save(ctx, mapping, frags))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"value substring owned by one entity", "010190", []string{"E-000002"}},
		{"case-insensitive value", "ALICE@", []string{"E-000001"}},
		{"type match", "cpr", []string{"E-000002"}},
		{"no match", "zebra", nil},
		{"like wildcards are literal", "%", nil},
		{"underscore is literal", "EMAIL_ADDRESS", []string{"E-000001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.EntityID)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	frags := []types.Fragment{{Type: types.TypePerson, Value: "ÅSE HANSEN"}}
	require.NoError(t, s.Save(ctx, types.Mapping{0: {EntityID: "E-000001", Confidence: 1}}, frags))

	for _, q := range []string{"åse", "Åse", "ÅSE HAN"} {
		got, err := s.Search(ctx, q)
		require.NoError(t, err, q)
		require.Len(t, got, 1, q)
		assert.Equal(t, "E-000001", got[0].EntityID)
	}
}

func TestSearchPageSize(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mapping := types.Mapping{}
	var frags []types.Fragment
	for i := 0; i < types.SearchPageSize+10; i++ {
		frags = append(frags, types.Fragment{Type: types.TypeEmail, Value: "x@y.dk"})
		mapping[i] = types.Assignment{EntityID: entityID(i + 1), Confidence: 1}
	}
	require.NoError(t, s.Save(ctx, mapping, frags))

	got, err := s.Search(ctx, "x@y")
	require.NoError(t, err)
	assert.Len(t, got, types.SearchPageSize)
}

func TestListEntitiesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fixedClock(s, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx,
			types.Mapping{0: {EntityID: entityID(i), Confidence: 1}},
			[]types.Fragment{{Type: types.TypeEmail, Value: "v"}},
		))
	}

	all, err := s.ListEntities(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "E-000003", all[0].EntityID)
	assert.Equal(t, "E-000001", all[2].EntityID)

	two, err := s.ListEntities(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
