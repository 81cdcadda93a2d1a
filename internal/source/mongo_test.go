package source

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

type fakeDocs struct {
	colls  map[string][]map[string]any
	failOn string
	closed bool
	limits []int
}

func (f *fakeDocs) Collections(ctx context.Context, database string) ([]string, error) {
	return []string{"orders", "users"}, nil
}

func (f *fakeDocs) Sample(ctx context.Context, database, collection string, n int) ([]map[string]any, error) {
	f.limits = append(f.limits, n)
	if collection == f.failOn {
		return nil, errors.New("unauthorized")
	}
	docs := f.colls[collection]
	if len(docs) > n {
		docs = docs[:n]
	}
	return docs, nil
}

func (f *fakeDocs) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func TestFlatten(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	doc := map[string]any{
		"_id":   oid,
		"email": "ida@x.dk",
		"profile": bson.M{
			"phone": "+45 11 22 33 44",
			"addr":  bson.D{{Key: "city", Value: "Aarhus"}},
		},
		"tags":    bson.A{"a", nil, int32(3)},
		"ref":     oid,
		"created": primitive.NewDateTimeFromTime(when),
		"blob":    primitive.Binary{Data: []byte{1}},
		"none":    nil,
	}

	got := map[string][]string{}
	flatten("", doc, func(field, value string) {
		got[field] = append(got[field], value)
	})

	assert.Equal(t, map[string][]string{
		"created":           {"2024-05-06T07:08:09Z"},
		"email":             {"ida@x.dk"},
		"profile.addr.city": {"Aarhus"},
		"profile.phone":     {"+45 11 22 33 44"},
		"ref":               {oid.Hex()},
		"tags":              {"a", "3"},
	}, got)
}

func TestRunDocs(t *testing.T) {
	fake := &fakeDocs{colls: map[string][]map[string]any{
		"users": {
			{"_id": "x@not.scanned", "mail": "ulla@x.dk"},
			{"mail": "viggo@x.dk", "meta": map[string]any{"cpr": "030303-3333"}},
			{"mail": "over@limit.dk"},
		},
		"orders": {
			{"buyer": "ulla@x.dk"},
		},
	}}
	s := newTestScanner(t)
	s.openDocs = func(ctx context.Context, uri string) (docSource, error) { return fake, nil }

	res, err := s.Run(context.Background(), Job{Docs: &DocTarget{URI: "mongodb://x", Database: "shop", SampleN: 2}})
	require.NoError(t, err)

	assert.Equal(t, []string{"ulla@x.dk", "ulla@x.dk", "viggo@x.dk", "030303-3333"}, fragValues(res.Fragments))
	assert.Equal(t, "orders.buyer", res.Fragments[0].Source)
	assert.Equal(t, "users.mail", res.Fragments[1].Source)
	assert.Equal(t, "users.meta.cpr", res.Fragments[3].Source)
	assert.Equal(t, "meta.cpr", res.Fragments[3].Meta(types.MetaField))
	assert.Equal(t, "2", res.Fragments[3].Meta(types.MetaRow))
	assert.Equal(t, []string{"orders", "users"}, res.Sources)
	assert.Equal(t, []int{2, 2}, fake.limits)
	assert.True(t, fake.closed)
}

func TestRunDocsCollectionFailure(t *testing.T) {
	fake := &fakeDocs{
		colls:  map[string][]map[string]any{"users": {{"mail": "a@x.dk"}}},
		failOn: "orders",
	}
	s := newTestScanner(t)
	s.openDocs = func(ctx context.Context, uri string) (docSource, error) { return fake, nil }

	res, err := s.Run(context.Background(), Job{Docs: &DocTarget{URI: "mongodb://x", Database: "shop"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.dk"}, fragValues(res.Fragments))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "orders")
	assert.Equal(t, []int{10, 10}, fake.limits)
}

func TestRunDocsConnectionFailure(t *testing.T) {
	s := newTestScanner(t)
	s.openDocs = func(ctx context.Context, uri string) (docSource, error) {
		return nil, errors.New("server selection timeout")
	}

	res, err := s.Run(context.Background(), Job{Docs: &DocTarget{URI: "mongodb://x", Database: "shop"}})
	require.NoError(t, err)
	assert.Empty(t, res.Fragments)
	assert.Len(t, res.Warnings, 1)
}

func TestRunDocsRequiresDatabase(t *testing.T) {
	res, err := newTestScanner(t).Run(context.Background(), Job{Docs: &DocTarget{URI: "mongodb://x"}})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}
