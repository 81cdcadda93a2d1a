package source

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// docSource is the read-only view of a document store that DocSampler needs.
type docSource interface {
	Collections(ctx context.Context, database string) ([]string, error)
	Sample(ctx context.Context, database, collection string, n int) ([]map[string]any, error)
	Close(ctx context.Context) error
}

const mongoSelectionTimeout = 5 * time.Second

type mongoSource struct {
	client *mongo.Client
}

// openMongo connects to uri and verifies a secondary-preferred server is
// reachable.
func openMongo(ctx context.Context, uri string) (docSource, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(mongoSelectionTimeout).
		SetReadPreference(readpref.SecondaryPreferred())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to document store")
	}
	if err := client.Ping(ctx, readpref.SecondaryPreferred()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging document store")
	}
	return &mongoSource{client: client}, nil
}

func (m *mongoSource) Collections(ctx context.Context, database string) ([]string, error) {
	names, err := m.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	sort.Strings(names)
	return names, nil
}

func (m *mongoSource) Sample(ctx context.Context, database, collection string, n int) ([]map[string]any, error) {
	cur, err := m.client.Database(database).Collection(collection).
		Find(ctx, bson.D{}, options.Find().SetLimit(int64(n)))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", collection)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "reading %s", collection)
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

func (m *mongoSource) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// DocSampler reads at most SampleN documents per collection.
type DocSampler struct {
	source   docSource
	Database string
	SampleN  int
}

// Collections lists the collections of the database in name order.
func (d *DocSampler) Collections(ctx context.Context) ([]string, error) {
	return d.source.Collections(ctx, d.Database)
}

// Sample reads up to SampleN documents of collection and calls emit for
// every non-null scalar. _id is skipped, nested documents are flattened to
// dotted paths and array elements are emitted one by one.
func (d *DocSampler) Sample(ctx context.Context, collection string, emit func(Cell)) error {
	docs, err := d.source.Sample(ctx, d.Database, collection, d.SampleN)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		row := i + 1
		flatten("", doc, func(field, value string) {
			emit(Cell{Container: collection, Field: field, Row: row, Value: value})
		})
	}
	return nil
}

// flatten walks a document in key order.
func flatten(prefix string, doc map[string]any, emit func(field, value string)) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		if prefix == "" && k == "_id" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		flattenValue(join(prefix, k), doc[k], emit)
	}
}

func flattenValue(field string, v any, emit func(field, value string)) {
	switch x := v.(type) {
	case nil:
	case map[string]any:
		flatten(field, x, emit)
	case bson.M:
		flatten(field, x, emit)
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = e.Value
		}
		flatten(field, m, emit)
	case bson.A:
		for _, e := range x {
			flattenValue(field, e, emit)
		}
	case []any:
		for _, e := range x {
			flattenValue(field, e, emit)
		}
	case primitive.ObjectID:
		emit(field, x.Hex())
	case primitive.DateTime:
		emit(field, x.Time().UTC().Format(time.RFC3339))
	case primitive.Binary, primitive.Null, primitive.Undefined:
	default:
		if s, ok := stringify(x); ok {
			emit(field, s)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
