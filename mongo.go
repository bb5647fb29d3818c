package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend implements the CRUD contract over a mongo collection, where
// the handle owns persistence the way an active-record model does. It
// deliberately differs from the SQL backends in two observable ways: Update
// re-fetches and returns the canonical post-update document, and a zero list
// limit means no limit.
type MongoBackend[K comparable] struct {
	db         *mongo.Database
	collection *mongo.Collection
	schema     Schema
	key        KeyDef
}

const mongoCounterCollection = "_crud_counters"

func NewMongoBackend[K comparable, T any](db *mongo.Database, collName string) (*MongoBackend[K], error) {
	schema, err := ParseSchemaOf[T]()
	if err != nil {
		return nil, err
	}

	if collName != "" {
		schema.Name = collName
	}

	// some deployments report an unset namespace as a literal "None." prefix
	schema.Name = strings.TrimPrefix(schema.Name, "None.")

	key, err := schema.KeyDef()
	if err != nil {
		return nil, err
	}

	var zero K
	if err := checkKeyType(zero, key.Kind); err != nil {
		return nil, fmt.Errorf("schema %s: %w", schema.Name, err)
	}

	return &MongoBackend[K]{
		db:         db,
		collection: db.Collection(schema.Name),
		schema:     schema,
		key:        key,
	}, nil
}

func (m *MongoBackend[K]) Schema() Schema {
	return m.schema
}

// List applies the skip always and the limit only when it is non-nil and
// non-zero, so a zero limit returns the unlimited set.
func (m *MongoBackend[K]) List(ctx context.Context, page Pagination) ([]Record, error) {
	opts := mongoOptions.Find().SetSkip(int64(page.Skip))
	if page.Limit != nil && *page.Limit != 0 {
		opts.SetLimit(int64(*page.Limit))
	}

	cur, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []Record
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}

		recs = append(recs, m.toRecord(doc))
	}

	return recs, cur.Err()
}

func (m *MongoBackend[K]) GetOne(ctx context.Context, id K) (Record, error) {
	var doc bson.M
	err := m.collection.FindOne(ctx, bson.M{"_id": m.keyValue(id)}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return m.toRecord(doc), nil
}

// Create persists the payload under a backend-assigned key: the next value
// of a per-collection counter for integer keys, a fresh uuid or object id
// otherwise.
func (m *MongoBackend[K]) Create(ctx context.Context, payload Record) (Record, error) {
	var id any
	switch m.key.Kind {
	case KeyInt:
		n, err := m.nextIntKey(ctx)
		if err != nil {
			return nil, err
		}
		id = n
	case KeyUUID:
		id = uuid.New().String()
	default:
		id = primitive.NewObjectID().Hex()
	}

	doc := bson.M{"_id": id}
	for k, v := range payload {
		doc[k] = v
	}

	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w. %s", ErrKeyAlreadyExists, err.Error())
		}
		return nil, err
	}

	return mergeKey(payload, m.key.Field, id), nil
}

// Update applies the payload with $set and then re-fetches. The re-fetch is
// what reports a missing id, and it makes the returned record the canonical
// post-update document rather than an echo of the payload.
func (m *MongoBackend[K]) Update(ctx context.Context, id K, payload Record) (Record, error) {
	sets := bson.M{}
	for k, v := range payload {
		if k == m.key.Field {
			continue
		}
		sets[k] = v
	}

	if len(sets) > 0 {
		_, err := m.collection.UpdateOne(ctx, bson.M{"_id": m.keyValue(id)}, bson.M{"$set": sets})
		if err != nil {
			return nil, err
		}
	}

	return m.GetOne(ctx, id)
}

func (m *MongoBackend[K]) DeleteAll(ctx context.Context) ([]Record, error) {
	if _, err := m.collection.DeleteMany(ctx, bson.D{}); err != nil {
		return nil, err
	}

	return m.List(ctx, Pagination{})
}

// DeleteOne fetches the record first, then deletes it and returns the
// previously fetched record. The fetch is what reports a missing id here.
func (m *MongoBackend[K]) DeleteOne(ctx context.Context, id K) (Record, error) {
	rec, err := m.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": m.keyValue(id)}); err != nil {
		return nil, err
	}

	return rec, nil
}

// nextIntKey increments a per-collection sequence document, creating it on
// first use. Sequences survive DeleteAll the way autoincrement columns do.
func (m *MongoBackend[K]) nextIntKey(ctx context.Context) (int64, error) {
	res := m.db.Collection(mongoCounterCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": m.collection.Name()},
		bson.M{"$inc": bson.M{"seq": 1}},
		mongoOptions.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mongoOptions.After),
	)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}

	return doc.Seq, nil
}

// keyValue renders the id the way Create stores it.
func (m *MongoBackend[K]) keyValue(id K) any {
	if u, ok := any(id).(uuid.UUID); ok {
		return u.String()
	}

	return id
}

func (m *MongoBackend[K]) toRecord(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			k = m.key.Field
		}

		if n, ok := v.(int32); ok {
			v = int64(n)
		}

		rec[k] = v
	}

	return rec
}
