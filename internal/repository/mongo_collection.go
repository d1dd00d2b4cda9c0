package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

const revisionIndexName = "ux_revision"

// MongoDatabase maps each logical collection to a mongo collection.
type MongoDatabase struct {
	db  *mongo.Database
	ids ids.Generator
}

func NewMongoDatabase(db *mongo.Database, gen ids.Generator) *MongoDatabase {
	return &MongoDatabase{db: db, ids: gen}
}

func (d *MongoDatabase) Collection(name string) Collection {
	return &MongoCollection{coll: d.db.Collection(name), name: name}
}

func (d *MongoDatabase) EnsureCollection(ctx context.Context, name string) error {
	coll := d.db.Collection(name)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: model.FieldType, Value: 1},
			{Key: model.FieldSetID, Value: 1},
			{Key: model.FieldRev, Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(revisionIndexName),
	})
	if err != nil {
		return fmt.Errorf("create revision index on %s: %w", name, err)
	}

	err = d.Collection(name).InsertOne(ctx, sentinel(d.ids.NewID()))
	if errors.Is(err, errs.ErrDuplicateKey) {
		return nil
	}
	return err
}

func (d *MongoDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

type MongoCollection struct {
	coll *mongo.Collection
	name string
}

func (c *MongoCollection) Name() string { return c.name }

func (c *MongoCollection) InsertOne(ctx context.Context, doc model.Document) error {
	if _, err := c.coll.InsertOne(ctx, bson.M(doc.Map())); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s rev %d", errs.ErrDuplicateKey, doc.Identity(), doc.Rev)
		}
		return fmt.Errorf("insert %s rev %d: %w", doc.Identity(), doc.Rev, err)
	}
	return nil
}

func (c *MongoCollection) Find(ctx context.Context, q Query) ([]model.Document, error) {
	filter := identityFilter(q)
	for k, v := range q.Fields {
		filter[k] = v
	}
	cursor, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: model.FieldID, Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return decodeCursor(ctx, cursor)
}

func (c *MongoCollection) FindLatest(ctx context.Context, q Query) ([]model.Document, error) {
	cursor, err := c.coll.Aggregate(ctx, latestPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("find latest in %s: %w", c.name, err)
	}
	return decodeCursor(ctx, cursor)
}

func identityFilter(q Query) bson.M {
	filter := bson.M{}
	if q.Type != "" {
		filter[model.FieldType] = q.Type
	}
	if q.SetID != nil {
		if *q.SetID == "" {
			filter[model.FieldSetID] = bson.M{"$exists": false}
		} else {
			filter[model.FieldSetID] = *q.SetID
		}
	}
	return filter
}

// latestPipeline groups revisions by identity, keeps the highest one and
// only then applies the body filters.
func latestPipeline(q Query) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: identityFilter(q)}},
		{{Key: "$sort", Value: bson.D{{Key: model.FieldRev, Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "type", Value: "$" + model.FieldType},
				{Key: "setId", Value: "$" + model.FieldSetID},
			}},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
	}
	if len(q.Fields) > 0 {
		fields := bson.M{}
		for k, v := range q.Fields {
			fields[k] = v
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: fields}})
	}
	return append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: model.FieldID, Value: 1}}}})
}

func decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]model.Document, error) {
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	docs := make([]model.Document, 0, len(raw))
	for _, m := range raw {
		plain, _ := normalizeBSON(m).(map[string]any)
		doc, err := model.FromMap(plain)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalizeBSON converts driver types into the plain JSON-like values the rest
// of the code works with. Integers become float64 as they would from JSON.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
