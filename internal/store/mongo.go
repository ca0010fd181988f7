package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo stores documents natively; _id is an ObjectID shown as hex.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (s *Mongo) Collection(m *model.Model) Collection {
	return &mongoCollection{
		coll:  s.db.Collection(m.Collection),
		model: m,
		scope: query.ScopeFilter(m),
	}
}

// EnsureIndexes creates the unique indexes declared by the schemas.
func (s *Mongo) EnsureIndexes(ctx context.Context, models map[string]*model.Model) error {
	for _, m := range models {
		for _, field := range m.UniqueFields() {
			_, err := s.db.Collection(m.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true),
			})
			if err != nil {
				return fmt.Errorf("index %s.%s: %w", m.Collection, field, err)
			}
			logger.Debug("mongo_index_ready", map[string]any{"collection": m.Collection, "field": field})
		}
	}
	return nil
}

type mongoCollection struct {
	coll  *mongo.Collection
	model *model.Model
	scope query.Filter
}

func (c *mongoCollection) Find(ctx context.Context, in query.Intent) ([]model.Document, error) {
	filter, err := c.filter(in.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(mongoSort(in.Sort))
	if p := mongoProjection(in.Projection); p != nil {
		opts.SetProjection(p)
	}
	if in.Skip > 0 {
		opts.SetSkip(in.Skip)
	}
	if in.Limit > 0 {
		opts.SetLimit(in.Limit)
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.model.Collection, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.model.Collection, err)
	}
	docs := make([]model.Document, len(raw))
	for i, r := range raw {
		docs[i] = c.fromBSON(r)
	}
	return docs, nil
}

func (c *mongoCollection) Count(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := c.filter(f)
	if err != nil {
		return 0, err
	}
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) FindByID(ctx context.Context, id string) (model.Document, error) {
	return c.FindOne(ctx, query.Filter{model.IDField: {query.Eq(id)}})
}

func (c *mongoCollection) FindOne(ctx context.Context, f query.Filter) (model.Document, error) {
	filter, err := c.filter(f)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := c.coll.FindOne(ctx, filter).Decode(&raw); err != nil {
		return nil, c.translate(err)
	}
	return c.fromBSON(raw), nil
}

func (c *mongoCollection) Insert(ctx context.Context, doc model.Document) (model.Document, error) {
	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	stored[model.IDField] = primitive.NewObjectID()
	stored[model.VersionField] = int64(0)

	if _, err := c.coll.InsertOne(ctx, stored); err != nil {
		return nil, c.translate(err)
	}
	return c.fromBSON(stored), nil
}

func (c *mongoCollection) UpdateByID(ctx context.Context, id string, patch model.Document) (model.Document, error) {
	filter, err := c.filter(query.Filter{model.IDField: {query.Eq(id)}})
	if err != nil {
		return nil, err
	}
	update := mongoUpdate(patch)
	if len(update) == 0 {
		return c.FindByID(ctx, id)
	}

	var raw bson.M
	err = c.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&raw)
	if err != nil {
		return nil, c.translate(err)
	}
	return c.fromBSON(raw), nil
}

func (c *mongoCollection) DeleteByID(ctx context.Context, id string) (model.Document, error) {
	filter, err := c.filter(query.Filter{model.IDField: {query.Eq(id)}})
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := c.coll.FindOneAndDelete(ctx, filter).Decode(&raw); err != nil {
		return nil, c.translate(err)
	}
	return c.fromBSON(raw), nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := c.filter(f)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.model.Collection, err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) filter(f query.Filter) (bson.D, error) {
	return mongoFilter(c.scope.And(f))
}

// mongoFilter renders f as {field: {$op: value}} clauses joined by $and, so
// repeated operators on one field do not overwrite each other.
func mongoFilter(f query.Filter) (bson.D, error) {
	var clauses bson.A
	for _, field := range f.Fields() {
		for _, cond := range f[field] {
			v, err := mongoValue(field, cond.Value)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, bson.D{{Key: field, Value: bson.D{{Key: string(cond.Op), Value: v}}}})
		}
	}
	switch len(clauses) {
	case 0:
		return bson.D{}, nil
	case 1:
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

// mongoValue converts _id strings to ObjectIDs.
func mongoValue(field string, v any) (any, error) {
	if field != model.IDField {
		return v, nil
	}
	switch x := v.(type) {
	case string:
		oid, err := primitive.ObjectIDFromHex(x)
		if err != nil {
			return nil, &InvalidIDError{ID: x}
		}
		return oid, nil
	case []any:
		out := make(bson.A, len(x))
		for i, it := range x {
			conv, err := mongoValue(field, it)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	}
	return v, nil
}

func mongoSort(s query.Sort) bson.D {
	out := bson.D{}
	byID := false
	for _, sf := range s {
		byID = byID || sf.Field == model.IDField
		dir := 1
		if sf.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: sf.Field, Value: dir})
	}
	if byID {
		return out
	}
	// insertion order as the final tiebreak
	return append(out, bson.E{Key: model.IDField, Value: 1})
}

func mongoProjection(p query.Projection) bson.D {
	if p.IsZero() {
		return nil
	}
	out := bson.D{}
	for _, f := range p.Include {
		out = append(out, bson.E{Key: f, Value: 1})
	}
	for _, f := range p.Exclude {
		out = append(out, bson.E{Key: f, Value: 0})
	}
	return out
}

func mongoUpdate(patch model.Document) bson.D {
	set, unset := splitPatch(patch)
	update := bson.D{}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: bson.M(set)})
	}
	if len(unset) > 0 {
		fields := bson.D{}
		for _, k := range unset {
			fields = append(fields, bson.E{Key: k, Value: ""})
		}
		update = append(update, bson.E{Key: "$unset", Value: fields})
	}
	return update
}

// fromBSON converts driver values back to the plain Go values used by the
// rest of the application.
func (c *mongoCollection) fromBSON(raw bson.M) model.Document {
	doc := model.Document{}
	for k, v := range raw {
		doc[k] = plain(v)
	}
	return c.model.Hydrate(doc)
}

func plain(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case primitive.A:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = plain(it)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = plain(it)
		}
		return out
	case bson.M:
		out := map[string]any{}
		for k, it := range x {
			out[k] = plain(it)
		}
		return out
	case bson.D:
		out := map[string]any{}
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	}
	return v
}

var dupKeyPattern = regexp.MustCompile(`dup key: \{ ?"?([A-Za-z0-9_]+)"?: (.*?) ?\}`)

func (c *mongoCollection) translate(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		if m := dupKeyPattern.FindStringSubmatch(err.Error()); m != nil {
			return &DuplicateKeyError{Field: m[1], Value: strings.Trim(m[2], `"`)}
		}
		return &DuplicateKeyError{Field: "unknown", Value: ""}
	}
	return fmt.Errorf("%s: %w", c.model.Collection, err)
}
