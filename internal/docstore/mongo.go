package docstore

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on MongoDB. All documents live in one collection
// keyed by their full path, with the parent collection path indexed for
// queries. Commits run in a multi-document transaction and live queries are
// driven by change streams, so the deployment must be a replica set.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

type mongoDocument struct {
	ID     string `bson:"_id"`
	Parent string `bson:"parent"`
	Data   bson.M `bson:"data"`
}

// NewMongoStore creates a MongoStore backed by db.documents.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: db.Collection("documents"),
		now:        time.Now,
	}
}

// EnsureIndexes creates the parent-path index used by collection queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}},
	})
	return err
}

func (s *MongoStore) Get(ctx context.Context, path string) (Document, error) {
	if !IsDocumentPath(path) {
		return Document{}, newError(CodeInvalid, "get", path, nil)
	}
	var md mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&md)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{Path: path, ID: Base(path)}, nil
		}
		return Document{}, mapMongoError("get", path, err)
	}
	return md.document(), nil
}

func (md mongoDocument) document() Document {
	data, _ := FromBSON(md.Data).(map[string]any)
	return Document{Path: md.ID, ID: Base(md.ID), Data: data, Exists: true}
}

func (s *MongoStore) query(ctx context.Context, q Query) ([]Document, error) {
	if q.IsDocument() {
		d, err := s.Get(ctx, q.Path)
		if err != nil || !d.Exists {
			return []Document{}, err
		}
		return []Document{d}, nil
	}

	filter := bson.D{{Key: "parent", Value: q.Path}}
	for _, f := range q.Filters {
		field := "data." + f.Field
		switch f.Op {
		case OpArrayContains:
			filter = append(filter, bson.E{Key: field, Value: f.Value})
		default:
			filter = append(filter, bson.E{Key: field, Value: bson.D{{Key: mongoOperators[f.Op], Value: f.Value}}})
		}
	}
	opts := options.Find()
	if len(q.Orders) > 0 {
		sort := bson.D{}
		for _, o := range q.Orders {
			dir := 1
			if o.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: "data." + o.Field, Value: dir})
		}
		opts.SetSort(sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapMongoError("list", q.Path, err)
	}
	defer cursor.Close(ctx)

	var rows []mongoDocument
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, mapMongoError("list", q.Path, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document())
	}
	return docs, nil
}

var mongoOperators = map[FilterOp]string{
	OpEqual:        "$eq",
	OpNotEqual:     "$ne",
	OpLess:         "$lt",
	OpLessEqual:    "$lte",
	OpGreater:      "$gt",
	OpGreaterEqual: "$gte",
	OpIn:           "$in",
}

func (s *MongoStore) Watch(ctx context.Context, q Query) (Iterator, error) {
	if err := q.Validate(); err != nil {
		return nil, newError(CodeInvalid, "watch", q.Path, err)
	}
	var match bson.D
	if q.IsDocument() {
		match = bson.D{{Key: "documentKey._id", Value: q.Path}}
	} else {
		pattern := "^" + regexp.QuoteMeta(q.Path) + "/[^/]+$"
		match = bson.D{{Key: "documentKey._id", Value: primitive.Regex{Pattern: pattern}}}
	}

	wctx, cancel := context.WithCancel(ctx)
	stream, err := s.collection.Watch(wctx, mongo.Pipeline{{{Key: "$match", Value: match}}})
	if err != nil {
		cancel()
		return nil, mapMongoError("watch", q.Path, err)
	}
	return &mongoIterator{store: s, query: q, stream: stream, ctx: wctx, cancel: cancel}, nil
}

type mongoIterator struct {
	store   *MongoStore
	query   Query
	stream  *mongo.ChangeStream
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func (it *mongoIterator) Next(ctx context.Context) ([]Document, error) {
	if it.started {
		if !it.stream.Next(it.ctx) {
			if err := it.stream.Err(); err != nil && it.ctx.Err() == nil {
				return nil, mapMongoError("watch", it.query.Path, err)
			}
			return nil, ErrStopped
		}
	}
	it.started = true
	return it.store.query(ctx, it.query)
}

func (it *mongoIterator) Stop() {
	it.cancel()
	_ = it.stream.Close(context.Background())
}

func (s *MongoStore) Commit(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return newError(CodeInvalid, "commit", "", errors.New("empty batch"))
	}
	session, err := s.client.StartSession()
	if err != nil {
		return mapMongoError("commit", ops[0].Path, err)
	}
	defer session.EndSession(ctx)

	now := s.now()
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, op := range ops {
			if err := s.apply(sc, op, now); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return mapMongoError("commit", ops[0].Path, err)
}

func (s *MongoStore) apply(sc mongo.SessionContext, op Op, now time.Time) error {
	switch op.Kind {
	case OpCreate:
		_, err := s.collection.InsertOne(sc, bson.D{
			{Key: "_id", Value: op.Path},
			{Key: "parent", Value: Parent(op.Path)},
			{Key: "data", Value: resolveFields(nil, op.Data, now)},
		})
		if mongo.IsDuplicateKeyError(err) {
			return newError(CodeAlreadyExists, "create", op.Path, nil)
		}
		return err
	case OpSet:
		_, err := s.collection.ReplaceOne(sc, bson.M{"_id": op.Path}, bson.D{
			{Key: "parent", Value: Parent(op.Path)},
			{Key: "data", Value: resolveFields(nil, op.Data, now)},
		}, options.Replace().SetUpsert(true))
		return err
	case OpUpdate:
		set, inc := bson.M{}, bson.M{}
		for field, v := range op.Data {
			key := "data." + field
			switch t := v.(type) {
			case Increment:
				inc[key] = t.N
			default:
				set[key] = resolveValue(nil, v, now)
			}
		}
		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		if len(inc) > 0 {
			update["$inc"] = inc
		}
		res, err := s.collection.UpdateOne(sc, bson.M{"_id": op.Path}, update)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return newError(CodeNotFound, "update", op.Path, nil)
		}
		return nil
	case OpDelete:
		res, err := s.collection.DeleteOne(sc, bson.M{"_id": op.Path})
		if err != nil {
			return err
		}
		if op.MustExist && res.DeletedCount == 0 {
			return newError(CodeNotFound, "delete", op.Path, nil)
		}
		return nil
	}
	return newError(CodeInvalid, op.Kind.String(), op.Path, nil)
}

// FromBSON converts values produced by the bson decoder into plain Go values:
// documents become map[string]any, arrays []any and datetimes time.Time.
func FromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = FromBSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = FromBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = FromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = FromBSON(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}

func mapMongoError(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == 13 || cmdErr.Name == "Unauthorized") {
		return newError(CodePermissionDenied, op, path, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return newError(CodeUnavailable, op, path, err)
	}
	return err
}
