package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// Connect opens a MongoDB client and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}
	return client, nil
}

// MongoStore keeps queue items in one MongoDB collection. Atomicity of state
// changes and the blobSize counter relies on single-document updates.
type MongoStore struct {
	coll *mongo.Collection
	opts Options
}

// NewMongoStore returns a store backed by db.collection.
func NewMongoStore(db *mongo.Database, collection string, opts Options) *MongoStore {
	return &MongoStore{coll: db.Collection(collection), opts: opts}
}

// EnsureIndexes creates the unique correlationId index and the listing index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "correlationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "creationTime", Value: 1}}},
	})
	return errors.Wrapf(err, "ensure indexes on %s", s.coll.Name())
}

// Create inserts a new item.
func (s *MongoStore) Create(ctx context.Context, item *model.QueueItem) error {
	now := s.opts.now()
	item.CreationTime, item.ModificationTime = now, now
	if _, err := s.coll.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return errors.Wrapf(err, "insert queue item %s", item.CorrelationID)
	}
	return nil
}

// QueryByID returns the item, aborting it first when checkModTime is set and
// it has gone stale.
func (s *MongoStore) QueryByID(ctx context.Context, correlationID string, checkModTime bool) (*model.QueueItem, error) {
	item, err := s.findOne(ctx, correlationID)
	if err != nil || !checkModTime {
		return item, err
	}
	now := s.opts.now()
	if !s.opts.isStale(item, now) {
		return item, nil
	}

	filter := bson.M{
		"correlationId":    correlationID,
		"queueItemState":   bson.M{"$nin": []model.QueueItemState{model.StateDone, model.StateError, model.StateAbort}},
		"modificationTime": bson.M{"$lt": now.Add(-s.opts.StaleAfter)},
	}
	update := bson.M{"$set": bson.M{
		"queueItemState":   model.StateAbort,
		"errorStatus":      http.StatusRequestTimeout,
		"errorMessage":     TimeoutMessage,
		"modificationTime": now,
	}}
	aborted, err := s.findOneAndUpdate(ctx, filter, update, options.After)
	if errors.Is(err, ErrNotFound) {
		// A worker touched the item in between; report what it wrote.
		return s.findOne(ctx, correlationID)
	}
	return aborted, err
}

// Query lists matching items ordered by creation time.
func (s *MongoStore) Query(ctx context.Context, f query.Filter, p query.Projection) ([]*model.QueueItem, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "creationTime", Value: 1}}).
		SetProjection(projectionDocument(p))
	if f.Skip > 0 {
		opts.SetSkip(int64(f.Skip))
	}
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := s.coll.Find(ctx, filterDocument(f), opts)
	if err != nil {
		return nil, errors.Wrap(err, "query queue items")
	}
	defer cur.Close(ctx)

	var out []*model.QueueItem
	for cur.Next(ctx) {
		var item model.QueueItem
		if err := cur.Decode(&item); err != nil {
			return nil, errors.Wrap(err, "decode queue item")
		}
		p.Apply(&item)
		out = append(out, &item)
	}
	return out, errors.Wrap(cur.Err(), "iterate queue items")
}

// SetState moves an item to state.
func (s *MongoStore) SetState(ctx context.Context, correlationID string, state model.QueueItemState) (*model.QueueItem, error) {
	update := bson.M{"$set": bson.M{"queueItemState": state, "modificationTime": s.opts.now()}}
	return s.findOneAndUpdate(ctx, bson.M{"correlationId": correlationID}, update, options.After)
}

// SetError moves an item to ERROR.
func (s *MongoStore) SetError(ctx context.Context, correlationID string, status int, message string) (*model.QueueItem, error) {
	update := bson.M{"$set": bson.M{
		"queueItemState":   model.StateError,
		"errorStatus":      status,
		"errorMessage":     message,
		"modificationTime": s.opts.now(),
	}}
	return s.findOneAndUpdate(ctx, bson.M{"correlationId": correlationID}, update, options.After)
}

// AddBlobSize increments blobSize of a waiting item and returns the item as
// it was before.
func (s *MongoStore) AddBlobSize(ctx context.Context, correlationID string, n int) (*model.QueueItem, error) {
	filter := bson.M{"correlationId": correlationID, "queueItemState": model.StateWaitingForRecords}
	update := bson.M{
		"$inc": bson.M{"blobSize": n},
		"$set": bson.M{"modificationTime": s.opts.now()},
	}
	prev, err := s.findOneAndUpdate(ctx, filter, update, options.Before)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return prev, err
}

// Remove deletes an item.
func (s *MongoStore) Remove(ctx context.Context, correlationID, oCatalogerIn string) error {
	filter := bson.M{"correlationId": correlationID}
	if oCatalogerIn != "" {
		filter["oCatalogerIn"] = oCatalogerIn
	}
	res, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return errors.Wrapf(err, "remove queue item %s", correlationID)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, correlationID string) (*model.QueueItem, error) {
	var item model.QueueItem
	err := s.coll.FindOne(ctx, bson.M{"correlationId": correlationID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find queue item %s", correlationID)
	}
	return &item, nil
}

func (s *MongoStore) findOneAndUpdate(ctx context.Context, filter, update bson.M, doc options.ReturnDocument) (*model.QueueItem, error) {
	var item model.QueueItem
	opts := options.FindOneAndUpdate().SetReturnDocument(doc)
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update queue item")
	}
	return &item, nil
}

// filterDocument translates a Filter. Values are typed, so client input can
// never introduce query operators.
func filterDocument(f query.Filter) bson.M {
	doc := bson.M{}
	if f.CorrelationID != "" {
		doc["correlationId"] = f.CorrelationID
	}
	if f.OCatalogerIn != "" {
		doc["oCatalogerIn"] = f.OCatalogerIn
	}
	if f.State != "" {
		doc["queueItemState"] = f.State
	}
	if f.CreationTime != nil {
		doc["creationTime"] = bson.M{"$gte": f.CreationTime.From, "$lte": f.CreationTime.To}
	}
	if f.ModificationTime != nil {
		doc["modificationTime"] = bson.M{"$gte": f.ModificationTime.From, "$lte": f.ModificationTime.To}
	}
	return doc
}

func projectionDocument(p query.Projection) bson.M {
	doc := bson.M{"_id": 0}
	if !p.Operations {
		doc["operations"] = 0
	}
	if !p.OperationSettings {
		doc["operationSettings"] = 0
	}
	if !p.RecordLoadParams {
		doc["recordLoadParams"] = 0
	}
	if !p.ImportJobState {
		doc["importJobState"] = 0
	}
	return doc
}
