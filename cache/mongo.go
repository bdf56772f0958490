package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CollectionName is the collection entries are stored in.
const CollectionName = "image_cache"

// MongoRepository stores entries in MongoDB.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.SugaredLogger
}

// NewMongoRepository connects to uri and prepares the entry collection in
// database.
func NewMongoRepository(ctx context.Context, uri, database string, logger *zap.SugaredLogger) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "pinging mongodb"), client.Disconnect(ctx))
	}

	coll := client.Database(database).Collection(CollectionName)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "expiresAt", Value: 1}},
	})
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "creating expiry index"), client.Disconnect(ctx))
	}

	logger.Infow("using mongodb cache metadata", "database", database, "collection", CollectionName)
	return &MongoRepository{client: client, collection: coll, logger: logger}, nil
}

func (r *MongoRepository) Save(ctx context.Context, e Entry) error {
	_, err := r.collection.InsertOne(ctx, e)
	return errors.Wrapf(err, "saving entry %s", e.ID)
}

func (r *MongoRepository) FindExpired(ctx context.Context, now time.Time) ([]Entry, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"expiresAt": bson.M{"$lt": now}},
		options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "finding expired entries")
	}
	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding expired entries")
	}
	return entries, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "deleting entry %s", id)
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "entry %s", id)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
