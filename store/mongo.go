package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	cfg "github.com/sweetpotato0/gramflow/config"
	gferrors "github.com/sweetpotato0/gramflow/errors"
)

// MongoStore implements Store using MongoDB. Records are stored as-is via
// their bson tags, with the run ID as the document ID.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB configuration.
type MongoConfig struct {
	URI        string // MongoDB connection URI
	Database   string // Database name
	Collection string // Collection name
}

// NewMongo creates a MongoDB-backed run store and verifies the connection.
func NewMongo(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = MongoConfigFromEnv()
	}
	if err := cfg.ValidateMongoDBConfig(config.URI, config.Database, config.Collection); err != nil {
		return nil, fmt.Errorf("invalid MongoDB configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := store.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	})
	return err
}

// Save upserts the record by its run ID.
func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, opts); err != nil {
		return fmt.Errorf("failed to store record in MongoDB: %w", err)
	}
	return nil
}

// Load retrieves one record by ID.
func (s *MongoStore) Load(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// Delete removes one record.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
	}
	return nil
}

// List returns records newest first.
func (s *MongoStore) List(ctx context.Context, limit int) ([]*Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}

// Exists reports whether a record with the given ID is stored.
func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return count > 0, nil
}

// Clear removes every record in the collection.
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks if the MongoDB connection is alive.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
