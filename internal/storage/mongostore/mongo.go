package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pastebox/internal/storage"
)

const collectionName = "pastes"

// Store implements storage.Store using MongoDB. View increments are a single
// $inc through FindOneAndUpdate, which returns the post-update document.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type document struct {
	ID        string     `bson:"_id"`
	Content   string     `bson:"content"`
	CreatedAt time.Time  `bson:"created_at"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	MaxViews  int        `bson:"max_views,omitempty"`
	ViewCount int        `bson:"view_count"`
}

// Open connects to uri and prepares the pastes collection in database dbName.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &Store{
		client:     client,
		collection: client.Database(dbName).Collection(collectionName),
	}
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// createIndexes adds a TTL index so the server also reaps time-expired pastes.
func (s *Store) createIndexes(ctx context.Context) error {
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// IncrementStrategy reports the atomic path.
func (s *Store) IncrementStrategy() storage.IncrementStrategy {
	return storage.StrategyAtomic
}

// Create inserts a new paste document.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	doc := document{
		ID:        paste.ID,
		Content:   paste.Content,
		CreatedAt: paste.CreatedAt.UTC(),
		MaxViews:  paste.MaxViews,
	}
	if paste.HasExpiration() {
		exp := paste.ExpiresAt.UTC()
		doc.ExpiresAt = &exp
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("insert paste: %w", err)
	}
	return nil
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	var doc document
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find paste: %w", err)
	}
	paste := &storage.Paste{
		ID:        doc.ID,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt.UTC(),
		MaxViews:  doc.MaxViews,
		ViewCount: doc.ViewCount,
	}
	if doc.ExpiresAt != nil {
		paste.ExpiresAt = doc.ExpiresAt.UTC()
	}
	return paste, nil
}

// IncrementViews applies $inc and reads back the new count in one round trip.
func (s *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"view_count": 1})

	var out struct {
		ViewCount int `bson:"view_count"`
	}
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"view_count": 1}},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return out.ViewCount, nil
}

// DeleteExpired removes pastes the TTL monitor has not reaped yet.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return int(res.DeletedCount), nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
