package transcript

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder implements Recorder using MongoDB.
type MongoRecorder struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// DialMongo connects to uri and returns a recorder writing to db.collection.
// collectionName defaults to "transcripts" if empty.
func DialMongo(ctx context.Context, uri, db, collectionName string) (*MongoRecorder, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("transcript: connect mongodb: %w", err)
	}

	r := NewMongoRecorder(client.Database(db), collectionName)
	r.client = client
	return r, nil
}

// NewMongoRecorder creates a MongoRecorder on an existing database handle.
func NewMongoRecorder(db *mongo.Database, collectionName string) *MongoRecorder {
	if collectionName == "" {
		collectionName = "transcripts"
	}
	return &MongoRecorder{
		collection: db.Collection(collectionName),
	}
}

func (r *MongoRecorder) Record(ctx context.Context, ex Exchange) error {
	if _, err := r.collection.InsertOne(ctx, ex); err != nil {
		return fmt.Errorf("transcript: insert exchange %q: %w", ex.ID, err)
	}
	return nil
}

func (r *MongoRecorder) List(ctx context.Context, sessionID string) ([]Exchange, error) {
	filter := bson.M{"session_id": sessionID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("transcript: find session %q: %w", sessionID, err)
	}

	out := []Exchange{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("transcript: decode session %q: %w", sessionID, err)
	}

	return out, nil
}

// Close disconnects the client when the recorder owns it.
func (r *MongoRecorder) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("transcript: disconnect mongodb: %w", err)
	}
	return nil
}
