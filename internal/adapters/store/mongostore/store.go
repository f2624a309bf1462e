// Package mongostore writes metrics records to a MongoDB collection, one
// document per request id.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

const collectionName = "reading_metrics"

type replacer interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Store implements ports.MetricsStore.
type Store struct {
	client *mongo.Client
	coll   replacer
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collectionName)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create metrics index: %w", err)
	}
	return &Store{client: client, coll: coll}, nil
}

// SaveMetrics replaces the document for the request id, inserting it on
// first save.
func (s *Store) SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.RequestID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save metrics %s: %w", rec.RequestID, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
