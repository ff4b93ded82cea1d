package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/types"
)

// MongoArchive mirrors merged thread records into a MongoDB collection.
// It is write-behind: the per-thread JSON file stays the owner of thread
// state, and archive failures are reported but never block a scrape.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoArchive connects to the configured MongoDB instance.
func NewMongoArchive(cfg config.MongoConfig, logger *slog.Logger) (*MongoArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoArchive{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With("component", "mongo_archive"),
	}, nil
}

// Upsert replaces the archived copy of the record, keyed by thread id.
func (a *MongoArchive) Upsert(ctx context.Context, record *types.ThreadRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := a.collection.ReplaceOne(ctx,
		bson.M{"thread_id": record.ThreadID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb upsert: %w", err)
	}

	a.logger.Debug("record archived", "thread_id", record.ThreadID, "comments", len(record.Comments))
	return nil
}

// Close disconnects from MongoDB.
func (a *MongoArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}
