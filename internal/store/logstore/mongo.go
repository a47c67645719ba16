// Package logstore implements the append-only diagnostic log on MongoDB.
//
// Log entries carry a plain task_id field with no referential constraint;
// the log store is never load-bearing for control flow.
package logstore

import (
	"context"
	"fmt"
	"time"

	"agenthub/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDatabase = "agenthub"
	collectionName  = "agent_logs"
)

// Client wraps a MongoDB connection scoped to the agent log collection.
type Client struct {
	client *mongo.Client
	logs   *mongo.Collection
}

type logDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	AgentID   string             `bson:"agent_id"`
	TaskID    *int64             `bson:"task_id,omitempty"`
	Level     string             `bson:"level"`
	Message   string             `bson:"message"`
	Metadata  map[string]any     `bson:"metadata,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
}

// New connects to MongoDB, verifies the connection and ensures the log
// indexes exist.
func New(ctx context.Context, uri string) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, store.Unavailablef("ping mongodb: %v", err)
	}

	logs := client.Database(defaultDatabase).Collection(collectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "agent_id", Value: 1}}},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "level", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := logs.Indexes().CreateMany(connectCtx, indexes); err != nil {
		return nil, store.Unavailablef("create log indexes: %v", err)
	}

	return &Client{client: client, logs: logs}, nil
}

// AppendLog writes one entry.
func (c *Client) AppendLog(ctx context.Context, entry store.LogEntry) error {
	doc := logDocument{
		AgentID:   entry.AgentID,
		TaskID:    entry.TaskID,
		Level:     string(entry.Level),
		Message:   entry.Message,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := c.logs.InsertOne(ctx, doc); err != nil {
		return store.Unavailablef("append log: %v", err)
	}
	return nil
}

// ListLogs returns recent entries, newest first.
func (c *Client) ListLogs(ctx context.Context, limit int) ([]store.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := c.logs.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, store.Unavailablef("list logs: %v", err)
	}
	defer cursor.Close(ctx)

	var entries []store.LogEntry
	for cursor.Next(ctx) {
		var doc logDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, store.Unavailablef("decode log: %v", err)
		}
		entries = append(entries, store.LogEntry{
			ID:        doc.ID.Hex(),
			AgentID:   doc.AgentID,
			TaskID:    doc.TaskID,
			Level:     store.LogLevel(doc.Level),
			Message:   doc.Message,
			Metadata:  doc.Metadata,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, store.Unavailablef("list logs: cursor: %v", err)
	}
	return entries, nil
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
