package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/types"
)

// MongoMirror keeps a queryable copy of every exported post in a MongoDB
// collection, alongside the WXR chunk files. Comments are embedded in their
// post document.
type MongoMirror struct {
	client     *mongo.Client
	collection *mongo.Collection
	count      int
	logger     *slog.Logger
}

// NewMongoMirror connects to MongoDB and returns a mirror backend.
func NewMongoMirror(cfg *config.MirrorConfig, logger *slog.Logger) (*MongoMirror, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoMirror{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With("component", "mongo_mirror"),
	}, nil
}

// Store inserts posts with embedded comments.
func (m *MongoMirror) Store(ctx context.Context, posts []*types.Post) error {
	if len(posts) == 0 {
		return nil
	}

	docs := make([]any, len(posts))
	for i, post := range posts {
		comments := make([]map[string]any, len(post.Comments))
		for j, c := range post.Comments {
			comments[j] = map[string]any{
				"id":                  c.ID,
				"post_id":             c.PostID,
				"parent_id":           c.ParentID,
				"author":              c.Author,
				"author_profile_link": c.AuthorProfileLink,
				"date":                c.Date,
				"link":                c.Link,
				"text":                c.Text,
			}
		}
		docs[i] = map[string]any{
			"title":       post.Title,
			"link":        post.Link,
			"date":        post.Date,
			"content":     post.Content,
			"comments":    comments,
			"mirrored_at": time.Now(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	m.count += len(posts)
	m.logger.Debug("posts mirrored", "count", len(posts), "total", m.count)
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoMirror) Close(ctx context.Context) error {
	m.logger.Info("mirror closing", "total_posts", m.count)
	return m.client.Disconnect(ctx)
}
