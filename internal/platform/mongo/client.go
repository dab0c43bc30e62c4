package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"praman/internal/platform/config"
	"praman/internal/platform/retry"
)

// Client wraps a connected mongo client and the configured database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// New connects to MongoDB and waits for a primary to answer ping.
// Returns nil if the URI is empty.
func New(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if _, err := retry.Connect(ctx, logger, "mongodb", retry.DefaultMaxElapsed, func(ctx context.Context) (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx, readpref.Primary())
	}); err != nil {
		_ = client.Disconnect(context.Background()) //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Client{client: client, database: client.Database(cfg.Database)}, nil
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Health checks if the primary is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("mongodb not configured")
	}
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}
