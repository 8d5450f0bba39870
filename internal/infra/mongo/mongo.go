package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/linkpulse/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultDialTimeout        = 10 * time.Second
	serverSelectionTimeout    = 5 * time.Second
	socketTimeout             = 45 * time.Second
	heartbeatInterval         = 10 * time.Second
	maxPoolSize        uint64 = 10
	minPoolSize        uint64 = 1
	maxConnIdleTime           = 30 * time.Second
)

// Connect opens the single shared client for the configured deployment and
// verifies it with a ping. The driver keeps a pool behind the client and
// re-dials dropped connections on its own, so callers hold on to the client
// for the life of the process.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, fmt.Errorf("mongo: connection string is empty")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetAppName("linkpulse").
		SetConnectTimeout(defaultDialTimeout).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetSocketTimeout(socketTimeout).
		SetHeartbeatInterval(heartbeatInterval).
		SetMaxPoolSize(maxPoolSize).
		SetMinPoolSize(minPoolSize).
		SetMaxConnIdleTime(maxConnIdleTime).
		SetRetryWrites(true).
		SetRetryReads(true)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("mongo: invalid connection string: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return client, nil
}
