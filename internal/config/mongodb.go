package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds connection settings for the archival store:
// raw-frame history and command audit trail, both written off the hot
// dispatch path.
type MongoConfig struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

func NewMongoConfig() *MongoConfig {
	// Check if we're in test mode
	testMode := strings.ToLower(os.Getenv("TEST_MODE")) == "true"

	uri := getEnv("MONGODB_URI", "")
	if uri == "" && !testMode {
		log.Fatal("MONGODB_URI environment variable is required when not in test mode")
	}

	return &MongoConfig{
		URI:            uri,
		Database:       getEnv("MONGODB_DATABASE", "gt06gateway"),
		MaxPoolSize:    uint64(getEnvInt("MONGODB_MAX_POOL_SIZE", 50)),
		ConnectTimeout: time.Duration(getEnvInt("MONGODB_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

// ConnectMongoDB dials the archival store, sized for a gateway writing a
// steady trickle of frame and command-audit documents rather than
// serving interactive queries: a modest pool and a generous connect
// timeout so a slow archival database degrades gracefully instead of
// blocking the dispatch path that also calls this at startup.
func ConnectMongoDB(cfg *MongoConfig) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("MongoDB URI not provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	log.Printf("Attempting to connect to MongoDB at: %s", cfg.URI)

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Printf("Successfully connected to MongoDB database: %s (pool size %d)", cfg.Database, cfg.MaxPoolSize)
	return client.Database(cfg.Database), nil
}