package db

import (
	"context"
	"fmt"

	"natours/internal/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	MongoClient *mongo.Client
	Mongo       *mongo.Database
)

func InitMongo(ctx context.Context, uri, database string) error {
	if uri == "" {
		uri = "mongodb://localhost:27017"
		logger.Warn("mongo_default_uri", nil)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := retry(ctx, "mongo", func() error { return client.Ping(ctx, readpref.Primary()) }); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}

	MongoClient = client
	Mongo = client.Database(database)
	return nil
}

func CloseMongo(ctx context.Context) error {
	if MongoClient == nil {
		return nil
	}
	return MongoClient.Disconnect(ctx)
}
