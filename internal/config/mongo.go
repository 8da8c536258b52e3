package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"museum-discovery/internal/index"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config, registry *index.Registry) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	err = createIndexes(client, cfg.DBName, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string, registry *index.Registry) error {
	db := client.Database(dbName)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, name := range registry.Names() {
		meta, _ := registry.Lookup(name)
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, documentIndexes(meta)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Terms collection indexes for suggest and fuzzy lookup
	termIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "suggest", Value: 1}}},
		{Keys: bson.D{{Key: "index", Value: 1}, {Key: "field", Value: 1}}},
		{Keys: bson.D{{Key: "value", Value: 1}}},
	}
	if _, err := db.Collection(index.Terms).Indexes().CreateMany(ctx, termIndexes); err != nil {
		return fmt.Errorf("%s: %w", index.Terms, err)
	}

	return nil
}

func documentIndexes(meta index.Meta) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sourceId", Value: 1}}},
		{Keys: bson.D{{Key: "ingestedAt", Value: -1}}},
		{Keys: bson.D{{Key: "sortPriority", Value: -1}, {Key: "startYear", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "image.dominantColors.l", Value: 1}}},
	}

	for _, field := range meta.Aggregations {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}

	if len(meta.TextWeights) > 0 {
		fields := make([]string, 0, len(meta.TextWeights))
		for f := range meta.TextWeights {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		keys := bson.D{}
		weights := bson.D{}
		for _, f := range fields {
			keys = append(keys, bson.E{Key: f, Value: "text"})
			weights = append(weights, bson.E{Key: f, Value: meta.TextWeights[f]})
		}
		models = append(models, mongo.IndexModel{
			Keys: keys,
			Options: options.Index().
				SetName(meta.Name + "_text").
				SetWeights(weights).
				SetDefaultLanguage("english"),
		})
	}

	return models
}
