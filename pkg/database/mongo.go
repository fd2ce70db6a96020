package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/assignment-tracker-api/pkg/config"
)

// Collection names shared by the Mongo stores.
const (
	CollectionAssignments = "assignments"
	CollectionApplicants  = "applicants"
	CollectionTracks      = "assignment_tracks"
)

// NewMongo connects to MongoDB and returns the configured database handle.
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, client.Database(cfg.Database), nil
}

// EnsureMongoIndexes creates the unique entry key and lookup indexes.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	tracks := db.Collection(CollectionTracks)
	_, err := tracks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "applicant_id", Value: 1}, {Key: "assignment_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "assignment_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure track indexes: %w", err)
	}

	applicants := db.Collection(CollectionApplicants)
	if _, err := applicants.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "group_tags", Value: 1}}}); err != nil {
		return fmt.Errorf("ensure applicant indexes: %w", err)
	}

	assignments := db.Collection(CollectionAssignments)
	if _, err := assignments.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}); err != nil {
		return fmt.Errorf("ensure assignment indexes: %w", err)
	}
	return nil
}
