package searchRepo

import (
	"context"
	"fmt"
	"time"

	"tripbot/database"
	"tripbot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSearchRepo implements SearchRepository using MongoDB.
type MongoSearchRepo struct {
	coll *mongo.Collection
}

// NewMongoSearchRepo creates a new instance of SearchRepository using MongoDB.
func NewMongoSearchRepo() SearchRepository {
	repo := &MongoSearchRepo{coll: database.Collection("search_history")}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoSearchRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "searched_at", Value: -1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new search record.
func (r *MongoSearchRepo) Create(record *models.SearchRecord) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	if record.SearchedAt.IsZero() {
		record.SearchedAt = time.Now()
	}

	_, err := r.coll.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// LatestByUser retrieves the user's most recent search of the given type.
func (r *MongoSearchRepo) LatestByUser(userID int64, searchType string) (*models.SearchRecord, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"user_id": userID}
	if searchType != "" {
		filter["type"] = searchType
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "searched_at", Value: -1}})

	var record models.SearchRecord
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch latest search for user %d: %w", userID, err)
	}
	return &record, nil
}

// ListByUser retrieves a user's recent searches, newest first.
func (r *MongoSearchRepo) ListByUser(userID int64, limit int) ([]models.SearchRecord, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "searched_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches for user %d: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var records []models.SearchRecord
	for cursor.Next(ctx) {
		var rec models.SearchRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode search record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
