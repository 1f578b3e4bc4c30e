package alertRepo

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

// MongoAlertRepo implements AlertRepository using MongoDB.
type MongoAlertRepo struct {
	coll *mongo.Collection
}

// NewMongoAlertRepo creates a new instance of AlertRepository using MongoDB.
func NewMongoAlertRepo() AlertRepository {
	repo := &MongoAlertRepo{coll: database.Collection("price_alerts")}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ensureIndexes creates indexes for fields frequently used in queries.
func (r *MongoAlertRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new alert document.
func (r *MongoAlertRepo) Create(alert *models.PriceAlert) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	alert.CreatedAt = time.Now()

	_, err := r.coll.InsertOne(ctx, alert)
	if err != nil {
		return fmt.Errorf("failed to create price alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its id.
func (r *MongoAlertRepo) GetByID(id string) (*models.PriceAlert, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var alert models.PriceAlert
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&alert); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch price alert %s: %w", id, err)
	}
	return &alert, nil
}

// ListByUser retrieves a user's alerts, newest first.
func (r *MongoAlertRepo) ListByUser(userID int64, limit int) ([]models.PriceAlert, error) {
	filter := bson.M{"user_id": userID}
	sort := bson.D{{Key: "created_at", Value: -1}}
	return r.list(filter, sort, limit)
}

// ListActive returns active alerts for a monitoring pass, oldest first
// so long-waiting alerts are checked before fresh ones.
func (r *MongoAlertRepo) ListActive(limit int) ([]models.PriceAlert, error) {
	filter := bson.M{"status": models.AlertActive}
	sort := bson.D{{Key: "created_at", Value: 1}}
	return r.list(filter, sort, limit)
}

func (r *MongoAlertRepo) list(filter bson.M, sort bson.D, limit int) ([]models.PriceAlert, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list price alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []models.PriceAlert
	for cursor.Next(ctx) {
		var a models.PriceAlert
		if err := cursor.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode price alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// CountActive returns how many active alerts the user holds.
func (r *MongoAlertRepo) CountActive(userID int64) (int64, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	count, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID, "status": models.AlertActive})
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts for user %d: %w", userID, err)
	}
	return count, nil
}

// SetCurrentPrice records the cheapest price seen on the last check.
func (r *MongoAlertRepo) SetCurrentPrice(id string, price float64) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"current_price": price}}
	result, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update current price on alert %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTriggered compare-and-sets active → triggered. Exactly one caller
// can win this update for a given alert.
func (r *MongoAlertRepo) MarkTriggered(id string, price float64) error {
	now := time.Now()
	return r.transition(id, nil, bson.M{
		"status":        models.AlertTriggered,
		"current_price": price,
		"triggered_at":  now,
	})
}

// MarkExpired compare-and-sets active → expired.
func (r *MongoAlertRepo) MarkExpired(id string) error {
	return r.transition(id, nil, bson.M{"status": models.AlertExpired})
}

// Cancel compare-and-sets the user's active alert to cancelled.
func (r *MongoAlertRepo) Cancel(id string, userID int64) error {
	return r.transition(id, bson.M{"user_id": userID}, bson.M{"status": models.AlertCancelled})
}

func (r *MongoAlertRepo) transition(id string, extra bson.M, set bson.M) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id, "status": models.AlertActive}
	for k, v := range extra {
		filter[k] = v
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to transition alert %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.M{"id": id})
		if err != nil {
			return fmt.Errorf("failed to check alert %s: %w", id, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrNotActive
	}
	return nil
}
