package intentRepo

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

// MongoIntentRepo implements IntentRepository using MongoDB.
type MongoIntentRepo struct {
	coll *mongo.Collection
}

// NewMongoIntentRepo creates a new instance of IntentRepository using MongoDB.
func NewMongoIntentRepo() IntentRepository {
	repo := &MongoIntentRepo{coll: database.Collection("payment_intents")}

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
// The partial unique index keeps a booking down to one pending intent.
func (r *MongoIntentRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "gateway_ref", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "booking_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": models.IntentPending}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	_, err := r.coll.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new intent document.
func (r *MongoIntentRepo) Create(intent *models.PaymentIntent) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, intent)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePending
		}
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	return nil
}

// GetByID retrieves an intent by its id.
func (r *MongoIntentRepo) GetByID(id string) (*models.PaymentIntent, error) {
	return r.getOne(bson.M{"id": id})
}

// GetByGatewayRef retrieves an intent by the gateway's transaction ref.
func (r *MongoIntentRepo) GetByGatewayRef(ref string) (*models.PaymentIntent, error) {
	return r.getOne(bson.M{"gateway_ref": ref})
}

// GetPendingByBookingID retrieves the booking's pending intent, if any.
// Returns nil when the booking has no open intent.
func (r *MongoIntentRepo) GetPendingByBookingID(bookingID string) (*models.PaymentIntent, error) {
	intent, err := r.getOne(bson.M{"booking_id": bookingID, "status": models.IntentPending})
	if err == ErrNotFound {
		return nil, nil
	}
	return intent, err
}

func (r *MongoIntentRepo) getOne(filter bson.M) (*models.PaymentIntent, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var intent models.PaymentIntent
	if err := r.coll.FindOne(ctx, filter).Decode(&intent); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
	}
	return &intent, nil
}

// Resolve compare-and-sets a pending intent to a terminal status.
func (r *MongoIntentRepo) Resolve(id, to string) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id, "status": models.IntentPending}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}}

	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to resolve payment intent %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.M{"id": id})
		if err != nil {
			return fmt.Errorf("failed to check payment intent %s: %w", id, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrNotPending
	}
	return nil
}

// ListPendingBefore returns pending intents created before the cutoff,
// oldest first, for the gateway poller.
func (r *MongoIntentRepo) ListPendingBefore(cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{"status": models.IntentPending, "created_at": bson.M{"$lt": cutoff}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}
	defer cursor.Close(ctx)

	var intents []models.PaymentIntent
	for cursor.Next(ctx) {
		var in models.PaymentIntent
		if err := cursor.Decode(&in); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// IncrementPolls bumps the gateway poll counter.
func (r *MongoIntentRepo) IncrementPolls(id string) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	update := bson.M{
		"$inc": bson.M{"polls": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}
	result, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to count poll on intent %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
