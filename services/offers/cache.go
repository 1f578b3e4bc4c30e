// Package offers keeps search-result snapshots so a selection always
// books the exact price the user was shown. Snapshots are immutable
// once written and unusable once expired, whichever way they expire:
// the Redis TTL evicting the key or the embedded deadline passing.
package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripbot/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSnapshotExpired means the quoted prices can no longer be trusted.
	ErrSnapshotExpired = errors.New("offer snapshot has expired")
	// ErrOfferNotFound means the id was never part of the snapshot.
	ErrOfferNotFound = errors.New("offer not found in snapshot")
)

const keyPrefix = "offers:"

// Cache stores and serves offer snapshots.
type Cache interface {
	// Put freezes a result set and returns the snapshot id.
	Put(ctx context.Context, key string, offers []models.Offer) (string, error)
	// Get returns one offer from a live snapshot.
	Get(ctx context.Context, snapshotID, offerID string) (models.Offer, error)
	// Snapshot returns the whole live snapshot.
	Snapshot(ctx context.Context, snapshotID string) (*models.OfferSnapshot, error)
	// Release drops a snapshot before its TTL runs out.
	Release(ctx context.Context, snapshotID string) error
}

// RedisCache is the production implementation, one JSON value per
// snapshot with the TTL mirroring the embedded deadline.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// NewRedisCache builds a cache with the given snapshot lifetime.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl, Logger: logger, Now: time.Now}
}

// Put freezes a result set and returns the snapshot id.
func (c *RedisCache) Put(ctx context.Context, key string, offers []models.Offer) (string, error) {
	now := c.Now()
	snap := models.OfferSnapshot{
		ID:        uuid.NewString(),
		Key:       key,
		Offers:    offers,
		CreatedAt: now,
		ExpiresAt: now.Add(c.TTL),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal offer snapshot: %w", err)
	}

	if err := c.Client.Set(ctx, keyPrefix+snap.ID, data, c.TTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store offer snapshot: %w", err)
	}

	c.Logger.Debug("offer snapshot stored",
		zap.String("snapshot_id", snap.ID), zap.Int("offers", len(offers)))
	return snap.ID, nil
}

// Snapshot returns the whole live snapshot. A missing key means Redis
// already evicted it, which callers see as an expiry.
func (c *RedisCache) Snapshot(ctx context.Context, snapshotID string) (*models.OfferSnapshot, error) {
	data, err := c.Client.Get(ctx, keyPrefix+snapshotID).Result()
	if err == redis.Nil {
		return nil, ErrSnapshotExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offer snapshot %s: %w", snapshotID, err)
	}

	var snap models.OfferSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode offer snapshot %s: %w", snapshotID, err)
	}

	if snap.Expired(c.Now()) {
		return nil, ErrSnapshotExpired
	}
	return &snap, nil
}

// Get returns one offer from a live snapshot. Expiry wins over an
// unknown offer id: a stale snapshot never reveals whether the id
// would have matched.
func (c *RedisCache) Get(ctx context.Context, snapshotID, offerID string) (models.Offer, error) {
	snap, err := c.Snapshot(ctx, snapshotID)
	if err != nil {
		return models.Offer{}, err
	}

	offer, ok := snap.Find(offerID)
	if !ok {
		return models.Offer{}, ErrOfferNotFound
	}
	return offer, nil
}

// Release drops a snapshot before its TTL runs out.
func (c *RedisCache) Release(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return nil
	}
	if err := c.Client.Del(ctx, keyPrefix+snapshotID).Err(); err != nil {
		return fmt.Errorf("failed to release offer snapshot %s: %w", snapshotID, err)
	}
	return nil
}
