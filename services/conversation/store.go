package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tripbot/models"

	"github.com/go-redis/redis/v8"
)

const activeSetKey = "sessions:active"

// Store persists conversation sessions between messages.
type Store interface {
	// Get returns the user's session, or nil when the user is idle.
	Get(ctx context.Context, userID int64) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, userID int64) error
	// ActiveUsers lists users with a (possibly stale) session entry.
	ActiveUsers(ctx context.Context) ([]int64, error)
}

// RedisStore keeps sessions as JSON blobs keyed by user, with a set index
// the idle sweeper scans. The key TTL sits well past the idle window and
// only guards against leaks if the sweeper falls behind.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(client *redis.Client, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{Client: client, TTL: 4 * idleTimeout}
}

func sessionKey(userID int64) string {
	return "session:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (*models.Session, error) {
	data, err := s.Client.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Criteria == nil {
		session.Criteria = map[string]string{}
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.UserID), data, s.TTL)
	pipe.SAdd(ctx, activeSetKey, session.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, sessionKey(userID))
	pipe.SRem(ctx, activeSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) ActiveUsers(ctx context.Context) ([]int64, error) {
	members, err := s.Client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	users := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users, nil
}
