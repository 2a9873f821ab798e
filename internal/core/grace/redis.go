package grace

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists exit timestamps so open exit windows survive a
// process restart.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID, sessionID string) (time.Time, bool, error) {
	value, err := s.client.Get(ctx, redisExitKey(userID, sessionID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	exitAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return exitAt, true, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, sessionID string, exitAt time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, redisExitKey(userID, sessionID), exitAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, userID, sessionID string) error {
	return s.client.Del(ctx, redisExitKey(userID, sessionID)).Err()
}

func redisExitKey(userID, sessionID string) string {
	return "exit-grace:" + sessionID + ":" + userID
}
