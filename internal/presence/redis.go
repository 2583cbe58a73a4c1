package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lastSeenPrefix = "presence:lastseen:" // presence:lastseen:{userId} -> RFC3339Nano timestamp
	lastSeenTTL    = 30 * 24 * time.Hour
)

// RedisLastSeen keeps last-seen timestamps in Redis so they survive process
// restarts.
type RedisLastSeen struct {
	rdb *redis.Client
}

func NewRedisLastSeen(rdb *redis.Client) *RedisLastSeen {
	return &RedisLastSeen{rdb: rdb}
}

func (s *RedisLastSeen) Touch(ctx context.Context, userID uuid.UUID, t time.Time) error {
	key := lastSeenPrefix + userID.String()
	if err := s.rdb.Set(ctx, key, t.UTC().Format(time.RFC3339Nano), lastSeenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store last-seen: %w", err)
	}
	return nil
}

func (s *RedisLastSeen) Get(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	key := lastSeenPrefix + userID.String()
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last-seen: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed last-seen value: %w", err)
	}
	return ts, true, nil
}
