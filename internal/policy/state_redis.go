package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter keys expire after two days so stale day buckets clean themselves up.
const actionKeyTTL = 48 * time.Hour

// RedisStateStore keeps rolling state in Redis so quota and streak
// enforcement stays global across instances. INCR/DECR are atomic server-side,
// which is the per-user serialization the policy layer requires.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func actionKey(userID, day string) string {
	return fmt.Sprintf("policy:actions:%s:%s", userID, day)
}

func streakKey(userID string) string {
	return fmt.Sprintf("policy:streak:%s", userID)
}

func (s *RedisStateStore) IncrementActions(ctx context.Context, userID, day string) (int, error) {
	key := actionKey(userID, day)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, actionKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment daily actions: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStateStore) DecrementActions(ctx context.Context, userID, day string) error {
	if err := s.client.Decr(ctx, actionKey(userID, day)).Err(); err != nil {
		return fmt.Errorf("release action claim: %w", err)
	}
	return nil
}

func (s *RedisStateStore) ActionsToday(ctx context.Context, userID, day string) (int, error) {
	n, err := s.client.Get(ctx, actionKey(userID, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daily actions: %w", err)
	}
	return n, nil
}

func (s *RedisStateStore) BumpStreak(ctx context.Context, userID string, highRisk bool) (int, error) {
	if !highRisk {
		n, err := s.client.Get(ctx, streakKey(userID)).Int()
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read streak: %w", err)
		}
		return n, nil
	}
	n, err := s.client.Incr(ctx, streakKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("bump streak: %w", err)
	}
	return int(n), nil
}

func (s *RedisStateStore) ResetStreak(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, streakKey(userID)).Err(); err != nil {
		return fmt.Errorf("reset streak: %w", err)
	}
	return nil
}
