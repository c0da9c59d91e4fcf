package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"riskgate/pkg/sentinel"
)

// RedisIndex maps event ids to chain sequence numbers for fast lookup.
// Purely auxiliary: losing it costs lookup speed, never trust — verification
// always walks the chain itself.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client, prefix: "audit:event:"}
}

func (i *RedisIndex) Put(ctx context.Context, eventID string, sequenceNo uint64) error {
	// NX keeps the first mapping; a retried batch must not remap an event.
	if err := i.client.SetNX(ctx, i.prefix+eventID, sequenceNo, 0).Err(); err != nil {
		return fmt.Errorf("index audit record: %w", err)
	}
	return nil
}

func (i *RedisIndex) Lookup(ctx context.Context, eventID string) (uint64, error) {
	val, err := i.client.Get(ctx, i.prefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup audit index: %w", err)
	}
	seq, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt audit index entry for %s: %w", eventID, err)
	}
	return seq, nil
}
