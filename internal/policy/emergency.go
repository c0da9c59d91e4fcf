package policy

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmergencyControl is the kill-switch channel. Polled once per decision at
// the confidence-evaluation step; when active every decision is forced to
// escalate regardless of computed confidence. Deliberately separate from the
// static Rules so emergencies never mutate validated configuration.
type EmergencyControl interface {
	IsEscalateOnly(ctx context.Context) bool
}

// Switch is the in-process control, toggled by the admin endpoint.
type Switch struct {
	active atomic.Bool
}

func NewSwitch() *Switch { return &Switch{} }

func (s *Switch) Activate(_ context.Context) error {
	s.active.Store(true)
	return nil
}

func (s *Switch) Deactivate(_ context.Context) error {
	s.active.Store(false)
	return nil
}

func (s *Switch) IsEscalateOnly(_ context.Context) bool {
	return s.active.Load()
}

const (
	redisSwitchKey      = "policy:escalate_only"
	redisSwitchCacheTTL = 5 * time.Second
)

// RedisSwitch shares the kill switch across instances through a Redis key.
// Reads are cached briefly so the hot decision path does not hit Redis per
// event; a Redis outage fails closed (escalate-only).
type RedisSwitch struct {
	client *redis.Client
	logger *slog.Logger

	cached    atomic.Bool
	fetchedAt atomic.Int64 // unix nanos
}

func NewRedisSwitch(client *redis.Client, logger *slog.Logger) *RedisSwitch {
	return &RedisSwitch{client: client, logger: logger}
}

// Activate sets the shared switch; Deactivate clears it.
func (s *RedisSwitch) Activate(ctx context.Context) error {
	return s.client.Set(ctx, redisSwitchKey, "1", 0).Err()
}

func (s *RedisSwitch) Deactivate(ctx context.Context) error {
	return s.client.Del(ctx, redisSwitchKey).Err()
}

func (s *RedisSwitch) IsEscalateOnly(ctx context.Context) bool {
	if time.Now().UnixNano()-s.fetchedAt.Load() < int64(redisSwitchCacheTTL) {
		return s.cached.Load()
	}

	n, err := s.client.Exists(ctx, redisSwitchKey).Result()
	if err != nil {
		s.logger.Warn("kill switch read failed, failing closed to escalate-only", "error", err)
		return true
	}
	active := n > 0
	s.cached.Store(active)
	s.fetchedAt.Store(time.Now().UnixNano())
	return active
}
