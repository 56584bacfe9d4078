package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "farewatch:dedupe:"

// RedisGate suppresses fingerprints using a Redis key with TTL. The TTL
// carries the suppression window, so no pruning pass is needed.
type RedisGate struct {
	client *redis.Client
	window time.Duration
}

// NewRedisGate wires a Redis client into a gate.
func NewRedisGate(client *redis.Client, window time.Duration) *RedisGate {
	return &RedisGate{client: client, window: window}
}

// ShouldEmit atomically claims the fingerprint for the suppression window.
func (g *RedisGate) ShouldEmit(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	claimed, err := g.client.SetNX(ctx, redisKeyPrefix+fingerprint, now.UTC().Format(time.RFC3339), g.window).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedupe key: %w", err)
	}
	return claimed, nil
}

var _ Gate = (*RedisGate)(nil)
