package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sfex/internal/constants"
)

// NotifyGuard deduplicates outbound discrepancy notifications across
// message redeliveries. The archive write is idempotent on its own, but
// an email is not, so the first successful claim on a correlation id
// wins and redeliveries stay silent. A claim taken before a publish
// that then fails must be released, or the redelivery would skip the
// notification entirely.
type NotifyGuard interface {
	Claim(ctx context.Context, correlationID string) (bool, error)
	Release(ctx context.Context, correlationID string) error
}

type RedisNotifyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNotifyGuard(client *redis.Client, ttlSeconds int) *RedisNotifyGuard {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultNotifyGuardTTLSeconds
	}
	return &RedisNotifyGuard{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (g *RedisNotifyGuard) Claim(ctx context.Context, correlationID string) (bool, error) {
	key := constants.NotifyGuardKeyPrefix + correlationID
	claimed, err := g.client.SetNX(ctx, key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return claimed, nil
}

func (g *RedisNotifyGuard) Release(ctx context.Context, correlationID string) error {
	key := constants.NotifyGuardKeyPrefix + correlationID
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}
