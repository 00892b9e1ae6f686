// Package health probes the external dependencies behind the readiness
// endpoint: the Postgres event store and the Redis revocation store.
package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker reports whether the Redis revocation store answers.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a checker over the revocation store's client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
