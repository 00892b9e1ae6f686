package health

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisCheckerHoldsClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	checker := NewRedisChecker(client)
	if checker.client != client {
		t.Error("checker does not hold the provided client")
	}
}

func TestRedisCheckerCancelledContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	checker := NewRedisChecker(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck should fail with a cancelled context")
	}
}
