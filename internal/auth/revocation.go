package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RevocationStore tracks a per-user session generation. Credentials embed
// the generation current at issue time; bumping it invalidates every
// outstanding credential for that user at once.
type RevocationStore interface {
	// Generation returns the user's current session generation.
	// Users that were never revoked are at generation zero.
	Generation(ctx context.Context, uid string) (int64, error)

	// Revoke bumps the user's session generation and returns the new value.
	Revoke(ctx context.Context, uid string) (int64, error)
}

// RedisRevocationStore implements RevocationStore on Redis so revocations
// take effect across API instances.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a RevocationStore backed by the given client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func generationKey(uid string) string {
	return "auth:generation:" + uid
}

// Generation returns the user's current session generation.
func (s *RedisRevocationStore) Generation(ctx context.Context, uid string) (int64, error) {
	val, err := s.client.Get(ctx, generationKey(uid)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session generation: %w", err)
	}
	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed session generation for %s: %w", uid, err)
	}
	return gen, nil
}

// Revoke bumps the user's session generation.
func (s *RedisRevocationStore) Revoke(ctx context.Context, uid string) (int64, error) {
	gen, err := s.client.Incr(ctx, generationKey(uid)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump session generation: %w", err)
	}
	return gen, nil
}

// InMemoryRevocationStore is an in-memory implementation of RevocationStore.
// Thread-safe via RWMutex. Suitable for tests and single-instance deployments.
type InMemoryRevocationStore struct {
	mu          sync.RWMutex
	generations map[string]int64
}

// NewInMemoryRevocationStore creates a new in-memory revocation store.
func NewInMemoryRevocationStore() *InMemoryRevocationStore {
	return &InMemoryRevocationStore{generations: make(map[string]int64)}
}

// Generation returns the user's current session generation.
func (s *InMemoryRevocationStore) Generation(_ context.Context, uid string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[uid], nil
}

// Revoke bumps the user's session generation.
func (s *InMemoryRevocationStore) Revoke(_ context.Context, uid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[uid]++
	return s.generations[uid], nil
}
