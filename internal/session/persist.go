package session

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// LastUIDStore persists the most recently signed-in uid so a restarted
// manager can restore the session instead of bootstrapping a new one.
type LastUIDStore interface {
	// Save records the uid.
	Save(ctx context.Context, uid string) error

	// Load returns the recorded uid, or "" when none is recorded.
	Load(ctx context.Context) (string, error)

	// Clear forgets the recorded uid.
	Clear(ctx context.Context) error
}

// RedisLastUIDStore persists the last uid in Redis under a per-client
// key. Entries have no TTL; Clear is the only way out.
type RedisLastUIDStore struct {
	client *redis.Client
	key    string
}

// NewRedisLastUIDStore creates a store writing under the given key,
// typically "session:last_uid:<client id>".
func NewRedisLastUIDStore(client *redis.Client, key string) *RedisLastUIDStore {
	return &RedisLastUIDStore{client: client, key: key}
}

// Save records the uid.
func (s *RedisLastUIDStore) Save(ctx context.Context, uid string) error {
	return s.client.Set(ctx, s.key, uid, 0).Err()
}

// Load returns the recorded uid, or "" when none is recorded.
func (s *RedisLastUIDStore) Load(ctx context.Context) (string, error) {
	uid, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return uid, nil
}

// Clear forgets the recorded uid.
func (s *RedisLastUIDStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// InMemoryLastUIDStore is an in-memory LastUIDStore for tests and
// single-process deployments.
type InMemoryLastUIDStore struct {
	mu  sync.Mutex
	uid string
}

// NewInMemoryLastUIDStore creates an empty in-memory store.
func NewInMemoryLastUIDStore() *InMemoryLastUIDStore {
	return &InMemoryLastUIDStore{}
}

// Save records the uid.
func (s *InMemoryLastUIDStore) Save(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = uid
	return nil
}

// Load returns the recorded uid, or "" when none is recorded.
func (s *InMemoryLastUIDStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid, nil
}

// Clear forgets the recorded uid.
func (s *InMemoryLastUIDStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uid = ""
	return nil
}
