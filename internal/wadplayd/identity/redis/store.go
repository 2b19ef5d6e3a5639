// Package redis persists the fallback screen identity in Redis
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyExpiry is used when no TTL is configured
const DefaultKeyExpiry = 30 * 24 * time.Hour

// ErrStoreError wraps every Redis failure surfaced by the store
var ErrStoreError = errors.New("identity store error")

// Store implements identity.Store using Redis
type Store struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewStore creates a new Redis-backed identity store. The key namespaces the
// value so several players can share one Redis.
func NewStore(client redis.Cmdable, key string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultKeyExpiry
	}
	return &Store{client: client, key: key, ttl: ttl}
}

// Load returns the persisted identifier. A missing key is not an error.
func (s *Store) Load(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return val, nil
}

// Save replaces the persisted identifier and refreshes its expiry
func (s *Store) Save(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, s.key, id, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return nil
}
