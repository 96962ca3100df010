package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces state keys in a shared Redis.
const DefaultRedisPrefix = "nitroshare:state:"

// RedisStore keeps client state in Redis string keys.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedisStore wraps an existing client. The caller keeps ownership of rdb.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// OpenRedisStore dials the Redis at url (redis://...) and checks connectivity.
// The returned store owns the client and closes it on Close.
func OpenRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("persist: parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("persist: redis ping: %w", err)
	}

	s := NewRedisStore(rdb, prefix)
	s.owned = true
	return s, nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: redis get %s: %w", key, err)
	}
	return b, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("persist: redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("persist: redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the client when the store owns it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
