package persist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var (
	// ErrNotFound is returned by Store.Load when nothing is stored under the key.
	ErrNotFound = errors.New("persist: not found")

	// ErrInvalidKey is returned for keys outside [a-z0-9_-]{1,64}.
	ErrInvalidKey = errors.New("persist: invalid key")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateKey reports whether key can be used with every Store implementation.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Store is a durable key/value backend for client state.
type Store interface {
	// Load returns the bytes stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the bytes stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources owned by the store.
	Close() error
}

// MemoryStore is a process-local Store for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close implements Store (noop).
func (s *MemoryStore) Close() error { return nil }
