package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS nitroshare;
CREATE TABLE IF NOT EXISTS nitroshare.client_state (
	namespace  text        NOT NULL,
	key        text        NOT NULL,
	data       bytea       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`

// PostgresStore keeps client state in nitroshare.client_state, one row per
// (namespace, key). Namespaces let several client profiles share a database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresStore wraps pool. The caller owns the pool lifecycle.
func NewPostgresStore(pool *pgxpool.Pool, namespace string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("persist: nil pool")
	}
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresStore{pool: pool, namespace: namespace}, nil
}

// EnsureSchema creates the state table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("persist: ensure schema: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM nitroshare.client_state
		WHERE namespace = $1 AND key = $2
	`, s.namespace, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: postgres load %s: %w", key, err)
	}
	return data, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO nitroshare.client_state (namespace, key, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, s.namespace, key, data)
	if err != nil {
		return fmt.Errorf("persist: postgres save %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM nitroshare.client_state
		WHERE namespace = $1 AND key = $2
	`, s.namespace, key)
	if err != nil {
		return fmt.Errorf("persist: postgres delete %s: %w", key, err)
	}
	return nil
}

// Close is a noop: the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
