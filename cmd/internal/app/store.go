package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"nitroshare/cmd/internal/persist"
)

// stateStore is the persistence backend plus the resources the app owns for it.
type stateStore struct {
	persist.Store
	pool *pgxpool.Pool
}

func (s stateStore) close() error {
	err := s.Store.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// openStateStore builds the configured backend, sealed when a passphrase is set.
func openStateStore(ctx context.Context, cfg StateConfig, log Logger) (stateStore, error) {
	var (
		st   persist.Store
		pool *pgxpool.Pool
	)

	switch cfg.Backend {
	case BackendMemory:
		st = persist.NewMemoryStore()

	case BackendFile:
		fs, err := persist.NewFileStore(cfg.Dir)
		if err != nil {
			return stateStore{}, err
		}
		st = fs

	case BackendRedis:
		rs, err := persist.OpenRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return stateStore{}, err
		}
		st = rs

	case BackendPostgres:
		p, err := NewDBPool(ctx, cfg)
		if err != nil {
			return stateStore{}, fmt.Errorf("state db: %w", err)
		}
		ps, err := persist.NewPostgresStore(p, cfg.Namespace)
		if err != nil {
			p.Close()
			return stateStore{}, err
		}
		if err := ps.EnsureSchema(ctx); err != nil {
			p.Close()
			return stateStore{}, err
		}
		st, pool = ps, p

	default:
		return stateStore{}, fmt.Errorf("%w: unknown state backend %q", ErrConfig, cfg.Backend)
	}

	sealed := cfg.Passphrase != ""
	if sealed {
		s, err := persist.Sealed(st, cfg.Passphrase)
		if err != nil {
			_ = st.Close()
			if pool != nil {
				pool.Close()
			}
			return stateStore{}, err
		}
		st = s
	}

	log.Info("state.open", "backend", cfg.Backend, "codec", cfg.Codec, "sealed", sealed)
	return stateStore{Store: st, pool: pool}, nil
}
