package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// saveTimeout bounds a single change-triggered save.
const saveTimeout = 5 * time.Second

// Persistable is store state that can tell when it holds nothing.
type Persistable interface {
	Empty() bool
}

// Source publishes state changes.
type Source[T any] interface {
	Subscribe(fn func(T))
}

// Binding persists one state type under one key.
type Binding[T Persistable] struct {
	store Store
	codec Codec
	key   string
	log   *slog.Logger
}

// Bind constructs a Binding. A nil codec means JSON.
func Bind[T Persistable](store Store, codec Codec, key string, log *slog.Logger) (*Binding[T], error) {
	if store == nil {
		return nil, errors.New("persist: nil store")
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if codec == nil {
		codec = JSON
	}
	if log == nil {
		log = slog.Default()
	}
	return &Binding[T]{store: store, codec: codec, key: key, log: log}, nil
}

// Key returns the storage key.
func (b *Binding[T]) Key() string { return b.key }

// Load reads the persisted value. A missing key yields the zero value and
// found=false. Undecodable data is logged, deleted, and treated as missing so
// a corrupt file never blocks startup. Sealed data that cannot be opened is
// treated as missing but left in place.
func (b *Binding[T]) Load(ctx context.Context) (v T, found bool, err error) {
	data, err := b.store.Load(ctx, b.key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if errors.Is(err, ErrSealed) {
		// Kept on disk: a mistyped passphrase must not destroy the data.
		b.log.Warn("persist.load.sealed", "key", b.key, "err", err)
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}

	if err := b.codec.Unmarshal(data, &v); err != nil {
		var zero T
		b.discard(ctx, err)
		return zero, false, nil
	}
	return v, true, nil
}

// Save writes v, or deletes the key when v is empty.
func (b *Binding[T]) Save(ctx context.Context, v T) error {
	if v.Empty() {
		return b.store.Delete(ctx, b.key)
	}

	data, err := b.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", b.key, err)
	}
	return b.store.Save(ctx, b.key, data)
}

// Attach saves every state src publishes. Save failures are logged; the
// in-memory state stays authoritative.
func (b *Binding[T]) Attach(src Source[T]) {
	src.Subscribe(func(v T) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		if err := b.Save(ctx, v); err != nil {
			b.log.Warn("persist.save.fail", "key", b.key, "err", err)
			return
		}
		b.log.Debug("persist.save", "key", b.key, "empty", v.Empty())
	})
}

func (b *Binding[T]) discard(ctx context.Context, cause error) {
	b.log.Warn("persist.load.discard", "key", b.key, "codec", b.codec.Name(), "err", cause)
	if err := b.store.Delete(ctx, b.key); err != nil {
		b.log.Warn("persist.delete.fail", "key", b.key, "err", err)
	}
}
