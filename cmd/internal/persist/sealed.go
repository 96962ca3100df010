package persist

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealed is returned when sealed data cannot be opened (wrong passphrase,
// tampering, or data moved between keys).
var ErrSealed = errors.New("persist: sealed data rejected")

var sealedMagic = []byte("NSS1")

const (
	sealedSaltLen = 16

	// Argon2id parameters (OWASP minimum profile).
	sealedArgonTime    = 2
	sealedArgonMemory  = 19 * 1024
	sealedArgonThreads = 1
)

// SealedStore encrypts values with XChaCha20-Poly1305 before handing them to
// the wrapped Store. Each value gets a fresh salt and nonce; the key name is
// bound as associated data.
//
// Layout: magic(4) | salt(16) | nonce(24) | ciphertext.
type SealedStore struct {
	inner      Store
	passphrase []byte
}

// Sealed wraps inner. passphrase must be non-empty.
func Sealed(inner Store, passphrase string) (*SealedStore, error) {
	if inner == nil {
		return nil, errors.New("persist: nil store")
	}
	if passphrase == "" {
		return nil, errors.New("persist: empty passphrase")
	}
	return &SealedStore{inner: inner, passphrase: []byte(passphrase)}, nil
}

func (s *SealedStore) key(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, sealedArgonTime, sealedArgonMemory, sealedArgonThreads, chacha20poly1305.KeySize)
}

// Load implements Store.
func (s *SealedStore) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	head := len(sealedMagic) + sealedSaltLen + chacha20poly1305.NonceSizeX
	if len(blob) < head+chacha20poly1305.Overhead || !bytes.Equal(blob[:len(sealedMagic)], sealedMagic) {
		return nil, ErrSealed
	}
	salt := blob[len(sealedMagic) : len(sealedMagic)+sealedSaltLen]
	nonce := blob[len(sealedMagic)+sealedSaltLen : head]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, blob[head:], []byte(key))
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

// Save implements Store.
func (s *SealedStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	salt := make([]byte, sealedSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("persist: salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("persist: nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return err
	}

	blob := make([]byte, 0, len(sealedMagic)+len(salt)+len(nonce)+len(data)+aead.Overhead())
	blob = append(blob, sealedMagic...)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, data, []byte(key))

	return s.inner.Save(ctx, key, blob)
}

// Delete implements Store.
func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Close closes the wrapped store.
func (s *SealedStore) Close() error { return s.inner.Close() }
