package storage

import (
	"context"
	"fmt"

	"github.com/pingdaily/ping-daily-web/internal/crypto"
)

// EncryptedBackend encrypts session values before they reach the wrapped
// backend. Pending state and nonce are stored as-is.
type EncryptedBackend struct {
	inner     Backend
	encryptor crypto.Encryptor
}

var _ Backend = (*EncryptedBackend)(nil)

func NewEncryptedBackend(inner Backend, encryptor crypto.Encryptor) *EncryptedBackend {
	return &EncryptedBackend{inner: inner, encryptor: encryptor}
}

func sealed(key Key) bool {
	switch key {
	case KeyUser, KeyAccessToken, KeyIDToken:
		return true
	}
	return false
}

func (e *EncryptedBackend) Get(ctx context.Context, scope string, key Key) (string, error) {
	v, err := e.inner.Get(ctx, scope, key)
	if err != nil || !sealed(key) {
		return v, err
	}
	plain, err := e.encryptor.Decrypt(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return plain, nil
}

func (e *EncryptedBackend) Set(ctx context.Context, scope string, key Key, value string) error {
	if sealed(key) {
		enc, err := e.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypting %s: %w", key, err)
		}
		value = enc
	}
	return e.inner.Set(ctx, scope, key, value)
}

func (e *EncryptedBackend) Delete(ctx context.Context, scope string, keys ...Key) error {
	return e.inner.Delete(ctx, scope, keys...)
}

// CleanupExpired forwards to the wrapped backend when it sweeps
func (e *EncryptedBackend) CleanupExpired(ctx context.Context) (int, error) {
	if s, ok := e.inner.(Sweeper); ok {
		return s.CleanupExpired(ctx)
	}
	return 0, nil
}

// Health forwards to the wrapped backend when it can report health
func (e *EncryptedBackend) Health(ctx context.Context) error {
	if h, ok := e.inner.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

func (e *EncryptedBackend) Close() error {
	return e.inner.Close()
}
