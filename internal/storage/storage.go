package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/crypto"
)

var (
	// ErrNotFound is returned when a key has no value in a browser context
	ErrNotFound = errors.New("not found")

	// ErrCorrupt is returned when a stored value cannot be read back
	ErrCorrupt = errors.New("stored value is corrupt")
)

// Key names one field of a browser context's persisted state
type Key string

const (
	KeyOAuthState  Key = "oauth_state"
	KeyOAuthNonce  Key = "oauth_nonce"
	KeyUser        Key = "user"
	KeyAccessToken Key = "access_token"
	KeyIDToken     Key = "id_token"
)

// SessionKeys are cleared together on logout or when the session is unreadable
var SessionKeys = []Key{KeyUser, KeyAccessToken, KeyIDToken}

// PendingKeys hold an authorization attempt that has not come back yet
var PendingKeys = []Key{KeyOAuthState, KeyOAuthNonce}

// Backend stores string values per browser context. A scope is the opaque
// browser context id; each scope behaves like one origin's local storage.
type Backend interface {
	Get(ctx context.Context, scope string, key Key) (string, error)
	Set(ctx context.Context, scope string, key Key, value string) error
	// Delete removes the keys. Missing keys are not an error.
	Delete(ctx context.Context, scope string, keys ...Key) error
	Close() error
}

// Sweeper is implemented by backends that need expired scopes removed
// periodically. Redis expires keys on its own and does not implement it.
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Kind selects a backend implementation
type Kind string

const (
	KindMemory    Kind = "memory"
	KindRedis     Kind = "redis"
	KindFirestore Kind = "firestore"
)

// Options configures Open
type Options struct {
	Kind Kind
	// TTL is how long an idle browser context is kept
	TTL time.Duration

	RedisURL string

	GCPProject          string
	FirestoreDatabase   string
	FirestoreCollection string

	// Encryptor, when set, encrypts session values at rest
	Encryptor crypto.Encryptor
}

// Open builds the configured backend, wrapped for encryption when an
// encryptor is supplied
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Kind {
	case KindMemory, "":
		b = NewMemoryBackend(opts.TTL)
	case KindRedis:
		var client *RedisClient
		client, err = NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		b = NewRedisBackend(client, opts.TTL)
	case KindFirestore:
		b, err = NewFirestoreBackend(ctx, opts.GCPProject, opts.FirestoreDatabase, opts.FirestoreCollection, opts.TTL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", opts.Kind)
	}

	if opts.Encryptor != nil {
		b = NewEncryptedBackend(b, opts.Encryptor)
	}
	return b, nil
}
