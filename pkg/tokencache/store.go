package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrStoreUnavailable indicates the distributed backend could not be
// reached. The store does not retry; retry policy belongs to the redis
// client configuration.
var ErrStoreUnavailable = errors.New("token store unavailable")

// BlobStore is the storage contract the token cache adapter persists
// through. Get reports absence as (nil, false, nil), not an error.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// ProtectedStore is a BlobStore over redis with encryption at rest.
// Every value is protected before it reaches the wire and unprotected
// after retrieval; the backend only ever sees ciphertext. Per-key
// atomicity and last-write-wins semantics are delegated to redis.
type ProtectedStore struct {
	client    *redis.Client
	protector *Protector
	ttl       time.Duration
}

// NewProtectedStore creates a ProtectedStore. ttl of zero stores entries
// without expiry, leaving eviction entirely to the backend policy.
func NewProtectedStore(client *redis.Client, protector *Protector, ttl time.Duration) *ProtectedStore {
	return &ProtectedStore{
		client:    client,
		protector: protector,
		ttl:       ttl,
	}
}

// Get fetches and unprotects the blob for key. A missing or expired key
// is (nil, false, nil). A blob that fails authentication surfaces
// ErrProtectionFailure.
func (s *ProtectedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}

	plaintext, err := s.protector.Unprotect(data)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

// Set protects value and upserts it under key, overwriting any existing
// blob.
func (s *ProtectedStore) Set(ctx context.Context, key string, value []byte) error {
	protected, err := s.protector.Protect(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, protected, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Remove deletes the blob for key. Removing an absent key is a no-op.
func (s *ProtectedStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}
