package tokencache

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
)

// Entry is one cached token tuple for a downstream resource.
type Entry struct {
	Resource string       `json:"resource"`
	Token    oauth2.Token `json:"token"`
}

// AccessArgs carries identifiers describing the cache access that just
// completed. Used for audit logging only; it never contains token
// material.
type AccessArgs struct {
	ClientID string
	UniqueID string
	Resource string
}

// AccessNotifier is implemented by caches that want to observe token
// acquisition. The token acquirer calls OnBeforeAccess before reading the
// in-memory set and OnAfterAccess after any read or mutation batch.
// Registration is explicit: the acquirer is handed the notifier at
// construction, there is no implicit event wiring.
type AccessNotifier interface {
	OnBeforeAccess(ctx context.Context) error
	OnAfterAccess(ctx context.Context, args AccessArgs) error
}

// Cache bridges one principal's in-memory token set to the protected
// distributed store. It is owned by exactly one Scope for the lifetime of
// one request and is never shared across principals, so it needs no
// internal locking.
type Cache struct {
	key     string
	store   BlobStore
	logger  *observability.Logger
	metrics *observability.Metrics

	entries map[string]Entry
	dirty   bool
}

// CacheKey derives the distributed-store key for a principal. Identical
// (object id, tenant id) pairs always produce the same key; construction
// fails loudly when either claim is missing since the key is a
// precondition for everything else.
func CacheKey(principal *identity.Principal) (string, error) {
	oid, err := principal.ObjectID()
	if err != nil {
		return "", err
	}
	tid, err := principal.TenantID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UserId:%s::ClientId:%s", oid, tid), nil
}

// New constructs a cache for principal and loads any persisted token set
// from the store. An absent blob yields an empty set; a blob that fails
// decryption surfaces ErrProtectionFailure.
func New(ctx context.Context, principal *identity.Principal, store BlobStore, logger *observability.Logger, metrics *observability.Metrics) (*Cache, error) {
	key, err := CacheKey(principal)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		key:     key,
		store:   store,
		logger:  logger.WithField("cache_key", key),
		metrics: metrics,
		entries: make(map[string]Entry),
	}

	data, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		if err := c.deserialize(data); err != nil {
			return nil, err
		}
		c.logger.WithField("event", "token_cache.loaded").
			WithField("entries", len(c.entries)).
			Info("tokens retrieved from store")
		c.countLoad("hit")
	} else {
		c.countLoad("miss")
	}

	return c, nil
}

// Key returns the derived distributed-store key.
func (c *Cache) Key() string {
	return c.key
}

// Count returns the number of tokens currently held in memory.
func (c *Cache) Count() int {
	return len(c.entries)
}

// Token returns the cached token for resource. Reads do not mark the
// cache dirty.
func (c *Cache) Token(resource string) (oauth2.Token, bool) {
	e, ok := c.entries[resource]
	return e.Token, ok
}

// Put stores or replaces the token for a resource and marks the cache
// dirty. The change is not persisted until OnAfterAccess runs.
func (c *Cache) Put(resource string, token oauth2.Token) {
	c.entries[resource] = Entry{Resource: resource, Token: token}
	c.dirty = true
}

// Delete removes the token for a resource, if present.
func (c *Cache) Delete(resource string) {
	if _, ok := c.entries[resource]; ok {
		delete(c.entries, resource)
		c.dirty = true
	}
}

// Clear drops every token, e.g. on sign-out. The next OnAfterAccess
// removes the persisted blob.
func (c *Cache) Clear() {
	if len(c.entries) == 0 {
		return
	}
	c.entries = make(map[string]Entry)
	c.dirty = true
}

// OnBeforeAccess implements AccessNotifier. Nothing to do: the full set
// is loaded at construction.
func (c *Cache) OnBeforeAccess(ctx context.Context) error {
	return nil
}

// OnAfterAccess implements AccessNotifier. If the in-memory set changed
// since the last persist it is written back in a single store round trip:
// one Set for a non-empty set, one Remove for an empty one. Store
// failures are logged and returned so the enclosing operation fails
// visibly instead of diverging from the persisted copy.
func (c *Cache) OnAfterAccess(ctx context.Context, args AccessArgs) error {
	if !c.dirty {
		return nil
	}

	if len(c.entries) > 0 {
		data, err := c.serialize()
		if err != nil {
			return err
		}
		if err := c.store.Set(ctx, c.key, data); err != nil {
			c.failWrite(args, err)
			return err
		}
		c.logger.WithField("event", "token_cache.written").
			WithFields(map[string]interface{}{
				"client_id": args.ClientID,
				"unique_id": args.UniqueID,
				"resource":  args.Resource,
			}).Info("tokens written to store")
		if c.metrics != nil {
			c.metrics.TokenCacheWritesTotal.Inc()
		}
	} else {
		if err := c.store.Remove(ctx, c.key); err != nil {
			c.failWrite(args, err)
			return err
		}
		c.logger.WithField("event", "token_cache.cleared").
			Info("token cache cleared")
		if c.metrics != nil {
			c.metrics.TokenCacheClearsTotal.Inc()
		}
	}

	c.dirty = false
	return nil
}

func (c *Cache) failWrite(args AccessArgs, err error) {
	c.logger.WithField("event", "token_cache.write_failed").
		WithField("resource", args.Resource).
		WithError(err).
		Error("failed to persist token cache")
	if c.metrics != nil {
		c.metrics.TokenCacheWriteErrorsTotal.Inc()
	}
}

func (c *Cache) countLoad(outcome string) {
	if c.metrics != nil {
		c.metrics.TokenCacheLoadsTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Cache) serialize() ([]byte, error) {
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token cache: %w", err)
	}
	return data, nil
}

func (c *Cache) deserialize(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to deserialize token cache: %w", err)
	}
	c.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		c.entries[e.Resource] = e
	}
	return nil
}
