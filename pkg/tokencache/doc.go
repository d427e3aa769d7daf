// Package tokencache persists per-principal OAuth2 token sets in a
// distributed store with encryption at rest.
//
// # Overview
//
// Access and refresh tokens acquired from the identity provider for
// downstream API calls are cached per (user, tenant) pair. The in-memory
// set lives in a Cache owned by one request scope; the persisted copy
// lives in redis under the key
//
//	UserId:<object id>::ClientId:<tenant id>
//
// and is sealed by a purpose-bound Protector before it reaches the wire.
//
// # Write coalescing
//
// The token acquirer notifies the Cache through the AccessNotifier hooks.
// Mutations only flip a dirty flag; OnAfterAccess performs exactly one
// store round trip per mutation batch: Set while tokens remain, Remove
// once the set empties (sign-out). Store failures propagate to the caller
// so memory and store never silently diverge.
//
// # Concurrency
//
// Caches and Scopes are request-confined and unlocked. Concurrent writes
// for the same principal from two requests resolve last-write-wins at the
// redis key; the cost of losing that race is one extra round trip to the
// identity provider.
package tokencache
