package tokencache

import (
	"context"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
)

// Service builds token caches. It is created once at startup with
// immutable dependencies; per-request state lives in Scopes.
type Service struct {
	store   BlobStore
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a Service. metrics may be nil.
func NewService(store BlobStore, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// NewScope creates a fresh unit-of-work scope. One scope is created per
// request and threaded explicitly; scopes are never reused across
// requests, which bounds one principal's token material to one unit of
// work.
func (s *Service) NewScope() *Scope {
	return &Scope{service: s}
}

// Scope holds at most one Cache for the lifetime of one request.
// A Scope is confined to the goroutine serving its request and needs no
// locking.
type Scope struct {
	service *Service
	cache   *Cache
}

// GetCache returns this scope's cache for principal, constructing and
// loading it on first call. Subsequent calls in the same scope return the
// same instance.
func (sc *Scope) GetCache(ctx context.Context, principal *identity.Principal) (*Cache, error) {
	if sc.cache != nil {
		return sc.cache, nil
	}

	cache, err := New(ctx, principal, sc.service.store, sc.service.logger, sc.service.metrics)
	if err != nil {
		return nil, err
	}
	sc.cache = cache
	return cache, nil
}
