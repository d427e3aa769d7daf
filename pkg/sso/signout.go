package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// SignOutManager tears down a principal's session: the session cookie is
// retired and the persisted token cache entry is removed so a later
// sign-in starts from an empty set.
type SignOutManager struct {
	clientID string
	sessions *SessionManager
	tokens   *tokencache.Service
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewSignOutManager creates a sign-out manager. metrics may be nil.
func NewSignOutManager(clientID string, sessions *SessionManager, tokens *tokencache.Service, logger *observability.Logger, metrics *observability.Metrics) *SignOutManager {
	return &SignOutManager{
		clientID: clientID,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
		metrics:  metrics,
	}
}

// SignOut clears the principal's cached tokens and session cookie. The
// cookie is cleared even when the token cache removal fails, so the
// browser session never outlives a partial sign-out; the error is still
// returned.
func (m *SignOutManager) SignOut(ctx context.Context, w http.ResponseWriter, principal *identity.Principal) error {
	oid, _ := principal.Value(identity.ClaimObjectID)
	tid, _ := principal.Value(identity.ClaimTenantID)
	log := m.logger.WithFields(map[string]interface{}{
		"object_id": oid,
		"issuer":    tid,
	})
	log.WithField("event", "signout.started").Info("sign-out started")

	err := m.clearTokens(ctx, principal, oid)

	m.sessions.Clear(w)

	if err != nil {
		log.WithField("event", "signout.failed").
			WithError(err).
			Error("sign-out failed to clear token cache")
		m.countSignOut("failure")
		return err
	}

	log.WithField("event", "signout.completed").Info("sign-out completed")
	m.countSignOut("success")
	return nil
}

func (m *SignOutManager) clearTokens(ctx context.Context, principal *identity.Principal, oid string) error {
	scope := m.tokens.NewScope()
	cache, err := scope.GetCache(ctx, principal)
	if err != nil {
		return fmt.Errorf("failed to open token cache: %w", err)
	}

	cache.Clear()
	return cache.OnAfterAccess(context.WithoutCancel(ctx), tokencache.AccessArgs{
		ClientID: m.clientID,
		UniqueID: oid,
	})
}

func (m *SignOutManager) countSignOut(outcome string) {
	if m.metrics != nil {
		m.metrics.SignOutsTotal.WithLabelValues(outcome).Inc()
	}
}
