package sso

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// SessionCookieName is the cookie carrying the protected session payload.
const SessionCookieName = "canvass_session"

// SessionPurpose isolates session ciphertexts from token-cache
// ciphertexts even though both derive from the same master secret.
const SessionPurpose = "canvass.session"

var (
	// ErrNoSession indicates the request carries no session cookie.
	ErrNoSession = errors.New("no session")

	// ErrSessionExpired indicates the session payload was authentic but
	// past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// sessionPayload is the encrypted cookie body. Expiry is enforced
// server-side; cookie MaxAge is advisory only.
type sessionPayload struct {
	Claims    []identity.Claim `json:"claims"`
	IssuedAt  time.Time        `json:"iat"`
	ExpiresAt time.Time        `json:"exp"`
}

// SessionManager issues and restores principal sessions as encrypted
// cookies. The payload is protected with a session-purpose key, so a
// client cannot read or forge its own claims.
type SessionManager struct {
	protector *tokencache.Protector
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionManager creates a session manager. The protector must be
// constructed with SessionPurpose.
func NewSessionManager(protector *tokencache.Protector, ttl time.Duration) *SessionManager {
	return &SessionManager{
		protector: protector,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Establish serializes and protects the principal's claims and sets the
// session cookie.
func (m *SessionManager) Establish(w http.ResponseWriter, principal *identity.Principal) error {
	now := m.now()
	payload := sessionPayload{
		Claims:    principal.Claims(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	protected, err := m.protector.Protect(data)
	if err != nil {
		return fmt.Errorf("failed to protect session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(protected),
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Principal restores the signed-in principal from the request's session
// cookie. A missing cookie yields ErrNoSession; a tampered payload
// surfaces the protection failure.
func (m *SessionManager) Principal(r *http.Request) (*identity.Principal, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, ErrNoSession
	}

	protected, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cookie", tokencache.ErrProtectionFailure)
	}
	data, err := m.protector.Unprotect(protected)
	if err != nil {
		return nil, err
	}

	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	if m.now().After(payload.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	return identity.NewPrincipal(payload.Claims), nil
}

// Clear retires the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
