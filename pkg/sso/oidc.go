package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/canvass-io/canvass/pkg/config"
	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// stateCookieName holds the OAuth2 state nonce between the redirect to the
// identity provider and the callback.
const stateCookieName = "canvass_state"

// Authenticator runs the OpenID Connect authorization-code flow against
// the configured identity provider and turns verified ID tokens into
// application principals.
type Authenticator struct {
	cfg          config.OIDCConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	sessions     *SessionManager
	tokens       *tokencache.Service
	store        surveys.Store
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewAuthenticator discovers the OIDC provider and prepares the OAuth2
// flow. store backs the pending-contributor resolution at sign-in and
// may be nil when the deployment never invites contributors; metrics
// may be nil.
func NewAuthenticator(ctx context.Context, cfg config.OIDCConfig, sessions *SessionManager, tokens *tokencache.Service, store surveys.Store, logger *observability.Logger, metrics *observability.Metrics) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	return &Authenticator{
		cfg:          cfg,
		verifier:     verifier,
		oauth2Config: oauth2Config,
		sessions:     sessions,
		tokens:       tokens,
		store:        store,
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// InitiateLogin generates a fresh state nonce and redirects to the
// provider's authorization endpoint.
func (a *Authenticator) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	a.logger.WithField("event", "signin.started").
		WithField("issuer", a.cfg.IssuerURL).
		Info("redirecting to identity provider")

	authURL := a.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the authorization-code flow: it validates the
// state nonce, exchanges the code, verifies the ID token, maps its claims
// to a principal, caches the downstream API token, and establishes the
// session. The returned principal is already signed in.
func (a *Authenticator) HandleCallback(ctx context.Context, w http.ResponseWriter, r *http.Request) (*identity.Principal, error) {
	principal, err := a.handleCallback(ctx, w, r)
	if err != nil {
		a.logger.WithField("event", "signin.failed").
			WithError(err).
			Warn("sign-in failed")
		a.countSignIn("failure")
		return nil, err
	}

	oid, _ := principal.Value(identity.ClaimObjectID)
	tid, _ := principal.Value(identity.ClaimTenantID)
	a.logger.WithField("event", "signin.completed").
		WithFields(map[string]interface{}{
			"object_id": oid,
			"issuer":    tid,
		}).Info("sign-in completed")
	a.countSignIn("success")

	return principal, nil
}

func (a *Authenticator) handleCallback(ctx context.Context, w http.ResponseWriter, r *http.Request) (*identity.Principal, error) {
	if err := a.checkState(w, r); err != nil {
		return nil, err
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	principal, err := PrincipalFromClaims(claims, idToken.Subject)
	if err != nil {
		return nil, err
	}

	if a.cfg.APIResource != "" {
		if err := a.cacheToken(ctx, principal, oauth2Token); err != nil {
			return nil, err
		}
	}

	if err := a.sessions.Establish(w, principal); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	a.resolveContributorRequests(ctx, principal)

	return principal, nil
}

// resolveContributorRequests turns pending email invitations addressed
// to the signed-in user into contributor grants. Resolution failures do
// not fail the sign-in; unresolved requests stay pending for the next
// one.
func (a *Authenticator) resolveContributorRequests(ctx context.Context, principal *identity.Principal) {
	if a.store == nil {
		return
	}
	email := principal.Email()
	if email == "" {
		return
	}
	userID, err := principal.SurveyUserID()
	if err != nil {
		return
	}

	granted, err := surveys.ResolvePendingContributorRequests(ctx, a.store, email, userID)
	if err != nil {
		a.logger.WithField("event", "signin.contributor_requests_failed").
			WithError(err).
			Warn("failed to resolve pending contributor requests")
		return
	}
	if granted > 0 {
		a.logger.WithField("event", "signin.contributor_requests_resolved").
			WithField("granted", granted).
			Info("resolved pending contributor requests")
	}
}

// checkState compares the callback's state parameter against the nonce
// set at login initiation and retires the cookie either way.
func (a *Authenticator) checkState(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return fmt.Errorf("missing state cookie")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	if state := r.URL.Query().Get("state"); state == "" || state != cookie.Value {
		return fmt.Errorf("state parameter mismatch")
	}
	return nil
}

// cacheToken writes the downstream API token through the principal's
// token cache so subsequent requests can call the survey API without a
// fresh exchange. The persist uses a cancellation-detached context so an
// aborted callback request cannot strand a dirty cache.
func (a *Authenticator) cacheToken(ctx context.Context, principal *identity.Principal, token *oauth2.Token) error {
	scope := a.tokens.NewScope()
	cache, err := scope.GetCache(ctx, principal)
	if err != nil {
		return fmt.Errorf("failed to open token cache: %w", err)
	}

	cache.Put(a.cfg.APIResource, *token)

	oid, _ := principal.Value(identity.ClaimObjectID)
	return cache.OnAfterAccess(context.WithoutCancel(ctx), tokencache.AccessArgs{
		ClientID: a.cfg.ClientID,
		UniqueID: oid,
		Resource: a.cfg.APIResource,
	})
}

// VerifyClaims validates a raw bearer ID token against the provider's
// keys and returns its claims and subject. Used by the API's bearer
// authentication scheme.
func (a *Authenticator) VerifyClaims(ctx context.Context, rawToken string) (map[string]interface{}, string, error) {
	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify bearer token: %w", err)
	}
	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, "", fmt.Errorf("failed to parse bearer token claims: %w", err)
	}
	return claims, idToken.Subject, nil
}

func (a *Authenticator) countSignIn(outcome string) {
	if a.metrics != nil {
		a.metrics.SignInsTotal.WithLabelValues(outcome).Inc()
	}
}

// PrincipalFromClaims maps verified ID-token claims to a principal.
// subject is the token's sub claim, used as object identifier when the
// provider issues no oid claim.
func PrincipalFromClaims(claims map[string]interface{}, subject string) (*identity.Principal, error) {
	out := make([]identity.Claim, 0, len(claims)+1)

	oid := stringClaim(claims, identity.ClaimObjectID)
	if oid == "" {
		oid = subject
	}
	if oid == "" {
		return nil, fmt.Errorf("%w: %s", identity.ErrMissingClaim, identity.ClaimObjectID)
	}
	out = append(out, identity.Claim{Type: identity.ClaimObjectID, Value: oid})

	tid := stringClaim(claims, identity.ClaimTenantID)
	if tid == "" {
		tid = stringClaim(claims, "iss")
	}
	if tid == "" {
		return nil, fmt.Errorf("%w: %s", identity.ErrMissingClaim, identity.ClaimTenantID)
	}
	out = append(out, identity.Claim{Type: identity.ClaimTenantID, Value: tid})

	if email := stringClaim(claims, identity.ClaimEmail); email != "" {
		out = append(out, identity.Claim{Type: identity.ClaimEmail, Value: email})
	}
	for _, role := range arrayClaim(claims, identity.ClaimRoles) {
		out = append(out, identity.Claim{Type: identity.ClaimRoles, Value: role})
	}
	for _, t := range []string{identity.ClaimSurveyUserID, identity.ClaimSurveyTenantID} {
		if v := stringClaim(claims, t); v != "" {
			out = append(out, identity.Claim{Type: t, Value: v})
		}
	}

	return identity.NewPrincipal(out), nil
}

// stringClaim reads a claim tolerantly: providers emit numeric claims as
// json.Number or float64 depending on path.
func stringClaim(claims map[string]interface{}, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func arrayClaim(claims map[string]interface{}, key string) []string {
	switch v := claims[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
