// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/canvass-io/canvass/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.PrincipalKey, principal)
//   principal := ctx.Value(contextkeys.PrincipalKey).(*identity.Principal)
package contextkeys

import (
	"context"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *identity.Principal
	// Set by: web.SessionMiddleware / web.BearerMiddleware
	// Required by: policy enforcement, token cache scope, handlers
	// Type: *identity.Principal
	PrincipalKey Key = "principal"

	// TokenScopeKey contains *tokencache.Scope
	// Set by: web.TokenScopeMiddleware (one scope per request)
	// Required by: handlers that acquire downstream API tokens
	// Type: *tokencache.Scope
	TokenScopeKey Key = "token_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: web.RequestIDMiddleware
	// Used by: Logger, audit events
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: web.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuthSchemeKey contains the name of the authentication scheme that
	// produced the request's principal ("session" or "bearer")
	// Set by: web.AuthMiddleware
	// Required by: policy enforcement scheme checks
	// Type: string
	AuthSchemeKey Key = "auth_scheme"

	// SurveyKey contains the survey resolved during policy enforcement
	// Set by: web.PolicyEnforcer
	// Used by: survey handlers, to avoid a second store lookup
	// Type: *surveys.Survey
	SurveyKey Key = "survey"
)

// Helper functions for type-safe context operations

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *identity.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTokenScope adds the per-request token cache scope to the context
func WithTokenScope(ctx context.Context, scope *tokencache.Scope) context.Context {
	return context.WithValue(ctx, TokenScopeKey, scope)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *observability.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuthScheme records which authentication scheme produced the principal
func WithAuthScheme(ctx context.Context, scheme string) context.Context {
	return context.WithValue(ctx, AuthSchemeKey, scheme)
}

// WithSurvey adds the policy-resolved survey to the context
func WithSurvey(ctx context.Context, survey *surveys.Survey) context.Context {
	return context.WithValue(ctx, SurveyKey, survey)
}
