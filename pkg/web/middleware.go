package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canvass-io/canvass/pkg/contextkeys"
	"github.com/canvass-io/canvass/pkg/httputil"
	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// Authentication scheme names referenced by policies.
const (
	SchemeSession = "session"
	SchemeBearer  = "bearer"
)

// PrincipalResolver restores a principal from a request under one
// authentication scheme. An unauthenticated request yields (nil, nil);
// errors mean the request carried credentials that failed validation.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*identity.Principal, error)
}

// SessionResolver restores principals from the encrypted session cookie.
type SessionResolver struct {
	Sessions *sso.SessionManager
}

// Resolve implements PrincipalResolver. Missing and expired sessions are
// anonymous, not errors; a tampered cookie is rejected.
func (s *SessionResolver) Resolve(r *http.Request) (*identity.Principal, error) {
	principal, err := s.Sessions.Principal(r)
	if err != nil {
		if errors.Is(err, sso.ErrNoSession) || errors.Is(err, sso.ErrSessionExpired) {
			return nil, nil
		}
		return nil, err
	}
	return principal, nil
}

// ClaimsVerifier validates a raw bearer token and returns its claims and
// subject. Implemented by sso.Authenticator.
type ClaimsVerifier interface {
	VerifyClaims(ctx context.Context, rawToken string) (map[string]interface{}, string, error)
}

// BearerResolver restores principals from Authorization: Bearer tokens.
type BearerResolver struct {
	Verifier ClaimsVerifier
}

// Resolve implements PrincipalResolver.
func (b *BearerResolver) Resolve(r *http.Request) (*identity.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("invalid authorization header format")
	}

	claims, subject, err := b.Verifier.VerifyClaims(r.Context(), parts[1])
	if err != nil {
		return nil, err
	}
	return sso.PrincipalFromClaims(claims, subject)
}

// RequestIDMiddleware assigns each request a UUID and attaches a
// request-scoped logger to the context.
func RequestIDMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = contextkeys.WithLogger(ctx, logger.WithField("request_id", requestID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// AuthMiddleware restores the request principal using the registered
// schemes, in registration order. Requests without credentials continue
// anonymously; enforcement happens at the policy layer. Requests with
// invalid credentials are rejected here.
type AuthMiddleware struct {
	schemes   []string
	resolvers map[string]PrincipalResolver
	logger    *observability.Logger
}

// NewAuthMiddleware creates an auth middleware with no schemes.
func NewAuthMiddleware(logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolvers: make(map[string]PrincipalResolver),
		logger:    logger,
	}
}

// Register adds an authentication scheme.
func (m *AuthMiddleware) Register(scheme string, resolver PrincipalResolver) *AuthMiddleware {
	if _, exists := m.resolvers[scheme]; !exists {
		m.schemes = append(m.schemes, scheme)
	}
	m.resolvers[scheme] = resolver
	return m
}

// Handler wraps next with principal restoration.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, scheme := range m.schemes {
			principal, err := m.resolvers[scheme].Resolve(r)
			if err != nil {
				m.logger.WithField("event", "auth.rejected").
					WithField("scheme", scheme).
					WithError(err).
					Warn("request credentials failed validation")
				httputil.WriteUnauthorized(w, "invalid credentials")
				return
			}
			if principal != nil {
				ctx := contextkeys.WithPrincipal(r.Context(), principal)
				ctx = contextkeys.WithAuthScheme(ctx, scheme)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// TokenScopeMiddleware attaches a fresh token cache scope to every
// request so downstream handlers share one cache instance per request.
func TokenScopeMiddleware(service *tokencache.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextkeys.WithTokenScope(r.Context(), service.NewScope())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the authenticated principal, or nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	principal, _ := ctx.Value(contextkeys.PrincipalKey).(*identity.Principal)
	return principal
}

// ScopeFromContext returns the request's token cache scope, or nil when
// the scope middleware is not installed.
func ScopeFromContext(ctx context.Context) *tokencache.Scope {
	scope, _ := ctx.Value(contextkeys.TokenScopeKey).(*tokencache.Scope)
	return scope
}

// AuthSchemeFromContext returns the scheme that authenticated the
// request, or "".
func AuthSchemeFromContext(ctx context.Context) string {
	scheme, _ := ctx.Value(contextkeys.AuthSchemeKey).(string)
	return scheme
}
