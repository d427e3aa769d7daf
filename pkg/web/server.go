package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// Options configures a Server. Sessions enables the session scheme,
// Bearer the bearer scheme; Auth enables the sign-in routes. Metrics may
// be nil.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Sessions *sso.SessionManager
	Bearer   ClaimsVerifier
	Auth     *AuthHandlers

	Tokens   *tokencache.Service
	Registry *authz.Registry
	Authz    *authz.Handler
	Store    surveys.Store
}

// Server is the application's HTTP surface: middleware chain, policy
// enforcement, and the survey and authentication routes.
type Server struct {
	router *mux.Router
}

// NewServer wires the router. The middleware order is fixed: request id,
// metrics, authentication, token cache scope, then routes.
func NewServer(opts Options) *Server {
	router := mux.NewRouter()

	auth := NewAuthMiddleware(opts.Logger)
	if opts.Sessions != nil {
		auth.Register(SchemeSession, &SessionResolver{Sessions: opts.Sessions})
	}
	if opts.Bearer != nil {
		auth.Register(SchemeBearer, &BearerResolver{Verifier: opts.Bearer})
	}

	router.Use(RequestIDMiddleware(opts.Logger))
	router.Use(MetricsMiddleware(opts.Metrics))
	router.Use(auth.Handler)
	if opts.Tokens != nil {
		router.Use(TokenScopeMiddleware(opts.Tokens))
	}

	enforce := NewPolicyEnforcer(opts.Registry, opts.Authz, opts.Store, opts.Logger)
	NewSurveyHandlers(opts.Store, opts.Logger).RegisterRoutes(router, enforce)
	if opts.Auth != nil {
		opts.Auth.RegisterRoutes(router)
	}

	return &Server{router: router}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthHandler returns the liveness endpoint served on the health port.
func HealthHandler() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return m
}
