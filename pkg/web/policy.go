package web

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/contextkeys"
	"github.com/canvass-io/canvass/pkg/httputil"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/surveys"
)

// PolicyEnforcer gates routes behind named authorization policies. It
// fails closed at every step: unknown policies deny, unauthenticated
// principals get 401, unresolvable surveys never reach evaluation, and an
// unsatisfied requirement gets 403.
type PolicyEnforcer struct {
	registry *authz.Registry
	handler  *authz.Handler
	store    surveys.Store
	logger   *observability.Logger
}

// NewPolicyEnforcer creates a policy enforcement middleware factory.
// store may be nil when no route needs survey resolution.
func NewPolicyEnforcer(registry *authz.Registry, handler *authz.Handler, store surveys.Store, logger *observability.Logger) *PolicyEnforcer {
	return &PolicyEnforcer{
		registry: registry,
		handler:  handler,
		store:    store,
		logger:   logger,
	}
}

// Require wraps a handler with enforcement of the named policy. Routes
// with an {id} path variable have their survey resolved before
// evaluation and stored in the context for the handler.
func (e *PolicyEnforcer) Require(policyName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := e.registry.Policy(policyName)
			if !ok {
				e.logger.WithField("event", "authz.unknown_policy").
					WithField("policy", policyName).
					Error("route references an unregistered policy")
				httputil.WriteForbidden(w, "forbidden")
				return
			}

			principal := PrincipalFromContext(r.Context())
			if policy.RequireAuthenticated && principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !schemeAllowed(policy, AuthSchemeFromContext(r.Context())) {
				httputil.WriteUnauthorized(w, "authentication scheme not accepted")
				return
			}

			var survey *surveys.Survey
			if _, hasID := mux.Vars(r)["id"]; hasID {
				if e.store == nil {
					e.logger.WithField("event", "authz.no_store").
						WithField("policy", policyName).
						Error("route resolves a survey but the enforcer has no store")
					httputil.WriteInternalError(w, errors.New("failed to load survey"))
					return
				}
				id, ok := httputil.ParsePathInt64OrError(w, r, "id")
				if !ok {
					return
				}
				var err error
				survey, err = e.store.GetSurvey(r.Context(), id)
				if err != nil {
					if errors.Is(err, surveys.ErrSurveyNotFound) {
						httputil.WriteNotFound(w, "survey not found")
						return
					}
					httputil.WriteInternalError(w, errors.New("failed to load survey"))
					return
				}
			}

			for _, requirement := range policy.Requirements {
				if !e.handler.Evaluate(r.Context(), principal, requirement, survey) {
					httputil.WriteForbidden(w, "forbidden")
					return
				}
			}

			ctx := r.Context()
			if survey != nil {
				ctx = contextkeys.WithSurvey(ctx, survey)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated wraps a handler with a bare sign-in check, for
// routes that need a principal but no resource policy.
func (e *PolicyEnforcer) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func schemeAllowed(policy authz.Policy, scheme string) bool {
	if len(policy.Schemes) == 0 {
		return true
	}
	for _, s := range policy.Schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// SurveyFromContext returns the survey resolved during policy
// enforcement, or nil.
func SurveyFromContext(r *http.Request) *surveys.Survey {
	survey, _ := r.Context().Value(contextkeys.SurveyKey).(*surveys.Survey)
	return survey
}
