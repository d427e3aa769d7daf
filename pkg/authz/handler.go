package authz

import (
	"context"

	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/surveys"
)

// Handler evaluates requirements against (principal, survey) pairs.
// Evaluation succeeds or abstains; it never returns an error. A
// requirement that cannot be satisfied (missing claims, nil survey,
// unknown requirement) is simply not satisfied, and the enforcement
// layer denies the request.
type Handler struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandler creates a Handler. metrics may be nil.
func NewHandler(logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, metrics: metrics}
}

// Evaluate reports whether requirement is satisfied for principal and
// survey. Decisions are computed fresh on every call and never cached.
// survey may be nil for resource-independent requirements
// (RequireSurveyCreator); resource-scoped requirements abstain on nil.
func (h *Handler) Evaluate(ctx context.Context, principal *identity.Principal, requirement Requirement, survey *surveys.Survey) bool {
	allowed := h.evaluate(principal, requirement, survey)
	h.record(requirement, allowed)
	if !allowed {
		h.logDenied(principal, requirement, survey)
	}
	return allowed
}

func (h *Handler) evaluate(principal *identity.Principal, requirement Requirement, survey *surveys.Survey) bool {
	if principal == nil {
		return false
	}

	switch requirement {
	case RequireSurveyCreator:
		return principal.HasRole(identity.RoleSurveyCreator)

	case RequireSurveyAdmin:
		if survey == nil {
			return false
		}
		// Tolerant claim resolution: a principal without the numeric
		// identity claims cannot satisfy ownership-based requirements.
		if userID, err := principal.SurveyUserID(); err == nil && userID == survey.OwnerID {
			return true
		}
		if tenantID, err := principal.SurveyTenantID(); err == nil && tenantID == survey.TenantID {
			return principal.HasRole(identity.RoleSurveyAdmin)
		}
		return false

	case RequireSurveyContributor:
		if survey == nil {
			return false
		}
		userID, err := principal.SurveyUserID()
		if err != nil {
			return false
		}
		if userID == survey.OwnerID {
			return true
		}
		for _, id := range survey.Contributors {
			if id == userID {
				return true
			}
		}
		return false

	default:
		// Unknown requirements fail closed.
		return false
	}
}

func (h *Handler) record(requirement Requirement, allowed bool) {
	if h.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	h.metrics.AuthzDecisionsTotal.WithLabelValues(string(requirement), outcome).Inc()
}

func (h *Handler) logDenied(principal *identity.Principal, requirement Requirement, survey *surveys.Survey) {
	fields := map[string]interface{}{
		"event":       "authz.denied",
		"requirement": string(requirement),
	}
	if principal != nil {
		if oid, ok := principal.Value(identity.ClaimObjectID); ok {
			fields["object_id"] = oid
		}
	}
	if survey != nil {
		fields["survey_id"] = survey.ID
	}
	h.logger.WithFields(fields).Debug("authorization requirement not satisfied")
}
