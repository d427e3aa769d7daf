package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/httputil"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/surveys"
)

// SurveyHandlers serves the survey CRUD surface.
type SurveyHandlers struct {
	store  surveys.Store
	logger *observability.Logger
}

// NewSurveyHandlers creates the survey handlers.
func NewSurveyHandlers(store surveys.Store, logger *observability.Logger) *SurveyHandlers {
	return &SurveyHandlers{store: store, logger: logger}
}

// RegisterRoutes wires the survey routes behind their policies.
func (h *SurveyHandlers) RegisterRoutes(router *mux.Router, enforce *PolicyEnforcer) {
	creator := enforce.Require(authz.PolicyRequireSurveyCreator)
	admin := enforce.Require(authz.PolicyRequireSurveyAdmin)
	contributor := enforce.Require(authz.PolicyRequireSurveyContributor)

	router.Handle("/surveys", creator(http.HandlerFunc(h.createSurvey))).Methods(http.MethodPost)
	router.Handle("/surveys", enforce.RequireAuthenticated(http.HandlerFunc(h.listSurveys))).Methods(http.MethodGet)

	router.Handle("/surveys/{id:[0-9]+}", contributor(http.HandlerFunc(h.getSurvey))).Methods(http.MethodGet)
	router.Handle("/surveys/{id:[0-9]+}", contributor(http.HandlerFunc(h.updateSurvey))).Methods(http.MethodPut)
	router.Handle("/surveys/{id:[0-9]+}", admin(http.HandlerFunc(h.deleteSurvey))).Methods(http.MethodDelete)

	router.Handle("/surveys/{id:[0-9]+}/publish", admin(http.HandlerFunc(h.publishSurvey))).Methods(http.MethodPut)
	router.Handle("/surveys/{id:[0-9]+}/unpublish", admin(http.HandlerFunc(h.unpublishSurvey))).Methods(http.MethodPut)

	router.Handle("/surveys/{id:[0-9]+}/contributor-requests", admin(http.HandlerFunc(h.createContributorRequest))).Methods(http.MethodPost)
	router.Handle("/surveys/{id:[0-9]+}/contributor-requests", admin(http.HandlerFunc(h.listContributorRequests))).Methods(http.MethodGet)

	router.Handle("/tenants/{tenantId:[0-9]+}/surveys", enforce.RequireAuthenticated(http.HandlerFunc(h.listTenantSurveys))).Methods(http.MethodGet)
}

type createSurveyRequest struct {
	Title string `json:"title"`
}

// createSurvey handles POST /surveys. Ownership comes from the signed-in
// principal, never from the request body.
func (h *SurveyHandlers) createSurvey(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	principal := PrincipalFromContext(r.Context())
	ownerID, err := principal.SurveyUserID()
	if err != nil {
		httputil.WriteForbidden(w, "principal is not a registered survey user")
		return
	}
	tenantID, err := principal.SurveyTenantID()
	if err != nil {
		httputil.WriteForbidden(w, "principal is not bound to a tenant")
		return
	}

	survey := &surveys.Survey{
		Title:    req.Title,
		OwnerID:  ownerID,
		TenantID: tenantID,
	}
	if err := h.store.CreateSurvey(r.Context(), survey); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, survey)
}

// listSurveys handles GET /surveys. The filter query parameter selects
// the listing: own (default), published, contributed.
func (h *SurveyHandlers) listSurveys(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	userID, err := principal.SurveyUserID()
	if err != nil {
		httputil.WriteForbidden(w, "principal is not a registered survey user")
		return
	}

	var list []surveys.Survey
	switch r.URL.Query().Get("filter") {
	case "", "own":
		list, err = h.store.GetSurveysByOwner(r.Context(), userID)
	case "published":
		list, err = h.store.GetPublishedSurveysByOwner(r.Context(), userID)
	case "contributed":
		list, err = h.store.GetSurveysByContributor(r.Context(), userID)
	default:
		httputil.WriteBadRequest(w, "unknown filter")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type tenantSurveysResponse struct {
	Published   []surveys.Survey `json:"published"`
	Unpublished []surveys.Survey `json:"unpublished"`
}

// listTenantSurveys handles GET /tenants/{tenantId}/surveys. Tenant
// listings are restricted to members of that tenant.
func (h *SurveyHandlers) listTenantSurveys(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathInt64OrError(w, r, "tenantId")
	if !ok {
		return
	}

	principal := PrincipalFromContext(r.Context())
	principalTenant, err := principal.SurveyTenantID()
	if err != nil || principalTenant != tenantID {
		httputil.WriteForbidden(w, "not a member of the requested tenant")
		return
	}

	published, err := h.store.GetPublishedSurveysByTenant(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	unpublished, err := h.store.GetUnpublishedSurveysByTenant(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tenantSurveysResponse{
		Published:   published,
		Unpublished: unpublished,
	})
}

func (h *SurveyHandlers) getSurvey(w http.ResponseWriter, r *http.Request) {
	// Resolved during policy enforcement.
	httputil.WriteSuccess(w, SurveyFromContext(r))
}

type updateSurveyRequest struct {
	Title string `json:"title"`
}

func (h *SurveyHandlers) updateSurvey(w http.ResponseWriter, r *http.Request) {
	var req updateSurveyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}

	survey := SurveyFromContext(r)
	survey.Title = req.Title
	if err := h.store.UpdateSurvey(r.Context(), survey); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, survey)
}

func (h *SurveyHandlers) deleteSurvey(w http.ResponseWriter, r *http.Request) {
	survey := SurveyFromContext(r)
	if err := h.store.DeleteSurvey(r.Context(), survey.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *SurveyHandlers) publishSurvey(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

func (h *SurveyHandlers) unpublishSurvey(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *SurveyHandlers) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	survey := SurveyFromContext(r)
	if err := h.store.SetPublished(r.Context(), survey.ID, published); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	survey.Published = published
	httputil.WriteSuccess(w, survey)
}

type contributorRequestBody struct {
	EmailAddress string `json:"email_address"`
}

func (h *SurveyHandlers) createContributorRequest(w http.ResponseWriter, r *http.Request) {
	var body contributorRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if body.EmailAddress == "" {
		httputil.WriteBadRequest(w, "email_address is required")
		return
	}

	req := &surveys.ContributorRequest{
		SurveyID:     SurveyFromContext(r).ID,
		EmailAddress: body.EmailAddress,
		Created:      time.Now().UTC(),
	}
	if err := h.store.CreateContributorRequest(r.Context(), req); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, req)
}

func (h *SurveyHandlers) listContributorRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.store.GetContributorRequests(r.Context(), SurveyFromContext(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, requests)
}
