package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvass-io/canvass/pkg/authz"
	"github.com/canvass-io/canvass/pkg/identity"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
	"github.com/canvass-io/canvass/pkg/surveys"
	"github.com/canvass-io/canvass/pkg/tokencache"
)

// fakeStore is an in-memory surveys.Store for handler tests.
type fakeStore struct {
	surveys  map[int64]*surveys.Survey
	requests map[int64][]surveys.ContributorRequest
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		surveys:  make(map[int64]*surveys.Survey),
		requests: make(map[int64][]surveys.ContributorRequest),
		nextID:   1,
	}
}

func (s *fakeStore) GetSurvey(_ context.Context, id int64) (*surveys.Survey, error) {
	survey, ok := s.surveys[id]
	if !ok {
		return nil, surveys.ErrSurveyNotFound
	}
	cp := *survey
	return &cp, nil
}

func (s *fakeStore) listWhere(match func(*surveys.Survey) bool) []surveys.Survey {
	var out []surveys.Survey
	for _, survey := range s.surveys {
		if match(survey) {
			out = append(out, *survey)
		}
	}
	return out
}

func (s *fakeStore) GetSurveysByOwner(_ context.Context, userID int64) ([]surveys.Survey, error) {
	return s.listWhere(func(sv *surveys.Survey) bool { return sv.OwnerID == userID }), nil
}

func (s *fakeStore) GetPublishedSurveysByOwner(_ context.Context, userID int64) ([]surveys.Survey, error) {
	return s.listWhere(func(sv *surveys.Survey) bool { return sv.OwnerID == userID && sv.Published }), nil
}

func (s *fakeStore) GetSurveysByContributor(_ context.Context, userID int64) ([]surveys.Survey, error) {
	return s.listWhere(func(sv *surveys.Survey) bool {
		for _, id := range sv.Contributors {
			if id == userID {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeStore) GetPublishedSurveysByTenant(_ context.Context, tenantID int64) ([]surveys.Survey, error) {
	return s.listWhere(func(sv *surveys.Survey) bool { return sv.TenantID == tenantID && sv.Published }), nil
}

func (s *fakeStore) GetUnpublishedSurveysByTenant(_ context.Context, tenantID int64) ([]surveys.Survey, error) {
	return s.listWhere(func(sv *surveys.Survey) bool { return sv.TenantID == tenantID && !sv.Published }), nil
}

func (s *fakeStore) CreateSurvey(_ context.Context, survey *surveys.Survey) error {
	survey.ID = s.nextID
	s.nextID++
	cp := *survey
	s.surveys[survey.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateSurvey(_ context.Context, survey *surveys.Survey) error {
	if _, ok := s.surveys[survey.ID]; !ok {
		return surveys.ErrSurveyNotFound
	}
	cp := *survey
	s.surveys[survey.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteSurvey(_ context.Context, id int64) error {
	if _, ok := s.surveys[id]; !ok {
		return surveys.ErrSurveyNotFound
	}
	delete(s.surveys, id)
	return nil
}

func (s *fakeStore) SetPublished(_ context.Context, id int64, published bool) error {
	survey, ok := s.surveys[id]
	if !ok {
		return surveys.ErrSurveyNotFound
	}
	survey.Published = published
	return nil
}

func (s *fakeStore) AddContributor(_ context.Context, surveyID, userID int64) error {
	survey, ok := s.surveys[surveyID]
	if !ok {
		return surveys.ErrSurveyNotFound
	}
	survey.Contributors = append(survey.Contributors, userID)
	return nil
}

func (s *fakeStore) CreateContributorRequest(_ context.Context, req *surveys.ContributorRequest) error {
	req.ID = s.nextID
	s.nextID++
	s.requests[req.SurveyID] = append(s.requests[req.SurveyID], *req)
	return nil
}

func (s *fakeStore) GetContributorRequests(_ context.Context, surveyID int64) ([]surveys.ContributorRequest, error) {
	return s.requests[surveyID], nil
}

func (s *fakeStore) GetContributorRequestsByEmail(_ context.Context, email string) ([]surveys.ContributorRequest, error) {
	var out []surveys.ContributorRequest
	for _, reqs := range s.requests {
		for _, req := range reqs {
			if req.EmailAddress == email {
				out = append(out, req)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteContributorRequest(_ context.Context, id int64) error {
	for surveyID, reqs := range s.requests {
		for i, req := range reqs {
			if req.ID == id {
				s.requests[surveyID] = append(reqs[:i], reqs[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// memBlobStore backs the token cache scope middleware in tests.
type memBlobStore struct {
	data map[string][]byte
}

func (s *memBlobStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *memBlobStore) Set(_ context.Context, key string, value []byte) error {
	s.data[key] = value
	return nil
}

func (s *memBlobStore) Remove(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

type testEnv struct {
	server   *Server
	store    *fakeStore
	sessions *sso.SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	protector, err := tokencache.NewProtector([]byte(strings.Repeat("k", 32)), sso.SessionPurpose)
	require.NoError(t, err)
	sessions := sso.NewSessionManager(protector, time.Hour)

	store := newFakeStore()
	registry, err := authz.NewRegistry(authz.DefaultPolicies()...)
	require.NoError(t, err)

	tokens := tokencache.NewService(&memBlobStore{data: make(map[string][]byte)}, logger, nil)

	server := NewServer(Options{
		Logger:   logger,
		Sessions: sessions,
		Tokens:   tokens,
		Registry: registry,
		Authz:    authz.NewHandler(logger, nil),
		Store:    store,
	})

	return &testEnv{server: server, store: store, sessions: sessions}
}

func (e *testEnv) request(t *testing.T, method, path, body string, claims []identity.Claim) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)

	if claims != nil {
		rec := httptest.NewRecorder()
		require.NoError(t, e.sessions.Establish(rec, identity.NewPrincipal(claims)))
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func creatorClaims(userID, tenantID string) []identity.Claim {
	return []identity.Claim{
		{Type: identity.ClaimObjectID, Value: "oid-" + userID},
		{Type: identity.ClaimTenantID, Value: "tid-" + tenantID},
		{Type: identity.ClaimSurveyUserID, Value: userID},
		{Type: identity.ClaimSurveyTenantID, Value: tenantID},
		{Type: identity.ClaimRoles, Value: identity.RoleSurveyCreator},
	}
}

func adminClaims(userID, tenantID string) []identity.Claim {
	return append(creatorClaims(userID, tenantID),
		identity.Claim{Type: identity.ClaimRoles, Value: identity.RoleSurveyAdmin})
}

func TestCreateSurveyRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/surveys", `{"title":"Lunch"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateSurveyRequiresCreatorRole(t *testing.T) {
	env := newTestEnv(t)
	claims := []identity.Claim{
		{Type: identity.ClaimObjectID, Value: "oid-1"},
		{Type: identity.ClaimTenantID, Value: "tid-1"},
		{Type: identity.ClaimSurveyUserID, Value: "1"},
		{Type: identity.ClaimSurveyTenantID, Value: "1"},
	}
	rec := env.request(t, http.MethodPost, "/surveys", `{"title":"Lunch"}`, claims)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSurveyOwnershipFromPrincipal(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/surveys", `{"title":"Lunch"}`, creatorClaims("42", "7"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := env.store.surveys[1]
	require.NotNil(t, created)
	assert.Equal(t, "Lunch", created.Title)
	assert.Equal(t, int64(42), created.OwnerID, "owner must come from the principal")
	assert.Equal(t, int64(7), created.TenantID, "tenant must come from the principal")
}

func TestGetSurveyAccessMatrix(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Lunch", OwnerID: 42, TenantID: 7, Contributors: []int64{99}}
	env.store.nextID = 2

	tests := []struct {
		name   string
		claims []identity.Claim
		want   int
	}{
		{"owner can read", creatorClaims("42", "7"), http.StatusOK},
		{"owner from another tenant can read", creatorClaims("42", "8"), http.StatusOK},
		{"contributor can read", creatorClaims("99", "3"), http.StatusOK},
		{"stranger denied", creatorClaims("55", "7"), http.StatusForbidden},
		{"unauthenticated denied", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodGet, "/surveys/1", "", tt.claims)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGetSurveyNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/surveys/12345", "", creatorClaims("42", "7"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSurveyAdminMatrix(t *testing.T) {
	tests := []struct {
		name   string
		claims []identity.Claim
		want   int
	}{
		{"owner can delete", creatorClaims("42", "7"), http.StatusNoContent},
		{"tenant admin can delete", adminClaims("55", "7"), http.StatusNoContent},
		{"admin of another tenant denied", adminClaims("55", "8"), http.StatusForbidden},
		{"same tenant without admin role denied", creatorClaims("55", "7"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Lunch", OwnerID: 42, TenantID: 7}
			env.store.nextID = 2

			rec := env.request(t, http.MethodDelete, "/surveys/1", "", tt.claims)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPublishSurvey(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Lunch", OwnerID: 42, TenantID: 7}
	env.store.nextID = 2

	rec := env.request(t, http.MethodPut, "/surveys/1/publish", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.store.surveys[1].Published)

	rec = env.request(t, http.MethodPut, "/surveys/1/unpublish", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.store.surveys[1].Published)
}

func TestContributorRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Lunch", OwnerID: 42, TenantID: 7}
	env.store.nextID = 2

	rec := env.request(t, http.MethodPost, "/surveys/1/contributor-requests",
		`{"email_address":"bob@example.com"}`, creatorClaims("42", "7"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/surveys/1/contributor-requests", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob@example.com")

	// only admins may invite
	rec = env.request(t, http.MethodPost, "/surveys/1/contributor-requests",
		`{"email_address":"eve@example.com"}`, creatorClaims("55", "8"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTenantSurveys(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Live", OwnerID: 42, TenantID: 7, Published: true}
	env.store.surveys[2] = &surveys.Survey{ID: 2, Title: "Draft", OwnerID: 55, TenantID: 7}
	env.store.surveys[3] = &surveys.Survey{ID: 3, Title: "Elsewhere", OwnerID: 60, TenantID: 8, Published: true}
	env.store.nextID = 4

	rec := env.request(t, http.MethodGet, "/tenants/7/surveys", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Live")
	assert.Contains(t, rec.Body.String(), "Draft")
	assert.NotContains(t, rec.Body.String(), "Elsewhere")
}

func TestListTenantSurveysOtherTenantDenied(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Live", OwnerID: 42, TenantID: 7, Published: true}
	env.store.nextID = 2

	rec := env.request(t, http.MethodGet, "/tenants/7/surveys", "", creatorClaims("55", "8"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodGet, "/tenants/7/surveys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolvedContributorRequestGrantsAccess(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Lunch", OwnerID: 42, TenantID: 7}
	env.store.nextID = 2

	rec := env.request(t, http.MethodPost, "/surveys/1/contributor-requests",
		`{"email_address":"bob@example.com"}`, creatorClaims("42", "7"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Invited but not yet signed in: no access.
	rec = env.request(t, http.MethodGet, "/surveys/1", "", creatorClaims("99", "8"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	granted, err := surveys.ResolvePendingContributorRequests(context.Background(), env.store, "bob@example.com", 99)
	require.NoError(t, err)
	assert.Equal(t, 1, granted)

	rec = env.request(t, http.MethodGet, "/surveys/1", "", creatorClaims("99", "8"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The invitation is consumed.
	rec = env.request(t, http.MethodGet, "/surveys/1/contributor-requests", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bob@example.com")
}

func TestListSurveysFilters(t *testing.T) {
	env := newTestEnv(t)
	env.store.surveys[1] = &surveys.Survey{ID: 1, Title: "Mine", OwnerID: 42, TenantID: 7, Published: true}
	env.store.surveys[2] = &surveys.Survey{ID: 2, Title: "Draft", OwnerID: 42, TenantID: 7}
	env.store.surveys[3] = &surveys.Survey{ID: 3, Title: "Contributed", OwnerID: 55, TenantID: 8, Contributors: []int64{42}}
	env.store.nextID = 4

	rec := env.request(t, http.MethodGet, "/surveys", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mine")
	assert.Contains(t, rec.Body.String(), "Draft")
	assert.NotContains(t, rec.Body.String(), "Contributed")

	rec = env.request(t, http.MethodGet, "/surveys?filter=published", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mine")
	assert.NotContains(t, rec.Body.String(), "Draft")

	rec = env.request(t, http.MethodGet, "/surveys?filter=contributed", "", creatorClaims("42", "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Contributed")

	rec = env.request(t, http.MethodGet, "/surveys?filter=bogus", "", creatorClaims("42", "7"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTamperedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/surveys", nil)
	req.AddCookie(&http.Cookie{Name: sso.SessionCookieName, Value: "Zm9yZ2Vk"})

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/surveys/12345", "", creatorClaims("42", "7"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/surveys", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	out := httptest.NewRecorder()
	env.server.ServeHTTP(out, req)
	assert.Equal(t, "fixed-id", out.Header().Get("X-Request-ID"))
}
