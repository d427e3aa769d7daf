package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canvass-io/canvass/pkg/httputil"
	"github.com/canvass-io/canvass/pkg/observability"
	"github.com/canvass-io/canvass/pkg/sso"
)

// AuthHandlers serves the browser sign-in and sign-out routes.
type AuthHandlers struct {
	authenticator *sso.Authenticator
	signOut       *sso.SignOutManager
	postLogoutURL string
	postSignInURL string
	logger        *observability.Logger
}

// NewAuthHandlers creates the sign-in/sign-out handlers.
func NewAuthHandlers(authenticator *sso.Authenticator, signOut *sso.SignOutManager, postSignInURL, postLogoutURL string, logger *observability.Logger) *AuthHandlers {
	if postSignInURL == "" {
		postSignInURL = "/"
	}
	if postLogoutURL == "" {
		postLogoutURL = "/"
	}
	return &AuthHandlers{
		authenticator: authenticator,
		signOut:       signOut,
		postLogoutURL: postLogoutURL,
		postSignInURL: postSignInURL,
		logger:        logger,
	}
}

// RegisterRoutes wires the authentication routes.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signin", h.signIn).Methods(http.MethodGet)
	router.HandleFunc("/signin-oidc", h.callback).Methods(http.MethodGet)
	router.HandleFunc("/signout", h.handleSignOut).Methods(http.MethodGet, http.MethodPost)
}

func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	h.authenticator.InitiateLogin(w, r)
}

func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticator.HandleCallback(r.Context(), w, r); err != nil {
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}
	http.Redirect(w, r, h.postSignInURL, http.StatusFound)
}

func (h *AuthHandlers) handleSignOut(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		http.Redirect(w, r, h.postLogoutURL, http.StatusFound)
		return
	}
	if err := h.signOut.SignOut(r.Context(), w, principal); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	http.Redirect(w, r, h.postLogoutURL, http.StatusFound)
}
