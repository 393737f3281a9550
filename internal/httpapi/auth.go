package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deepsafe/internal/auth"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/service"
)

const (
	stateCookie    = "deepsafe_oauth_state"
	stateCookieTTL = 600
)

var errBadState = result.New(result.KindUnauthorized, "oauth state mismatch")

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (a *api) signUp(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpInput
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := a.svc.Account.SignUp(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, sess)
}

func (a *api) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := a.svc.Account.SignIn(r.Context(), req.Email, req.Password)
	respond(w, r, sess, err)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := a.svc.Account.Refresh(r.Context(), req.RefreshToken)
	respond(w, r, sess, err)
}

func (a *api) signOut(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := a.svc.Account.SignOut(r.Context(), req.RefreshToken)
	respond(w, r, true, err)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Account.Me(r.Context(), userID(r))
	respond(w, r, p, err)
}

// oauthStart redirects to the provider with a random state that is echoed
// back in a short-lived cookie.
func (a *api) oauthStart(w http.ResponseWriter, r *http.Request) {
	state, err := auth.RandomCode(24)
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := a.svc.Account.OAuthURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/v1/auth/oauth",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *api) oauthCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeError(w, r, errBadState)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/v1/auth/oauth", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, result.New(result.KindValidation, "missing authorization code"))
		return
	}
	sess, err := a.svc.Account.OAuthSignIn(r.Context(), chi.URLParam(r, "provider"), code)
	respond(w, r, sess, err)
}
