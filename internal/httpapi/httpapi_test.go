package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepsafe/internal/auth"
	"deepsafe/internal/pkg/result"
)

type envelope struct {
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value"`
	Kind    result.Kind     `json:"kind"`
	Message string          `json:"message"`
}

func readEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

type fakeAuthn struct {
	claims map[string]*auth.Claims
}

func (f fakeAuthn) Authenticate(token string) (*auth.Claims, error) {
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

func claimsFor(id string, admin bool) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}, Admin: admin}
}

func contextWithClaims(r *http.Request, c *auth.Claims) context.Context {
	return context.WithValue(r.Context(), claimsKey, c)
}

func TestStatusFor(t *testing.T) {
	tests := map[result.Kind]int{
		result.KindValidation:   http.StatusBadRequest,
		result.KindUnauthorized: http.StatusUnauthorized,
		result.KindForbidden:    http.StatusForbidden,
		result.KindNotFound:     http.StatusNotFound,
		result.KindConflict:     http.StatusConflict,
		result.KindInsufficient: http.StatusUnprocessableEntity,
		result.KindInFlight:     http.StatusLocked,
		result.KindBackend:      http.StatusInternalServerError,
	}
	for _, kind := range result.Kinds() {
		want, ok := tests[kind]
		require.True(t, ok, "kind %s has no expected status", kind)
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestIfMatchVersion(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{`"3"`, 3, true},
		{`W/"12"`, 12, true},
		{`7`, 7, true},
		{``, 0, false},
		{`"0"`, 0, false},
		{`"abc"`, 0, false},
		{`*`, 0, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPatch, "/v1/me/progress", nil)
		if tt.header != "" {
			req.Header.Set("If-Match", tt.header)
		}
		got, err := ifMatchVersion(req)
		if !tt.ok {
			assert.ErrorIs(t, err, errMissingVersion, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := bearerToken(req)
	assert.ErrorIs(t, err, errMissingToken)

	req.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(req)
	assert.ErrorIs(t, err, errMalformedToken)

	req.Header.Set("Authorization", "Bearer   ")
	_, err = bearerToken(req)
	assert.ErrorIs(t, err, errMalformedToken)

	req.Header.Set("Authorization", "bearer tok-1")
	token, err := bearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestRequireAuthAndAdmin(t *testing.T) {
	authn := fakeAuthn{claims: map[string]*auth.Claims{
		"player": claimsFor("u-1", false),
		"admin":  claimsFor("u-2", true),
	}}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, userID(r))
	})
	player := requireAuth(authn)(inner)
	admin := requireAuth(authn)(requireAdmin(inner))

	call := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call(player, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, result.KindUnauthorized, readEnvelope(t, rec).Kind)

	rec = call(player, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(player, "player")
	require.Equal(t, http.StatusOK, rec.Code)
	env := readEnvelope(t, rec)
	assert.True(t, env.OK)
	assert.JSONEq(t, `"u-1"`, string(env.Value))

	rec = call(admin, "player")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, result.KindForbidden, readEnvelope(t, rec).Kind)

	rec = call(admin, "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecode_Validation(t *testing.T) {
	var req creditsRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"op":"double","amount":-1}`))
	err := decode(httptest.NewRecorder(), r, &req)
	require.Error(t, err)
	assert.Equal(t, result.KindValidation, result.KindOf(err))
	assert.Contains(t, err.Error(), "creditsRequest.Op (oneof)")
	assert.Contains(t, err.Error(), "creditsRequest.Amount (gte)")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	err = decode(httptest.NewRecorder(), r, &req)
	assert.Equal(t, result.KindValidation, result.KindOf(err))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"op":"add","amount":5}`))
	require.NoError(t, decode(httptest.NewRecorder(), r, &req))
	assert.Equal(t, int64(5), req.Amount)
}

func TestWriteError_HidesBackendDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := readEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, result.KindBackend, env.Kind)
	assert.Equal(t, "internal error", env.Message)
	assert.NotContains(t, rec.Body.String(), "value")
}

func TestRouter_WithoutServices(t *testing.T) {
	router := NewRouter(Services{}, Options{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, readEnvelope(t, rec).OK)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me/progress", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/oauth/github/callback?state=x&code=y", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "oauth state mismatch", readEnvelope(t, rec).Message)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthz_Database(t *testing.T) {
	up := NewRouter(Services{DB: healthFunc(func(context.Context) error { return nil })}, Options{})
	rec := httptest.NewRecorder()
	up.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(readEnvelope(t, rec).Value, &status))
	assert.Equal(t, "up", status["database"])

	down := NewRouter(Services{DB: healthFunc(func(context.Context) error {
		return errors.New("failed to ping database: connection refused")
	})}, Options{})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := readEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, result.KindBackend, env.Kind)
	assert.Equal(t, "database unavailable", env.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestOAuthCallback_StateMismatch(t *testing.T) {
	a := &api{}
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/oauth/github/callback?state=abc&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "abd"})
	rec := httptest.NewRecorder()
	a.oauthCallback(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/oauth/github/callback?state=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "abc"})
	rec = httptest.NewRecorder()
	a.oauthCallback(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing authorization code", readEnvelope(t, rec).Message)
}

func TestHandlers_RejectBadInput(t *testing.T) {
	a := &api{}
	ctxWith := func(req *http.Request) *http.Request {
		return req.WithContext(contextWithClaims(req, claimsFor("u-1", true)))
	}

	req := ctxWith(httptest.NewRequest(http.MethodPost, "/v1/gifts",
		strings.NewReader(`{"gift_type":"credits","gift_amount":5}`)))
	rec := httptest.NewRecorder()
	a.sendGift(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errNoRecipient.Message, readEnvelope(t, rec).Message)

	req = ctxWith(httptest.NewRequest(http.MethodPost, "/v1/admin/gifts",
		strings.NewReader(`{"gift_type":"credits","gift_amount":5,"target_user_id":"nope"}`)))
	rec = httptest.NewRecorder()
	a.adminGift(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = ctxWith(httptest.NewRequest(http.MethodPost, "/v1/admin/uploads", nil))
	rec = httptest.NewRecorder()
	a.upload(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errUploadsDisabled.Message, readEnvelope(t, rec).Message)
}

func TestRouter_InvalidIDs(t *testing.T) {
	authn := fakeAuthn{claims: map[string]*auth.Claims{"player": claimsFor("u-1", false)}}
	a := &api{}
	h := requireAuth(authn)(http.HandlerFunc(a.purchase))

	req := httptest.NewRequest(http.MethodPost, "/v1/shop/items/not-a-uuid/purchase", nil)
	req.Header.Set("Authorization", "Bearer player")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid id", readEnvelope(t, rec).Message)
}
