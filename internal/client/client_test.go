package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
)

var _ progression.Repository = (*Client)(nil)

// fakeAPI serves the progression endpoints from memory.
type fakeAPI struct {
	mu          sync.Mutex
	progress    model.Progress
	token       string
	saves       int
	lastIfMatch string
}

func reply[T any](w http.ResponseWriter, status int, r result.Result[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(r)
}

func (f *fakeAPI) authed(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		reply(w, http.StatusUnauthorized, result.Fail[any](result.KindUnauthorized, "invalid or expired token"))
		return false
	}
	return true
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			reply(w, http.StatusUnauthorized, result.Fail[any](result.KindUnauthorized, "invalid email or password"))
			return
		}
		reply(w, http.StatusOK, result.OK(Session{AccessToken: f.token, RefreshToken: "r-1"}))
	})
	r.Get("/v1/me/progress", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		reply(w, http.StatusOK, result.OK(f.progress))
	})
	r.Patch("/v1/me/progress", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.saves++
		f.lastIfMatch = r.Header.Get("If-Match")
		version, _ := strconv.ParseInt(strings.Trim(f.lastIfMatch, `"`), 10, 64)
		if version != f.progress.Version {
			reply(w, http.StatusConflict, result.Fail[any](result.KindConflict, "progress was changed elsewhere"))
			return
		}
		var patch model.ProgressPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			reply(w, http.StatusBadRequest, result.Fail[any](result.KindValidation, "invalid request body"))
			return
		}
		f.progress = f.progress.Apply(patch)
		f.progress.Version++
		reply(w, http.StatusOK, result.OK(f.progress))
	})
	r.Get("/v1/badges", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, result.OK([]model.Badge{}))
	})
	r.Post("/v1/shop/items/{id}/purchase", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnprocessableEntity, result.Fail[any](result.KindInsufficient, "insufficient credits"))
	})
	r.Get("/v1/admin/backup", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, result.OK(map[string]any{"version": 1, "data": map[string]any{"badges": []any{}}}))
	})
	r.Post("/v1/admin/restore", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data map[string]json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
			reply(w, http.StatusBadRequest, result.Fail[any](result.KindValidation, "invalid backup body"))
			return
		}
		reply(w, http.StatusOK, result.OK(true))
	})
	return r
}

func newFake(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	f := &fakeAPI{
		token: "tok-1",
		progress: model.Progress{
			UserID:            "u-1",
			Credits:           50,
			Lives:             5,
			MaxLives:          5,
			UnlockedProvinces: model.ProvinceSet{"RM"},
			Version:           1,
		},
	}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return f, New(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestClient_SignInAdoptsToken(t *testing.T) {
	_, c := newFake(t)
	ctx := context.Background()

	_, err := c.FetchProgress(ctx, "u-1")
	assert.Equal(t, result.KindUnauthorized, result.KindOf(err))

	_, err = c.SignIn(ctx, "a@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", result.MessageOf(err))

	sess, err := c.SignIn(ctx, "a@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "r-1", sess.RefreshToken)

	p, err := c.FetchProgress(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Credits)
}

func TestClient_SaveProgressSendsVersion(t *testing.T) {
	f, c := newFake(t)
	c.SetToken("tok-1")
	ctx := context.Background()

	xp := int64(40)
	p, err := c.SaveProgress(ctx, "u-1", model.ProgressPatch{XP: &xp}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), p.XP)
	assert.Equal(t, int64(2), p.Version)
	assert.Equal(t, `"1"`, f.lastIfMatch)

	_, err = c.SaveProgress(ctx, "u-1", model.ProgressPatch{XP: &xp}, 1)
	assert.Equal(t, result.KindConflict, result.KindOf(err))
}

func TestClient_DrivesStore(t *testing.T) {
	f, c := newFake(t)
	c.SetToken("tok-1")
	ctx := context.Background()

	var notices []progression.Notice
	store := progression.NewStore(c, "u-1", progression.WithNotifier(progression.NotifierFunc(func(n progression.Notice) {
		notices = append(notices, n)
	})))

	res := store.AddXP(ctx, 25)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, int64(25), res.Value.XP)
	assert.Equal(t, int64(25), f.progress.XP)

	// A concurrent writer bumps the server version; the store refetches and retries.
	f.mu.Lock()
	f.progress.Version++
	f.mu.Unlock()
	res = store.AddXP(ctx, 5)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, int64(30), store.Confirmed().XP)
	assert.Equal(t, 3, f.saves)

	out := store.Purchase(ctx, model.ShopItem{ID: "00000000-0000-0000-0000-000000000001", Cost: 10, EffectType: model.EffectHearts})
	assert.False(t, out.OK)
	assert.Equal(t, result.KindInsufficient, out.Kind)
	require.Len(t, notices, 1)
	assert.Equal(t, result.KindInsufficient, notices[0].Kind)
}

func TestClient_Backup(t *testing.T) {
	_, c := newFake(t)
	c.SetToken("tok-1")
	ctx := context.Background()

	doc, err := c.ExportBackup(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"badges"`)

	require.NoError(t, c.RestoreBackup(ctx, doc))

	err = c.RestoreBackup(ctx, json.RawMessage(`{"version":1}`))
	assert.Equal(t, result.KindValidation, result.KindOf(err))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).FetchProgress(context.Background(), "u-1")
	assert.Equal(t, result.KindBackend, result.KindOf(err))
	assert.Equal(t, "server unreachable", result.MessageOf(err))
}
