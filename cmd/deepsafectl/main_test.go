package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepsafe/internal/client"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
)

// fakeServer serves the endpoints the CLI uses from memory.
type fakeServer struct {
	mu        sync.Mutex
	progress  model.Progress
	access    string
	refreshes int
}

func reply[T any](w http.ResponseWriter, status int, r result.Result[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(r)
}

func (f *fakeServer) authed(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+f.access {
		reply(w, http.StatusUnauthorized, result.Fail[any](result.KindUnauthorized, "invalid or expired token"))
		return false
	}
	return true
}

func (f *fakeServer) router() http.Handler {
	profile := &model.Profile{ID: "u-1", Username: "alice"}
	r := chi.NewRouter()
	r.Post("/v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, result.OK(client.Session{AccessToken: f.access, RefreshToken: "r-0", Profile: profile}))
	})
	r.Post("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.refreshes++
		f.access = "a-" + strconv.Itoa(f.refreshes)
		sess := client.Session{AccessToken: f.access, RefreshToken: "r-" + strconv.Itoa(f.refreshes), Profile: profile}
		f.mu.Unlock()
		reply(w, http.StatusOK, result.OK(sess))
	})
	r.Get("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if f.authed(w, r) {
			reply(w, http.StatusOK, result.OK(profile))
		}
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
		var patch model.ProgressPatch
		_ = json.NewDecoder(r.Body).Decode(&patch)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.progress = f.progress.Apply(patch)
		f.progress.Version++
		reply(w, http.StatusOK, result.OK(f.progress))
	})
	r.Get("/v1/badges", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, result.OK([]model.Badge{}))
	})
	return r
}

type harness struct {
	fake   *fakeServer
	server string
	cache  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := &fakeServer{
		access: "a-0",
		progress: model.Progress{
			UserID:            "u-1",
			Credits:           100,
			Lives:             5,
			MaxLives:          5,
			UnlockedProvinces: model.ProvinceSet{"RM"},
			Version:           1,
		},
	}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	return &harness{fake: f, server: srv.URL, cache: filepath.Join(t.TempDir(), "cache.db")}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--server", h.server, "--cache", h.cache}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "progress", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestCLI_LoginAndProgress(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice")

	out, err = h.run(t, "progress", "add-xp", "15")
	require.NoError(t, err)
	assert.Contains(t, out, "XP:        15")

	out, err = h.run(t, "--format", "json", "progress", "cached")
	require.NoError(t, err)
	var cached model.Progress
	require.NoError(t, json.Unmarshal([]byte(out), &cached))
	assert.Equal(t, int64(15), cached.XP)
	assert.Equal(t, int64(2), cached.Version)
}

func TestCLI_RefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "login", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)

	// The server forgets the access token; the CLI must rotate it.
	h.fake.mu.Lock()
	h.fake.access = "expired"
	h.fake.mu.Unlock()

	out, err := h.run(t, "progress", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Credits:   100")
	assert.Equal(t, 1, h.fake.refreshes)

	// The rotated token was stored, so no second refresh is needed.
	_, err = h.run(t, "progress", "show")
	require.NoError(t, err)
	assert.Equal(t, 1, h.fake.refreshes)
}

func TestCLI_InvalidInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--format", "yaml", "progress", "show")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid format"))

	_, err = h.run(t, "login", "--email", "alice@example.com", "--password", "secret")
	require.NoError(t, err)
	_, err = h.run(t, "progress", "add-xp", "lots")
	require.Error(t, err)
	assert.Equal(t, result.KindValidation, result.KindOf(err))
}
