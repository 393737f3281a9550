package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"deepsafe/internal/auth"
	"deepsafe/internal/config"
	"deepsafe/internal/geo"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/repository"
	"deepsafe/internal/service"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

type testServer struct {
	*httptest.Server
	pool *pgxpool.Pool
}

func setupServer(t *testing.T) *testServer {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	cfg := config.ProgressionConfig{
		StarterProvinces:  []string{"RM"},
		MaxLives:          5,
		StartingCredits:   100,
		LifeRegenInterval: 30 * time.Minute,
		DailyReward:       10,
	}
	catalog := geo.Default()
	locks := lock.New()
	profiles := repository.NewProfileRepository(pool)
	inventory := repository.NewInventoryRepository(pool)
	txs := repository.NewTransactionRepository(pool)
	friends := repository.NewFriendRepository(pool)
	badges := repository.NewBadgeRepository(pool)
	avatars := repository.NewAvatarRepository(pool)

	svc := Services{
		Account: service.NewAccountService(pool, profiles, repository.NewSessionRepository(pool), avatars, inventory, txs,
			auth.NewTokens("test-secret-0123456789", "deepsafe", 15*time.Minute), nil, time.Hour, cfg),
		Progression: service.NewProgressionService(pool, profiles, badges, inventory, txs, catalog, cfg, time.UTC),
		Missions:    service.NewMissionService(pool, repository.NewMissionRepository(pool), profiles, badges, txs, catalog),
		Shop:        service.NewShopService(pool, profiles, repository.NewShopRepository(pool), inventory, avatars, txs, locks),
		Gifts:       service.NewGiftService(pool, profiles, friends, repository.NewGiftRepository(pool), inventory, txs, locks),
		Friends:     service.NewFriendService(profiles, friends),
		Ranking:     service.NewRankingService(profiles, friends),
		Admin:       service.NewAdminService(pool, profiles, inventory, txs, locks, cfg),
		Catalog:     service.NewCatalogService(badges, avatars, catalog),
		Feedback:    service.NewFeedbackService(repository.NewFeedbackRepository(pool)),
		Analytics:   service.NewAnalyticsService(repository.NewAnalyticsRepository(pool), time.UTC),
		Backup:      service.NewBackupService(pool, repository.NewBackupRepository(pool)),
		Geo:         catalog,
	}

	srv := httptest.NewServer(NewRouter(svc, Options{}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, pool: pool}
}

// do sends a JSON request and decodes the envelope value into out when ok.
func (s *testServer) do(t *testing.T, method, path, token string, body any, header http.Header, out any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if env.OK && out != nil {
		require.NoError(t, json.Unmarshal(env.Value, out))
	}
	return resp, env
}

func (s *testServer) signUp(t *testing.T, username string) service.Session {
	t.Helper()
	var sess service.Session
	resp, env := s.do(t, http.MethodPost, "/v1/auth/signup", "", service.SignUpInput{
		Email:    username + "@example.com",
		Username: username,
		Password: "password123",
	}, nil, &sess)
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	return sess
}

func TestAPI_ProgressFlow(t *testing.T) {
	s := setupServer(t)
	sess := s.signUp(t, "ada")

	var p model.Progress
	resp, _ := s.do(t, http.MethodGet, "/v1/me/progress", sess.AccessToken, nil, nil, &p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(100), p.Credits)
	assert.Equal(t, 5, p.Lives)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp, env := s.do(t, http.MethodPatch, "/v1/me/progress", sess.AccessToken,
		map[string]any{"xp": 20}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, result.KindValidation, env.Kind)

	var patched model.Progress
	resp, env = s.do(t, http.MethodPatch, "/v1/me/progress", sess.AccessToken,
		map[string]any{"xp": 20}, http.Header{"If-Match": {etag}}, &patched)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, int64(20), patched.XP)
	assert.Equal(t, p.Version+1, patched.Version)
	fresh := resp.Header.Get("ETag")
	assert.NotEqual(t, etag, fresh)

	resp, env = s.do(t, http.MethodPatch, "/v1/me/progress", sess.AccessToken,
		map[string]any{"xp": 30}, http.Header{"If-Match": {etag}}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, result.KindConflict, env.Kind)

	resp, env = s.do(t, http.MethodPatch, "/v1/me/progress", sess.AccessToken,
		map[string]any{"unlocked_provinces": []string{"MI"}}, http.Header{"If-Match": {fresh}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, result.KindValidation, env.Kind)

	var hearts model.Progress
	resp, _ = s.do(t, http.MethodPost, "/v1/me/hearts/decrement", sess.AccessToken, nil, nil, &hearts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, hearts.Lives)
}

func TestAPI_ShopAndAdmin(t *testing.T) {
	s := setupServer(t)
	player := s.signUp(t, "player")
	boss := s.signUp(t, "boss")

	resp, env := s.do(t, http.MethodGet, "/v1/admin/users", player.AccessToken, nil, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, result.KindForbidden, env.Kind)

	_, err := s.pool.Exec(context.Background(), `UPDATE profiles SET is_admin = true WHERE id = $1`, boss.Profile.ID)
	require.NoError(t, err)
	var admin service.Session
	resp, _ = s.do(t, http.MethodPost, "/v1/auth/signin", "", signInRequest{Email: "boss@example.com", Password: "password123"}, nil, &admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item model.ShopItem
	resp, env = s.do(t, http.MethodPut, "/v1/admin/shop-items", admin.AccessToken, model.ShopItem{
		Name:       "Streak Freeze",
		Cost:       80,
		EffectType: model.EffectStreakFreeze,
	}, nil, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.NotEmpty(t, item.ID)

	var items []model.ShopItem
	resp, _ = s.do(t, http.MethodGet, "/v1/shop/items", "", nil, nil, &items)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, items, 1)

	var out model.PurchaseOutcome
	resp, env = s.do(t, http.MethodPost, "/v1/shop/items/"+item.ID+"/purchase", player.AccessToken, nil, nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, int64(20), out.Progress.Credits)

	resp, env = s.do(t, http.MethodPost, "/v1/shop/items/"+item.ID+"/purchase", player.AccessToken, nil, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, result.KindInsufficient, env.Kind)

	var credited model.Progress
	resp, env = s.do(t, http.MethodPost, "/v1/admin/users/"+player.Profile.ID+"/credits", admin.AccessToken,
		creditsRequest{Op: service.CreditOp("add"), Amount: 50}, nil, &credited)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, int64(70), credited.Credits)

	var txs []model.Transaction
	resp, _ = s.do(t, http.MethodGet, "/v1/admin/users/"+player.Profile.ID+"/transactions", admin.AccessToken, nil, nil, &txs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, txs, 3)

	var inv []model.InventoryItem
	resp, _ = s.do(t, http.MethodGet, "/v1/me/inventory", player.AccessToken, nil, nil, &inv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, inv, 1)
	assert.Equal(t, item.ID, inv[0].ItemID)
	assert.Equal(t, 1, inv[0].Quantity)

	resp, env = s.do(t, http.MethodPut, "/v1/admin/avatars", admin.AccessToken,
		model.Avatar{ID: "owl", Name: "Owl", IsPremium: true}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	var choices []model.AvatarChoice
	resp, _ = s.do(t, http.MethodGet, "/v1/me/avatars", player.AccessToken, nil, nil, &choices)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, choices, 1)
	assert.Equal(t, "owl", choices[0].ID)
	assert.False(t, choices[0].Unlocked)
}

func TestAPI_Sessions(t *testing.T) {
	s := setupServer(t)
	sess := s.signUp(t, "grace")

	resp, env := s.do(t, http.MethodPost, "/v1/auth/signup", "", service.SignUpInput{
		Email: "other@example.com", Username: "grace", Password: "password123",
	}, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, result.KindConflict, env.Kind)

	var rotated service.Session
	resp, _ = s.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: sess.RefreshToken}, nil, &rotated)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/v1/auth/signout", "", refreshRequest{RefreshToken: rotated.RefreshToken}, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = s.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: rotated.RefreshToken}, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, result.KindUnauthorized, env.Kind)

	var me model.Profile
	resp, _ = s.do(t, http.MethodGet, "/v1/auth/me", sess.AccessToken, nil, nil, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "grace", me.Username)
}
