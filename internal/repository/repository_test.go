// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container with the schema applied.
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
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

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func createProfile(t *testing.T, repo *ProfileRepository, username string) *model.Profile {
	t.Helper()
	email := username + "@example.com"
	p, err := repo.Create(context.Background(), NewProfile{
		Email:            &email,
		Username:         username,
		StarterProvinces: []string{"RM"},
		MaxLives:         5,
		StartingCredits:  100,
	})
	require.NoError(t, err)
	return p
}

func ptr[T any](v T) *T { return &v }

// ============================================================================
// ProfileRepository Tests
// ============================================================================

func TestProfileRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool)
	ctx := context.Background()

	p := createProfile(t, repo, "alice")
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, int64(100), p.Progress.Credits)
	assert.Equal(t, 5, p.Progress.Lives)
	assert.Equal(t, model.ProvinceSet{"RM"}, p.Progress.UnlockedProvinces)
	assert.Equal(t, p.ID, p.Progress.UserID)
	assert.Equal(t, int64(1), p.Progress.Version)

	_, err := repo.Create(ctx, NewProfile{Username: "alice", MaxLives: 5})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	found, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProfileRepository_WriteProgressIfVersion(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool)
	ctx := context.Background()
	p := createProfile(t, repo, "bob")

	next := p.Progress.Clone()
	next.XP = 50
	next.ProvinceScores = model.ProvinceScores{"RM": {Score: 8, MaxScore: 10, IsCompleted: true}}

	saved, err := repo.WriteProgressIfVersion(ctx, next, p.Progress.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(50), saved.XP)
	assert.Equal(t, p.Progress.Version+1, saved.Version)
	assert.Equal(t, next.ProvinceScores, saved.ProvinceScores)

	_, err = repo.WriteProgressIfVersion(ctx, next, p.Progress.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestProfileRepository_AdjustCredits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool)
	ctx := context.Background()
	p := createProfile(t, repo, "carol")

	got, err := repo.AdjustCredits(ctx, p.ID, -60)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.Credits)

	_, err = repo.AdjustCredits(ctx, p.ID, -41)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	got, err = repo.SetCredits(ctx, p.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Credits)
}

func TestProfileRepository_DecrementHearts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool)
	ctx := context.Background()
	p := createProfile(t, repo, "dave")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := repo.DecrementHearts(ctx, p.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Lives)
	require.NotNil(t, got.LastRefillAt)
	assert.True(t, now.Equal(*got.LastRefillAt))

	later := now.Add(time.Minute)
	for i := 0; i < 6; i++ {
		got, err = repo.DecrementHearts(ctx, p.ID, later)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, got.Lives)
	assert.True(t, now.Equal(*got.LastRefillAt), "timer starts when lives leave full")
}

func TestProfileRepository_Rank(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool)
	ctx := context.Background()

	xp := map[string]int64{"r1": 300, "r2": 200, "r3": 200, "r4": 100}
	ids := map[string]string{}
	for name, amount := range xp {
		p := createProfile(t, repo, name)
		next := p.Progress.Clone()
		next.XP = amount
		_, err := repo.WriteProgress(ctx, next)
		require.NoError(t, err)
		ids[name] = p.ID
	}

	for name, want := range map[string]int{"r1": 1, "r2": 2, "r3": 2, "r4": 4} {
		rank, err := repo.Rank(ctx, ids[name])
		require.NoError(t, err)
		assert.Equal(t, want, rank, name)
	}

	top, err := repo.TopByXP(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "r1", top[0].Username)
}

// ============================================================================
// Content Repository Tests
// ============================================================================

func TestMissionRepository_ReplaceQuestions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMissionRepository(pool)
	ctx := context.Background()

	var missionID string
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		m, err := repo.WithTx(tx).Upsert(ctx, model.Mission{Title: "Phishing 101", Level: 1, ProvinceID: ptr("RM"), XPReward: 50})
		if err != nil {
			return err
		}
		missionID = m.ID
		_, err = repo.WithTx(tx).ReplaceQuestions(ctx, m.ID, []model.MissionQuestion{
			{Text: "q1", Options: []string{"a", "b"}, CorrectAnswerIndex: 1},
			{Text: "q2", Options: []string{"a", "b", "c"}, CorrectAnswerIndex: 2},
		})
		return err
	})
	require.NoError(t, err)

	m, err := repo.Get(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, m.Questions, 2)
	assert.Equal(t, "q1", m.Questions[0].Text)
	assert.Equal(t, []string{"a", "b", "c"}, m.Questions[1].Options)

	_, err = repo.ReplaceQuestions(ctx, missionID, []model.MissionQuestion{{Text: "only", Options: []string{"x", "y"}}})
	require.NoError(t, err)
	m, err = repo.Get(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, m.Questions, 1)

	listed, err := repo.List(ctx, MissionFilter{ProvinceID: "RM"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	listed, err = repo.List(ctx, MissionFilter{ProvinceID: "MI"})
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, repo.Delete(ctx, missionID))
	_, err = repo.Get(ctx, missionID)
	assert.ErrorIs(t, err, ErrMissionNotFound)
}

func TestBadgeRepository_UpsertList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewBadgeRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.Badge{
		ID: "xp-100", Name: "Rookie", XPReward: 10,
		Condition: model.BadgeCondition{Kind: model.ConditionXPMilestone, Threshold: 100},
	}))
	require.NoError(t, repo.Upsert(ctx, model.Badge{
		ID: "lazio", Name: "Lazio Master",
		Condition: model.BadgeCondition{Kind: model.ConditionRegionMaster, Region: "lazio"},
	}))

	badges, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, badges, 2)
	byID := map[string]model.Badge{}
	for _, b := range badges {
		byID[b.ID] = b
	}
	assert.Equal(t, int64(100), byID["xp-100"].Condition.Threshold)
	assert.Equal(t, "lazio", byID["lazio"].Condition.Region)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), ErrBadgeNotFound)
}

// ============================================================================
// Shop and Inventory Repository Tests
// ============================================================================

func TestShopRepository_LootAndStock(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewShopRepository(pool)
	ctx := context.Background()

	box, err := repo.Upsert(ctx, model.ShopItem{Name: "Box", Cost: 50, EffectType: model.EffectMysteryBox, IsLimited: true, Stock: ptr(1)})
	require.NoError(t, err)
	_, err = repo.ReplaceLoot(ctx, box.ID, []model.MysteryBoxLoot{
		{RewardType: model.RewardCredits, RewardValue: 100, Weight: 3},
		{RewardType: model.RewardXP, RewardValue: 20, Weight: 1},
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, box.ID)
	require.NoError(t, err)
	require.Len(t, got.Loot, 2)
	assert.Equal(t, model.RewardCredits, got.Loot[0].RewardType)

	require.NoError(t, repo.DecrementStock(ctx, box.ID))
	assert.ErrorIs(t, repo.DecrementStock(ctx, box.ID), ErrOutOfStock)
}

func TestInventoryRepository_Stacks(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "erin")
	freeze, err := NewShopRepository(pool).Upsert(ctx, model.ShopItem{Name: "Freeze", Cost: 10, EffectType: model.EffectStreakFreeze})
	require.NoError(t, err)

	repo := NewInventoryRepository(pool)
	require.NoError(t, repo.AddItem(ctx, p.ID, freeze.ID, 1))
	require.NoError(t, repo.AddItem(ctx, p.ID, freeze.ID, 1))

	n, err := repo.GetQuantity(ctx, p.ID, freeze.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	used, err := repo.ConsumeEffect(ctx, p.ID, model.EffectStreakFreeze)
	require.NoError(t, err)
	assert.True(t, used)

	require.NoError(t, repo.SetQuantity(ctx, p.ID, freeze.ID, 0))
	used, err = repo.ConsumeEffect(ctx, p.ID, model.EffectStreakFreeze)
	require.NoError(t, err)
	assert.False(t, used)

	items, err := repo.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInventoryRepository_Avatars(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "fern")
	avatars := NewAvatarRepository(pool)
	require.NoError(t, avatars.Upsert(ctx, model.Avatar{ID: "owl", Name: "Owl", IsPremium: true}))
	require.NoError(t, avatars.Upsert(ctx, model.Avatar{ID: "fox", Name: "Fox", IsPremium: true}))

	repo := NewInventoryRepository(pool)
	owned, err := repo.OwnedAvatars(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)

	require.NoError(t, repo.UnlockAvatar(ctx, p.ID, "owl"))
	require.NoError(t, repo.UnlockAvatar(ctx, p.ID, "owl"))
	require.NoError(t, repo.UnlockAvatar(ctx, p.ID, "fox"))

	owned, err = repo.OwnedAvatars(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "owl"}, owned)

	has, err := repo.OwnsAvatar(ctx, p.ID, "owl")
	require.NoError(t, err)
	assert.True(t, has)
}

// ============================================================================
// Social Repository Tests
// ============================================================================

func TestFriendRepository_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	profiles := NewProfileRepository(pool)
	a := createProfile(t, profiles, "fa")
	b := createProfile(t, profiles, "fb")

	repo := NewFriendRepository(pool)
	require.NoError(t, repo.Request(ctx, a.ID, b.ID))
	assert.ErrorIs(t, repo.Request(ctx, b.ID, a.ID), ErrFriendExists)

	ok, err := repo.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := repo.List(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Incoming)

	require.NoError(t, repo.Accept(ctx, a.ID, b.ID))
	ok, err = repo.AreFriends(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Remove(ctx, b.ID, a.ID))
	assert.ErrorIs(t, repo.Remove(ctx, b.ID, a.ID), ErrFriendNotFound)
}

func TestGiftRepository_ClaimOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "gina")

	repo := NewGiftRepository(pool)
	g, err := repo.Create(ctx, model.Gift{RecipientID: p.ID, Type: model.RewardCredits, Amount: 25, Message: "hi"})
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := repo.Claim(ctx, g.ID, p.ID, time.Now())
	require.NoError(t, err)
	assert.NotNil(t, claimed.ClaimedAt)

	_, err = repo.Claim(ctx, g.ID, p.ID, time.Now())
	assert.ErrorIs(t, err, ErrGiftNotFound)
}

func TestSessionRepository_ConsumeOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "hank")
	now := time.Now()

	repo := NewSessionRepository(pool)
	_, err := repo.Create(ctx, p.ID, "hash", now.Add(time.Hour))
	require.NoError(t, err)

	s, err := repo.Consume(ctx, "hash", now)
	require.NoError(t, err)
	assert.Equal(t, p.ID, s.ProfileID)

	_, err = repo.Consume(ctx, "hash", now)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, repo.CreateLinkCode(ctx, p.ID, "ABC123", now.Add(time.Minute)))
	_, err = repo.ConsumeLinkCode(ctx, "ABC123", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrLinkCodeNotFound)
}

// ============================================================================
// Ledger, Analytics and Backup Tests
// ============================================================================

func TestTransactionRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "ivan")

	repo := NewTransactionRepository(pool)
	desc := "Daily login reward"
	_, err := repo.Create(ctx, p.ID, 10, model.TxTypeDaily, &desc)
	require.NoError(t, err)
	_, err = repo.Create(ctx, p.ID, -5, model.TxTypeShopPurchase, nil)
	require.NoError(t, err)

	txs, err := repo.GetByProfileID(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-5), txs[0].Amount)

	has, err := repo.HasTypeSince(ctx, p.ID, model.TxTypeDaily, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAnalyticsRepository_Series(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := createProfile(t, NewProfileRepository(pool), "judy")
	ledger := NewTransactionRepository(pool)
	_, err := ledger.Create(ctx, p.ID, 30, model.TxTypeMission, nil)
	require.NoError(t, err)
	_, err = ledger.Create(ctx, p.ID, -12, model.TxTypeShopPurchase, nil)
	require.NoError(t, err)

	today := time.Now().UTC()
	since := today.AddDate(0, 0, -6)
	backfilled, err := ledger.CreateAt(ctx, p.ID, 7, model.TxTypeMission, nil, today.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.WithinDuration(t, today.AddDate(0, 0, -3), backfilled.CreatedAt, time.Second)

	repo := NewAnalyticsRepository(pool)

	signups, err := repo.SignupsPerDay(ctx, since, today, "UTC")
	require.NoError(t, err)
	require.Len(t, signups, 7)
	assert.Equal(t, int64(1), signups[6].Count)

	credits, err := repo.CreditsPerDay(ctx, since, today, "UTC", model.EarningTxTypes())
	require.NoError(t, err)
	require.Len(t, credits, 7)
	assert.Equal(t, int64(30), credits[6].Earned)
	assert.Equal(t, int64(12), credits[6].Spent)
	assert.Equal(t, int64(7), credits[3].Earned)
	assert.Zero(t, credits[3].Spent)
	assert.Zero(t, credits[5].Earned)

	total, err := repo.CreditsInCirculation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestBackupRepository_ExportRestore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	profiles := NewProfileRepository(pool)
	p := createProfile(t, profiles, "kate")
	_, err := NewTransactionRepository(pool).Create(ctx, p.ID, 100, model.TxTypeInitial, nil)
	require.NoError(t, err)

	repo := NewBackupRepository(pool)
	data, err := repo.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, data, len(BackupTables))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data["profiles"], &rows))
	require.Len(t, rows, 1)

	_, err = profiles.AdjustCredits(ctx, p.ID, 50)
	require.NoError(t, err)

	err = db.InTx(ctx, pool, func(tx pgx.Tx) error {
		return NewBackupRepository(tx).Restore(ctx, data)
	})
	require.NoError(t, err)

	restored, err := profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), restored.Progress.Credits)

	_, err = NewTransactionRepository(pool).Create(ctx, p.ID, 1, model.TxTypeDaily, nil)
	require.NoError(t, err, "sequence follows restored ids")

	err = repo.Restore(ctx, map[string]json.RawMessage{"pg_authid": json.RawMessage(`[]`)})
	assert.ErrorIs(t, err, ErrUnknownTable)
}
