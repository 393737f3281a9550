package handler

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepsafe/internal/model"
	"deepsafe/internal/service"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatProfile(t *testing.T) {
	p := &model.Profile{
		ID:       "u-1",
		Username: "alice",
		Progress: model.Progress{
			XP:                120,
			Credits:           35,
			Lives:             3,
			MaxLives:          5,
			Streak:            2,
			HighestStreak:     6,
			UnlockedProvinces: model.ProvinceSet{"RM", "MI"},
			EarnedBadges:      model.EarnedBadges{{BadgeID: "first_mission"}},
		},
	}
	newGolden(t).Assert(t, "profile", []byte(formatProfile(p, 4)))
}

func TestFormatLeaderboard(t *testing.T) {
	entries := []model.RankEntry{
		{Rank: 1, Username: "alice", XP: 300},
		{Rank: 2, Username: "bob", XP: 250},
		{Rank: 3, Username: "carol", XP: 250},
		{Rank: 4, Username: "dave", XP: 10},
	}
	newGolden(t).Assert(t, "leaderboard", []byte(formatLeaderboard(entries)))

	assert.Equal(t, "📊 No players ranked yet", formatLeaderboard(nil))
}

func TestFormatLogin(t *testing.T) {
	res := &service.LoginResult{
		Progress:   model.Progress{Streak: 4, Credits: 60},
		Rewarded:   true,
		Reward:     10,
		FreezeUsed: true,
		NewBadges:  []string{"streak_3"},
	}
	newGolden(t).Assert(t, "login_rewarded", []byte(formatLogin(res)))

	res.Rewarded = false
	assert.Equal(t, "⏰ You already logged in today. Streak: 4 🔥", formatLogin(res))
}

func TestFormatGifts(t *testing.T) {
	gifts := []*model.Gift{
		{ID: 7, Type: model.RewardCredits, Amount: 50, Message: "welcome"},
		{ID: 9, Type: model.RewardHearts, Amount: 2},
	}
	newGolden(t).Assert(t, "gifts", []byte(formatGifts(gifts)))

	assert.Equal(t, "🎁 No gifts waiting for you", formatGifts(nil))
}

func TestParseAdminArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		op         service.CreditOp
		wantUser   string
		wantAmount int64
		wantErr    string
	}{
		{"add", []string{"alice", "100"}, service.CreditAdd, "alice", 100, ""},
		{"set zero", []string{"alice", "0"}, service.CreditSet, "alice", 0, ""},
		{"sub zero", []string{"alice", "0"}, service.CreditSub, "", 0, "greater than 0"},
		{"negative", []string{"alice", "-5"}, service.CreditAdd, "", 0, "greater than 0"},
		{"not a number", []string{"alice", "ten"}, service.CreditAdd, "", 0, "whole number"},
		{"missing amount", []string{"alice"}, service.CreditAdd, "", 0, "Usage: /admin_add"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, amount, err := parseAdminArgs(tt.args, tt.op)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantAmount, amount)
		})
	}
}

func TestHelpMessage_ListsCommands(t *testing.T) {
	msg := helpMessage("alice")
	for _, cmd := range []string{"/link", "/profile", "/daily", "/top", "/rank", "/shop", "/bag", "/gifts", "/claim"} {
		assert.Contains(t, msg, cmd)
	}
}
