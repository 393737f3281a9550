package handler

import (
	"fmt"
	"strings"

	"deepsafe/internal/model"
	"deepsafe/internal/service"
	"deepsafe/internal/shop"
)

const rule = "━━━━━━━━━━━━━━━"

var medals = []string{"🥇", "🥈", "🥉"}

func helpMessage(name string) string {
	return fmt.Sprintf(
		"👋 Hi %s!\n\n"+
			"This bot is the Telegram companion of DeepSafe.\n"+
			"Link your account from the app settings, then send the code here.\n\n"+
			"Commands:\n"+
			"/link <code> - link your DeepSafe account\n"+
			"/profile - your progress\n"+
			"/daily - daily login reward\n"+
			"/top - leaderboard\n"+
			"/rank - your position\n"+
			"/shop - open the shop\n"+
			"/bag - your items\n"+
			"/gifts - pending gifts\n"+
			"/claim <id> - claim a gift",
		name,
	)
}

// formatProfile renders the /profile card.
func formatProfile(p *model.Profile, rank int) string {
	pr := p.Progress
	var b strings.Builder
	b.WriteString("📊 Profile\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "👤 %s\n", p.Username)
	fmt.Fprintf(&b, "⭐ XP: %d (rank #%d)\n", pr.XP, rank)
	fmt.Fprintf(&b, "💰 Credits: %d\n", pr.Credits)
	fmt.Fprintf(&b, "❤️ Lives: %d/%d\n", pr.Lives, pr.MaxLives)
	fmt.Fprintf(&b, "🔥 Streak: %d (best %d)\n", pr.Streak, pr.HighestStreak)
	fmt.Fprintf(&b, "🗺️ Provinces unlocked: %d\n", len(pr.UnlockedProvinces))
	fmt.Fprintf(&b, "🏅 Badges: %d\n", len(pr.EarnedBadges))
	b.WriteString(rule)
	return b.String()
}

// formatLeaderboard renders the /top table.
func formatLeaderboard(entries []model.RankEntry) string {
	if len(entries) == 0 {
		return "📊 No players ranked yet"
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n")
	b.WriteString(rule + "\n")
	for _, e := range entries {
		pos := fmt.Sprintf("%d.", e.Rank)
		if e.Rank >= 1 && e.Rank <= len(medals) {
			pos = medals[e.Rank-1]
		}
		fmt.Fprintf(&b, "%s %s: %d XP\n", pos, e.Username, e.XP)
	}
	b.WriteString(rule)
	return b.String()
}

func formatLogin(res *service.LoginResult) string {
	p := res.Progress
	if !res.Rewarded {
		return fmt.Sprintf("⏰ You already logged in today. Streak: %d 🔥", p.Streak)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Daily login: +%d credits\n", res.Reward)
	fmt.Fprintf(&b, "🔥 Streak: %d\n", p.Streak)
	if res.FreezeUsed {
		b.WriteString("🧊 A streak freeze saved your streak\n")
	}
	if len(res.NewBadges) > 0 {
		fmt.Fprintf(&b, "🏅 New badges: %s\n", strings.Join(res.NewBadges, ", "))
	}
	fmt.Fprintf(&b, "💰 Credits: %d", p.Credits)
	return b.String()
}

// formatGifts lists pending gifts with the id to claim them by.
func formatGifts(gifts []*model.Gift) string {
	if len(gifts) == 0 {
		return "🎁 No gifts waiting for you"
	}
	var b strings.Builder
	b.WriteString("🎁 Pending gifts\n")
	b.WriteString(rule + "\n")
	for _, g := range gifts {
		fmt.Fprintf(&b, "#%d %s", g.ID, shop.FormatReward(model.Reward{Type: g.Type, Value: g.Amount}))
		if g.Message != "" {
			fmt.Fprintf(&b, " - %q", g.Message)
		}
		b.WriteString("\n")
	}
	b.WriteString(rule + "\n")
	b.WriteString("Claim one with /claim <id>")
	return b.String()
}

func formatClaim(g *model.Gift, p model.Progress) string {
	return fmt.Sprintf(
		"✅ Claimed %s\n💰 Credits: %d\n⭐ XP: %d\n❤️ Lives: %d/%d",
		shop.FormatReward(model.Reward{Type: g.Type, Value: g.Amount}),
		p.Credits, p.XP, p.Lives, p.MaxLives,
	)
}

func formatAdminCredits(username string, op string, amount int64, p model.Progress) string {
	return fmt.Sprintf(
		"✅ Done\n\n👤 User: %s\n🔧 Operation: %s %d\n💰 Credits now: %d",
		username, op, amount, p.Credits,
	)
}
