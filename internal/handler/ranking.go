package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/service"
)

const leaderboardSize = 10

// RankingHandler handles ranking-related commands.
type RankingHandler struct {
	accountService *service.AccountService
	rankingService *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(accountService *service.AccountService, rankingService *service.RankingService) *RankingHandler {
	return &RankingHandler{
		accountService: accountService,
		rankingService: rankingService,
	}
}

// HandleTop handles the /top command. It works without a linked account.
func (h *RankingHandler) HandleTop(c tele.Context) error {
	entries, err := h.rankingService.Leaderboard(context.Background(), leaderboardSize)
	if err != nil {
		return replyError(c, err, "leaderboard")
	}
	return c.Reply(formatLeaderboard(entries))
}

// HandleRank handles the /rank command.
func (h *RankingHandler) HandleRank(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	rank, err := h.rankingService.Rank(ctx, p.ID)
	if err != nil {
		return replyError(c, err, "rank")
	}
	return c.Reply(fmt.Sprintf("📈 %s, you are #%d with %d XP", p.Username, rank, p.Progress.XP))
}
