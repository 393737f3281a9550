package handler

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/service"
)

// GiftHandler lists and claims pending gifts.
type GiftHandler struct {
	accountService *service.AccountService
	giftService    *service.GiftService
}

// NewGiftHandler creates a new GiftHandler.
func NewGiftHandler(accountService *service.AccountService, giftService *service.GiftService) *GiftHandler {
	return &GiftHandler{
		accountService: accountService,
		giftService:    giftService,
	}
}

// HandleGifts handles the /gifts command.
func (h *GiftHandler) HandleGifts(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	gifts, err := h.giftService.Pending(ctx, p.ID)
	if err != nil {
		return replyError(c, err, "list gifts")
	}
	return c.Reply(formatGifts(gifts))
}

// HandleClaim handles the /claim command.
// Format: /claim <gift id>
func (h *GiftHandler) HandleClaim(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /claim <id>\nSee your gifts with /gifts")
	}
	giftID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || giftID <= 0 {
		return c.Reply("❌ The gift id must be a number")
	}

	res, err := h.giftService.Claim(ctx, p.ID, giftID)
	if err != nil {
		return replyError(c, err, "claim gift")
	}
	return c.Reply(formatClaim(res.Gift, res.Progress))
}
