package handler

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/model"
	"deepsafe/internal/service"
)

// AdminHandler handles admin-related commands. The admin middleware checks
// the Telegram id; the operations are recorded under the admin's linked
// profile.
type AdminHandler struct {
	accountService *service.AccountService
	adminService   *service.AdminService
	giftService    *service.GiftService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, adminService *service.AdminService, giftService *service.GiftService) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		adminService:   adminService,
		giftService:    giftService,
	}
}

// HandleAdminAdd handles the /admin_add command.
// Format: /admin_add <username> <amount>
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, service.CreditAdd)
}

// HandleAdminSub handles the /admin_sub command.
// Format: /admin_sub <username> <amount>
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, service.CreditSub)
}

// HandleAdminSet handles the /admin_set command.
// Format: /admin_set <username> <amount>
func (h *AdminHandler) HandleAdminSet(c tele.Context) error {
	return h.adjust(c, service.CreditSet)
}

func (h *AdminHandler) adjust(c tele.Context, op service.CreditOp) error {
	ctx := context.Background()
	admin, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	username, amount, err := parseAdminArgs(c.Args(), op)
	if err != nil {
		return c.Reply(err.Error())
	}

	target, err := h.adminService.UserByUsername(ctx, username)
	if err != nil {
		return replyError(c, err, "admin_"+string(op))
	}

	p, err := h.adminService.AdjustCredits(ctx, admin.ID, target.ID, op, amount)
	if err != nil {
		return replyError(c, err, "admin_"+string(op))
	}
	return c.Reply(formatAdminCredits(target.Username, string(op), amount, p))
}

// parseAdminArgs parses "<username> <amount>".
func parseAdminArgs(args []string, op service.CreditOp) (string, int64, error) {
	if len(args) < 2 {
		return "", 0, fmt.Errorf("❌ Usage: /admin_%s <username> <amount>\nExample: /admin_%s alice 100", op, op)
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("❌ The amount must be a whole number")
	}
	if amount < 0 || (amount == 0 && op != service.CreditSet) {
		return "", 0, fmt.Errorf("❌ The amount must be greater than 0")
	}
	return args[0], amount, nil
}

// HandleAdminGiftAll handles the /admin_gift_all command.
// Format: /admin_gift_all <amount>
// Sends a credit gift to every player; each one claims it with /claim.
func (h *AdminHandler) HandleAdminGiftAll(c tele.Context) error {
	ctx := context.Background()
	admin, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /admin_gift_all <amount>\nExample: /admin_gift_all 100")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || amount <= 0 {
		return c.Reply("❌ The amount must be a whole number greater than 0")
	}

	count, err := h.giftService.SendAll(ctx, admin.ID, service.GiftInput{
		Type:    model.RewardCredits,
		Amount:  amount,
		Message: "A gift from the DeepSafe team",
	})
	if err != nil {
		return replyError(c, err, "admin_gift_all")
	}

	return c.Reply(fmt.Sprintf(
		"✅ Gift sent\n\n"+
			"🎁 Amount: %d credits\n"+
			"👥 Recipients: %d",
		amount, count,
	))
}
