// Package handler provides Telegram bot command handlers. Every command
// except /start and /link works on the DeepSafe profile linked to the
// sender's Telegram account.
package handler

import (
	"context"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/service"
)

const notLinkedMessage = "🔗 Your Telegram account is not linked yet.\n" +
	"Create a code in the DeepSafe app and send /link <code>"

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService     *service.AccountService
	progressionService *service.ProgressionService
	rankingService     *service.RankingService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, progressionService *service.ProgressionService, rankingService *service.RankingService) *AccountHandler {
	return &AccountHandler{
		accountService:     accountService,
		progressionService: progressionService,
		rankingService:     rankingService,
	}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	name := sender.Username
	if name == "" {
		name = sender.FirstName
	}
	return c.Reply(helpMessage(name))
}

// HandleLink handles the /link command.
// Format: /link <code>
func (h *AccountHandler) HandleLink(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /link <code>\nCreate a code in the DeepSafe app settings")
	}

	p, err := h.accountService.LinkTelegram(ctx, args[0], sender.ID)
	if err != nil {
		return replyError(c, err, "link failed")
	}
	return c.Reply("✅ Linked to " + p.Username + "\n\nTry /profile or /daily")
}

// HandleProfile handles the /profile command.
func (h *AccountHandler) HandleProfile(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	rank, err := h.rankingService.Rank(ctx, p.ID)
	if err != nil {
		return replyError(c, err, "profile lookup failed")
	}
	return c.Reply(formatProfile(p, rank))
}

// HandleDaily handles the /daily command. The login reward is paid once per
// local day.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	res, err := h.progressionService.DailyLogin(ctx, p.ID)
	if err != nil {
		return replyError(c, err, "daily login failed")
	}
	return c.Reply(formatLogin(res))
}

// linkedProfile resolves the sender's profile. When ok is false the caller
// returns err as is; the user has already been answered.
func linkedProfile(ctx context.Context, c tele.Context, accounts *service.AccountService) (p *model.Profile, ok bool, err error) {
	sender := c.Sender()
	if sender == nil {
		return nil, false, nil
	}
	p, err = accounts.ProfileByTelegram(ctx, sender.ID)
	if err != nil {
		if result.KindOf(err) == result.KindNotFound {
			return nil, false, c.Reply(notLinkedMessage)
		}
		return nil, false, replyError(c, err, "profile lookup failed")
	}
	return p, true, nil
}

// replyError answers with the error's user-facing message. Backend errors
// are logged and replaced by a generic retry hint.
func replyError(c tele.Context, err error, op string) error {
	if result.KindOf(err) == result.KindBackend {
		ev := log.Error().Err(err).Str("op", op)
		if s := c.Sender(); s != nil {
			ev = ev.Int64("telegram_id", s.ID)
		}
		ev.Msg("Bot command failed")
		return c.Reply("❌ Something went wrong, please try again later")
	}
	return c.Reply("❌ " + result.MessageOf(err))
}
