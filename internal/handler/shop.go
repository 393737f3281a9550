package handler

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/pkg/result"
	"deepsafe/internal/service"
	"deepsafe/internal/shop"
)

// ShopHandler handles shop-related commands
type ShopHandler struct {
	shopService    *service.ShopService
	accountService *service.AccountService
}

// NewShopHandler creates a new ShopHandler
func NewShopHandler(shopService *service.ShopService, accountService *service.AccountService) *ShopHandler {
	return &ShopHandler{
		shopService:    shopService,
		accountService: accountService,
	}
}

// HandleShop handles /shop and sends the catalog panel
func (h *ShopHandler) HandleShop(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	items, err := h.shopService.Items(ctx)
	if err != nil {
		return replyError(c, err, "list shop items")
	}
	return c.Send(shop.FormatShopMessage(p.Progress.Credits), shop.BuildShopPanel(items))
}

// HandleBag handles /bag command to show inventory
func (h *ShopHandler) HandleBag(c tele.Context) error {
	ctx := context.Background()
	p, ok, err := linkedProfile(ctx, c, h.accountService)
	if !ok {
		return err
	}

	items, err := h.shopService.Inventory(ctx, p.ID)
	if err != nil {
		return replyError(c, err, "inventory")
	}
	return c.Reply(shop.FormatInventory(items))
}

// HandleShopCallback handles shop button callbacks. data has the telebot
// "\f" prefix already stripped.
func (h *ShopHandler) HandleShopCallback(c tele.Context, data string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	p, err := h.accountService.ProfileByTelegram(ctx, sender.ID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "🔗 Link your account first with /link", ShowAlert: true})
	}

	switch {
	case data == shop.CallbackShopRefresh || data == shop.CallbackShopCancel:
		return h.editCatalog(ctx, c, p.Progress.Credits)

	case data == shop.CallbackShopBag:
		items, err := h.shopService.Inventory(ctx, p.ID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Could not load your bag", ShowAlert: true})
		}
		return c.Edit(shop.FormatInventory(items), shop.BuildBagPanel())

	case strings.HasPrefix(data, shop.CallbackShopItem):
		item, err := h.shopService.Item(ctx, strings.TrimPrefix(data, shop.CallbackShopItem))
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Item not found"})
		}
		return c.Edit(shop.FormatItemDetail(*item, p.Progress.Credits), shop.BuildConfirmPanel(item.ID))

	case strings.HasPrefix(data, shop.CallbackShopBuy):
		itemID := strings.TrimPrefix(data, shop.CallbackShopBuy)
		item, err := h.shopService.Item(ctx, itemID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Item not found", ShowAlert: true})
		}

		out, err := h.shopService.Purchase(ctx, p.ID, itemID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: purchaseFailure(err, p.ID, itemID), ShowAlert: true})
		}

		_ = c.Respond(&tele.CallbackResponse{Text: "✅ Bought " + item.Name})
		return c.Edit(shop.FormatPurchase(*item, *out), shop.BuildBagPanel())
	}

	return nil
}

func (h *ShopHandler) editCatalog(ctx context.Context, c tele.Context, credits int64) error {
	items, err := h.shopService.Items(ctx)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Could not load the shop", ShowAlert: true})
	}
	return c.Edit(shop.FormatShopMessage(credits), shop.BuildShopPanel(items))
}

func purchaseFailure(err error, profileID, itemID string) string {
	switch result.KindOf(err) {
	case result.KindInsufficient:
		return "❌ Not enough credits!"
	case result.KindInFlight:
		return "⏳ That purchase is still being processed"
	case result.KindBackend:
		log.Error().Err(err).Str("user_id", profileID).Str("item_id", itemID).Msg("Purchase failed")
		return "❌ Purchase failed, please try again later"
	default:
		return "❌ " + result.MessageOf(err)
	}
}
