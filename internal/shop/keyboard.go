package shop

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"deepsafe/internal/model"
)

// Callback data prefixes. Item ids are UUIDs, so every value stays under
// Telegram's 64-byte callback limit.
const (
	CallbackShopItem    = "shop_item:"   // shop_item:<item id>
	CallbackShopBuy     = "shop_buy:"    // shop_buy:<item id>
	CallbackShopCancel  = "shop_cancel"  // back to the catalog
	CallbackShopRefresh = "shop_refresh" // reload the catalog
	CallbackShopBag     = "shop_bag"     // show the inventory
)

// BuildShopPanel creates the catalog keyboard, two items per row.
func BuildShopPanel(items []*model.ShopItem) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var currentRow []tele.Btn
	for i, item := range items {
		btn := markup.Data(
			fmt.Sprintf("%s %s (%d💰)", Emoji(item.EffectType), item.Name, item.Cost),
			CallbackShopItem+item.ID,
		)
		currentRow = append(currentRow, btn)

		if len(currentRow) == 2 || i == len(items)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}

	rows = append(rows, markup.Row(
		markup.Data("🎒 Bag", CallbackShopBag),
		markup.Data("🔄 Refresh", CallbackShopRefresh),
	))

	markup.Inline(rows...)
	return markup
}

// BuildConfirmPanel asks to confirm buying one item.
func BuildConfirmPanel(itemID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Buy", CallbackShopBuy+itemID),
		markup.Data("❌ Cancel", CallbackShopCancel),
	))
	return markup
}

// BuildBagPanel returns to the catalog from the inventory view.
func BuildBagPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("🔙 Back to shop", CallbackShopCancel)))
	return markup
}
