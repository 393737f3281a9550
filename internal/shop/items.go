// Package shop renders the Telegram shop: item labels, keyboards and
// message text for the catalog, inventory and purchase results.
package shop

import (
	"fmt"
	"strings"

	"deepsafe/internal/model"
)

const rule = "━━━━━━━━━━━━━━━"

var effectEmoji = map[model.EffectType]string{
	model.EffectNone:         "📦",
	model.EffectHearts:       "❤️",
	model.EffectRefillHearts: "💖",
	model.EffectMaxHearts:    "💗",
	model.EffectStreakFreeze: "🧊",
	model.EffectAvatar:       "🧑‍🚀",
	model.EffectMysteryBox:   "🎁",
}

// Emoji returns the icon shown next to an item with effect e.
func Emoji(e model.EffectType) string {
	if s, ok := effectEmoji[e]; ok {
		return s
	}
	return "📦"
}

// Describe explains what buying the item does.
func Describe(item model.ShopItem) string {
	switch item.EffectType {
	case model.EffectHearts:
		return fmt.Sprintf("Adds %d lives, up to your maximum", item.EffectValue)
	case model.EffectRefillHearts:
		return "Refills every life"
	case model.EffectMaxHearts:
		return fmt.Sprintf("Raises your maximum lives by %d", item.EffectValue)
	case model.EffectStreakFreeze:
		return "Keeps your streak alive through one missed day"
	case model.EffectAvatar:
		return fmt.Sprintf("Unlocks the %s avatar", item.Label)
	case model.EffectMysteryBox:
		return "Opens into a random reward"
	default:
		return "Goes to your inventory"
	}
}

// FormatShopMessage is the header of the shop panel.
func FormatShopMessage(credits int64) string {
	var b strings.Builder
	b.WriteString("🏪 DeepSafe shop\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "💰 Your credits: %d\n", credits)
	b.WriteString(rule + "\n")
	b.WriteString("Pick an item to see the details:")
	return b.String()
}

// FormatItemDetail describes one item and asks for confirmation.
func FormatItemDetail(item model.ShopItem, credits int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Emoji(item.EffectType), item.Name)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "💰 Price: %d credits\n", item.Cost)
	if item.IsLimited && item.Stock != nil {
		fmt.Fprintf(&b, "📉 Left in stock: %d\n", *item.Stock)
	}
	if item.Rarity != "" {
		fmt.Fprintf(&b, "✨ Rarity: %s\n", item.Rarity)
	}
	fmt.Fprintf(&b, "📝 Effect: %s\n", Describe(item))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "💰 Your credits: %d\n", credits)

	switch {
	case !item.InStock():
		b.WriteString("❌ Sold out")
	case credits < item.Cost:
		b.WriteString("❌ Not enough credits")
	default:
		b.WriteString("Buy it?")
	}
	return b.String()
}

// FormatPurchase confirms a purchase and shows any rolled reward.
func FormatPurchase(item model.ShopItem, out model.PurchaseOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Bought %s %s\n", Emoji(item.EffectType), item.Name)
	if out.Reward != nil {
		fmt.Fprintf(&b, "🎉 The box contained: %s\n", FormatReward(*out.Reward))
	}
	fmt.Fprintf(&b, "💰 Credits left: %d\n", out.Progress.Credits)
	fmt.Fprintf(&b, "❤️ Lives: %d/%d", out.Progress.Lives, out.Progress.MaxLives)
	return b.String()
}

// FormatReward renders a loot or gift reward in one line.
func FormatReward(r model.Reward) string {
	if r.Description != "" {
		return r.Description
	}
	switch r.Type {
	case model.RewardCredits:
		return fmt.Sprintf("%d credits", r.Value)
	case model.RewardXP:
		return fmt.Sprintf("%d XP", r.Value)
	case model.RewardHearts:
		return fmt.Sprintf("%d lives", r.Value)
	default:
		return fmt.Sprintf("%d× item", r.Value)
	}
}

// FormatInventory lists the items a user owns.
func FormatInventory(items []model.InventoryItem) string {
	if len(items) == 0 {
		return "🎒 Your bag is empty\n\nOpen the shop with /shop"
	}
	var b strings.Builder
	b.WriteString("🎒 Your bag\n")
	b.WriteString(rule + "\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%s %s x%d\n", Emoji(it.EffectType), it.Name, it.Quantity)
	}
	b.WriteString(rule)
	return b.String()
}
