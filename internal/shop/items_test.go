package shop

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"deepsafe/internal/model"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatShopMessage(t *testing.T) {
	newGolden(t).Assert(t, "shop_message", []byte(FormatShopMessage(120)))
}

func TestFormatItemDetail(t *testing.T) {
	stock := 3
	item := model.ShopItem{
		ID:         "00000000-0000-0000-0000-000000000001",
		Name:       "Streak Freeze",
		Cost:       80,
		Rarity:     "rare",
		Stock:      &stock,
		IsLimited:  true,
		EffectType: model.EffectStreakFreeze,
	}
	newGolden(t).Assert(t, "item_detail_short", []byte(FormatItemDetail(item, 50)))

	assert.Contains(t, FormatItemDetail(item, 80), "Buy it?")

	stock = 0
	assert.Contains(t, FormatItemDetail(item, 500), "❌ Sold out")
}

func TestFormatPurchase(t *testing.T) {
	item := model.ShopItem{Name: "Mystery Box", EffectType: model.EffectMysteryBox}
	out := model.PurchaseOutcome{
		Progress: model.Progress{Credits: 20, Lives: 4, MaxLives: 5},
		Reward:   &model.Reward{Type: model.RewardXP, Value: 50},
	}
	newGolden(t).Assert(t, "purchase_mystery_box", []byte(FormatPurchase(item, out)))
}

func TestFormatInventory(t *testing.T) {
	items := []model.InventoryItem{
		{Name: "Heart Pack", EffectType: model.EffectHearts, Quantity: 2},
		{Name: "Streak Freeze", EffectType: model.EffectStreakFreeze, Quantity: 1},
	}
	newGolden(t).Assert(t, "inventory", []byte(FormatInventory(items)))

	assert.Contains(t, FormatInventory(nil), "empty")
}

func TestFormatReward(t *testing.T) {
	tests := []struct {
		reward model.Reward
		want   string
	}{
		{model.Reward{Type: model.RewardCredits, Value: 30}, "30 credits"},
		{model.Reward{Type: model.RewardXP, Value: 5}, "5 XP"},
		{model.Reward{Type: model.RewardHearts, Value: 2}, "2 lives"},
		{model.Reward{Type: model.RewardCredits, Value: 30, Description: "Jackpot!"}, "Jackpot!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatReward(tt.reward))
	}
}

func TestEmoji_UnknownEffect(t *testing.T) {
	assert.Equal(t, "📦", Emoji(model.EffectType(0)))
}

func TestBuildShopPanel_Layout(t *testing.T) {
	items := []*model.ShopItem{
		{ID: "a", Name: "A", Cost: 1, EffectType: model.EffectHearts},
		{ID: "b", Name: "B", Cost: 2, EffectType: model.EffectHearts},
		{ID: "c", Name: "C", Cost: 3, EffectType: model.EffectHearts},
	}
	markup := BuildShopPanel(items)

	// Two item rows (2 + 1) and the bag/refresh row.
	rows := markup.InlineKeyboard
	if assert.Len(t, rows, 3) {
		assert.Len(t, rows[0], 2)
		assert.Len(t, rows[1], 1)
		assert.Len(t, rows[2], 2)
		assert.Equal(t, CallbackShopItem+"c", rows[1][0].Unique)
	}
}
