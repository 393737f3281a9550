package model

import "fmt"

// EffectType is the closed set of purchase effects.
type EffectType uint8

const (
	EffectNone EffectType = iota + 1
	EffectHearts
	EffectRefillHearts
	EffectMaxHearts
	EffectStreakFreeze
	EffectAvatar
	EffectMysteryBox
)

var effectNames = map[EffectType]string{
	EffectNone:         "none",
	EffectHearts:       "hearts",
	EffectRefillHearts: "refill_hearts",
	EffectMaxHearts:    "max_hearts",
	EffectStreakFreeze: "streak_freeze",
	EffectAvatar:       "avatar",
	EffectMysteryBox:   "mystery_box",
}

func (e EffectType) String() string {
	if name, ok := effectNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EffectType(%d)", uint8(e))
}

// ParseEffectType maps a stored effect_type to its value.
func ParseEffectType(s string) (EffectType, error) {
	for e, name := range effectNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown effect type %q", s)
}

func (e EffectType) MarshalText() ([]byte, error) {
	if _, ok := effectNames[e]; !ok {
		return nil, fmt.Errorf("unknown effect type %d", uint8(e))
	}
	return []byte(e.String()), nil
}

func (e *EffectType) UnmarshalText(text []byte) error {
	parsed, err := ParseEffectType(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Stackable reports whether buying the item adds a unit to the inventory.
func (e EffectType) Stackable() bool {
	return e == EffectNone || e == EffectStreakFreeze
}

// RewardType is the closed set of loot and gift rewards.
type RewardType uint8

const (
	RewardCredits RewardType = iota + 1
	RewardXP
	RewardHearts
	RewardItem
)

var rewardNames = map[RewardType]string{
	RewardCredits: "credits",
	RewardXP:      "xp",
	RewardHearts:  "hearts",
	RewardItem:    "item",
}

func (r RewardType) String() string {
	if name, ok := rewardNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RewardType(%d)", uint8(r))
}

// ParseRewardType maps a stored reward_type to its value.
func ParseRewardType(s string) (RewardType, error) {
	for r, name := range rewardNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reward type %q", s)
}

func (r RewardType) MarshalText() ([]byte, error) {
	if _, ok := rewardNames[r]; !ok {
		return nil, fmt.Errorf("unknown reward type %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *RewardType) UnmarshalText(text []byte) error {
	parsed, err := ParseRewardType(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ShopItem is a catalog entry. A nil Stock means unlimited.
type ShopItem struct {
	ID          string           `json:"id"`
	Name        string           `json:"name" validate:"required"`
	Cost        int64            `json:"cost" validate:"gte=0"`
	Type        string           `json:"type"`
	Rarity      string           `json:"rarity"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	IsLimited   bool             `json:"is_limited"`
	EffectType  EffectType       `json:"effect_type" validate:"required"`
	EffectValue int64            `json:"effect_value" validate:"gte=0"`
	Label       string           `json:"label"`
	Loot        []MysteryBoxLoot `json:"loot,omitempty" validate:"dive"`
}

// InStock reports whether one more unit can be sold.
func (i ShopItem) InStock() bool {
	if !i.IsLimited || i.Stock == nil {
		return true
	}
	return *i.Stock > 0
}

// MysteryBoxLoot is one weighted row of a mystery box loot table.
type MysteryBoxLoot struct {
	ID          int64      `json:"id"`
	BoxID       string     `json:"box_id"`
	RewardType  RewardType `json:"reward_type" validate:"required"`
	RewardValue int64      `json:"reward_value" validate:"gte=0"`
	ItemID      *string    `json:"item_id,omitempty"`
	Weight      int        `json:"weight" validate:"gt=0"`
	Description string     `json:"description"`
}

// Reward is what a mystery box or gift grants.
type Reward struct {
	Type        RewardType `json:"type"`
	Value       int64      `json:"value"`
	ItemID      *string    `json:"item_id,omitempty"`
	Description string     `json:"description"`
}

// PurchaseOutcome is the result of purchase_item: the buyer's progress after
// the purchase and, for mystery boxes, the rolled reward.
type PurchaseOutcome struct {
	Progress Progress `json:"progress"`
	Reward   *Reward  `json:"reward,omitempty"`
}

// InventoryItem is one owned stack.
type InventoryItem struct {
	ItemID     string     `json:"item_id"`
	Name       string     `json:"name"`
	EffectType EffectType `json:"effect_type"`
	Label      string     `json:"label"`
	Quantity   int        `json:"quantity"`
}
