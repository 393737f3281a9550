package model

import "time"

// Profile is an account together with its progress.
type Profile struct {
	ID           string    `json:"id"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash *string   `json:"-"`
	Username     string    `json:"username"`
	AvatarID     *string   `json:"avatar_id,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	TelegramID   *int64    `json:"telegram_id,omitempty"`
	Progress     Progress  `json:"progress"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ledger entry types for categorizing credit changes.
const (
	TxTypeInitial      = "initial"       // Starting credits on sign-up
	TxTypeDaily        = "daily"         // Daily login reward
	TxTypeGiftSent     = "gift_sent"     // Credits gifted to a friend
	TxTypeGiftReceived = "gift_received" // Claimed credit gift
	TxTypeShopPurchase = "shop_purchase" // Shop item purchase
	TxTypeLootReward   = "loot_reward"   // Mystery box credits
	TxTypeMission      = "mission"       // Mission completion reward
	TxTypeAdminAdd     = "admin_add"     // Admin added credits
	TxTypeAdminSub     = "admin_sub"     // Admin subtracted credits
	TxTypeAdminSet     = "admin_set"     // Admin set credits
)

// EarningTxTypes are the ledger types that count as credits earned.
func EarningTxTypes() []string {
	return []string{TxTypeInitial, TxTypeDaily, TxTypeGiftReceived, TxTypeLootReward, TxTypeMission, TxTypeAdminAdd}
}

// Transaction is one credit ledger row.
type Transaction struct {
	ID          int64     `json:"id"`
	ProfileID   string    `json:"profile_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Friendship statuses.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// Friend is one side of a friendship as seen by the current user.
type Friend struct {
	ProfileID string `json:"profile_id"`
	Username  string `json:"username"`
	XP        int64  `json:"xp"`
	Status    string `json:"status"`
	Incoming  bool   `json:"incoming"`
}

// Gift is a pending or claimed reward sent to a user.
type Gift struct {
	ID          int64      `json:"id"`
	SenderID    *string    `json:"sender_id,omitempty"`
	RecipientID string     `json:"recipient_id"`
	Type        RewardType `json:"gift_type"`
	Amount      int64      `json:"amount"`
	Message     string     `json:"message"`
	ItemID      *string    `json:"item_id,omitempty"`
	IconURL     string     `json:"icon_url"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RankEntry is one leaderboard row. Equal xp shares a rank.
type RankEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	XP       int64  `json:"xp"`
}
