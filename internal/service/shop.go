package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
	"deepsafe/internal/repository"
)

// ShopService handles shop-related business logic
type ShopService struct {
	conn        db.Beginner
	profileRepo *repository.ProfileRepository
	shopRepo    *repository.ShopRepository
	invRepo     *repository.InventoryRepository
	avatarRepo  *repository.AvatarRepository
	txRepo      *repository.TransactionRepository
	userLock    *lock.KeyedLock
	intn        func(n int) int
	now         func() time.Time
}

// NewShopService creates a new ShopService instance
func NewShopService(
	conn db.Beginner,
	profileRepo *repository.ProfileRepository,
	shopRepo *repository.ShopRepository,
	invRepo *repository.InventoryRepository,
	avatarRepo *repository.AvatarRepository,
	txRepo *repository.TransactionRepository,
	userLock *lock.KeyedLock,
) *ShopService {
	return &ShopService{
		conn:        conn,
		profileRepo: profileRepo,
		shopRepo:    shopRepo,
		invRepo:     invRepo,
		avatarRepo:  avatarRepo,
		txRepo:      txRepo,
		userLock:    userLock,
		intn:        rand.IntN,
		now:         time.Now,
	}
}

// Items returns the catalog with mystery box loot tables.
func (s *ShopService) Items(ctx context.Context) ([]*model.ShopItem, error) {
	return s.shopRepo.List(ctx)
}

// Item returns one catalog entry.
func (s *ShopService) Item(ctx context.Context, id string) (*model.ShopItem, error) {
	return s.shopRepo.Get(ctx, id)
}

// Inventory returns a user's owned stacks.
func (s *ShopService) Inventory(ctx context.Context, profileID string) ([]model.InventoryItem, error) {
	return s.invRepo.List(ctx, profileID)
}

// Purchase buys one unit of an item: stock and credit checks, debit with a
// ledger row, the item's effect, then the stock decrement. Everything runs
// in one transaction while the buyer's lock is held.
func (s *ShopService) Purchase(ctx context.Context, profileID, itemID string) (*model.PurchaseOutcome, error) {
	var out *model.PurchaseOutcome
	err := s.userLock.WithLockContext(ctx, profileID, lockTimeout, func() error {
		return db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
			var err error
			out, err = s.purchase(ctx, tx, profileID, itemID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ShopService) purchase(ctx context.Context, tx pgx.Tx, profileID, itemID string) (*model.PurchaseOutcome, error) {
	profiles := s.profileRepo.WithTx(tx)
	shop := s.shopRepo.WithTx(tx)
	inv := s.invRepo.WithTx(tx)
	txs := s.txRepo.WithTx(tx)

	profile, err := profiles.GetByIDForUpdate(ctx, profileID)
	if err != nil {
		return nil, err
	}
	item, err := shop.GetForUpdate(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.InStock() {
		return nil, repository.ErrOutOfStock
	}

	p := profile.Progress
	if p.Credits < item.Cost {
		return nil, repository.ErrInsufficientCredits
	}
	p.Credits -= item.Cost
	if item.Cost > 0 {
		desc := "Purchase: " + item.Name
		if _, err := txs.Create(ctx, profileID, -item.Cost, model.TxTypeShopPurchase, &desc); err != nil {
			return nil, err
		}
	}

	out := &model.PurchaseOutcome{}
	switch item.EffectType {
	case model.EffectNone, model.EffectStreakFreeze:
		if err := inv.AddItem(ctx, profileID, item.ID, 1); err != nil {
			return nil, err
		}
	case model.EffectHearts:
		p, err = progression.AddHearts(p, int(max(item.EffectValue, 1)))
		if err != nil {
			return nil, err
		}
	case model.EffectRefillHearts:
		p = progression.RefillLives(p)
	case model.EffectMaxHearts:
		p = raiseMaxLives(p, int(max(item.EffectValue, 1)))
	case model.EffectAvatar:
		avatar, err := s.avatarRepo.Get(ctx, item.Label)
		if err != nil {
			return nil, fmt.Errorf("item %s unlocks avatar %q: %w", item.ID, item.Label, err)
		}
		if err := inv.UnlockAvatar(ctx, profileID, avatar.ID); err != nil {
			return nil, err
		}
	case model.EffectMysteryBox:
		loot, err := rollLoot(item.Loot, s.intn)
		if err != nil {
			return nil, err
		}
		reward := model.Reward{Type: loot.RewardType, Value: loot.RewardValue, ItemID: loot.ItemID, Description: loot.Description}
		if reward.Description == "" {
			reward.Description = item.Name + " reward"
		}
		p, err = rewarder{invRepo: inv, txRepo: txs}.grant(ctx, p, reward, model.TxTypeLootReward)
		if err != nil {
			return nil, err
		}
		out.Reward = &reward
	default:
		return nil, fmt.Errorf("item %s has unknown effect %s", item.ID, item.EffectType)
	}

	if item.IsLimited && item.Stock != nil {
		if err := shop.DecrementStock(ctx, item.ID); err != nil {
			return nil, err
		}
	}

	out.Progress, err = profiles.WriteProgress(ctx, p)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", profileID).
		Str("item_id", item.ID).
		Str("effect", item.EffectType.String()).
		Int64("amount", item.Cost).
		Msg("Item purchased")
	return out, nil
}

// raiseMaxLives grows the life cap and grants the new lives.
func raiseMaxLives(p model.Progress, n int) model.Progress {
	p.MaxLives += n
	p.Lives = min(p.Lives+n, p.MaxLives)
	if p.Lives >= p.MaxLives {
		p.LastRefillAt = nil
	}
	return p
}

// rollLoot picks one row with probability weight/total. intn returns a value
// in [0, n).
func rollLoot(loot []model.MysteryBoxLoot, intn func(n int) int) (model.MysteryBoxLoot, error) {
	total := 0
	for _, l := range loot {
		if l.Weight > 0 {
			total += l.Weight
		}
	}
	if total == 0 {
		return model.MysteryBoxLoot{}, ErrEmptyLoot
	}

	roll := intn(total)
	for _, l := range loot {
		if l.Weight <= 0 {
			continue
		}
		if roll < l.Weight {
			return l, nil
		}
		roll -= l.Weight
	}
	return loot[len(loot)-1], nil
}

// UpsertItem creates or updates an item and replaces its loot table in one
// transaction.
func (s *ShopService) UpsertItem(ctx context.Context, item model.ShopItem) (*model.ShopItem, error) {
	if item.EffectType == model.EffectMysteryBox && len(item.Loot) == 0 {
		return nil, ErrEmptyLoot
	}
	if item.EffectType != model.EffectMysteryBox && len(item.Loot) > 0 {
		return nil, result.New(result.KindValidation, "only mystery boxes have loot")
	}
	for _, l := range item.Loot {
		if l.Weight <= 0 {
			return nil, result.New(result.KindValidation, "loot weights must be positive")
		}
		if l.RewardType == model.RewardItem && l.ItemID == nil {
			return nil, result.New(result.KindValidation, "item loot needs an item id")
		}
	}
	if item.IsLimited && item.Stock == nil {
		return nil, result.New(result.KindValidation, "limited items need a stock")
	}

	var saved *model.ShopItem
	err := db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		shop := s.shopRepo.WithTx(tx)
		var err error
		saved, err = shop.Upsert(ctx, item)
		if err != nil {
			return err
		}
		if item.EffectType == model.EffectMysteryBox {
			saved.Loot, err = shop.ReplaceLoot(ctx, saved.ID, item.Loot)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteItem removes an item from the catalog.
func (s *ShopService) DeleteItem(ctx context.Context, id string) error {
	return s.shopRepo.Delete(ctx, id)
}
