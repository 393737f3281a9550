package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

const shopItemColumns = `id, name, cost, type, rarity, stock, is_limited, effect_type, effect_value, label`

// ShopRepository handles the shop catalog and mystery box loot tables.
type ShopRepository struct {
	db db.DBTX
}

// NewShopRepository creates a new ShopRepository instance.
func NewShopRepository(conn db.DBTX) *ShopRepository {
	return &ShopRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *ShopRepository) WithTx(tx pgx.Tx) *ShopRepository {
	return &ShopRepository{db: tx}
}

func scanShopItem(row pgx.Row) (*model.ShopItem, error) {
	var item model.ShopItem
	var effect string
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Cost,
		&item.Type,
		&item.Rarity,
		&item.Stock,
		&item.IsLimited,
		&effect,
		&item.EffectValue,
		&item.Label,
	)
	if err != nil {
		return nil, err
	}
	if item.EffectType, err = model.ParseEffectType(effect); err != nil {
		return nil, fmt.Errorf("item %s: %w", item.ID, err)
	}
	return &item, nil
}

// List returns the catalog ordered by cost. Loot tables are not loaded.
func (r *ShopRepository) List(ctx context.Context) ([]*model.ShopItem, error) {
	rows, err := r.db.Query(ctx, `SELECT `+shopItemColumns+` FROM shop_items ORDER BY cost, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop items: %w", err)
	}
	defer rows.Close()

	var items []*model.ShopItem
	for rows.Next() {
		item, err := scanShopItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shop item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shop items: %w", err)
	}
	return items, nil
}

// Get retrieves an item with its loot table.
func (r *ShopRepository) Get(ctx context.Context, id string) (*model.ShopItem, error) {
	return r.get(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1`, id)
}

// GetForUpdate retrieves an item and locks its row, so stock checks and
// decrements are serialized across buyers.
func (r *ShopRepository) GetForUpdate(ctx context.Context, id string) (*model.ShopItem, error) {
	return r.get(ctx, `SELECT `+shopItemColumns+` FROM shop_items WHERE id = $1 FOR UPDATE`, id)
}

func (r *ShopRepository) get(ctx context.Context, query string, args ...any) (*model.ShopItem, error) {
	item, err := scanShopItem(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get shop item: %w", err)
	}
	if item.EffectType == model.EffectMysteryBox {
		if item.Loot, err = r.Loot(ctx, item.ID); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// Loot returns the loot table of a mystery box.
func (r *ShopRepository) Loot(ctx context.Context, boxID string) ([]model.MysteryBoxLoot, error) {
	const query = `
		SELECT id, box_id, reward_type, reward_value, item_id, weight, description
		FROM mystery_box_loot
		WHERE box_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, boxID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loot: %w", err)
	}
	defer rows.Close()

	loot := []model.MysteryBoxLoot{}
	for rows.Next() {
		var l model.MysteryBoxLoot
		var rewardType string
		if err := rows.Scan(&l.ID, &l.BoxID, &rewardType, &l.RewardValue, &l.ItemID, &l.Weight, &l.Description); err != nil {
			return nil, fmt.Errorf("failed to scan loot: %w", err)
		}
		if l.RewardType, err = model.ParseRewardType(rewardType); err != nil {
			return nil, fmt.Errorf("loot %d: %w", l.ID, err)
		}
		loot = append(loot, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loot: %w", err)
	}
	return loot, nil
}

// Upsert inserts or updates a catalog row.
func (r *ShopRepository) Upsert(ctx context.Context, item model.ShopItem) (*model.ShopItem, error) {
	query := `
		INSERT INTO shop_items (id, name, cost, type, rarity, stock, is_limited, effect_type, effect_value, label)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, cost = EXCLUDED.cost, type = EXCLUDED.type, rarity = EXCLUDED.rarity,
			stock = EXCLUDED.stock, is_limited = EXCLUDED.is_limited, effect_type = EXCLUDED.effect_type,
			effect_value = EXCLUDED.effect_value, label = EXCLUDED.label, updated_at = NOW()
		RETURNING ` + shopItemColumns

	if item.Type == "" {
		item.Type = "consumable"
	}
	if item.Rarity == "" {
		item.Rarity = "common"
	}
	saved, err := scanShopItem(r.db.QueryRow(ctx, query,
		item.ID, item.Name, item.Cost, item.Type, item.Rarity, item.Stock, item.IsLimited,
		item.EffectType.String(), item.EffectValue, item.Label,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert shop item: %w", err)
	}
	return saved, nil
}

// ReplaceLoot deletes a box's loot rows and inserts the given set. Run it
// inside a transaction.
func (r *ShopRepository) ReplaceLoot(ctx context.Context, boxID string, loot []model.MysteryBoxLoot) ([]model.MysteryBoxLoot, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM mystery_box_loot WHERE box_id = $1`, boxID); err != nil {
		return nil, fmt.Errorf("failed to delete loot: %w", err)
	}

	const query = `
		INSERT INTO mystery_box_loot (box_id, reward_type, reward_value, item_id, weight, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	saved := make([]model.MysteryBoxLoot, len(loot))
	for i, l := range loot {
		l.BoxID = boxID
		if err := r.db.QueryRow(ctx, query,
			boxID, l.RewardType.String(), l.RewardValue, l.ItemID, l.Weight, l.Description,
		).Scan(&l.ID); err != nil {
			return nil, fmt.Errorf("failed to insert loot %d: %w", i, err)
		}
		saved[i] = l
	}
	return saved, nil
}

// DecrementStock sells one unit of a limited item.
// Returns ErrOutOfStock when none are left.
func (r *ShopRepository) DecrementStock(ctx context.Context, id string) error {
	const query = `
		UPDATE shop_items SET stock = stock - 1, updated_at = NOW()
		WHERE id = $1 AND is_limited AND stock IS NOT NULL AND stock > 0
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutOfStock
	}
	return nil
}

// Delete removes an item; its loot rows and inventory stacks cascade.
func (r *ShopRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM shop_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shop item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
