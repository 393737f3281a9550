package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// InventoryRepository handles owned item stacks and unlocked avatars.
type InventoryRepository struct {
	db db.DBTX
}

// NewInventoryRepository creates a new InventoryRepository instance
func NewInventoryRepository(conn db.DBTX) *InventoryRepository {
	return &InventoryRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *InventoryRepository) WithTx(tx pgx.Tx) *InventoryRepository {
	return &InventoryRepository{db: tx}
}

// ========== Item Stacks ==========

// AddItem adds quantity units of an item to a profile's inventory.
func (r *InventoryRepository) AddItem(ctx context.Context, profileID, itemID string, quantity int) error {
	const query = `
		INSERT INTO user_items (profile_id, item_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile_id, item_id)
		DO UPDATE SET quantity = user_items.quantity + $3, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, profileID, itemID, quantity); err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	return nil
}

// SetQuantity sets an exact quantity; zero removes the stack.
func (r *InventoryRepository) SetQuantity(ctx context.Context, profileID, itemID string, quantity int) error {
	if quantity <= 0 {
		if _, err := r.db.Exec(ctx, `DELETE FROM user_items WHERE profile_id = $1 AND item_id = $2`, profileID, itemID); err != nil {
			return fmt.Errorf("failed to remove item: %w", err)
		}
		return nil
	}

	const query = `
		INSERT INTO user_items (profile_id, item_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile_id, item_id)
		DO UPDATE SET quantity = $3, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, profileID, itemID, quantity); err != nil {
		return fmt.Errorf("failed to set item quantity: %w", err)
	}
	return nil
}

// GetQuantity returns how many units of an item a profile owns.
func (r *InventoryRepository) GetQuantity(ctx context.Context, profileID, itemID string) (int, error) {
	const query = `SELECT COALESCE(SUM(quantity), 0) FROM user_items WHERE profile_id = $1 AND item_id = $2`
	var quantity int
	if err := r.db.QueryRow(ctx, query, profileID, itemID).Scan(&quantity); err != nil {
		return 0, fmt.Errorf("failed to get item quantity: %w", err)
	}
	return quantity, nil
}

// ConsumeEffect uses one unit of any owned item with the given effect and
// reports whether one was available.
func (r *InventoryRepository) ConsumeEffect(ctx context.Context, profileID string, effect model.EffectType) (bool, error) {
	const query = `
		UPDATE user_items SET quantity = quantity - 1, updated_at = NOW()
		WHERE (profile_id, item_id) = (
			SELECT ui.profile_id, ui.item_id
			FROM user_items ui
			JOIN shop_items si ON si.id = ui.item_id
			WHERE ui.profile_id = $1 AND si.effect_type = $2 AND ui.quantity > 0
			LIMIT 1
			FOR UPDATE OF ui
		)
	`
	tag, err := r.db.Exec(ctx, query, profileID, effect.String())
	if err != nil {
		return false, fmt.Errorf("failed to consume item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the owned stacks of a profile with item details.
func (r *InventoryRepository) List(ctx context.Context, profileID string) ([]model.InventoryItem, error) {
	const query = `
		SELECT ui.item_id, si.name, si.effect_type, si.label, ui.quantity
		FROM user_items ui
		JOIN shop_items si ON si.id = ui.item_id
		WHERE ui.profile_id = $1 AND ui.quantity > 0
		ORDER BY si.name
	`
	rows, err := r.db.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	items := []model.InventoryItem{}
	for rows.Next() {
		var item model.InventoryItem
		var effect string
		if err := rows.Scan(&item.ItemID, &item.Name, &effect, &item.Label, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		if item.EffectType, err = model.ParseEffectType(effect); err != nil {
			return nil, fmt.Errorf("inventory item %s: %w", item.ItemID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ========== Avatars ==========

// UnlockAvatar records avatar ownership. Unlocking twice is a no-op.
func (r *InventoryRepository) UnlockAvatar(ctx context.Context, profileID, avatarID string) error {
	const query = `
		INSERT INTO user_avatars (profile_id, avatar_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, profileID, avatarID); err != nil {
		return fmt.Errorf("failed to unlock avatar: %w", err)
	}
	return nil
}

// OwnsAvatar reports whether a profile has unlocked an avatar.
func (r *InventoryRepository) OwnsAvatar(ctx context.Context, profileID, avatarID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM user_avatars WHERE profile_id = $1 AND avatar_id = $2)`
	var owned bool
	if err := r.db.QueryRow(ctx, query, profileID, avatarID).Scan(&owned); err != nil {
		return false, fmt.Errorf("failed to check avatar: %w", err)
	}
	return owned, nil
}

// OwnedAvatars lists the avatar ids a profile has unlocked.
func (r *InventoryRepository) OwnedAvatars(ctx context.Context, profileID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT avatar_id FROM user_avatars WHERE profile_id = $1 ORDER BY avatar_id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list avatars: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan avatar: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
