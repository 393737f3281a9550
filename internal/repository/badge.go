package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// BadgeRepository handles the badge catalog.
type BadgeRepository struct {
	db db.DBTX
}

// NewBadgeRepository creates a new BadgeRepository instance.
func NewBadgeRepository(conn db.DBTX) *BadgeRepository {
	return &BadgeRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *BadgeRepository) WithTx(tx pgx.Tx) *BadgeRepository {
	return &BadgeRepository{db: tx}
}

// List returns the whole catalog. Rows with an unknown condition are
// skipped so a bad row cannot hide the rest of the catalog.
func (r *BadgeRepository) List(ctx context.Context) ([]model.Badge, error) {
	const query = `
		SELECT id, name, description, icon, category, xp_reward, rarity, condition_type, condition_value
		FROM badges
		ORDER BY category, xp_reward, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	badges := []model.Badge{}
	for rows.Next() {
		var b model.Badge
		var condType, condValue string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Category, &b.XPReward, &b.Rarity, &condType, &condValue); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		cond, err := model.ParseCondition(condType, condValue)
		if err != nil {
			continue
		}
		b.Condition = cond
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badges: %w", err)
	}
	return badges, nil
}

// Upsert inserts or replaces a badge.
func (r *BadgeRepository) Upsert(ctx context.Context, b model.Badge) error {
	const query = `
		INSERT INTO badges (id, name, description, icon, category, xp_reward, rarity, condition_type, condition_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, icon = EXCLUDED.icon,
			category = EXCLUDED.category, xp_reward = EXCLUDED.xp_reward, rarity = EXCLUDED.rarity,
			condition_type = EXCLUDED.condition_type, condition_value = EXCLUDED.condition_value
	`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.Name, b.Description, b.Icon, b.Category, b.XPReward, b.Rarity,
		b.Condition.Kind.String(), b.Condition.Value(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert badge: %w", err)
	}
	return nil
}

// Delete removes a badge from the catalog. Earned copies on profiles stay.
func (r *BadgeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM badges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete badge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBadgeNotFound
	}
	return nil
}
