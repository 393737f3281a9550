package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// AvatarRepository handles the avatar catalog.
type AvatarRepository struct {
	db db.DBTX
}

// NewAvatarRepository creates a new AvatarRepository instance.
func NewAvatarRepository(conn db.DBTX) *AvatarRepository {
	return &AvatarRepository{db: conn}
}

// List returns every avatar, free ones first.
func (r *AvatarRepository) List(ctx context.Context) ([]model.Avatar, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, image_url, is_premium FROM avatars ORDER BY is_premium, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list avatars: %w", err)
	}
	defer rows.Close()

	avatars := []model.Avatar{}
	for rows.Next() {
		var a model.Avatar
		if err := rows.Scan(&a.ID, &a.Name, &a.ImageURL, &a.IsPremium); err != nil {
			return nil, fmt.Errorf("failed to scan avatar: %w", err)
		}
		avatars = append(avatars, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating avatars: %w", err)
	}
	return avatars, nil
}

// Get retrieves an avatar by id.
func (r *AvatarRepository) Get(ctx context.Context, id string) (*model.Avatar, error) {
	var a model.Avatar
	err := r.db.QueryRow(ctx, `SELECT id, name, image_url, is_premium FROM avatars WHERE id = $1`, id).Scan(
		&a.ID, &a.Name, &a.ImageURL, &a.IsPremium,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvatarNotFound
		}
		return nil, fmt.Errorf("failed to get avatar: %w", err)
	}
	return &a, nil
}

// Upsert inserts or replaces an avatar.
func (r *AvatarRepository) Upsert(ctx context.Context, a model.Avatar) error {
	const query = `
		INSERT INTO avatars (id, name, image_url, is_premium)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, image_url = EXCLUDED.image_url, is_premium = EXCLUDED.is_premium
	`
	if _, err := r.db.Exec(ctx, query, a.ID, a.Name, a.ImageURL, a.IsPremium); err != nil {
		return fmt.Errorf("failed to upsert avatar: %w", err)
	}
	return nil
}

// Delete removes an avatar. Profiles using it fall back to no avatar.
func (r *AvatarRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE profiles SET avatar_id = NULL WHERE avatar_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear avatar: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM avatars WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAvatarNotFound
	}
	return nil
}
